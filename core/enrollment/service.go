package enrollment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/user"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("Enrollment not found")
	ErrNotEnrolled   = core.NewPermissionError("You must be enrolled in this course")
	ErrPaidCourse    = core.NewValidationError(errors.New("This course requires payment"))
	ErrOwnCourse     = core.NewValidationError(errors.New("You cannot enroll in your own course"))
	ErrNotPublished  = core.NewValidationError(errors.New("This course is not available for enrollment"))
	ErrEnrollmentOff = core.NewValidationError(errors.New("This enrollment is no longer active"))
)

type (
	Repository interface {
		GetEnrollment(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Enrollment, error)
		// LockEnrollment reads an enrollment and holds it until exec's transaction ends,
		// so that read-then-write updates such as awards happen once.
		LockEnrollment(ctx context.Context, userID, courseID string, exec core.DBExecutor) (Enrollment, error)
		// ActivateEnrollment inserts the enrollment or reactivates a refunded one.
		// activated is false when an active enrollment already existed, in which case it is returned untouched.
		ActivateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (res Enrollment, activated bool, err error)
		// RevokeEnrollment flips an active enrollment to refunded. revoked is false when there was nothing to revoke.
		RevokeEnrollment(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (revoked bool, err error)
		UpdateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		// QueryEnrollments lists a user's enrollments, newest first. An empty status matches all.
		QueryEnrollments(ctx context.Context, userID, status string, exec ...core.DBExecutor) ([]Enrollment, error)
		CountEnrollments(ctx context.Context, exec ...core.DBExecutor) (Counts, error)
	}

	Service interface {
		// Enroll joins usr to a free published course. created is false when usr was already enrolled.
		Enroll(ctx context.Context, usr user.User, courseID string) (e Enrollment, created bool, err error)
		// Activate grants access to a course, counting the student once. It joins the caller's transaction.
		Activate(ctx context.Context, userID, courseID, paymentID string, exec ...core.DBExecutor) (Enrollment, bool, error)
		// Revoke removes access to a course, uncounting the student once. It joins the caller's transaction.
		Revoke(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (bool, error)
		Get(ctx context.Context, userID, courseID string) (Enrollment, error)
		GetActive(ctx context.Context, userID, courseID string) (Enrollment, error)
		IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
		ListMine(ctx context.Context, userID string) ([]Enrollment, error)
		ListActiveCourseIDs(ctx context.Context, userID string, exec ...core.DBExecutor) ([]string, error)
		CompleteLecture(ctx context.Context, userID, courseID, lectureID string) (Enrollment, error)
		SetProgress(ctx context.Context, userID, courseID string, data SetProgress) (Enrollment, error)
		Rate(ctx context.Context, userID, courseID string, data Rate) (Enrollment, error)
		// PassQuiz records a passed quiz. The first pass awards points and completes the linked lecture.
		PassQuiz(ctx context.Context, userID, courseID, quizID, lectureID string) (firstPass bool, err error)
		Counts(ctx context.Context) (Counts, error)
	}

	service struct {
		repo       Repository
		courseSvc  course.Service
		usrSvc     user.Service
		transactor core.Transactor
		validate   *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	courseSvc course.Service,
	usrSvc user.Service,
	transactor core.Transactor,
	validate *validator.Validate,
) Service {
	return &service{
		repo:       repo,
		courseSvc:  courseSvc,
		usrSvc:     usrSvc,
		transactor: transactor,
		validate:   validate,
	}
}

func (svc *service) Enroll(ctx context.Context, usr user.User, courseID string) (Enrollment, bool, error) {
	c, err := svc.courseSvc.GetByID(ctx, courseID)
	if err != nil {
		return Enrollment{}, false, err
	}
	if !c.IsPublished {
		return Enrollment{}, false, ErrNotPublished
	}
	if c.IsOwnedBy(usr) {
		return Enrollment{}, false, ErrOwnCourse
	}
	if !c.IsFree() {
		if e, err := svc.GetActive(ctx, usr.ID, courseID); err == nil {
			return e, false, nil
		}
		return Enrollment{}, false, ErrPaidCourse
	}

	var (
		e       Enrollment
		created bool
	)
	err = svc.transactor.WithinTx(ctx, func(exec core.DBExecutor) error {
		var txErr error
		e, created, txErr = svc.Activate(ctx, usr.ID, courseID, "", exec)
		return txErr
	})
	if err != nil {
		return Enrollment{}, false, errors.Wrap(err, "enrolling")
	}
	return e, created, nil
}

func (svc *service) Activate(ctx context.Context, userID, courseID, paymentID string, exec ...core.DBExecutor) (Enrollment, bool, error) {
	now := time.Now().UTC()
	e, activated, err := svc.repo.ActivateEnrollment(ctx, Enrollment{
		UserID:            userID,
		CourseID:          courseID,
		PaymentID:         paymentID,
		Status:            StatusActive,
		CompletedLectures: []string{},
		PassedQuizzes:     []string{},
		EnrolledAt:        now,
		LastAccessedAt:    now,
	}, exec...)
	if err != nil {
		return Enrollment{}, false, errors.Wrap(err, "activating enrollment")
	}
	if activated {
		if err = svc.courseSvc.AddStudents(ctx, courseID, 1, exec...); err != nil {
			return Enrollment{}, false, errors.Wrap(err, "incrementing total students")
		}
	}
	return e, activated, nil
}

func (svc *service) Revoke(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (bool, error) {
	revoked, err := svc.repo.RevokeEnrollment(ctx, userID, courseID, exec...)
	if err != nil {
		return false, errors.Wrap(err, "revoking enrollment")
	}
	if revoked {
		if err = svc.courseSvc.AddStudents(ctx, courseID, -1, exec...); err != nil {
			return false, errors.Wrap(err, "decrementing total students")
		}
	}
	return revoked, nil
}

func (svc *service) Get(ctx context.Context, userID, courseID string) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, userID, courseID)
}

func (svc *service) GetActive(ctx context.Context, userID, courseID string) (Enrollment, error) {
	e, err := svc.repo.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if !e.IsActive() {
		return Enrollment{}, ErrEnrollmentOff
	}
	return e, nil
}

func (svc *service) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	e, err := svc.repo.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		if core.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return e.IsActive(), nil
}

// ListMine returns the user's active enrollments with their course summaries.
func (svc *service) ListMine(ctx context.Context, userID string) ([]Enrollment, error) {
	enrollments, err := svc.repo.QueryEnrollments(ctx, userID, StatusActive)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	if len(enrollments) == 0 {
		return enrollments, nil
	}

	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.CourseID)
	}
	courses, _, err := svc.courseSvc.Query(ctx, &course.QueryFilter{IDs: ids}, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrolled courses")
	}
	summaries := make(map[string]course.Summary, len(courses))
	for _, c := range courses {
		summaries[c.ID] = c.Summary()
	}
	for i := range enrollments {
		if s, ok := summaries[enrollments[i].CourseID]; ok {
			s := s
			enrollments[i].Course = &s
		}
	}
	return enrollments, nil
}

func (svc *service) ListActiveCourseIDs(ctx context.Context, userID string, exec ...core.DBExecutor) ([]string, error) {
	enrollments, err := svc.repo.QueryEnrollments(ctx, userID, StatusActive, exec...)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.CourseID)
	}
	return ids, nil
}

// saveProgress stores e with the given progress and rewards a first completion.
func (svc *service) saveProgress(ctx context.Context, e Enrollment, progress int, exec core.DBExecutor) (Enrollment, error) {
	now := time.Now().UTC()
	e.Progress = core.ClampInt(progress, 0, 100)
	e.LastAccessedAt = now

	firstCompletion := e.Progress == 100 && !e.IsCompleted()
	if firstCompletion {
		e.CompletedAt = &now
	}

	e, err := svc.repo.UpdateEnrollment(ctx, e, exec)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if firstCompletion {
		if _, err = svc.usrSvc.AwardPoints(ctx, e.UserID, user.PointsCourseCompleted, []string{user.BadgeCourseCompleter}, exec); err != nil {
			return Enrollment{}, errors.Wrap(err, "awarding completion points")
		}
	}
	return e, nil
}

func (svc *service) completeLecture(ctx context.Context, e Enrollment, c course.Course, lectureID string, exec core.DBExecutor) (Enrollment, error) {
	if _, ok := c.Lecture(lectureID); !ok {
		return Enrollment{}, course.ErrLectureMissing
	}
	if !e.HasCompletedLecture(lectureID) {
		e.CompletedLectures = append(e.CompletedLectures, lectureID)
	}
	return svc.saveProgress(ctx, e, LectureProgress(c, e.CompletedLectures), exec)
}

func (svc *service) CompleteLecture(ctx context.Context, userID, courseID, lectureID string) (Enrollment, error) {
	var res Enrollment
	err := svc.transactor.WithinTx(ctx, func(exec core.DBExecutor) error {
		e, c, err := svc.getActiveWithCourse(ctx, userID, courseID, exec)
		if err != nil {
			return err
		}
		res, err = svc.completeLecture(ctx, e, c, lectureID, exec)
		return err
	})
	return res, err
}

func (svc *service) SetProgress(ctx context.Context, userID, courseID string, data SetProgress) (Enrollment, error) {
	if err := svc.validate.Struct(data); err != nil {
		return Enrollment{}, err
	}

	var res Enrollment
	err := svc.transactor.WithinTx(ctx, func(exec core.DBExecutor) error {
		e, err := svc.repo.LockEnrollment(ctx, userID, courseID, exec)
		if err != nil {
			return err
		}
		if !e.IsActive() {
			return ErrEnrollmentOff
		}
		res, err = svc.saveProgress(ctx, e, *data.Progress, exec)
		return err
	})
	return res, err
}

func (svc *service) Rate(ctx context.Context, userID, courseID string, data Rate) (Enrollment, error) {
	if err := svc.validate.Struct(data); err != nil {
		return Enrollment{}, err
	}

	var res Enrollment
	err := svc.transactor.WithinTx(ctx, func(exec core.DBExecutor) error {
		e, err := svc.repo.LockEnrollment(ctx, userID, courseID, exec)
		if err != nil {
			return err
		}
		if !e.IsActive() {
			return ErrEnrollmentOff
		}

		previous := e.Rating
		e.Rating = data.Rating
		if res, err = svc.repo.UpdateEnrollment(ctx, e, exec); err != nil {
			return errors.Wrap(err, "updating enrollment")
		}
		return errors.Wrap(svc.courseSvc.ApplyRating(ctx, courseID, data.Rating, previous, exec), "rating course")
	})
	return res, err
}

func (svc *service) PassQuiz(ctx context.Context, userID, courseID, quizID, lectureID string) (bool, error) {
	var firstPass bool
	err := svc.transactor.WithinTx(ctx, func(exec core.DBExecutor) error {
		e, c, err := svc.getActiveWithCourse(ctx, userID, courseID, exec)
		if err != nil {
			return err
		}
		if e.HasPassedQuiz(quizID) {
			return nil
		}

		firstPass = true
		e.PassedQuizzes = append(e.PassedQuizzes, quizID)
		if e, err = svc.repo.UpdateEnrollment(ctx, e, exec); err != nil {
			return errors.Wrap(err, "updating enrollment")
		}
		if _, err = svc.usrSvc.AwardPoints(ctx, userID, user.PointsQuizPassed, nil, exec); err != nil {
			return errors.Wrap(err, "awarding quiz points")
		}
		if _, ok := c.Lecture(lectureID); ok {
			if _, err = svc.completeLecture(ctx, e, c, lectureID, exec); err != nil {
				return errors.Wrap(err, "completing quiz lecture")
			}
		}
		return nil
	})
	return firstPass, err
}

func (svc *service) getActiveWithCourse(ctx context.Context, userID, courseID string, exec core.DBExecutor) (Enrollment, course.Course, error) {
	e, err := svc.repo.LockEnrollment(ctx, userID, courseID, exec)
	if err != nil {
		if core.IsNotFound(err) {
			return Enrollment{}, course.Course{}, ErrNotEnrolled
		}
		return Enrollment{}, course.Course{}, err
	}
	if !e.IsActive() {
		return Enrollment{}, course.Course{}, ErrNotEnrolled
	}
	c, err := svc.courseSvc.GetByID(ctx, courseID, exec)
	if err != nil {
		return Enrollment{}, course.Course{}, err
	}
	return e, c, nil
}

func (svc *service) Counts(ctx context.Context) (Counts, error) {
	return svc.repo.CountEnrollments(ctx)
}
