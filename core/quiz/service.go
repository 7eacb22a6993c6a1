package quiz

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/enrollment"
	"github.com/skillsharp/lms/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("Quiz not found")
	ErrUnknownLecture = core.NewValidationError(nil, core.FieldError{Field: "lecture_id", Error: "lecture not found in this course"})
)

type (
	Repository interface {
		CreateQuiz(ctx context.Context, q Quiz, exec ...core.DBExecutor) (Quiz, error)
		GetQuiz(ctx context.Context, id string, exec ...core.DBExecutor) (Quiz, error)
		QueryQuizzes(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Quiz, error)
		DeleteQuiz(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, c course.Course, nq NewQuiz) (Quiz, error)
		GetByID(ctx context.Context, id string) (Quiz, error)
		ListForCourse(ctx context.Context, courseID string) ([]Quiz, error)
		Delete(ctx context.Context, id string) error
		// Submit grades the answers of an enrolled user.
		Submit(ctx context.Context, usr user.User, q Quiz, data Submission) (Result, error)
	}

	service struct {
		repo      Repository
		enrollSvc enrollment.Service
		validate  *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, enrollSvc enrollment.Service, validate *validator.Validate) Service {
	return &service{repo: repo, enrollSvc: enrollSvc, validate: validate}
}

func (svc *service) Create(ctx context.Context, c course.Course, nq NewQuiz) (Quiz, error) {
	nq.Clean()
	if err := svc.validate.Struct(nq); err != nil {
		return Quiz{}, err
	}
	if nq.LectureID != "" {
		if _, ok := c.Lecture(nq.LectureID); !ok {
			return Quiz{}, ErrUnknownLecture
		}
	}

	now := time.Now().UTC()
	return svc.repo.CreateQuiz(ctx, Quiz{
		CourseID:     c.ID,
		LectureID:    nq.LectureID,
		Title:        nq.Title,
		Questions:    nq.Questions,
		PassingScore: nq.PassingScore,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (Quiz, error) {
	return svc.repo.GetQuiz(ctx, id)
}

func (svc *service) ListForCourse(ctx context.Context, courseID string) ([]Quiz, error) {
	return svc.repo.QueryQuizzes(ctx, courseID)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteQuiz(ctx, id)
}

func (svc *service) Submit(ctx context.Context, usr user.User, q Quiz, data Submission) (Result, error) {
	if err := svc.validate.Struct(data); err != nil {
		return Result{}, err
	}
	enrolled, err := svc.enrollSvc.IsEnrolled(ctx, usr.ID, q.CourseID)
	if err != nil {
		return Result{}, errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return Result{}, enrollment.ErrNotEnrolled
	}

	score, correct := q.Grade(data.Answers)
	res := Result{
		Score:   score,
		Correct: correct,
		Total:   len(q.Questions),
		Passed:  score >= q.PassingScore,
	}
	if res.Passed {
		first, err := svc.enrollSvc.PassQuiz(ctx, usr.ID, q.CourseID, q.ID, q.LectureID)
		if err != nil {
			return Result{}, errors.Wrap(err, "recording quiz pass")
		}
		if first {
			res.PointsAwarded = user.PointsQuizPassed
		}
	}
	return res, nil
}
