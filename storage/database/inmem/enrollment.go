package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/enrollment"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func copyEnrollment(e *enrollment.Enrollment) enrollment.Enrollment {
	res := *e
	res.CompletedLectures = cloneStrings(e.CompletedLectures)
	res.PassedQuizzes = cloneStrings(e.PassedQuizzes)
	res.Course = nil
	if e.CompletedAt != nil {
		at := *e.CompletedAt
		res.CompletedAt = &at
	}
	return res
}

// find returns the enrollment of userID in courseID. Callers hold the lock.
func (repo *enrollmentRepository) find(userID, courseID string) *enrollment.Enrollment {
	for _, e := range repo.db.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			return e
		}
	}
	return nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, userID, courseID string, _ ...core.DBExecutor) (enrollment.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if e := repo.find(userID, courseID); e != nil {
		return copyEnrollment(e), nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

// LockEnrollment relies on the transactor, which runs one transaction at a time.
func (repo *enrollmentRepository) LockEnrollment(ctx context.Context, userID, courseID string, _ core.DBExecutor) (enrollment.Enrollment, error) {
	return repo.GetEnrollment(ctx, userID, courseID)
}

func (repo *enrollmentRepository) ActivateEnrollment(_ context.Context, e enrollment.Enrollment, _ ...core.DBExecutor) (enrollment.Enrollment, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[e.CourseID]; !ok {
		return enrollment.Enrollment{}, false, enrollment.ErrNotFound
	}
	if orig := repo.find(e.UserID, e.CourseID); orig != nil {
		if orig.IsActive() {
			return copyEnrollment(orig), false, nil
		}
		orig.Status = enrollment.StatusActive
		orig.PaymentID = e.PaymentID
		orig.LastAccessedAt = e.LastAccessedAt
		return copyEnrollment(orig), true, nil
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	ne := copyEnrollment(&e)
	repo.db.enrollments[e.ID] = &ne
	return copyEnrollment(&ne), true, nil
}

func (repo *enrollmentRepository) RevokeEnrollment(_ context.Context, userID, courseID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	e := repo.find(userID, courseID)
	if e == nil || !e.IsActive() {
		return false, nil
	}
	e.Status = enrollment.StatusRefunded
	return true, nil
}

func (repo *enrollmentRepository) UpdateEnrollment(_ context.Context, e enrollment.Enrollment, _ ...core.DBExecutor) (enrollment.Enrollment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.enrollments[e.ID]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	orig.CompletedLectures = cloneStrings(e.CompletedLectures)
	orig.PassedQuizzes = cloneStrings(e.PassedQuizzes)
	orig.Progress = e.Progress
	orig.Rating = e.Rating
	orig.LastAccessedAt = e.LastAccessedAt
	orig.CompletedAt = e.CompletedAt
	return copyEnrollment(orig), nil
}

func (repo *enrollmentRepository) QueryEnrollments(_ context.Context, userID, status string, _ ...core.DBExecutor) ([]enrollment.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]enrollment.Enrollment, 0)
	for _, e := range repo.db.enrollments {
		if e.UserID != userID || (status != "" && e.Status != status) {
			continue
		}
		res = append(res, copyEnrollment(e))
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].EnrolledAt.After(res[j].EnrolledAt) })
	return res, nil
}

func (repo *enrollmentRepository) CountEnrollments(_ context.Context, _ ...core.DBExecutor) (enrollment.Counts, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var counts enrollment.Counts
	for _, e := range repo.db.enrollments {
		if !e.IsActive() {
			continue
		}
		counts.Active++
		if e.IsCompleted() {
			counts.Completed++
		}
	}
	return counts, nil
}
