package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/enrollment"
)

var enrollmentColumns = []string{
	"id", "user_id", "course_id", "payment_id", "status", "completed_lectures", "passed_quizzes",
	"progress", "rating", "enrolled_at", "last_accessed_at", "completed_at",
}

type enrollmentRow struct {
	ID                string         `db:"id"`
	UserID            string         `db:"user_id"`
	CourseID          string         `db:"course_id"`
	PaymentID         null.String    `db:"payment_id"`
	Status            string         `db:"status"`
	CompletedLectures pq.StringArray `db:"completed_lectures"`
	PassedQuizzes     pq.StringArray `db:"passed_quizzes"`
	Progress          int            `db:"progress"`
	Rating            null.Int       `db:"rating"`
	EnrolledAt        time.Time      `db:"enrolled_at"`
	LastAccessedAt    time.Time      `db:"last_accessed_at"`
	CompletedAt       null.Time      `db:"completed_at"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (row enrollmentRow) enrollment() enrollment.Enrollment {
	e := enrollment.Enrollment{
		ID:                row.ID,
		UserID:            row.UserID,
		CourseID:          row.CourseID,
		PaymentID:         row.PaymentID.String,
		Status:            row.Status,
		CompletedLectures: nonNil(row.CompletedLectures),
		PassedQuizzes:     nonNil(row.PassedQuizzes),
		Progress:          row.Progress,
		Rating:            row.Rating.Int,
		EnrolledAt:        row.EnrolledAt.UTC(),
		LastAccessedAt:    row.LastAccessedAt.UTC(),
	}
	if row.CompletedAt.Valid {
		at := row.CompletedAt.Time.UTC()
		e.CompletedAt = &at
	}
	return e
}

type enrollmentRepository struct {
	baseRepository
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db core.DBExecutor) enrollment.Repository {
	return &enrollmentRepository{baseRepository{db: db}}
}

func (repo *enrollmentRepository) getEnrollment(ctx context.Context, userID, courseID, suffix string, exec []core.DBExecutor) (enrollment.Enrollment, error) {
	if !validID(userID) || !validID(courseID) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	var row enrollmentRow
	query := psql.Select(enrollmentColumns...).From("enrollments").Where(sq.Eq{"user_id": userID, "course_id": courseID})
	if suffix != "" {
		query = query.Suffix(suffix)
	}
	if err := get(ctx, repo.getExec(exec), &row, query); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "getting enrollment")
	}
	return row.enrollment(), nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	return repo.getEnrollment(ctx, userID, courseID, "", exec)
}

// LockEnrollment takes a row lock, exec must be a transaction.
func (repo *enrollmentRepository) LockEnrollment(ctx context.Context, userID, courseID string, exec core.DBExecutor) (enrollment.Enrollment, error) {
	if exec == nil {
		return enrollment.Enrollment{}, errors.New("locking an enrollment needs a transaction")
	}
	return repo.getEnrollment(ctx, userID, courseID, "FOR UPDATE", []core.DBExecutor{exec})
}

func (repo *enrollmentRepository) ActivateEnrollment(ctx context.Context, e enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	db := repo.getExec(exec)

	// a refunded enrollment is reactivated in place, an active one is left untouched
	query := psql.Insert("enrollments").
		SetMap(map[string]interface{}{
			"id":                 e.ID,
			"user_id":            e.UserID,
			"course_id":          e.CourseID,
			"payment_id":         null.NewString(e.PaymentID, e.PaymentID != ""),
			"status":             enrollment.StatusActive,
			"completed_lectures": pq.StringArray(nonNil(e.CompletedLectures)),
			"passed_quizzes":     pq.StringArray(nonNil(e.PassedQuizzes)),
			"progress":           e.Progress,
			"enrolled_at":        e.EnrolledAt.UTC(),
			"last_accessed_at":   e.LastAccessedAt.UTC(),
		}).
		Suffix(
			"ON CONFLICT (user_id, course_id) DO UPDATE SET "+
				"status = EXCLUDED.status, payment_id = EXCLUDED.payment_id, last_accessed_at = EXCLUDED.last_accessed_at "+
				"WHERE enrollments.status <> ? RETURNING "+sqlColumns(enrollmentColumns),
			enrollment.StatusActive,
		)

	var row enrollmentRow
	err := get(ctx, db, &row, query)
	if err == nil {
		return row.enrollment(), true, nil
	}
	if err = trapNoRowsErr(err, enrollment.ErrNotFound, "activating enrollment"); err != enrollment.ErrNotFound {
		return enrollment.Enrollment{}, false, err
	}

	existing, err := repo.GetEnrollment(ctx, e.UserID, e.CourseID, db)
	return existing, false, err
}

func (repo *enrollmentRepository) RevokeEnrollment(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (bool, error) {
	if !validID(userID) || !validID(courseID) {
		return false, nil
	}
	query := psql.Update("enrollments").
		Set("status", enrollment.StatusRefunded).
		Where(sq.Eq{"user_id": userID, "course_id": courseID, "status": enrollment.StatusActive})
	n, err := execute(ctx, repo.getExec(exec), query)
	if err != nil {
		return false, errors.Wrap(err, "revoking enrollment")
	}
	return n > 0, nil
}

func (repo *enrollmentRepository) UpdateEnrollment(ctx context.Context, e enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	if !validID(e.ID) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	completedAt := null.TimeFromPtr(e.CompletedAt)
	query := psql.Update("enrollments").
		SetMap(map[string]interface{}{
			"completed_lectures": pq.StringArray(nonNil(e.CompletedLectures)),
			"passed_quizzes":     pq.StringArray(nonNil(e.PassedQuizzes)),
			"progress":           e.Progress,
			"rating":             null.NewInt(e.Rating, e.Rating > 0),
			"last_accessed_at":   e.LastAccessedAt.UTC(),
			"completed_at":       completedAt,
		}).
		Where(sq.Eq{"id": e.ID}).
		Suffix("RETURNING " + sqlColumns(enrollmentColumns))

	var row enrollmentRow
	if err := get(ctx, repo.getExec(exec), &row, query); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "updating enrollment")
	}
	return row.enrollment(), nil
}

func (repo *enrollmentRepository) QueryEnrollments(ctx context.Context, userID, status string, exec ...core.DBExecutor) ([]enrollment.Enrollment, error) {
	if !validID(userID) {
		return []enrollment.Enrollment{}, nil
	}
	where := sq.Eq{"user_id": userID}
	if status != "" {
		where["status"] = status
	}

	var rows []enrollmentRow
	query := psql.Select(enrollmentColumns...).From("enrollments").Where(where).OrderBy("enrolled_at DESC")
	if err := selectRows(ctx, repo.getExec(exec), &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	res := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.enrollment())
	}
	return res, nil
}

func (repo *enrollmentRepository) CountEnrollments(ctx context.Context, exec ...core.DBExecutor) (enrollment.Counts, error) {
	var counts enrollment.Counts
	query := psql.Select("COUNT(*) AS active", "COUNT(completed_at) AS completed").
		From("enrollments").
		Where(sq.Eq{"status": enrollment.StatusActive})
	if err := get(ctx, repo.getExec(exec), &counts, query); err != nil {
		return enrollment.Counts{}, errors.Wrap(err, "counting enrollments")
	}
	return counts, nil
}
