package pgrepos

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
)

var courseColumns = []string{
	"id", "instructor_id", "title", "slug", "description", "category", "level", "price", "currency",
	"thumbnail_url", "thumbnail_key", "lectures", "is_published", "is_approved", "rejection_reason",
	"total_students", "rating", "rating_count", "created_at", "updated_at",
}

type courseRow struct {
	ID              string         `db:"id"`
	InstructorID    string         `db:"instructor_id"`
	Title           string         `db:"title"`
	Slug            string         `db:"slug"`
	Description     string         `db:"description"`
	Category        string         `db:"category"`
	Level           string         `db:"level"`
	Price           int64          `db:"price"`
	Currency        string         `db:"currency"`
	ThumbnailURL    string         `db:"thumbnail_url"`
	ThumbnailKey    string         `db:"thumbnail_key"`
	Lectures        types.JSONText `db:"lectures"`
	IsPublished     bool           `db:"is_published"`
	IsApproved      bool           `db:"is_approved"`
	RejectionReason null.String    `db:"rejection_reason"`
	TotalStudents   int            `db:"total_students"`
	Rating          float64        `db:"rating"`
	RatingCount     int            `db:"rating_count"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (row courseRow) course() (course.Course, error) {
	lectures := make([]course.Lecture, 0)
	if len(row.Lectures) > 0 {
		if err := json.Unmarshal(row.Lectures, &lectures); err != nil {
			return course.Course{}, errors.Wrap(err, "decoding lectures")
		}
	}
	return course.Course{
		ID:              row.ID,
		InstructorID:    row.InstructorID,
		Title:           row.Title,
		Slug:            row.Slug,
		Description:     row.Description,
		Category:        row.Category,
		Level:           row.Level,
		Price:           row.Price,
		Currency:        row.Currency,
		ThumbnailURL:    row.ThumbnailURL,
		ThumbnailKey:    row.ThumbnailKey,
		Lectures:        lectures,
		IsPublished:     row.IsPublished,
		IsApproved:      row.IsApproved,
		RejectionReason: row.RejectionReason.String,
		TotalStudents:   row.TotalStudents,
		Rating:          row.Rating,
		RatingCount:     row.RatingCount,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}, nil
}

// courseValues holds the columns a Course writes. Counters only move through AddStudents and ApplyRating.
func courseValues(c course.Course) (map[string]interface{}, error) {
	if c.Lectures == nil {
		c.Lectures = []course.Lecture{}
	}
	lectures, err := toJSON(c.Lectures)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"instructor_id":    c.InstructorID,
		"title":            c.Title,
		"slug":             c.Slug,
		"description":      c.Description,
		"category":         c.Category,
		"level":            c.Level,
		"price":            c.Price,
		"currency":         c.Currency,
		"thumbnail_url":    c.ThumbnailURL,
		"thumbnail_key":    c.ThumbnailKey,
		"lectures":         lectures,
		"is_published":     c.IsPublished,
		"is_approved":      c.IsApproved,
		"rejection_reason": null.NewString(c.RejectionReason, c.RejectionReason != ""),
		"updated_at":       c.UpdatedAt.UTC(),
	}, nil
}

type courseRepository struct {
	baseRepository
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db core.DBExecutor) course.Repository {
	return &courseRepository{baseRepository{db: db}}
}

func (repo *courseRepository) one(ctx context.Context, exec core.DBExecutor, query sq.Sqlizer, msg string) (course.Course, error) {
	var row courseRow
	if err := get(ctx, exec, &row, query); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, msg)
	}
	return row.course()
}

// write runs an insert or update, slug is the only unique column besides the id.
func (repo *courseRepository) write(ctx context.Context, exec core.DBExecutor, query sq.Sqlizer, msg string) (course.Course, error) {
	c, err := repo.one(ctx, exec, query, msg)
	if isUniqueViolation(err) {
		return course.Course{}, course.ErrSlugExists
	}
	return c, err
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	values, err := courseValues(c)
	if err != nil {
		return course.Course{}, err
	}
	values["id"] = c.ID
	values["created_at"] = c.CreatedAt.UTC()

	query := psql.Insert("courses").SetMap(values).Suffix("RETURNING " + sqlColumns(courseColumns))
	return repo.write(ctx, repo.getExec(exec), query, "inserting course")
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	if !validID(id) {
		return course.Course{}, course.ErrNotFound
	}
	query := psql.Select(courseColumns...).From("courses").Where(sq.Eq{"id": id})
	return repo.one(ctx, repo.getExec(exec), query, "getting course")
}

func (repo *courseRepository) SlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error) {
	var found bool
	query := psql.Select("1").From("courses").Where(sq.Eq{"slug": slug}).Prefix("SELECT EXISTS (").Suffix(")")
	if err := get(ctx, repo.getExec(exec), &found, query); err != nil {
		return false, errors.Wrap(err, "checking slug")
	}
	return found, nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]course.Course, int, error) {
	where := sq.And{}
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			where = append(where, sq.Or{sq.ILike{"title": val}, sq.ILike{"description": val}})
		}
		if filter.Category != "" {
			where = append(where, sq.Eq{"category": filter.Category})
		}
		if filter.Level != "" {
			where = append(where, sq.Eq{"level": filter.Level})
		}
		if filter.MinPrice != nil {
			where = append(where, sq.GtOrEq{"price": *filter.MinPrice})
		}
		if filter.MaxPrice != nil {
			where = append(where, sq.LtOrEq{"price": *filter.MaxPrice})
		}
		if filter.InstructorID != "" {
			if !validID(filter.InstructorID) {
				return []course.Course{}, 0, nil
			}
			where = append(where, sq.Eq{"instructor_id": filter.InstructorID})
		}
		if filter.Published != nil {
			where = append(where, sq.Eq{"is_published": *filter.Published})
		}
		if filter.Approved != nil {
			where = append(where, sq.Eq{"is_approved": *filter.Approved})
		}
		if filter.IDs != nil {
			if len(filter.IDs) == 0 {
				return []course.Course{}, 0, nil
			}
			where = append(where, sq.Eq{"id": filter.IDs})
		}
	}

	db := repo.getExec(exec)
	total, err := count(ctx, db, "courses", where)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting courses")
	}

	var rows []courseRow
	query := paged(psql.Select(courseColumns...).From("courses").Where(where), ordering, page, "")
	if err = selectRows(ctx, db, &rows, query); err != nil {
		return nil, 0, errors.Wrap(err, "querying courses")
	}

	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		c, err := row.course()
		if err != nil {
			return nil, 0, err
		}
		courses = append(courses, c)
	}
	return courses, total, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	if !validID(c.ID) {
		return course.Course{}, course.ErrNotFound
	}
	values, err := courseValues(c)
	if err != nil {
		return course.Course{}, err
	}
	query := psql.Update("courses").SetMap(values).Where(sq.Eq{"id": c.ID}).Suffix("RETURNING " + sqlColumns(courseColumns))
	return repo.write(ctx, repo.getExec(exec), query, "updating course")
}

func (repo *courseRepository) updateCounters(ctx context.Context, id string, set map[string]interface{}, exec []core.DBExecutor) error {
	if !validID(id) {
		return course.ErrNotFound
	}
	n, err := execute(ctx, repo.getExec(exec), psql.Update("courses").SetMap(set).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "updating course counters")
	}
	if n == 0 {
		return course.ErrNotFound
	}
	return nil
}

func (repo *courseRepository) AddStudents(ctx context.Context, id string, delta int, exec ...core.DBExecutor) error {
	return repo.updateCounters(ctx, id, map[string]interface{}{
		"total_students": sq.Expr("GREATEST(total_students + ?, 0)", delta),
	}, exec)
}

func (repo *courseRepository) ApplyRating(ctx context.Context, id string, rating, previous int, exec ...core.DBExecutor) error {
	set := map[string]interface{}{
		"rating":       sq.Expr("ROUND((rating * rating_count + ?::numeric) / (rating_count + 1), 2)", rating),
		"rating_count": sq.Expr("rating_count + 1"),
	}
	if previous > 0 {
		set = map[string]interface{}{
			"rating": sq.Expr(
				"CASE WHEN rating_count > 0 THEN ROUND((rating * rating_count + ?::numeric - ?::numeric) / rating_count, 2) ELSE ?::numeric END",
				rating, previous, rating,
			),
			"rating_count": sq.Expr("GREATEST(rating_count, 1)"),
		}
	}
	return repo.updateCounters(ctx, id, set, exec)
}

func (repo *courseRepository) CountCourses(ctx context.Context, exec ...core.DBExecutor) (course.Counts, error) {
	var counts course.Counts
	query := psql.Select("COUNT(*) AS total", "COUNT(*) FILTER (WHERE is_published) AS published").From("courses")
	if err := get(ctx, repo.getExec(exec), &counts, query); err != nil {
		return course.Counts{}, errors.Wrap(err, "counting courses")
	}
	return counts, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return course.ErrNotFound
	}
	n, err := execute(ctx, repo.getExec(exec), psql.Delete("courses").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if n == 0 {
		return course.ErrNotFound
	}
	return nil
}
