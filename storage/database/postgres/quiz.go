package pgrepos

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/quiz"
)

var quizColumns = []string{"id", "course_id", "lecture_id", "title", "questions", "passing_score", "created_at", "updated_at"}

type quizRow struct {
	ID           string         `db:"id"`
	CourseID     string         `db:"course_id"`
	LectureID    string         `db:"lecture_id"`
	Title        string         `db:"title"`
	Questions    types.JSONText `db:"questions"`
	PassingScore int            `db:"passing_score"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (row quizRow) quiz() (quiz.Quiz, error) {
	questions := make([]quiz.Question, 0)
	if len(row.Questions) > 0 {
		if err := json.Unmarshal(row.Questions, &questions); err != nil {
			return quiz.Quiz{}, errors.Wrap(err, "decoding questions")
		}
	}
	return quiz.Quiz{
		ID:           row.ID,
		CourseID:     row.CourseID,
		LectureID:    row.LectureID,
		Title:        row.Title,
		Questions:    questions,
		PassingScore: row.PassingScore,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}, nil
}

type quizRepository struct {
	baseRepository
}

var _ quiz.Repository = (*quizRepository)(nil)

func NewQuizRepository(db core.DBExecutor) quiz.Repository {
	return &quizRepository{baseRepository{db: db}}
}

func (repo *quizRepository) CreateQuiz(ctx context.Context, q quiz.Quiz, exec ...core.DBExecutor) (quiz.Quiz, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	questions, err := toJSON(q.Questions)
	if err != nil {
		return quiz.Quiz{}, err
	}

	var row quizRow
	query := psql.Insert("quizzes").
		SetMap(map[string]interface{}{
			"id":            q.ID,
			"course_id":     q.CourseID,
			"lecture_id":    q.LectureID,
			"title":         q.Title,
			"questions":     questions,
			"passing_score": q.PassingScore,
			"created_at":    q.CreatedAt.UTC(),
			"updated_at":    q.UpdatedAt.UTC(),
		}).
		Suffix("RETURNING " + sqlColumns(quizColumns))
	if err = get(ctx, repo.getExec(exec), &row, query); err != nil {
		return quiz.Quiz{}, errors.Wrap(err, "inserting quiz")
	}
	return row.quiz()
}

func (repo *quizRepository) GetQuiz(ctx context.Context, id string, exec ...core.DBExecutor) (quiz.Quiz, error) {
	if !validID(id) {
		return quiz.Quiz{}, quiz.ErrNotFound
	}
	var row quizRow
	if err := get(ctx, repo.getExec(exec), &row, psql.Select(quizColumns...).From("quizzes").Where(sq.Eq{"id": id})); err != nil {
		return quiz.Quiz{}, trapNoRowsErr(err, quiz.ErrNotFound, "getting quiz")
	}
	return row.quiz()
}

func (repo *quizRepository) QueryQuizzes(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]quiz.Quiz, error) {
	if !validID(courseID) {
		return []quiz.Quiz{}, nil
	}
	var rows []quizRow
	query := psql.Select(quizColumns...).From("quizzes").Where(sq.Eq{"course_id": courseID}).OrderBy("created_at ASC")
	if err := selectRows(ctx, repo.getExec(exec), &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying quizzes")
	}

	quizzes := make([]quiz.Quiz, 0, len(rows))
	for _, row := range rows {
		q, err := row.quiz()
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, nil
}

func (repo *quizRepository) DeleteQuiz(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return quiz.ErrNotFound
	}
	n, err := execute(ctx, repo.getExec(exec), psql.Delete("quizzes").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting quiz")
	}
	if n == 0 {
		return quiz.ErrNotFound
	}
	return nil
}
