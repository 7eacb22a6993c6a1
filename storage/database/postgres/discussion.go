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
	"github.com/skillsharp/lms/core/discussion"
)

var discussionColumns = []string{"id", "course_id", "user_id", "author_name", "title", "body", "replies", "created_at", "updated_at"}

type discussionRow struct {
	ID         string         `db:"id"`
	CourseID   string         `db:"course_id"`
	UserID     string         `db:"user_id"`
	AuthorName string         `db:"author_name"`
	Title      string         `db:"title"`
	Body       string         `db:"body"`
	Replies    types.JSONText `db:"replies"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (row discussionRow) discussion() (discussion.Discussion, error) {
	replies := make([]discussion.Reply, 0)
	if len(row.Replies) > 0 {
		if err := json.Unmarshal(row.Replies, &replies); err != nil {
			return discussion.Discussion{}, errors.Wrap(err, "decoding replies")
		}
	}
	return discussion.Discussion{
		ID:         row.ID,
		CourseID:   row.CourseID,
		UserID:     row.UserID,
		AuthorName: row.AuthorName,
		Title:      row.Title,
		Body:       row.Body,
		Replies:    replies,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}, nil
}

type discussionRepository struct {
	baseRepository
}

var _ discussion.Repository = (*discussionRepository)(nil)

func NewDiscussionRepository(db core.DBExecutor) discussion.Repository {
	return &discussionRepository{baseRepository{db: db}}
}

func (repo *discussionRepository) one(ctx context.Context, exec core.DBExecutor, query sq.Sqlizer, msg string) (discussion.Discussion, error) {
	var row discussionRow
	if err := get(ctx, exec, &row, query); err != nil {
		return discussion.Discussion{}, trapNoRowsErr(err, discussion.ErrNotFound, msg)
	}
	return row.discussion()
}

func (repo *discussionRepository) CreateDiscussion(ctx context.Context, d discussion.Discussion, exec ...core.DBExecutor) (discussion.Discussion, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Replies == nil {
		d.Replies = []discussion.Reply{}
	}
	replies, err := toJSON(d.Replies)
	if err != nil {
		return discussion.Discussion{}, err
	}

	query := psql.Insert("discussions").
		SetMap(map[string]interface{}{
			"id":          d.ID,
			"course_id":   d.CourseID,
			"user_id":     d.UserID,
			"author_name": d.AuthorName,
			"title":       d.Title,
			"body":        d.Body,
			"replies":     replies,
			"created_at":  d.CreatedAt.UTC(),
			"updated_at":  d.UpdatedAt.UTC(),
		}).
		Suffix("RETURNING " + sqlColumns(discussionColumns))
	return repo.one(ctx, repo.getExec(exec), query, "inserting discussion")
}

func (repo *discussionRepository) GetDiscussion(ctx context.Context, id string, exec ...core.DBExecutor) (discussion.Discussion, error) {
	if !validID(id) {
		return discussion.Discussion{}, discussion.ErrNotFound
	}
	query := psql.Select(discussionColumns...).From("discussions").Where(sq.Eq{"id": id})
	return repo.one(ctx, repo.getExec(exec), query, "getting discussion")
}

func (repo *discussionRepository) QueryDiscussions(ctx context.Context, courseID string, page *core.Pagination, exec ...core.DBExecutor) ([]discussion.Discussion, int, error) {
	if !validID(courseID) {
		return []discussion.Discussion{}, 0, nil
	}
	where := sq.Eq{"course_id": courseID}
	db := repo.getExec(exec)
	total, err := count(ctx, db, "discussions", where)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting discussions")
	}

	var rows []discussionRow
	query := paged(psql.Select(discussionColumns...).From("discussions").Where(where), []core.DBOrdering{{Field: "created_at"}}, page, "")
	if err = selectRows(ctx, db, &rows, query); err != nil {
		return nil, 0, errors.Wrap(err, "querying discussions")
	}

	res := make([]discussion.Discussion, 0, len(rows))
	for _, row := range rows {
		d, err := row.discussion()
		if err != nil {
			return nil, 0, err
		}
		res = append(res, d)
	}
	return res, total, nil
}

func (repo *discussionRepository) AddReply(ctx context.Context, id string, r discussion.Reply, exec ...core.DBExecutor) (discussion.Discussion, error) {
	if !validID(id) {
		return discussion.Discussion{}, discussion.ErrNotFound
	}
	reply, err := toJSON([]discussion.Reply{r})
	if err != nil {
		return discussion.Discussion{}, err
	}
	query := psql.Update("discussions").
		Set("replies", sq.Expr("replies || ?::jsonb", reply)).
		Set("updated_at", r.CreatedAt.UTC()).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + sqlColumns(discussionColumns))
	return repo.one(ctx, repo.getExec(exec), query, "adding reply")
}

func (repo *discussionRepository) DeleteDiscussion(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return discussion.ErrNotFound
	}
	n, err := execute(ctx, repo.getExec(exec), psql.Delete("discussions").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting discussion")
	}
	if n == 0 {
		return discussion.ErrNotFound
	}
	return nil
}
