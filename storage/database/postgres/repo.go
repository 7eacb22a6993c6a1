// Package pgrepos implements the repositories on PostgreSQL with sqlx and squirrel.
package pgrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type baseRepository struct {
	db core.DBExecutor
}

// getExec returns the caller's executor (a transaction) when given, the repository's otherwise.
func (repo baseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.db
}

func get(ctx context.Context, exec core.DBExecutor, dest interface{}, query sq.Sqlizer) error {
	q, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exec.GetContext(ctx, dest, q, args...)
}

func selectRows(ctx context.Context, exec core.DBExecutor, dest interface{}, query sq.Sqlizer) error {
	q, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exec.SelectContext(ctx, dest, q, args...)
}

// execute runs a write statement and returns the number of affected rows.
func execute(ctx context.Context, exec core.DBExecutor, query sq.Sqlizer) (int64, error) {
	q, args, err := query.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := exec.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func count(ctx context.Context, exec core.DBExecutor, from string, where sq.Sqlizer) (int, error) {
	var total int
	err := get(ctx, exec, &total, psql.Select("COUNT(*)").From(from).Where(where))
	return total, err
}

// trapNoRowsErr maps "no rows" to notFound.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

// paged applies ordering and pagination to query. Ordering fields are expected to be whitelisted already.
func paged(query sq.SelectBuilder, ordering []core.DBOrdering, page *core.Pagination, prefix string) sq.SelectBuilder {
	for _, ord := range ordering {
		query = query.OrderBy(prefix + ord.String())
	}
	query = query.OrderBy(prefix + "id")
	if page != nil {
		page.Clean()
		query = query.Limit(uint64(page.Limit)).Offset(uint64(page.Offset()))
	}
	return query
}

func toJSON(v interface{}) (types.JSONText, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encoding json column")
	}
	return b, nil
}

func prefixed(prefix string, columns []string) []string {
	res := make([]string, 0, len(columns))
	for _, col := range columns {
		res = append(res, prefix+col)
	}
	return res
}

func sqlColumns(columns []string) string {
	return strings.Join(columns, ", ")
}

// validID reports whether id can be compared to a UUID column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
