package core

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	DB interface {
		DBExecutor
		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	}

	// Transactor runs fn inside a single unit of work.
	// Repositories called with the given exec take part in it.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// FilterOrderings drops fields not in allowed.
func FilterOrderings(orderings []DBOrdering, allowed ...string) []DBOrdering {
	res := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		for _, a := range allowed {
			if ord.Field == a {
				res = append(res, ord)
				break
			}
		}
	}
	return res
}

type Pagination struct {
	Page  int `query:"page"`
	Limit int `query:"limit"`
}

func (p *Pagination) Clean() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
}

func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Pages returns the number of pages needed for total items.
func (p Pagination) Pages(total int) int {
	if p.Limit < 1 || total == 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// Window applies the pagination to a slice length n, returning [start:end) bounds.
func (p Pagination) Window(n int) (int, int) {
	if p.Limit < 1 {
		return 0, n
	}
	start := p.Offset()
	if start > n {
		start = n
	}
	end := start + p.Limit
	if end > n {
		end = n
	}
	return start, end
}
