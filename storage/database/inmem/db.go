package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/discussion"
	"github.com/skillsharp/lms/core/enrollment"
	"github.com/skillsharp/lms/core/payment"
	"github.com/skillsharp/lms/core/quiz"
	"github.com/skillsharp/lms/core/user"
)

// DB holds every table behind a single lock, so that cascades stay consistent.
type DB struct {
	txMu        sync.Mutex // serializes transactions
	mu          sync.RWMutex
	users       map[string]*user.User
	courses     map[string]*course.Course
	enrollments map[string]*enrollment.Enrollment
	payments    map[string]*payment.Payment
	quizzes     map[string]*quiz.Quiz
	discussions map[string]*discussion.Discussion
}

func NewDB() *DB {
	db := new(DB)
	db.reset()
	return db
}

func (db *DB) reset() {
	db.users = make(map[string]*user.User)
	db.courses = make(map[string]*course.Course)
	db.enrollments = make(map[string]*enrollment.Enrollment)
	db.payments = make(map[string]*payment.Payment)
	db.quizzes = make(map[string]*quiz.Quiz)
	db.discussions = make(map[string]*discussion.Discussion)
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.reset()
}

// deleteCourse removes a course and its dependents. Callers hold the write lock.
func (db *DB) deleteCourse(id string) {
	delete(db.courses, id)
	for k, e := range db.enrollments {
		if e.CourseID == id {
			delete(db.enrollments, k)
		}
	}
	for k, p := range db.payments {
		if p.CourseID == id {
			delete(db.payments, k)
		}
	}
	for k, q := range db.quizzes {
		if q.CourseID == id {
			delete(db.quizzes, k)
		}
	}
	for k, d := range db.discussions {
		if d.CourseID == id {
			delete(db.discussions, k)
		}
	}
}

// deleteUser removes a user and its dependents. Callers hold the write lock.
func (db *DB) deleteUser(id string) {
	delete(db.users, id)
	for k, c := range db.courses {
		if c.InstructorID == id {
			db.deleteCourse(k)
		}
	}
	for k, e := range db.enrollments {
		if e.UserID == id {
			delete(db.enrollments, k)
		}
	}
	for k, p := range db.payments {
		if p.UserID == id {
			delete(db.payments, k)
		}
	}
	for k, d := range db.discussions {
		if d.UserID == id {
			delete(db.discussions, k)
		}
	}
}

type transactor struct {
	db *DB
}

var _ core.Transactor = (*transactor)(nil)

// NewTransactor returns a core.Transactor for the in-memory repositories.
// Transactions run one at a time, fn runs without an executor.
// Nothing is rolled back when fn fails.
func NewTransactor(db *DB) core.Transactor {
	return &transactor{db: db}
}

func (tm *transactor) WithinTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	tm.db.txMu.Lock()
	defer tm.db.txMu.Unlock()
	return fn(nil)
}

// helpers

func cloneStrings(s []string) []string {
	res := make([]string, len(s))
	copy(res, s)
	return res
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// compare orders two column values of the same type.
func compare(a, b interface{}) int {
	switch av := a.(type) {
	case string:
		return strings.Compare(strings.ToLower(av), strings.ToLower(b.(string)))
	case int:
		return compareInt64(int64(av), int64(b.(int)))
	case int64:
		return compareInt64(av, b.(int64))
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case time.Time:
		bv := b.(time.Time)
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		}
		return 0
	case *time.Time:
		bv := b.(*time.Time)
		var at, bt time.Time
		if av != nil {
			at = *av
		}
		if bv != nil {
			bt = *bv
		}
		return compare(at, bt)
	}
	return 0
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// sortByOrdering sorts n rows in place with the orderings, using column to read a field of row i.
func sortByOrdering(n int, swap func(i, j int), ordering []core.DBOrdering, column func(i int, field string) interface{}) {
	if len(ordering) == 0 {
		return
	}
	sort.Sort(&orderedRows{n: n, swap: swap, ordering: ordering, column: column})
}

type orderedRows struct {
	n        int
	swap     func(i, j int)
	ordering []core.DBOrdering
	column   func(i int, field string) interface{}
}

func (r *orderedRows) Len() int      { return r.n }
func (r *orderedRows) Swap(i, j int) { r.swap(i, j) }
func (r *orderedRows) Less(i, j int) bool {
	for _, ord := range r.ordering {
		a, b := r.column(i, ord.Field), r.column(j, ord.Field)
		if a == nil || b == nil {
			continue
		}
		if c := compare(a, b); c != 0 {
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
	}
	return false
}

// paginate returns the page window of n rows.
func paginate(n int, page *core.Pagination) (int, int) {
	if page == nil {
		return 0, n
	}
	page.Clean()
	return page.Window(n)
}
