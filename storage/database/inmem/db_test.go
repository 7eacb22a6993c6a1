package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/discussion"
	"github.com/skillsharp/lms/core/enrollment"
	"github.com/skillsharp/lms/core/payment"
	"github.com/skillsharp/lms/core/quiz"
	"github.com/skillsharp/lms/core/user"
)

type repos struct {
	db          *DB
	users       user.Repository
	courses     course.Repository
	enrollments enrollment.Repository
	payments    payment.Repository
	quizzes     quiz.Repository
	discussions discussion.Repository
}

func newRepos() repos {
	db := NewDB()
	return repos{
		db:          db,
		users:       NewUserRepository(db),
		courses:     NewCourseRepository(db),
		enrollments: NewEnrollmentRepository(db),
		payments:    NewPaymentRepository(db),
		quizzes:     NewQuizRepository(db),
		discussions: NewDiscussionRepository(db),
	}
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func (r repos) mustUser(t *testing.T, u user.User) user.User {
	t.Helper()
	u, err := r.users.CreateUser(context.Background(), u)
	require.NoError(t, err)
	return u
}

func (r repos) mustCourse(t *testing.T, c course.Course) course.Course {
	t.Helper()
	c, err := r.courses.CreateCourse(context.Background(), c)
	require.NoError(t, err)
	return c
}

func (r repos) mustPayment(t *testing.T, p payment.Payment) payment.Payment {
	t.Helper()
	p, err := r.payments.CreatePayment(context.Background(), p)
	require.NoError(t, err)
	return p
}

func TestUserRepository(t *testing.T) {
	r := newRepos()
	ctx := context.Background()

	ann := r.mustUser(t, user.User{Name: "Ann", Email: "ann@x.io", Role: user.RoleStudent, IsActive: true, Points: 30, CreatedAt: t0})
	bob := r.mustUser(t, user.User{Name: "bob", Email: "bob@x.io", Role: user.RoleInstructor, IsActive: true, Points: 50, CreatedAt: t0.Add(time.Hour)})
	cid := r.mustUser(t, user.User{Name: "Cid", Email: "cid@x.io", Role: user.RoleStudent, IsActive: false, Points: 90, CreatedAt: t0.Add(2 * time.Hour)})
	dee := r.mustUser(t, user.User{Name: "Dee", Email: "dee@x.io", Role: user.RoleStudent, IsActive: true, Points: 30, CreatedAt: t0.Add(3 * time.Hour)})

	t.Run("unique email", func(t *testing.T) {
		_, err := r.users.CreateUser(ctx, user.User{Email: "ANN@x.io"})
		assert.Equal(t, user.ErrEmailExists, err)

		b := bob
		b.Email = "Ann@X.io"
		_, err = r.users.UpdateUser(ctx, b)
		assert.Equal(t, user.ErrEmailExists, err)

		a := ann
		a.Email = "ANN@x.io"
		_, err = r.users.UpdateUser(ctx, a)
		assert.NoError(t, err, "own email")
	})

	t.Run("get", func(t *testing.T) {
		got, err := r.users.GetUser(ctx, user.GetFilter{Email: "BOB@x.io"})
		require.NoError(t, err)
		assert.Equal(t, bob.ID, got.ID)
		_, err = r.users.GetUser(ctx, user.GetFilter{ID: "nope"})
		assert.Equal(t, user.ErrNotFound, err)
		_, err = r.users.GetUser(ctx, user.GetFilter{})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("query", func(t *testing.T) {
		users, total, err := r.users.QueryUsers(ctx, nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Equal(t, dee.ID, users[0].ID, "newest first by default")

		users, total, err = r.users.QueryUsers(ctx,
			&user.QueryFilter{Roles: []string{user.RoleStudent}},
			[]core.DBOrdering{{Field: "name", Ascending: true}},
			&core.Pagination{Page: 1, Limit: 2},
		)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, users, 2)
		assert.Equal(t, []string{ann.ID, cid.ID}, []string{users[0].ID, users[1].ID})

		inactive := false
		users, _, err = r.users.QueryUsers(ctx, &user.QueryFilter{IsActive: &inactive}, nil, nil)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, cid.ID, users[0].ID)

		users, _, err = r.users.QueryUsers(ctx, &user.QueryFilter{Search: "BOB"}, nil, nil)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, bob.ID, users[0].ID)
	})

	t.Run("top users", func(t *testing.T) {
		top, err := r.users.TopUsers(ctx, 0)
		require.NoError(t, err)
		ids := make([]string, 0, len(top))
		for _, u := range top {
			ids = append(ids, u.ID)
		}
		// inactive users are left out, ties go to the oldest account
		assert.Equal(t, []string{bob.ID, ann.ID, dee.ID}, ids)

		top, err = r.users.TopUsers(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, top, 2)
	})

	t.Run("points and badges", func(t *testing.T) {
		u, err := r.users.AddPoints(ctx, dee.ID, 25)
		require.NoError(t, err)
		assert.Equal(t, 55, u.Points)

		d := u
		d.Points = 0
		d.Name = "Deedee"
		u, err = r.users.UpdateUser(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, "Deedee", u.Name)
		assert.Equal(t, 55, u.Points, "points only move through AddPoints")
	})

	t.Run("count by role", func(t *testing.T) {
		counts, err := r.users.CountUsersByRole(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, counts[user.RoleStudent])
		assert.Equal(t, 1, counts[user.RoleInstructor])
		assert.Equal(t, 0, counts[user.RoleAdmin])
	})
}

func TestCourseRepository_ApplyRating(t *testing.T) {
	r := newRepos()
	ctx := context.Background()
	c := r.mustCourse(t, course.Course{Title: "Go"})

	require.NoError(t, r.courses.ApplyRating(ctx, c.ID, 4, 0))
	require.NoError(t, r.courses.ApplyRating(ctx, c.ID, 5, 0))
	got, err := r.courses.GetCourse(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.5, got.Rating)
	assert.Equal(t, 2, got.RatingCount)

	// a student changing a 4 into a 2
	require.NoError(t, r.courses.ApplyRating(ctx, c.ID, 2, 4))
	got, err = r.courses.GetCourse(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.5, got.Rating)
	assert.Equal(t, 2, got.RatingCount)

	require.NoError(t, r.courses.ApplyRating(ctx, c.ID, 1, 0))
	got, _ = r.courses.GetCourse(ctx, c.ID)
	assert.Equal(t, 2.67, got.Rating)

	assert.Equal(t, course.ErrNotFound, r.courses.ApplyRating(ctx, "nope", 5, 0))
}

func TestCourseRepository_AddStudents(t *testing.T) {
	r := newRepos()
	ctx := context.Background()
	c := r.mustCourse(t, course.Course{Title: "Go"})

	require.NoError(t, r.courses.AddStudents(ctx, c.ID, 2))
	require.NoError(t, r.courses.AddStudents(ctx, c.ID, -5))
	got, _ := r.courses.GetCourse(ctx, c.ID)
	assert.Equal(t, 0, got.TotalStudents, "never negative")
}

func TestCourseRepository_uniqueSlug(t *testing.T) {
	r := newRepos()
	ctx := context.Background()
	goCourse := r.mustCourse(t, course.Course{Title: "Go", Slug: "go"})
	rust := r.mustCourse(t, course.Course{Title: "Rust", Slug: "rust"})

	_, err := r.courses.CreateCourse(ctx, course.Course{Title: "Go", Slug: "go"})
	assert.Equal(t, course.ErrSlugExists, err)

	rust.Slug = "go"
	_, err = r.courses.UpdateCourse(ctx, rust)
	assert.Equal(t, course.ErrSlugExists, err)

	goCourse.Description = "Same slug, same course"
	_, err = r.courses.UpdateCourse(ctx, goCourse)
	assert.NoError(t, err)
}

func TestPaymentRepository(t *testing.T) {
	r := newRepos()
	ctx := context.Background()
	inst := r.mustUser(t, user.User{Email: "i@x.io", Role: user.RoleInstructor})
	stud := r.mustUser(t, user.User{Email: "s@x.io", Role: user.RoleStudent})
	c := r.mustCourse(t, course.Course{Title: "Go", InstructorID: inst.ID})

	newPayment := func(sessionID string) payment.Payment {
		return r.mustPayment(t, payment.Payment{
			UserID: stud.ID, CourseID: c.ID, Amount: 1000, Status: payment.StatusPending,
			SessionID: sessionID, CreatedAt: t0,
		})
	}

	t.Run("get", func(t *testing.T) {
		p := newPayment("cs_get")
		got, err := r.payments.GetPayment(ctx, payment.GetFilter{ID: p.ID})
		require.NoError(t, err)
		assert.Equal(t, "Go", got.CourseTitle)

		got, err = r.payments.GetPayment(ctx, payment.GetFilter{SessionID: "cs_get"})
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)

		_, err = r.payments.GetPayment(ctx, payment.GetFilter{PaymentIntentID: "pi_none"})
		assert.Equal(t, payment.ErrNotFound, err)
		_, err = r.payments.GetPayment(ctx, payment.GetFilter{ID: "nope"})
		assert.Equal(t, payment.ErrNotFound, err)
	})

	t.Run("complete once", func(t *testing.T) {
		p := newPayment("cs_once")
		at := t0.Add(time.Minute)
		got, ok, err := r.payments.CompletePayment(ctx, p.ID, "pi_once", "http://receipt", at)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, payment.StatusCompleted, got.Status)
		assert.Equal(t, at, *got.CompletedAt)

		_, ok, err = r.payments.CompletePayment(ctx, p.ID, "pi_twice", "", at.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, ok, "webhook replays are no-ops")

		got, err = r.payments.GetPayment(ctx, payment.GetFilter{PaymentIntentID: "pi_once"})
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, "http://receipt", got.ReceiptURL)

		ok, err = r.payments.FailPayment(ctx, p.ID, "late failure")
		require.NoError(t, err)
		assert.False(t, ok, "completed payments never fail")
	})

	t.Run("failed payments can be retried", func(t *testing.T) {
		p := newPayment("cs_retry")
		ok, err := r.payments.FailPayment(ctx, p.ID, "card declined")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = r.payments.FailPayment(ctx, p.ID, "again")
		require.NoError(t, err)
		assert.False(t, ok)

		got, ok, err := r.payments.CompletePayment(ctx, p.ID, "", "", t0)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "card declined", got.FailureReason)
	})

	t.Run("refund", func(t *testing.T) {
		p := newPayment("cs_refund")
		_, ok, err := r.payments.RefundPayment(ctx, p.ID, "too early", t0)
		require.NoError(t, err)
		assert.False(t, ok, "pending payments cannot be refunded")

		_, _, err = r.payments.CompletePayment(ctx, p.ID, "", "", t0)
		require.NoError(t, err)
		got, ok, err := r.payments.RefundPayment(ctx, p.ID, "asked", t0.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, payment.StatusRefunded, got.Status)
		assert.Equal(t, "asked", got.RefundReason)

		_, ok, err = r.payments.RefundPayment(ctx, p.ID, "again", t0)
		require.NoError(t, err)
		assert.False(t, ok)

		_, _, err = r.payments.RefundPayment(ctx, "nope", "", t0)
		assert.Equal(t, payment.ErrNotFound, err)
	})

	t.Run("refund request and dispute", func(t *testing.T) {
		p := newPayment("cs_request")
		_, ok, err := r.payments.RecordRefundRequest(ctx, p.ID, "not paid yet", t0)
		require.NoError(t, err)
		assert.False(t, ok)

		_, _, err = r.payments.CompletePayment(ctx, p.ID, "", "", t0)
		require.NoError(t, err)
		got, ok, err := r.payments.RecordRefundRequest(ctx, p.ID, "wrong course", t0.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, payment.StatusCompleted, got.Status)
		assert.Equal(t, "wrong course", got.RefundReason)
		assert.Equal(t, t0.Add(time.Minute), *got.RefundRequestedAt)

		_, _, err = r.payments.RefundPayment(ctx, p.ID, "wrong course", t0.Add(time.Hour))
		require.NoError(t, err)
		_, ok, err = r.payments.RecordRefundRequest(ctx, p.ID, "late", t0.Add(2*time.Hour))
		require.NoError(t, err)
		assert.False(t, ok, "refunded payments take no requests")

		got, err = r.payments.MarkDisputed(ctx, p.ID, t0.Add(3*time.Hour))
		require.NoError(t, err)
		assert.True(t, got.Disputed)
		assert.Equal(t, payment.StatusRefunded, got.Status, "a dispute leaves the status alone")
		assert.Equal(t, "wrong course", got.RefundReason)

		_, err = r.payments.MarkDisputed(ctx, "nope", t0)
		assert.Equal(t, payment.ErrNotFound, err)
	})

	t.Run("sales and revenue", func(t *testing.T) {
		sales, err := r.payments.InstructorSales(ctx, inst.ID)
		require.NoError(t, err)
		// "complete once" and "failed payments can be retried" are still completed
		assert.Len(t, sales, 2)
		for _, s := range sales {
			assert.Equal(t, "Go", s.CourseTitle)
			assert.Equal(t, int64(1000), s.Amount)
		}

		sales, err = r.payments.InstructorSales(ctx, stud.ID)
		require.NoError(t, err)
		assert.Empty(t, sales)

		rev, err := r.payments.Revenue(ctx)
		require.NoError(t, err)
		assert.Equal(t, payment.Revenue{Payments: 2, Total: 2000}, rev)
	})
}

func TestEnrollmentRepository_Activate(t *testing.T) {
	r := newRepos()
	ctx := context.Background()
	c := r.mustCourse(t, course.Course{Title: "Go"})

	e := enrollment.Enrollment{UserID: "u1", CourseID: c.ID, Status: enrollment.StatusActive, EnrolledAt: t0}
	got, created, err := r.enrollments.ActivateEnrollment(ctx, e)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, got.ID)

	_, created, err = r.enrollments.ActivateEnrollment(ctx, e)
	require.NoError(t, err)
	assert.False(t, created, "already active")

	revoked, err := r.enrollments.RevokeEnrollment(ctx, "u1", c.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, err = r.enrollments.RevokeEnrollment(ctx, "u1", c.ID)
	require.NoError(t, err)
	assert.False(t, revoked)

	again, created, err := r.enrollments.ActivateEnrollment(ctx, e)
	require.NoError(t, err)
	assert.True(t, created, "re-purchase reactivates")
	assert.Equal(t, got.ID, again.ID)

	_, _, err = r.enrollments.ActivateEnrollment(ctx, enrollment.Enrollment{UserID: "u1", CourseID: "nope"})
	assert.Equal(t, enrollment.ErrNotFound, err)
}

func TestDB_Cascades(t *testing.T) {
	r := newRepos()
	ctx := context.Background()
	inst := r.mustUser(t, user.User{Email: "i@x.io", Role: user.RoleInstructor})
	stud := r.mustUser(t, user.User{Email: "s@x.io", Role: user.RoleStudent})
	other := r.mustUser(t, user.User{Email: "o@x.io", Role: user.RoleInstructor})
	c := r.mustCourse(t, course.Course{Title: "Go", InstructorID: inst.ID})
	keep := r.mustCourse(t, course.Course{Title: "Rust", InstructorID: other.ID})

	for _, cid := range []string{c.ID, keep.ID} {
		_, _, err := r.enrollments.ActivateEnrollment(ctx, enrollment.Enrollment{UserID: stud.ID, CourseID: cid, Status: enrollment.StatusActive})
		require.NoError(t, err)
		r.mustPayment(t, payment.Payment{UserID: stud.ID, CourseID: cid, Status: payment.StatusPending})
		_, err = r.quizzes.CreateQuiz(ctx, quiz.Quiz{CourseID: cid, Title: "Q"})
		require.NoError(t, err)
		_, err = r.discussions.CreateDiscussion(ctx, discussion.Discussion{CourseID: cid, UserID: stud.ID, Title: "D"})
		require.NoError(t, err)
	}

	t.Run("delete course", func(t *testing.T) {
		require.NoError(t, r.courses.DeleteCourse(ctx, c.ID))
		assert.Equal(t, course.ErrNotFound, r.courses.DeleteCourse(ctx, c.ID))

		_, err := r.enrollments.GetEnrollment(ctx, stud.ID, c.ID)
		assert.Equal(t, enrollment.ErrNotFound, err)
		qs, err := r.quizzes.QueryQuizzes(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, qs)
		assert.Len(t, r.db.payments, 1)
		assert.Len(t, r.db.discussions, 1)
	})

	t.Run("delete user", func(t *testing.T) {
		require.NoError(t, r.users.DeleteUser(ctx, stud.ID))
		assert.Equal(t, user.ErrNotFound, r.users.DeleteUser(ctx, stud.ID))
		assert.Empty(t, r.db.enrollments)
		assert.Empty(t, r.db.payments)
		assert.Empty(t, r.db.discussions)
		assert.Len(t, r.db.quizzes, 1, "quizzes belong to the course")

		require.NoError(t, r.users.DeleteUser(ctx, other.ID))
		assert.Empty(t, r.db.courses, "instructors take their courses with them")
		assert.Empty(t, r.db.quizzes)
	})

	t.Run("reset", func(t *testing.T) {
		r.db.Reset()
		assert.Empty(t, r.db.users)
	})
}
