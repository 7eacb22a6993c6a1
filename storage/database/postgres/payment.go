package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/payment"
)

var paymentColumns = []string{
	"id", "user_id", "course_id", "provider", "amount", "currency", "status", "session_id", "payment_intent_id",
	"customer_id", "receipt_url", "failure_reason", "refund_reason", "disputed", "refund_requested_at",
	"completed_at", "refunded_at", "created_at", "updated_at",
}

type paymentRow struct {
	ID                string      `db:"id"`
	UserID            string      `db:"user_id"`
	CourseID          string      `db:"course_id"`
	CourseTitle       null.String `db:"course_title"`
	Provider          string      `db:"provider"`
	Amount            int64       `db:"amount"`
	Currency          string      `db:"currency"`
	Status            string      `db:"status"`
	SessionID         null.String `db:"session_id"`
	PaymentIntentID   null.String `db:"payment_intent_id"`
	CustomerID        null.String `db:"customer_id"`
	ReceiptURL        null.String `db:"receipt_url"`
	FailureReason     null.String `db:"failure_reason"`
	RefundReason      null.String `db:"refund_reason"`
	Disputed          bool        `db:"disputed"`
	RefundRequestedAt null.Time   `db:"refund_requested_at"`
	CompletedAt       null.Time   `db:"completed_at"`
	RefundedAt        null.Time   `db:"refunded_at"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	at := t.Time.UTC()
	return &at
}

func (row paymentRow) payment() payment.Payment {
	return payment.Payment{
		ID:                row.ID,
		UserID:            row.UserID,
		CourseID:          row.CourseID,
		CourseTitle:       row.CourseTitle.String,
		Provider:          row.Provider,
		Amount:            row.Amount,
		Currency:          row.Currency,
		Status:            row.Status,
		SessionID:         row.SessionID.String,
		PaymentIntentID:   row.PaymentIntentID.String,
		CustomerID:        row.CustomerID.String,
		ReceiptURL:        row.ReceiptURL.String,
		FailureReason:     row.FailureReason.String,
		RefundReason:      row.RefundReason.String,
		Disputed:          row.Disputed,
		RefundRequestedAt: utcPtr(row.RefundRequestedAt),
		CompletedAt:       utcPtr(row.CompletedAt),
		RefundedAt:        utcPtr(row.RefundedAt),
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
}

func optString(s string) null.String { return null.NewString(s, s != "") }

func paymentValues(p payment.Payment) map[string]interface{} {
	return map[string]interface{}{
		"provider":            p.Provider,
		"amount":              p.Amount,
		"currency":            p.Currency,
		"status":              p.Status,
		"session_id":          optString(p.SessionID),
		"payment_intent_id":   optString(p.PaymentIntentID),
		"customer_id":         optString(p.CustomerID),
		"receipt_url":         optString(p.ReceiptURL),
		"failure_reason":      optString(p.FailureReason),
		"refund_reason":       optString(p.RefundReason),
		"disputed":            p.Disputed,
		"refund_requested_at": null.TimeFromPtr(p.RefundRequestedAt),
		"completed_at":        null.TimeFromPtr(p.CompletedAt),
		"refunded_at":         null.TimeFromPtr(p.RefundedAt),
		"updated_at":          p.UpdatedAt.UTC(),
	}
}

type paymentRepository struct {
	baseRepository
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db core.DBExecutor) payment.Repository {
	return &paymentRepository{baseRepository{db: db}}
}

// selectPayments reads payments along with their course title.
func selectPayments() sq.SelectBuilder {
	return psql.Select(prefixed("p.", paymentColumns)...).
		Column("c.title AS course_title").
		From("payments p").
		LeftJoin("courses c ON c.id = p.course_id")
}

func (repo *paymentRepository) CreatePayment(ctx context.Context, p payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	values := paymentValues(p)
	values["id"] = p.ID
	values["user_id"] = p.UserID
	values["course_id"] = p.CourseID
	values["created_at"] = p.CreatedAt.UTC()

	db := repo.getExec(exec)
	if _, err := execute(ctx, db, psql.Insert("payments").SetMap(values)); err != nil {
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return repo.GetPayment(ctx, payment.GetFilter{ID: p.ID}, db)
}

func (repo *paymentRepository) GetPayment(ctx context.Context, filter payment.GetFilter, exec ...core.DBExecutor) (payment.Payment, error) {
	where := sq.Eq{}
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return payment.Payment{}, payment.ErrNotFound
		}
		where["p.id"] = filter.ID
	case filter.SessionID != "":
		where["p.session_id"] = filter.SessionID
	case filter.PaymentIntentID != "":
		where["p.payment_intent_id"] = filter.PaymentIntentID
	default:
		return payment.Payment{}, payment.ErrNotFound
	}

	var row paymentRow
	if err := get(ctx, repo.getExec(exec), &row, selectPayments().Where(where).Limit(1)); err != nil {
		return payment.Payment{}, trapNoRowsErr(err, payment.ErrNotFound, "getting payment")
	}
	return row.payment(), nil
}

// update applies set to the payment matching where, then reads it back. ok is false when nothing matched.
func (repo *paymentRepository) update(ctx context.Context, id string, set map[string]interface{}, where sq.Eq, exec []core.DBExecutor) (p payment.Payment, ok bool, err error) {
	if !validID(id) {
		return payment.Payment{}, false, payment.ErrNotFound
	}
	db := repo.getExec(exec)
	cond := sq.Eq{"id": id}
	for k, v := range where {
		cond[k] = v
	}

	n, err := execute(ctx, db, psql.Update("payments").SetMap(set).Where(cond))
	if err != nil {
		return payment.Payment{}, false, errors.Wrap(err, "updating payment")
	}
	p, err = repo.GetPayment(ctx, payment.GetFilter{ID: id}, db)
	return p, n > 0, err
}

func (repo *paymentRepository) RecordRefundRequest(ctx context.Context, id, reason string, at time.Time, exec ...core.DBExecutor) (payment.Payment, bool, error) {
	return repo.update(ctx, id, map[string]interface{}{
		"refund_reason":       optString(reason),
		"refund_requested_at": at.UTC(),
		"updated_at":          at.UTC(),
	}, sq.Eq{"status": payment.StatusCompleted}, exec)
}

func (repo *paymentRepository) MarkDisputed(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (payment.Payment, error) {
	p, _, err := repo.update(ctx, id, map[string]interface{}{
		"disputed":   true,
		"updated_at": at.UTC(),
	}, nil, exec)
	return p, err
}

func (repo *paymentRepository) CompletePayment(ctx context.Context, id, intentID, receiptURL string, at time.Time, exec ...core.DBExecutor) (payment.Payment, bool, error) {
	return repo.update(ctx, id, map[string]interface{}{
		"status":            payment.StatusCompleted,
		"payment_intent_id": sq.Expr("COALESCE(?, payment_intent_id)", optString(intentID)),
		"receipt_url":       sq.Expr("COALESCE(?, receipt_url)", optString(receiptURL)),
		"completed_at":      at.UTC(),
		"updated_at":        at.UTC(),
	}, sq.Eq{"status": []string{payment.StatusPending, payment.StatusFailed}}, exec)
}

func (repo *paymentRepository) FailPayment(ctx context.Context, id, reason string, exec ...core.DBExecutor) (bool, error) {
	_, failed, err := repo.update(ctx, id, map[string]interface{}{
		"status":         payment.StatusFailed,
		"failure_reason": optString(reason),
		"updated_at":     time.Now().UTC(),
	}, sq.Eq{"status": payment.StatusPending}, exec)
	return failed, err
}

func (repo *paymentRepository) RefundPayment(ctx context.Context, id, reason string, at time.Time, exec ...core.DBExecutor) (payment.Payment, bool, error) {
	return repo.update(ctx, id, map[string]interface{}{
		"status":        payment.StatusRefunded,
		"refund_reason": optString(reason),
		"refunded_at":   at.UTC(),
		"updated_at":    at.UTC(),
	}, sq.Eq{"status": payment.StatusCompleted}, exec)
}

func (repo *paymentRepository) QueryPayments(ctx context.Context, filter *payment.QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]payment.Payment, int, error) {
	where := sq.Eq{}
	if filter != nil {
		if filter.Status != "" {
			where["p.status"] = filter.Status
		}
		if filter.Provider != "" {
			where["p.provider"] = filter.Provider
		}
		if filter.UserID != "" {
			if !validID(filter.UserID) {
				return []payment.Payment{}, 0, nil
			}
			where["p.user_id"] = filter.UserID
		}
		if filter.CourseID != "" {
			if !validID(filter.CourseID) {
				return []payment.Payment{}, 0, nil
			}
			where["p.course_id"] = filter.CourseID
		}
	}

	db := repo.getExec(exec)
	total, err := count(ctx, db, "payments p", where)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting payments")
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	var rows []paymentRow
	if err = selectRows(ctx, db, &rows, paged(selectPayments().Where(where), ordering, page, "p.")); err != nil {
		return nil, 0, errors.Wrap(err, "querying payments")
	}

	payments := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.payment())
	}
	return payments, total, nil
}

func (repo *paymentRepository) InstructorSales(ctx context.Context, instructorID string, exec ...core.DBExecutor) ([]payment.Sale, error) {
	if !validID(instructorID) {
		return []payment.Sale{}, nil
	}
	var rows []struct {
		CourseID    string    `db:"course_id"`
		CourseTitle string    `db:"course_title"`
		Amount      int64     `db:"amount"`
		CompletedAt time.Time `db:"completed_at"`
	}
	query := psql.Select("p.course_id", "c.title AS course_title", "p.amount", "p.completed_at").
		From("payments p").
		Join("courses c ON c.id = p.course_id").
		Where(sq.Eq{"c.instructor_id": instructorID, "p.status": payment.StatusCompleted}).
		Where(sq.NotEq{"p.completed_at": nil})
	if err := selectRows(ctx, repo.getExec(exec), &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying instructor sales")
	}

	sales := make([]payment.Sale, 0, len(rows))
	for _, row := range rows {
		sales = append(sales, payment.Sale{
			CourseID:    row.CourseID,
			CourseTitle: row.CourseTitle,
			Amount:      row.Amount,
			CompletedAt: row.CompletedAt.UTC(),
		})
	}
	return sales, nil
}

func (repo *paymentRepository) Revenue(ctx context.Context, exec ...core.DBExecutor) (payment.Revenue, error) {
	var rev payment.Revenue
	query := psql.Select("COUNT(*) AS payments", "COALESCE(SUM(amount), 0) AS total").
		From("payments").
		Where(sq.Eq{"status": payment.StatusCompleted})
	if err := get(ctx, repo.getExec(exec), &rev, query); err != nil {
		return payment.Revenue{}, errors.Wrap(err, "computing revenue")
	}
	return rev, nil
}
