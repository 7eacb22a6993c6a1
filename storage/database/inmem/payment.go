package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/payment"
)

type paymentRepository struct {
	db *DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *DB) payment.Repository {
	return &paymentRepository{db: db}
}

// copyPayment copies p and fills its course title. Callers hold the lock.
func (repo *paymentRepository) copyPayment(p *payment.Payment) payment.Payment {
	res := *p
	if c, ok := repo.db.courses[p.CourseID]; ok {
		res.CourseTitle = c.Title
	}
	return res
}

func (repo *paymentRepository) CreatePayment(_ context.Context, p payment.Payment, _ ...core.DBExecutor) (payment.Payment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	np := p
	np.CourseTitle = ""
	repo.db.payments[p.ID] = &np
	return repo.copyPayment(&np), nil
}

func (repo *paymentRepository) GetPayment(_ context.Context, filter payment.GetFilter, _ ...core.DBExecutor) (payment.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if p, ok := repo.db.payments[filter.ID]; ok {
			return repo.copyPayment(p), nil
		}
		return payment.Payment{}, payment.ErrNotFound
	}
	for _, p := range repo.db.payments {
		if (filter.SessionID != "" && p.SessionID == filter.SessionID) ||
			(filter.PaymentIntentID != "" && p.PaymentIntentID == filter.PaymentIntentID) {
			return repo.copyPayment(p), nil
		}
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) RecordRefundRequest(_ context.Context, id, reason string, at time.Time, _ ...core.DBExecutor) (payment.Payment, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.payments[id]
	if !ok {
		return payment.Payment{}, false, payment.ErrNotFound
	}
	if !p.IsCompleted() {
		return repo.copyPayment(p), false, nil
	}
	p.RefundReason = reason
	p.RefundRequestedAt = &at
	p.UpdatedAt = at
	return repo.copyPayment(p), true, nil
}

func (repo *paymentRepository) MarkDisputed(_ context.Context, id string, at time.Time, _ ...core.DBExecutor) (payment.Payment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.payments[id]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	p.Disputed = true
	p.UpdatedAt = at
	return repo.copyPayment(p), nil
}

func (repo *paymentRepository) CompletePayment(_ context.Context, id, intentID, receiptURL string, at time.Time, _ ...core.DBExecutor) (payment.Payment, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.payments[id]
	if !ok {
		return payment.Payment{}, false, payment.ErrNotFound
	}
	if !p.IsPayable() {
		return repo.copyPayment(p), false, nil
	}
	p.Status = payment.StatusCompleted
	if intentID != "" {
		p.PaymentIntentID = intentID
	}
	if receiptURL != "" {
		p.ReceiptURL = receiptURL
	}
	p.CompletedAt = &at
	p.UpdatedAt = at
	return repo.copyPayment(p), true, nil
}

func (repo *paymentRepository) FailPayment(_ context.Context, id, reason string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.payments[id]
	if !ok {
		return false, payment.ErrNotFound
	}
	if !p.IsPending() {
		return false, nil
	}
	p.Status = payment.StatusFailed
	p.FailureReason = reason
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (repo *paymentRepository) RefundPayment(_ context.Context, id, reason string, at time.Time, _ ...core.DBExecutor) (payment.Payment, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.payments[id]
	if !ok {
		return payment.Payment{}, false, payment.ErrNotFound
	}
	if !p.IsCompleted() {
		return repo.copyPayment(p), false, nil
	}
	p.Status = payment.StatusRefunded
	p.RefundReason = reason
	p.RefundedAt = &at
	p.UpdatedAt = at
	return repo.copyPayment(p), true, nil
}

func (repo *paymentRepository) QueryPayments(_ context.Context, filter *payment.QueryFilter, ordering []core.DBOrdering, page *core.Pagination, _ ...core.DBExecutor) ([]payment.Payment, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	payments := make([]payment.Payment, 0)
	for _, p := range repo.db.payments {
		if filter != nil {
			if filter.Status != "" && p.Status != filter.Status {
				continue
			}
			if filter.Provider != "" && p.Provider != filter.Provider {
				continue
			}
			if filter.UserID != "" && p.UserID != filter.UserID {
				continue
			}
			if filter.CourseID != "" && p.CourseID != filter.CourseID {
				continue
			}
		}
		payments = append(payments, repo.copyPayment(p))
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sortByOrdering(len(payments), func(i, j int) { payments[i], payments[j] = payments[j], payments[i] }, ordering, func(i int, field string) interface{} {
		p := payments[i]
		switch field {
		case "amount":
			return p.Amount
		case "status":
			return p.Status
		case "provider":
			return p.Provider
		case "created_at":
			return p.CreatedAt
		case "completed_at":
			return p.CompletedAt
		}
		return nil
	})

	total := len(payments)
	start, end := paginate(total, page)
	return payments[start:end], total, nil
}

func (repo *paymentRepository) InstructorSales(_ context.Context, instructorID string, _ ...core.DBExecutor) ([]payment.Sale, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	sales := make([]payment.Sale, 0)
	for _, p := range repo.db.payments {
		c, ok := repo.db.courses[p.CourseID]
		if !ok || c.InstructorID != instructorID || !p.IsCompleted() || p.CompletedAt == nil {
			continue
		}
		sales = append(sales, payment.Sale{
			CourseID:    c.ID,
			CourseTitle: c.Title,
			Amount:      p.Amount,
			CompletedAt: *p.CompletedAt,
		})
	}
	return sales, nil
}

func (repo *paymentRepository) Revenue(_ context.Context, _ ...core.DBExecutor) (payment.Revenue, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var rev payment.Revenue
	for _, p := range repo.db.payments {
		if p.IsCompleted() {
			rev.Payments++
			rev.Total += p.Amount
		}
	}
	return rev, nil
}
