package payment

import (
	"time"

	"github.com/skillsharp/lms/core"
)

// Providers
const (
	ProviderStripe   = "stripe"
	ProviderRazorpay = "razorpay"
)

// Statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

var (
	AllProviders = []string{ProviderStripe, ProviderRazorpay}
	AllStatuses  = []string{StatusPending, StatusCompleted, StatusFailed, StatusRefunded}

	// OrderingFields lists the fields payments may be sorted by.
	OrderingFields = []string{"amount", "status", "provider", "created_at", "completed_at"}
)

type Payment struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	CourseID          string     `json:"course_id"`
	CourseTitle       string     `json:"course_title,omitempty"`
	Provider          string     `json:"provider"`
	Amount            int64      `json:"amount"` // minor units
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	SessionID         string     `json:"session_id"`
	PaymentIntentID   string     `json:"payment_intent_id,omitempty"`
	CustomerID        string     `json:"-"`
	ReceiptURL        string     `json:"receipt_url,omitempty"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	RefundReason      string     `json:"refund_reason,omitempty"`
	Disputed          bool       `json:"disputed"`
	RefundRequestedAt *time.Time `json:"refund_requested_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	RefundedAt        *time.Time `json:"refunded_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"` // UTC
	UpdatedAt         time.Time  `json:"updated_at"` // UTC
}

func (p Payment) IsPending() bool   { return p.Status == StatusPending }
func (p Payment) IsCompleted() bool { return p.Status == StatusCompleted }

// IsPayable reports whether p may still complete. A failed attempt can be retried on the same session.
func (p Payment) IsPayable() bool { return p.Status == StatusPending || p.Status == StatusFailed }

type NewCheckout struct {
	CourseID string `json:"course_id" validate:"required"`
	Provider string `json:"provider" validate:"omitempty,provider"`
}

func (nc *NewCheckout) Clean() {
	nc.CourseID = core.CleanString(nc.CourseID)
	nc.Provider = core.CleanString(nc.Provider, true /* lower */)
	if nc.Provider == "" {
		nc.Provider = ProviderStripe
	}
}

// CheckoutResult is what the client needs to complete the payment with the provider.
type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url,omitempty"`
	PaymentID string `json:"payment_id"`
	Provider  string `json:"provider"`
	KeyID     string `json:"key_id,omitempty"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// Verify is the client side confirmation of a checkout.
// Stripe only needs SessionID. Razorpay sends its order, payment and signature.
type Verify struct {
	Provider  string `json:"provider" validate:"omitempty,provider"`
	SessionID string `json:"session_id" validate:"required_without=OrderID"`
	OrderID   string `json:"order_id" validate:"required_if=Provider razorpay"`
	PaymentID string `json:"payment_id" validate:"required_if=Provider razorpay"`
	Signature string `json:"signature" validate:"required_if=Provider razorpay"`
}

func (v *Verify) Clean() {
	v.Provider = core.CleanString(v.Provider, true /* lower */)
	v.SessionID = core.CleanString(v.SessionID)
	v.OrderID = core.CleanString(v.OrderID)
	v.PaymentID = core.CleanString(v.PaymentID)
	v.Signature = core.CleanString(v.Signature)
	if v.Provider == "" {
		v.Provider = ProviderStripe
	}
	if v.SessionID == "" {
		v.SessionID = v.OrderID
	}
}

type RefundRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type GetFilter struct {
	ID              string
	SessionID       string
	PaymentIntentID string
}

type QueryFilter struct {
	Status   string `query:"status"`
	Provider string `query:"provider"`
	UserID   string `query:"user"`
	CourseID string `query:"course"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Provider = core.CleanString(qf.Provider, true /* lower */)
	qf.UserID = core.CleanString(qf.UserID)
	qf.CourseID = core.CleanString(qf.CourseID)
}

// Sale is a completed payment of one of an instructor's courses.
type Sale struct {
	CourseID    string
	CourseTitle string
	Amount      int64
	CompletedAt time.Time
}

// Revenue feeds the admin dashboard.
type Revenue struct {
	Payments int   `json:"payments"`
	Total    int64 `json:"total"`
}
