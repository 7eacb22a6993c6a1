package payment

import (
	"context"
	"time"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/user"
)

// Webhook event types, provider agnostic.
const (
	EventCheckoutCompleted = "checkout_completed"
	EventPaymentSucceeded  = "payment_succeeded"
	EventPaymentFailed     = "payment_failed"
	EventRefunded          = "refunded"
	EventDisputeCreated    = "dispute_created"
	EventIgnored           = "ignored"
)

// ErrInvalidSignature is returned when a webhook or a client confirmation was not signed by the provider.
var ErrInvalidSignature = core.NewValidationError(nil, core.FieldError{Field: "signature", Error: "invalid signature"})

type (
	CheckoutRequest struct {
		PaymentID     string
		CustomerID    string
		CustomerEmail string
		Course        course.Course
		Amount        int64
		Currency      string
		SuccessURL    string
		CancelURL     string
		ExpiresAt     time.Time
		Metadata      map[string]string
	}

	Checkout struct {
		SessionID string
		URL       string
		KeyID     string
		Amount    int64
		Currency  string
	}

	ConfirmRequest struct {
		SessionID string
		PaymentID string // provider payment id, razorpay only
		Signature string
	}

	Confirmation struct {
		Paid            bool
		PaymentIntentID string
		ReceiptURL      string
	}

	WebhookEvent struct {
		Type            string
		ProviderType    string // raw provider event name
		SessionID       string
		PaymentIntentID string
		PaymentID       string // ours, from metadata
		FailureReason   string
		ReceiptURL      string
	}

	// Gateway is a payment provider.
	Gateway interface {
		Provider() string
		// CreateCustomer registers usr with the provider. Providers without customers return "".
		CreateCustomer(ctx context.Context, usr user.User) (string, error)
		CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
		ConfirmCheckout(ctx context.Context, req ConfirmRequest) (Confirmation, error)
		Refund(ctx context.Context, p Payment, reason string) error
		// ParseWebhook checks the signature of payload and decodes it.
		ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
	}

	// Gateways indexes the configured gateways by provider.
	Gateways map[string]Gateway
)

func NewGateways(gateways ...Gateway) Gateways {
	res := make(Gateways, len(gateways))
	for _, gw := range gateways {
		if gw != nil {
			res[gw.Provider()] = gw
		}
	}
	return res
}
