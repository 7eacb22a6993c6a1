// Package testutil holds the fixtures shared by the test suites.
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/payment"
	"github.com/skillsharp/lms/core/quiz"
	"github.com/skillsharp/lms/core/user"
	logsvc "github.com/skillsharp/lms/services/logger"
)

// Password satisfies the password policy.
const Password = "Sup3r-S3cret!"

// NewConfig returns the configuration of the test suites.
func NewConfig() *core.Config {
	conf := core.NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 24 * time.Hour
	conf.Payment.Currency = "usd"
	conf.Payment.CheckoutExpiry = 30 * time.Minute
	conf.Storage.PublicBaseURL = "http://localhost:8000/media"
	conf.Storage.MaxImageSize = 1 << 20
	return conf
}

// NewLogger returns a logger that reports nothing.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zap.NewNop().Sugar(), conf)
}

// NewValidator returns a validator with every domain validator registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	payment.InitValidators(validate, translator)
	quiz.InitValidators(validate, translator)
	user.LoadCommonPasswords(nil)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		Badges:    []string{},
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateCourse stores a course of instructor. Published courses are approved too.
func CreateCourse(
	t *testing.T,
	repo course.Repository,
	instructor user.User,
	title string,
	price int64,
	published bool,
	lectures ...course.Lecture,
) course.Course {
	now := time.Now().UTC()
	if lectures == nil {
		lectures = []course.Lecture{}
	}
	c, err := repo.CreateCourse(context.Background(), course.Course{
		InstructorID: instructor.ID,
		Title:        title,
		Slug:         core.Slugify(title),
		Level:        course.LevelAll,
		Price:        price,
		Currency:     "usd",
		Lectures:     lectures,
		IsPublished:  published,
		IsApproved:   published,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

// Webhook signatures accepted by FakeGateway.
const FakeSignature = "valid-signature"

// FakeEvent is the webhook payload understood by FakeGateway.
type FakeEvent struct {
	Type            string `json:"type"`
	SessionID       string `json:"session_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	PaymentID       string `json:"payment_id"`
	FailureReason   string `json:"failure_reason"`
}

// FakeGateway is a payment.Gateway that settles everything locally.
type FakeGateway struct {
	Name string

	mu        sync.Mutex
	unpaid    bool
	refundErr error
	refunds   []string
	checkouts []payment.CheckoutRequest
}

var _ payment.Gateway = (*FakeGateway)(nil)

func NewFakeGateway(provider string) *FakeGateway {
	return &FakeGateway{Name: provider}
}

// SetUnpaid makes the next confirmations report an unpaid checkout.
func (gw *FakeGateway) SetUnpaid(unpaid bool) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.unpaid = unpaid
}

func (gw *FakeGateway) SetRefundErr(err error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.refundErr = err
}

// Refunds lists the ids of the refunded payments.
func (gw *FakeGateway) Refunds() []string {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	res := make([]string, len(gw.refunds))
	copy(res, gw.refunds)
	return res
}

func (gw *FakeGateway) Checkouts() []payment.CheckoutRequest {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	res := make([]payment.CheckoutRequest, len(gw.checkouts))
	copy(res, gw.checkouts)
	return res
}

func (gw *FakeGateway) Provider() string { return gw.Name }

func (gw *FakeGateway) CreateCustomer(_ context.Context, usr user.User) (string, error) {
	if gw.Name != payment.ProviderStripe {
		return "", nil
	}
	return "cus_" + usr.ID, nil
}

func (gw *FakeGateway) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (payment.Checkout, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.checkouts = append(gw.checkouts, req)

	return payment.Checkout{
		SessionID: SessionID(req.PaymentID),
		URL:       "https://checkout.test/" + req.PaymentID,
		Amount:    req.Amount,
		Currency:  req.Currency,
	}, nil
}

func (gw *FakeGateway) ConfirmCheckout(_ context.Context, req payment.ConfirmRequest) (payment.Confirmation, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.unpaid {
		return payment.Confirmation{}, nil
	}
	return payment.Confirmation{Paid: true, PaymentIntentID: IntentID(req.SessionID)}, nil
}

func (gw *FakeGateway) Refund(_ context.Context, p payment.Payment, _ string) error {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.refundErr != nil {
		return gw.refundErr
	}
	gw.refunds = append(gw.refunds, p.ID)
	return nil
}

func (gw *FakeGateway) ParseWebhook(payload []byte, signature string) (payment.WebhookEvent, error) {
	if signature != FakeSignature {
		return payment.WebhookEvent{}, payment.ErrInvalidSignature
	}
	var ev FakeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return payment.WebhookEvent{}, core.NewValidationError(err)
	}
	return payment.WebhookEvent{
		Type:            ev.Type,
		ProviderType:    "test." + ev.Type,
		SessionID:       ev.SessionID,
		PaymentIntentID: ev.PaymentIntentID,
		PaymentID:       ev.PaymentID,
		FailureReason:   ev.FailureReason,
	}, nil
}

// SessionID is the checkout session FakeGateway opens for a payment.
func SessionID(paymentID string) string { return "cs_test_" + paymentID }

// IntentID is the provider payment FakeGateway reports for a session.
func IntentID(sessionID string) string { return "pi_" + sessionID }
