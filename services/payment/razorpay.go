package paymentsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/payment"
	"github.com/skillsharp/lms/core/user"
)

type (
	razorpayGateway struct {
		client        *razorpay.Client
		keyID         string
		keySecret     string
		webhookSecret string
		currency      string
	}

	razorpayEntity struct {
		ID               string          `json:"id"`
		OrderID          string          `json:"order_id"`
		PaymentID        string          `json:"payment_id"`
		Receipt          string          `json:"receipt"`
		ErrorDescription string          `json:"error_description"`
		Notes            json.RawMessage `json:"notes"`
	}

	razorpayWebhook struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity razorpayEntity `json:"entity"`
			} `json:"payment"`
			Order struct {
				Entity razorpayEntity `json:"entity"`
			} `json:"order"`
			Refund struct {
				Entity razorpayEntity `json:"entity"`
			} `json:"refund"`
		} `json:"payload"`
	}
)

var _ payment.Gateway = (*razorpayGateway)(nil)

func NewRazorpayGateway(conf *core.Config) (payment.Gateway, error) {
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.Payment.RazorpayKeyID, "RazorpayKeyID"),
		vala.StringNotEmpty(conf.Payment.RazorpayKeySecret, "RazorpayKeySecret"),
		vala.StringNotEmpty(conf.Payment.RazorpayWebhookSecret, "RazorpayWebhookSecret"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "configuring razorpay")
	}
	return &razorpayGateway{
		client:        razorpay.NewClient(conf.Payment.RazorpayKeyID, conf.Payment.RazorpayKeySecret),
		keyID:         conf.Payment.RazorpayKeyID,
		keySecret:     conf.Payment.RazorpayKeySecret,
		webhookSecret: conf.Payment.RazorpayWebhookSecret,
		currency:      strings.ToUpper(conf.Payment.RazorpayCurrency),
	}, nil
}

func (gw *razorpayGateway) Provider() string { return payment.ProviderRazorpay }

func rzpErr(err error) error {
	return core.NewProviderError(payment.ProviderRazorpay, err)
}

// CreateCustomer is a no-op, orders are not tied to customers.
func (gw *razorpayGateway) CreateCustomer(context.Context, user.User) (string, error) {
	return "", nil
}

func (gw *razorpayGateway) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (payment.Checkout, error) {
	notes := make(map[string]interface{}, len(req.Metadata))
	for k, v := range req.Metadata {
		notes[k] = v
	}
	order, err := gw.client.Order.Create(map[string]interface{}{
		"amount":   req.Amount,
		"currency": gw.currency,
		"receipt":  req.PaymentID,
		"notes":    notes,
	}, nil)
	if err != nil {
		return payment.Checkout{}, rzpErr(err)
	}

	id, _ := order["id"].(string)
	if id == "" {
		return payment.Checkout{}, rzpErr(errors.New("order created without id"))
	}
	return payment.Checkout{
		SessionID: id,
		KeyID:     gw.keyID,
		Amount:    req.Amount,
		Currency:  strings.ToLower(gw.currency),
	}, nil
}

// ConfirmCheckout checks the signature the checkout widget hands to the client.
func (gw *razorpayGateway) ConfirmCheckout(_ context.Context, req payment.ConfirmRequest) (payment.Confirmation, error) {
	if req.PaymentID == "" || req.Signature == "" {
		return payment.Confirmation{}, payment.ErrInvalidSignature
	}
	attrs := map[string]interface{}{
		"razorpay_order_id":   req.SessionID,
		"razorpay_payment_id": req.PaymentID,
	}
	if !utils.VerifyPaymentSignature(attrs, req.Signature, gw.keySecret) {
		return payment.Confirmation{}, payment.ErrInvalidSignature
	}
	return payment.Confirmation{Paid: true, PaymentIntentID: req.PaymentID}, nil
}

func (gw *razorpayGateway) Refund(_ context.Context, p payment.Payment, reason string) error {
	if p.PaymentIntentID == "" {
		return rzpErr(errors.Errorf("payment %s has no razorpay payment id", p.ID))
	}
	_, err := gw.client.Payment.Refund(p.PaymentIntentID, int(p.Amount), map[string]interface{}{
		"notes": map[string]interface{}{"payment_id": p.ID, "reason": reason},
	}, nil)
	if err != nil {
		return rzpErr(err)
	}
	return nil
}

// note reads a string note. Razorpay sends notes as [] when there are none.
func (e razorpayEntity) note(key string) string {
	var notes map[string]interface{}
	if err := json.Unmarshal(e.Notes, &notes); err != nil {
		return ""
	}
	if v, ok := notes[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

func (gw *razorpayGateway) ParseWebhook(payload []byte, signature string) (payment.WebhookEvent, error) {
	if signature == "" || !utils.VerifyWebhookSignature(string(payload), signature, gw.webhookSecret) {
		return payment.WebhookEvent{}, payment.ErrInvalidSignature
	}

	var wh razorpayWebhook
	if err := json.Unmarshal(payload, &wh); err != nil {
		return payment.WebhookEvent{}, errors.Wrap(err, "decoding razorpay webhook")
	}

	ev := payment.WebhookEvent{Type: payment.EventIgnored, ProviderType: wh.Event}
	pay := wh.Payload.Payment.Entity
	switch wh.Event {
	case "payment.captured":
		ev.Type = payment.EventPaymentSucceeded
		ev.SessionID = pay.OrderID
		ev.PaymentIntentID = pay.ID
		ev.PaymentID = pay.note("payment_id")
	case "order.paid":
		order := wh.Payload.Order.Entity
		ev.Type = payment.EventCheckoutCompleted
		ev.SessionID = order.ID
		ev.PaymentIntentID = pay.ID
		ev.PaymentID = order.Receipt
	case "payment.failed":
		ev.Type = payment.EventPaymentFailed
		ev.SessionID = pay.OrderID
		ev.PaymentIntentID = pay.ID
		ev.PaymentID = pay.note("payment_id")
		ev.FailureReason = pay.ErrorDescription
		if ev.FailureReason == "" {
			ev.FailureReason = "Payment failed"
		}
	case "refund.processed":
		ev.Type = payment.EventRefunded
		ev.PaymentIntentID = wh.Payload.Refund.Entity.PaymentID
		ev.PaymentID = wh.Payload.Refund.Entity.note("payment_id")
	}
	return ev, nil
}
