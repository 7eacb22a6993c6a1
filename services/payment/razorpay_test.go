package paymentsvc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/payment"
)

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestRazorpay(t *testing.T) payment.Gateway {
	conf := &core.Config{Payment: core.PaymentConfig{
		RazorpayKeyID:         "rzp_test_key",
		RazorpayKeySecret:     "key-secret",
		RazorpayWebhookSecret: "webhook-secret",
		RazorpayCurrency:      "INR",
	}}
	gw, err := NewRazorpayGateway(conf)
	if err != nil {
		t.Fatalf("NewRazorpayGateway() = %v", err)
	}
	return gw
}

func TestNewRazorpayGateway_missingKeys(t *testing.T) {
	if _, err := NewRazorpayGateway(&core.Config{}); err == nil {
		t.Error("failed! NewRazorpayGateway() with empty config; want error")
	}
}

func TestRazorpayGateway_ConfirmCheckout(t *testing.T) {
	gw := newTestRazorpay(t)
	valid := sign("key-secret", "order_1|pay_1")

	tests := []struct {
		name     string
		req      payment.ConfirmRequest
		wantErr  error
		wantPaid bool
	}{
		{
			name:     "valid signature",
			req:      payment.ConfirmRequest{SessionID: "order_1", PaymentID: "pay_1", Signature: valid},
			wantPaid: true,
		},
		{
			name:    "tampered payment id",
			req:     payment.ConfirmRequest{SessionID: "order_1", PaymentID: "pay_2", Signature: valid},
			wantErr: payment.ErrInvalidSignature,
		},
		{
			name:    "tampered order id",
			req:     payment.ConfirmRequest{SessionID: "order_2", PaymentID: "pay_1", Signature: valid},
			wantErr: payment.ErrInvalidSignature,
		},
		{
			name:    "signed with other secret",
			req:     payment.ConfirmRequest{SessionID: "order_1", PaymentID: "pay_1", Signature: sign("other", "order_1|pay_1")},
			wantErr: payment.ErrInvalidSignature,
		},
		{
			name:    "missing signature",
			req:     payment.ConfirmRequest{SessionID: "order_1", PaymentID: "pay_1"},
			wantErr: payment.ErrInvalidSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := gw.ConfirmCheckout(context.Background(), tt.req)
			if err != tt.wantErr {
				t.Fatalf("failed! err = %v; want %v", err, tt.wantErr)
			}
			if res.Paid != tt.wantPaid {
				t.Errorf("failed! Paid = %v; want %v", res.Paid, tt.wantPaid)
			}
			if tt.wantPaid && res.PaymentIntentID != tt.req.PaymentID {
				t.Errorf("failed! PaymentIntentID = %q; want %q", res.PaymentIntentID, tt.req.PaymentID)
			}
		})
	}
}

func TestRazorpayGateway_ParseWebhook(t *testing.T) {
	gw := newTestRazorpay(t)

	captured := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","notes":{"payment_id":"p-1"}}}}}`
	failed := `{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_2","order_id":"order_1","notes":[],"error_description":"Card declined"}}}}`
	refunded := `{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_1","payment_id":"pay_1","notes":{}}}}}`
	other := `{"event":"subscription.charged","payload":{}}`

	tests := []struct {
		name    string
		body    string
		sig     string
		wantErr error
		want    payment.WebhookEvent
	}{
		{name: "bad signature", body: captured, sig: sign("nope", captured), wantErr: payment.ErrInvalidSignature},
		{name: "no signature", body: captured, wantErr: payment.ErrInvalidSignature},
		{
			name: "payment captured", body: captured, sig: sign("webhook-secret", captured),
			want: payment.WebhookEvent{
				Type: payment.EventPaymentSucceeded, ProviderType: "payment.captured",
				SessionID: "order_1", PaymentIntentID: "pay_1", PaymentID: "p-1",
			},
		},
		{
			name: "payment failed", body: failed, sig: sign("webhook-secret", failed),
			want: payment.WebhookEvent{
				Type: payment.EventPaymentFailed, ProviderType: "payment.failed",
				SessionID: "order_1", PaymentIntentID: "pay_2", FailureReason: "Card declined",
			},
		},
		{
			name: "refund processed", body: refunded, sig: sign("webhook-secret", refunded),
			want: payment.WebhookEvent{Type: payment.EventRefunded, ProviderType: "refund.processed", PaymentIntentID: "pay_1"},
		},
		{
			name: "unhandled event", body: other, sig: sign("webhook-secret", other),
			want: payment.WebhookEvent{Type: payment.EventIgnored, ProviderType: "subscription.charged"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := gw.ParseWebhook([]byte(tt.body), tt.sig)
			if err != tt.wantErr {
				t.Fatalf("failed! err = %v; want %v", err, tt.wantErr)
			}
			if ev != tt.want {
				t.Errorf("failed! event = %+v; want %+v", ev, tt.want)
			}
		})
	}
}
