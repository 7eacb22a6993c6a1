package paymentsvc

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/payment"
	"github.com/skillsharp/lms/core/user"
)

const maxProductDescription = 500

type stripeGateway struct {
	sc            *client.API
	webhookSecret string
}

var _ payment.Gateway = (*stripeGateway)(nil)

func NewStripeGateway(conf *core.Config) (payment.Gateway, error) {
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.Payment.StripeSecretKey, "StripeSecretKey"),
		vala.StringNotEmpty(conf.Payment.StripeWebhookSecret, "StripeWebhookSecret"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "configuring stripe")
	}
	return &stripeGateway{
		sc:            client.New(conf.Payment.StripeSecretKey, nil),
		webhookSecret: conf.Payment.StripeWebhookSecret,
	}, nil
}

func (gw *stripeGateway) Provider() string { return payment.ProviderStripe }

func providerErr(err error) error {
	return core.NewProviderError(payment.ProviderStripe, err)
}

func (gw *stripeGateway) CreateCustomer(ctx context.Context, usr user.User) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(usr.Email),
		Name:  stripe.String(usr.Name),
	}
	params.Context = ctx
	params.AddMetadata("user_id", usr.ID)

	cus, err := gw.sc.Customers.New(params)
	if err != nil {
		return "", providerErr(err)
	}
	return cus.ID, nil
}

func (gw *stripeGateway) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (payment.Checkout, error) {
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(req.Course.Title),
	}
	if desc := req.Course.Description; desc != "" {
		product.Description = stripe.String(truncate(desc, maxProductDescription))
	}
	if req.Course.ThumbnailURL != "" {
		product.Images = stripe.StringSlice([]string{req.Course.ThumbnailURL})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.PaymentID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ExpiresAt:         stripe.Int64(req.ExpiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String(strings.ToLower(req.Currency)),
					UnitAmount:  stripe.Int64(req.Amount),
					ProductData: product,
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := gw.sc.CheckoutSessions.New(params)
	if err != nil {
		return payment.Checkout{}, providerErr(err)
	}
	return payment.Checkout{
		SessionID: sess.ID,
		URL:       sess.URL,
		Amount:    req.Amount,
		Currency:  strings.ToLower(req.Currency),
	}, nil
}

func (gw *stripeGateway) ConfirmCheckout(ctx context.Context, req payment.ConfirmRequest) (payment.Confirmation, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent.latest_charge")

	sess, err := gw.sc.CheckoutSessions.Get(req.SessionID, params)
	if err != nil {
		return payment.Confirmation{}, providerErr(err)
	}

	res := payment.Confirmation{Paid: sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid}
	if pi := sess.PaymentIntent; pi != nil {
		res.PaymentIntentID = pi.ID
		if pi.LatestCharge != nil {
			res.ReceiptURL = pi.LatestCharge.ReceiptURL
		}
	}
	return res, nil
}

func (gw *stripeGateway) Refund(ctx context.Context, p payment.Payment, reason string) error {
	if p.PaymentIntentID == "" {
		return providerErr(errors.Errorf("payment %s has no payment intent", p.ID))
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(p.PaymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.AddMetadata("payment_id", p.ID)
	if reason != "" {
		params.AddMetadata("reason", reason)
	}

	if _, err := gw.sc.Refunds.New(params); err != nil {
		return providerErr(err)
	}
	return nil
}

func (gw *stripeGateway) ParseWebhook(payload []byte, signature string) (payment.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, gw.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return payment.WebhookEvent{}, payment.ErrInvalidSignature
	}

	ev := payment.WebhookEvent{Type: payment.EventIgnored, ProviderType: string(event.Type)}
	switch ev.ProviderType {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err = json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return ev, errors.Wrap(err, "decoding checkout session")
		}
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return ev, nil
		}
		ev.Type = payment.EventCheckoutCompleted
		ev.SessionID = sess.ID
		ev.PaymentID = sess.Metadata["payment_id"]
		if sess.PaymentIntent != nil {
			ev.PaymentIntentID = sess.PaymentIntent.ID
		}

	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err = json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return ev, errors.Wrap(err, "decoding payment intent")
		}
		ev.Type = payment.EventPaymentSucceeded
		ev.PaymentIntentID = pi.ID
		ev.PaymentID = pi.Metadata["payment_id"]
		if pi.LatestCharge != nil {
			ev.ReceiptURL = pi.LatestCharge.ReceiptURL
		}
		if ev.ProviderType == "payment_intent.payment_failed" {
			ev.Type = payment.EventPaymentFailed
			ev.FailureReason = "Payment failed"
			if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
				ev.FailureReason = pi.LastPaymentError.Msg
			}
		}

	case "charge.refunded":
		var ch stripe.Charge
		if err = json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return ev, errors.Wrap(err, "decoding charge")
		}
		ev.Type = payment.EventRefunded
		ev.PaymentID = ch.Metadata["payment_id"]
		if ch.PaymentIntent != nil {
			ev.PaymentIntentID = ch.PaymentIntent.ID
		}

	case "charge.dispute.created":
		var dispute stripe.Dispute
		if err = json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return ev, errors.Wrap(err, "decoding dispute")
		}
		ev.Type = payment.EventDisputeCreated
		if dispute.PaymentIntent != nil {
			ev.PaymentIntentID = dispute.PaymentIntent.ID
		}
		ev.FailureReason = string(dispute.Reason)
	}
	return ev, nil
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
