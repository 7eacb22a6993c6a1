package echoapi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core/payment"
)

func registerWebhookAPI(g *echo.Group, opts *Options) {
	api := paymentApi{svc: opts.PaymentSvc}

	wg := g.Group("/webhooks")
	wg.POST("/stripe", api.webhook(payment.ProviderStripe, "Stripe-Signature"))
	wg.POST("/razorpay", api.webhook(payment.ProviderRazorpay, "X-Razorpay-Signature"))
}

// webhook verifies and applies a provider event. The raw body is needed for the signature.
func (api *paymentApi) webhook(provider, signatureHeader string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		payload, err := io.ReadAll(ctx.Request().Body)
		if err != nil {
			return errors.Wrap(err, "reading webhook body")
		}
		sig := ctx.Request().Header.Get(signatureHeader)

		if err = api.svc.HandleWebhook(ctx.Request().Context(), provider, payload, sig); err != nil {
			return errors.Wrapf(err, "handling %s webhook", provider)
		}
		return ctx.JSON(http.StatusOK, echo.Map{"received": true})
	}
}
