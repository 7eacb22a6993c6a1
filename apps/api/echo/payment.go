package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core/payment"
)

type paymentApi struct {
	svc payment.Service
}

func registerPaymentAPI(g *echo.Group, auth authMiddleware, opts *Options) {
	api := paymentApi{svc: opts.PaymentSvc}

	pg := g.Group("/payment", auth.required)
	pg.POST("/create-checkout-session", api.createCheckout)
	pg.POST("/verify", api.verify)
	pg.GET("/history", api.history)
	pg.GET("/instructor/earnings", api.earnings, instructorMiddleware)
	pg.GET("/:id", api.retrieve)
	pg.POST("/:id/refund-request", api.requestRefund)
}

func (api *paymentApi) createCheckout(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data payment.NewCheckout
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCheckout")
	}

	res, err := api.svc.CreateCheckout(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating checkout")
	}
	return ctx.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		payment.CheckoutResult
	}{true, res})
}

func (api *paymentApi) verify(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data payment.Verify
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Verify")
	}

	p, already, err := api.svc.Verify(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "verifying payment")
	}
	msg := "Payment verified successfully"
	if already {
		msg = "Payment already verified"
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "message": msg, "payment": p})
}

func (api *paymentApi) history(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	payments, err := api.svc.History(ctx.Request().Context(), usr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "payments": payments})
}

func (api *paymentApi) earnings(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	earnings, err := api.svc.Earnings(ctx.Request().Context(), usr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		payment.Earnings
	}{true, earnings})
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.GetForUser(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting payment")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "payment": p})
}

func (api *paymentApi) requestRefund(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data payment.RefundRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefundRequest")
	}

	p, err := api.svc.RequestRefund(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "requesting refund")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "message": "Refund request received", "payment": p})
}
