package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/enrollment"
	"github.com/skillsharp/lms/core/user"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("Payment not found")
	ErrNotOwner          = core.NewPermissionError("Not authorized to access this payment")
	ErrNotCompleted      = core.NewValidationError(errors.New("Payment not completed"))
	ErrNotRefundable     = core.NewValidationError(errors.New("Only completed payments can be refunded"))
	ErrFreeCourse        = core.NewValidationError(errors.New("This course is free, enroll directly"))
	ErrOwnCourse         = core.NewValidationError(errors.New("You cannot purchase your own course"))
	ErrAlreadyEnrolled   = core.NewValidationError(errors.New("You are already enrolled in this course"))
	ErrProviderDisabled  = core.NewValidationError(nil, core.FieldError{Field: "provider", Error: "this payment provider is not available"})
	ErrUnknownProvider   = core.NewNotFoundError("Unknown payment provider")
	providerRefundReason = "Refunded by the payment provider"
)

type (
	Repository interface {
		CreatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		GetPayment(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Payment, error)
		// RecordRefundRequest stores a refund request on a completed payment. recorded is false when it was not completed.
		RecordRefundRequest(ctx context.Context, id, reason string, at time.Time, exec ...core.DBExecutor) (p Payment, recorded bool, err error)
		// MarkDisputed flags a payment as disputed whatever its status.
		MarkDisputed(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (Payment, error)
		// CompletePayment marks a payable payment completed. completed is false when it was not payable anymore.
		CompletePayment(ctx context.Context, id, intentID, receiptURL string, at time.Time, exec ...core.DBExecutor) (p Payment, completed bool, err error)
		// FailPayment marks a pending payment failed.
		FailPayment(ctx context.Context, id, reason string, exec ...core.DBExecutor) (failed bool, err error)
		// RefundPayment marks a completed payment refunded. refunded is false when it was not completed.
		RefundPayment(ctx context.Context, id, reason string, at time.Time, exec ...core.DBExecutor) (p Payment, refunded bool, err error)
		QueryPayments(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]Payment, int, error)
		// InstructorSales lists the completed payments of the instructor's courses.
		InstructorSales(ctx context.Context, instructorID string, exec ...core.DBExecutor) ([]Sale, error)
		Revenue(ctx context.Context, exec ...core.DBExecutor) (Revenue, error)
	}

	Service interface {
		CreateCheckout(ctx context.Context, usr user.User, data NewCheckout) (CheckoutResult, error)
		// Verify confirms a checkout with the provider on behalf of its payer.
		// alreadyVerified is true when the payment had been completed before.
		Verify(ctx context.Context, usr user.User, data Verify) (p Payment, alreadyVerified bool, err error)
		HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) error
		History(ctx context.Context, userID string) ([]Payment, error)
		// GetForUser returns a payment to its payer or to an admin.
		GetForUser(ctx context.Context, usr user.User, id string) (Payment, error)
		RequestRefund(ctx context.Context, usr user.User, id string, data RefundRequest) (Payment, error)
		// Refund refunds a completed payment with the provider and revokes the enrollment.
		Refund(ctx context.Context, id string, data RefundRequest) (Payment, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]Payment, int, error)
		Earnings(ctx context.Context, instructorID string) (Earnings, error)
		Revenue(ctx context.Context) (Revenue, error)
	}

	service struct {
		repo       Repository
		gateways   Gateways
		courseSvc  course.Service
		enrollSvc  enrollment.Service
		usrSvc     user.Service
		transactor core.Transactor
		mailSvc    core.EmailService
		logger     core.Logger
		validate   *validator.Validate
		conf       *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	gateways Gateways,
	courseSvc course.Service,
	enrollSvc enrollment.Service,
	usrSvc user.Service,
	transactor core.Transactor,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
	conf *core.Config,
) Service {
	return &service{
		repo:       repo,
		gateways:   gateways,
		courseSvc:  courseSvc,
		enrollSvc:  enrollSvc,
		usrSvc:     usrSvc,
		transactor: transactor,
		mailSvc:    mailSvc,
		logger:     logger,
		validate:   validate,
		conf:       conf,
	}
}

func (svc *service) CreateCheckout(ctx context.Context, usr user.User, data NewCheckout) (CheckoutResult, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return CheckoutResult{}, err
	}
	gw, ok := svc.gateways[data.Provider]
	if !ok {
		return CheckoutResult{}, ErrProviderDisabled
	}

	c, err := svc.courseSvc.GetByID(ctx, data.CourseID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if !c.IsPublished {
		return CheckoutResult{}, course.ErrNotFound
	}
	if c.IsFree() {
		return CheckoutResult{}, ErrFreeCourse
	}
	if c.IsOwnedBy(usr) {
		return CheckoutResult{}, ErrOwnCourse
	}
	enrolled, err := svc.enrollSvc.IsEnrolled(ctx, usr.ID, c.ID)
	if err != nil {
		return CheckoutResult{}, errors.Wrap(err, "checking enrollment")
	}
	if enrolled {
		return CheckoutResult{}, ErrAlreadyEnrolled
	}

	var customerID string
	if data.Provider == ProviderStripe {
		if customerID = usr.StripeCustomerID; customerID == "" {
			if customerID, err = gw.CreateCustomer(ctx, usr); err != nil {
				return CheckoutResult{}, err
			}
			if _, err = svc.usrSvc.SetStripeCustomerID(ctx, usr.ID, customerID); err != nil {
				return CheckoutResult{}, errors.Wrap(err, "saving stripe customer")
			}
		}
	}

	paymentID := uuid.New().String()
	now := time.Now().UTC()
	checkout, err := gw.CreateCheckout(ctx, CheckoutRequest{
		PaymentID:     paymentID,
		CustomerID:    customerID,
		CustomerEmail: usr.Email,
		Course:        c,
		Amount:        c.Price,
		Currency:      c.Currency,
		SuccessURL:    svc.conf.FrontendURL("/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:     svc.conf.FrontendURL("/courses/%s", c.ID),
		ExpiresAt:     now.Add(svc.conf.Payment.CheckoutExpiry),
		Metadata: map[string]string{
			"user_id":       usr.ID,
			"course_id":     c.ID,
			"instructor_id": c.InstructorID,
			"payment_id":    paymentID,
		},
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	p, err := svc.repo.CreatePayment(ctx, Payment{
		ID:         paymentID,
		UserID:     usr.ID,
		CourseID:   c.ID,
		Provider:   data.Provider,
		Amount:     checkout.Amount,
		Currency:   checkout.Currency,
		Status:     StatusPending,
		SessionID:  checkout.SessionID,
		CustomerID: customerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return CheckoutResult{}, errors.Wrap(err, "creating payment")
	}

	return CheckoutResult{
		SessionID: p.SessionID,
		URL:       checkout.URL,
		PaymentID: p.ID,
		Provider:  p.Provider,
		KeyID:     checkout.KeyID,
		Amount:    p.Amount,
		Currency:  p.Currency,
	}, nil
}

func (svc *service) Verify(ctx context.Context, usr user.User, data Verify) (Payment, bool, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return Payment{}, false, err
	}

	p, err := svc.repo.GetPayment(ctx, GetFilter{SessionID: data.SessionID})
	if err != nil {
		return Payment{}, false, err
	}
	if p.UserID != usr.ID {
		return Payment{}, false, ErrNotOwner
	}
	if p.IsCompleted() {
		return p, true, nil
	}
	if !p.IsPayable() {
		return Payment{}, false, ErrNotCompleted
	}

	gw, ok := svc.gateways[p.Provider]
	if !ok {
		return Payment{}, false, ErrProviderDisabled
	}
	conf, err := gw.ConfirmCheckout(ctx, ConfirmRequest{
		SessionID: p.SessionID,
		PaymentID: data.PaymentID,
		Signature: data.Signature,
	})
	if err != nil {
		return Payment{}, false, err
	}
	if !conf.Paid {
		return Payment{}, false, ErrNotCompleted
	}

	p, completed, err := svc.complete(ctx, p, conf.PaymentIntentID, conf.ReceiptURL)
	if err != nil {
		return Payment{}, false, err
	}
	return p, !completed, nil
}

// complete marks p completed and activates the enrollment in one transaction.
// Only the call that actually completes the payment sends the confirmation.
func (svc *service) complete(ctx context.Context, p Payment, intentID, receiptURL string) (Payment, bool, error) {
	var (
		res       Payment
		completed bool
	)
	err := svc.transactor.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		res, completed, err = svc.repo.CompletePayment(ctx, p.ID, intentID, receiptURL, time.Now().UTC(), exec)
		if err != nil || !completed {
			return errors.Wrap(err, "completing payment")
		}
		_, _, err = svc.enrollSvc.Activate(ctx, res.UserID, res.CourseID, res.ID, exec)
		return err
	})
	if err != nil {
		return Payment{}, false, err
	}

	if completed {
		svc.notify(ctx, res, "Purchase Confirmation", "purchaseConfirmation", nil)
	}
	return res, completed, nil
}

// refund marks p refunded and revokes the enrollment in one transaction.
func (svc *service) refund(ctx context.Context, p Payment, reason string) (Payment, bool, error) {
	var (
		res      Payment
		refunded bool
	)
	err := svc.transactor.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		res, refunded, err = svc.repo.RefundPayment(ctx, p.ID, reason, time.Now().UTC(), exec)
		if err != nil || !refunded {
			return errors.Wrap(err, "refunding payment")
		}
		_, err = svc.enrollSvc.Revoke(ctx, res.UserID, res.CourseID, exec)
		return err
	})
	if err != nil {
		return Payment{}, false, err
	}

	if refunded {
		svc.notify(ctx, res, "Refund Confirmation", "refundConfirmation", map[string]interface{}{"Reason": reason})
	}
	return res, refunded, nil
}

// notify emails the payer about p. Failures are logged, the payment already went through.
func (svc *service) notify(ctx context.Context, p Payment, subject, tmpl string, extra map[string]interface{}) {
	usr, err := svc.usrSvc.GetByID(ctx, p.UserID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("%s email: finding user: %v", tmpl, err), err)
		return
	}
	c, err := svc.courseSvc.GetByID(ctx, p.CourseID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("%s email: finding course: %v", tmpl, err), err, usr)
		return
	}

	data := map[string]interface{}{
		"Name":        usr.Name,
		"CourseID":    c.ID,
		"CourseTitle": c.Title,
		"Amount":      FormatAmount(p.Amount, p.Currency),
		"PaymentID":   p.ID,
		"ReceiptURL":  p.ReceiptURL,
		"Reason":      p.RefundReason,
	}
	for k, v := range extra {
		data[k] = v
	}
	svc.mailSvc.SendMessages(core.NewTemplatedMessage(subject, tmpl, data, usr.MailAddress()))
}

func (svc *service) HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) error {
	gw, ok := svc.gateways[provider]
	if !ok {
		return ErrUnknownProvider
	}
	ev, err := gw.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	if ev.Type == EventIgnored {
		svc.logger.Debug(fmt.Sprintf("%s webhook: unhandled event %s", provider, ev.ProviderType))
		return nil
	}

	p, err := svc.findForEvent(ctx, ev)
	if err != nil {
		if core.IsNotFound(err) {
			svc.logger.Warn(fmt.Sprintf("%s webhook: no payment for event %s", provider, ev.ProviderType), map[string]interface{}{
				"session_id":        ev.SessionID,
				"payment_intent_id": ev.PaymentIntentID,
			})
			return nil
		}
		return errors.Wrap(err, "finding payment for webhook")
	}

	switch ev.Type {
	case EventCheckoutCompleted, EventPaymentSucceeded:
		if p.IsPayable() {
			_, _, err = svc.complete(ctx, p, ev.PaymentIntentID, ev.ReceiptURL)
		}
	case EventPaymentFailed:
		_, err = svc.repo.FailPayment(ctx, p.ID, ev.FailureReason)
	case EventRefunded:
		_, _, err = svc.refund(ctx, p, providerRefundReason)
	case EventDisputeCreated:
		if _, err = svc.repo.MarkDisputed(ctx, p.ID, time.Now().UTC()); err == nil {
			svc.logger.Warn(fmt.Sprintf("%s webhook: payment %s disputed", provider, p.ID), map[string]interface{}{
				"payment_id": p.ID,
				"user_id":    p.UserID,
				"course_id":  p.CourseID,
			})
		}
	}
	return errors.Wrapf(err, "handling %s event", ev.ProviderType)
}

// findForEvent looks the payment up by our id, then by session, then by provider payment id.
func (svc *service) findForEvent(ctx context.Context, ev WebhookEvent) (Payment, error) {
	filters := make([]GetFilter, 0, 3)
	if ev.PaymentID != "" {
		filters = append(filters, GetFilter{ID: ev.PaymentID})
	}
	if ev.SessionID != "" {
		filters = append(filters, GetFilter{SessionID: ev.SessionID})
	}
	if ev.PaymentIntentID != "" {
		filters = append(filters, GetFilter{PaymentIntentID: ev.PaymentIntentID})
	}

	for _, f := range filters {
		p, err := svc.repo.GetPayment(ctx, f)
		if err == nil {
			return p, nil
		}
		if !core.IsNotFound(err) {
			return Payment{}, err
		}
	}
	return Payment{}, ErrNotFound
}

func (svc *service) History(ctx context.Context, userID string) ([]Payment, error) {
	payments, _, err := svc.repo.QueryPayments(
		ctx,
		&QueryFilter{UserID: userID},
		[]core.DBOrdering{{Field: "created_at"}},
		nil,
	)
	return payments, errors.Wrap(err, "querying payment history")
}

func (svc *service) GetForUser(ctx context.Context, usr user.User, id string) (Payment, error) {
	p, err := svc.repo.GetPayment(ctx, GetFilter{ID: id})
	if err != nil {
		return Payment{}, err
	}
	if p.UserID != usr.ID && !usr.IsAdmin() {
		return Payment{}, ErrNotOwner
	}
	return p, nil
}

func (svc *service) RequestRefund(ctx context.Context, usr user.User, id string, data RefundRequest) (Payment, error) {
	data.Reason = core.CleanString(data.Reason)
	if err := svc.validate.Struct(data); err != nil {
		return Payment{}, err
	}

	p, err := svc.repo.GetPayment(ctx, GetFilter{ID: id})
	if err != nil {
		return Payment{}, err
	}
	if p.UserID != usr.ID {
		return Payment{}, ErrNotOwner
	}
	if !p.IsCompleted() {
		return Payment{}, ErrNotRefundable
	}

	// a refund landing after the read above leaves nothing to request
	p, recorded, err := svc.repo.RecordRefundRequest(ctx, p.ID, data.Reason, time.Now().UTC())
	if err != nil {
		return Payment{}, errors.Wrap(err, "recording refund request")
	}
	if !recorded {
		return Payment{}, ErrNotRefundable
	}

	svc.notify(ctx, p, "Refund Request Received", "refundRequestReceived", nil)
	return p, nil
}

func (svc *service) Refund(ctx context.Context, id string, data RefundRequest) (Payment, error) {
	data.Reason = core.CleanString(data.Reason)
	if err := svc.validate.Struct(data); err != nil {
		return Payment{}, err
	}

	p, err := svc.repo.GetPayment(ctx, GetFilter{ID: id})
	if err != nil {
		return Payment{}, err
	}
	if !p.IsCompleted() {
		return Payment{}, ErrNotRefundable
	}
	gw, ok := svc.gateways[p.Provider]
	if !ok {
		return Payment{}, ErrProviderDisabled
	}
	if err = gw.Refund(ctx, p, data.Reason); err != nil {
		return Payment{}, err
	}

	res, refunded, err := svc.refund(ctx, p, data.Reason)
	if err != nil {
		return Payment{}, err
	}
	if !refunded {
		// the provider webhook got there first
		return svc.repo.GetPayment(ctx, GetFilter{ID: id})
	}
	return res, nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]Payment, int, error) {
	if filter != nil {
		filter.Clean()
	}
	ordering = core.FilterOrderings(ordering, OrderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	return svc.repo.QueryPayments(ctx, filter, ordering, page)
}

func (svc *service) Earnings(ctx context.Context, instructorID string) (Earnings, error) {
	sales, err := svc.repo.InstructorSales(ctx, instructorID)
	if err != nil {
		return Earnings{}, errors.Wrap(err, "querying instructor sales")
	}
	return AggregateEarnings(sales, time.Now()), nil
}

func (svc *service) Revenue(ctx context.Context) (Revenue, error) {
	return svc.repo.Revenue(ctx)
}

// FormatAmount renders minor units as "12.50 USD".
func FormatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign, amount = "-", -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, strings.ToUpper(currency))
}
