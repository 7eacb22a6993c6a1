package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/dashboard"
	"github.com/skillsharp/lms/core/media"
	"github.com/skillsharp/lms/core/payment"
	"github.com/skillsharp/lms/core/user"
)

// Moderation actions
const (
	actionApprove = "approve"
	actionReject  = "reject"
)

type adminApi struct {
	svc        dashboard.Service
	usrSvc     user.Service
	courseSvc  course.Service
	paymentSvc payment.Service
	mediaSvc   media.Service
	validate   *validator.Validate
	logger     core.Logger
}

func registerAdminAPI(g *echo.Group, auth authMiddleware, opts *Options) {
	api := adminApi{
		svc:        opts.DashboardSvc,
		usrSvc:     opts.UserSvc,
		courseSvc:  opts.CourseSvc,
		paymentSvc: opts.PaymentSvc,
		mediaSvc:   opts.MediaSvc,
		validate:   opts.Validate,
		logger:     opts.Logger,
	}

	ag := g.Group("/admin", auth.required, adminMiddleware)
	ag.GET("/stats", api.stats)

	ag.GET("/users", api.queryUsers)
	ag.GET("/users/:id", api.retrieveUser)
	ag.PUT("/users/:id/role", api.setRole)
	ag.PUT("/users/:id/status", api.setStatus)
	ag.DELETE("/users/:id", api.destroyUser)

	ag.GET("/courses", api.queryCourses)
	ag.PATCH("/courses/:id/approve", api.moderateCourse)
	ag.DELETE("/courses/:id", api.destroyCourse)

	ag.GET("/payments", api.queryPayments)
	ag.POST("/payments/:id/refund", api.refund)
}

type (
	SetRoleRequest struct {
		Role string `json:"role" validate:"required,role"`
	}

	SetStatusRequest struct {
		IsActive *bool `json:"is_active" validate:"required"`
	}

	ModerateCourseRequest struct {
		Action string `json:"action" validate:"required,oneof=approve reject"`
		Reason string `json:"reason" validate:"max=1000"`
	}
)

func (api *adminApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing stats")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "stats": stats})
}

func (api *adminApi) queryUsers(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)
	page := bindPagination(ctx)

	users, total, err := api.usrSvc.Query(ctx.Request().Context(), bindUserFilter(ctx), ordering.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, pageResult("users", users, total, page))
}

func (api *adminApi) retrieveUser(ctx echo.Context) error {
	usr, err := api.usrSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "user": usr})
}

func (api *adminApi) setRole(ctx echo.Context) error {
	admin, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data SetRoleRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetRoleRequest")
	}
	data.Role = core.CleanString(data.Role, true /* lower */)
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	usr, err := api.svc.SetRole(ctx.Request().Context(), admin, ctx.Param("id"), data.Role)
	if err != nil {
		return errors.Wrap(err, "setting role")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "user": usr})
}

func (api *adminApi) setStatus(ctx echo.Context) error {
	admin, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data SetStatusRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetStatusRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	usr, err := api.svc.SetActive(ctx.Request().Context(), admin, ctx.Param("id"), *data.IsActive)
	if err != nil {
		return errors.Wrap(err, "setting status")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "user": usr})
}

func (api *adminApi) destroyUser(ctx echo.Context) error {
	admin, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	usr, err := api.usrSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	// the user's courses go with them
	courses, err := api.courseSvc.ListByInstructor(ctx.Request().Context(), usr.ID)
	if err != nil {
		return err
	}

	if err = api.svc.DeleteUser(ctx.Request().Context(), admin, usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	deleteObject(ctx, api.mediaSvc, api.logger, usr.AvatarKey)
	for _, c := range courses {
		deleteObject(ctx, api.mediaSvc, api.logger, c.ThumbnailKey)
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "User deleted"})
}

func (api *adminApi) queryCourses(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)
	page := bindPagination(ctx)

	courses, total, err := api.courseSvc.Query(ctx.Request().Context(), bindCourseFilter(ctx), ordering.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, pageResult("courses", courses, total, page))
}

func (api *adminApi) moderateCourse(ctx echo.Context) error {
	var data ModerateCourseRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ModerateCourseRequest")
	}
	data.Action = core.CleanString(data.Action, true /* lower */)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	var (
		c   course.Course
		err error
	)
	switch data.Action {
	case actionApprove:
		c, err = api.courseSvc.Approve(ctx.Request().Context(), ctx.Param("id"))
	case actionReject:
		c, err = api.courseSvc.Reject(ctx.Request().Context(), ctx.Param("id"), data.Reason)
	}
	if err != nil {
		return errors.Wrapf(err, "%s course", data.Action)
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "course": c})
}

func (api *adminApi) destroyCourse(ctx echo.Context) error {
	c, err := api.courseSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if err = api.courseSvc.Delete(ctx.Request().Context(), c.ID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	deleteObject(ctx, api.mediaSvc, api.logger, c.ThumbnailKey)
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Course deleted"})
}

func (api *adminApi) queryPayments(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)
	page := bindPagination(ctx)

	payments, total, err := api.paymentSvc.Query(ctx.Request().Context(), bindPaymentFilter(ctx), ordering.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	return ctx.JSON(http.StatusOK, pageResult("payments", payments, total, page))
}

func (api *adminApi) refund(ctx echo.Context) error {
	var data payment.RefundRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefundRequest")
	}

	p, err := api.paymentSvc.Refund(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "refunding payment")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "message": "Payment refunded", "payment": p})
}
