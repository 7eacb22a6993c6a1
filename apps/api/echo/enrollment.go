package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/enrollment"
	"github.com/skillsharp/lms/core/user"
)

type enrollmentApi struct {
	svc enrollment.Service
}

func registerEnrollmentAPI(g *echo.Group, auth authMiddleware, opts *Options) {
	api := enrollmentApi{svc: opts.EnrollSvc}

	g.POST("/courses/:id/enroll", api.enroll, auth.required)

	eg := g.Group("/enrollments", auth.required)
	eg.GET("/my", api.mine)
	eg.GET("/:courseId", api.retrieve)
	eg.POST("/:courseId/lectures/:lectureId/complete", api.completeLecture)
	eg.PUT("/:courseId/progress", api.setProgress)
	eg.POST("/:courseId/rate", api.rate)
}

func (api *enrollmentApi) enroll(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	e, created, err := api.svc.Enroll(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	if !created {
		return ctx.JSON(http.StatusOK, echo.Map{"success": true, "message": "Already enrolled", "enrollment": e})
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"success": true, "message": "Enrolled successfully", "enrollment": e})
}

func (api *enrollmentApi) mine(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	enrollments, err := api.svc.ListMine(ctx.Request().Context(), usr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "enrollments": enrollments})
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	e, err := api.svc.Get(ctx.Request().Context(), usr.ID, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "getting enrollment")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "enrollment": e})
}

func (api *enrollmentApi) completeLecture(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	e, err := api.svc.CompleteLecture(ctx.Request().Context(), usr.ID, ctx.Param("courseId"), ctx.Param("lectureId"))
	if err != nil {
		return errors.Wrap(err, "completing lecture")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "enrollment": e})
}

func (api *enrollmentApi) setProgress(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data enrollment.SetProgress
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetProgress")
	}

	e, err := api.svc.SetProgress(ctx.Request().Context(), usr.ID, ctx.Param("courseId"), data)
	if err != nil {
		return errors.Wrap(err, "setting progress")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "enrollment": e})
}

func (api *enrollmentApi) rate(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data enrollment.Rate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Rate")
	}

	e, err := api.svc.Rate(ctx.Request().Context(), usr.ID, ctx.Param("courseId"), data)
	if err != nil {
		return errors.Wrap(err, "rating course")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "message": "Thanks for rating this course", "enrollment": e})
}

// courseMember loads a course for a user taking part in it: an active student, its owner or an admin.
func courseMember(ctx echo.Context, courseSvc course.Service, enrollSvc enrollment.Service, courseID string) (course.Course, user.User, error) {
	usr, err := getContextUser(ctx)
	if err != nil {
		return course.Course{}, user.User{}, err
	}
	c, err := courseSvc.GetByID(ctx.Request().Context(), courseID)
	if err != nil {
		return course.Course{}, user.User{}, err
	}
	if c.CanManage(usr) {
		return c, usr, nil
	}
	enrolled, err := enrollSvc.IsEnrolled(ctx.Request().Context(), usr.ID, c.ID)
	if err != nil {
		return course.Course{}, user.User{}, errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return course.Course{}, user.User{}, enrollment.ErrNotEnrolled
	}
	return c, usr, nil
}
