package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/media"
)

type courseApi struct {
	svc      course.Service
	mediaSvc media.Service
	logger   core.Logger
}

func registerCourseAPI(g *echo.Group, auth authMiddleware, opts *Options) {
	api := courseApi{svc: opts.CourseSvc, mediaSvc: opts.MediaSvc, logger: opts.Logger}

	cg := g.Group("/courses")
	cg.GET("", api.query)
	cg.GET("/featured", api.featured)
	cg.GET("/instructor/my-courses", api.myCourses, auth.required, instructorMiddleware)
	cg.GET("/:id", api.retrieve, auth.optional)
	cg.POST("", api.create, auth.required, instructorMiddleware)
	cg.PUT("/:id", api.update, auth.required)
	cg.PATCH("/:id/publish", api.togglePublish, auth.required)
	cg.DELETE("/:id", api.destroy, auth.required)
}

// managedCourse loads the :id course for its owner or an admin.
func managedCourse(ctx echo.Context, svc course.Service, param string) (course.Course, error) {
	usr, err := getContextUser(ctx)
	if err != nil {
		return course.Course{}, err
	}
	return svc.GetManaged(ctx.Request().Context(), ctx.Param(param), usr)
}

// deleteObject removes a replaced or orphaned upload. Failures only leave garbage behind.
func deleteObject(ctx echo.Context, svc media.Service, logger core.Logger, key string) {
	if key == "" {
		return
	}
	if err := svc.Delete(ctx.Request().Context(), key); err != nil {
		logger.Warn("deleting object "+key, err, contextUser(ctx))
	}
}

func (api *courseApi) query(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)
	page := bindPagination(ctx)

	courses, total, err := api.svc.QueryPublished(ctx.Request().Context(), bindCourseFilter(ctx), ordering.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, pageResult("courses", courses, total, page))
}

func (api *courseApi) featured(ctx echo.Context) error {
	courses, err := api.svc.Featured(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "courses": courses})
}

func (api *courseApi) myCourses(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	courses, err := api.svc.ListByInstructor(ctx.Request().Context(), usr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "courses": courses})
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.GetVisible(ctx.Request().Context(), ctx.Param("id"), getOptionalUser(ctx))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "course": c})
}

func (api *courseApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data course.NewCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}

	c, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"success": true, "course": c})
}

func (api *courseApi) update(ctx echo.Context) error {
	c, err := managedCourse(ctx, api.svc, "id")
	if err != nil {
		return err
	}
	var data course.UpdateCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}

	c, err = api.svc.Update(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "course": c})
}

func (api *courseApi) togglePublish(ctx echo.Context) error {
	c, err := managedCourse(ctx, api.svc, "id")
	if err != nil {
		return err
	}
	c, err = api.svc.TogglePublish(ctx.Request().Context(), c)
	if err != nil {
		return errors.Wrap(err, "toggling publication")
	}

	msg := "Course unpublished"
	if c.IsPublished {
		msg = "Course published"
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "message": msg, "course": c})
}

func (api *courseApi) destroy(ctx echo.Context) error {
	c, err := managedCourse(ctx, api.svc, "id")
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), c.ID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	deleteObject(ctx, api.mediaSvc, api.logger, c.ThumbnailKey)
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Course deleted"})
}
