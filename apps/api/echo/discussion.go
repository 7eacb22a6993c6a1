package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/discussion"
	"github.com/skillsharp/lms/core/enrollment"
)

type discussionApi struct {
	svc       discussion.Service
	courseSvc course.Service
	enrollSvc enrollment.Service
}

func registerDiscussionAPI(g *echo.Group, auth authMiddleware, opts *Options) {
	api := discussionApi{svc: opts.DiscussionSvc, courseSvc: opts.CourseSvc, enrollSvc: opts.EnrollSvc}

	g.POST("/courses/:id/discussions", api.create, auth.required)
	g.GET("/courses/:id/discussions", api.list, auth.required)

	dg := g.Group("/discussions", auth.required)
	dg.POST("/:id/replies", api.reply)
	dg.DELETE("/:id", api.destroy)
}

func (api *discussionApi) create(ctx echo.Context) error {
	c, usr, err := courseMember(ctx, api.courseSvc, api.enrollSvc, ctx.Param("id"))
	if err != nil {
		return err
	}
	var data discussion.NewDiscussion
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDiscussion")
	}

	d, err := api.svc.Create(ctx.Request().Context(), usr, c.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating discussion")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"success": true, "discussion": d})
}

func (api *discussionApi) list(ctx echo.Context) error {
	c, _, err := courseMember(ctx, api.courseSvc, api.enrollSvc, ctx.Param("id"))
	if err != nil {
		return err
	}
	page := bindPagination(ctx)

	discussions, total, err := api.svc.List(ctx.Request().Context(), c.ID, page)
	if err != nil {
		return errors.Wrap(err, "listing discussions")
	}
	return ctx.JSON(http.StatusOK, pageResult("discussions", discussions, total, page))
}

func (api *discussionApi) reply(ctx echo.Context) error {
	d, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	_, usr, err := courseMember(ctx, api.courseSvc, api.enrollSvc, d.CourseID)
	if err != nil {
		return err
	}
	var data discussion.NewReply
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReply")
	}

	d, err = api.svc.Reply(ctx.Request().Context(), usr, d, data)
	if err != nil {
		return errors.Wrap(err, "replying to discussion")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"success": true, "discussion": d})
}

func (api *discussionApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	c, err := api.courseSvc.GetByID(ctx.Request().Context(), d.CourseID)
	if err != nil {
		return err
	}

	if err = api.svc.Delete(ctx.Request().Context(), usr, d, c); err != nil {
		return errors.Wrap(err, "deleting discussion")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Discussion deleted"})
}
