package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/enrollment"
	"github.com/skillsharp/lms/core/quiz"
)

type quizApi struct {
	svc       quiz.Service
	courseSvc course.Service
	enrollSvc enrollment.Service
}

func registerQuizAPI(g *echo.Group, auth authMiddleware, opts *Options) {
	api := quizApi{svc: opts.QuizSvc, courseSvc: opts.CourseSvc, enrollSvc: opts.EnrollSvc}

	g.POST("/courses/:id/quizzes", api.create, auth.required)
	g.GET("/courses/:id/quizzes", api.list, auth.required)

	qg := g.Group("/quizzes", auth.required)
	qg.DELETE("/:id", api.destroy)
	qg.POST("/:id/submit", api.submit)
}

func (api *quizApi) create(ctx echo.Context) error {
	c, err := managedCourse(ctx, api.courseSvc, "id")
	if err != nil {
		return err
	}
	var data quiz.NewQuiz
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuiz")
	}

	q, err := api.svc.Create(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "creating quiz")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"success": true, "quiz": q})
}

// list shows the answers to the course managers only.
func (api *quizApi) list(ctx echo.Context) error {
	c, usr, err := courseMember(ctx, api.courseSvc, api.enrollSvc, ctx.Param("id"))
	if err != nil {
		return err
	}
	quizzes, err := api.svc.ListForCourse(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "listing quizzes")
	}

	if c.CanManage(usr) {
		return ctx.JSON(http.StatusOK, echo.Map{"success": true, "quizzes": quizzes})
	}
	public := make([]quiz.PublicQuiz, 0, len(quizzes))
	for _, q := range quizzes {
		public = append(public, q.Public())
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "quizzes": public})
}

func (api *quizApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	q, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if _, err = api.courseSvc.GetManaged(ctx.Request().Context(), q.CourseID, usr); err != nil {
		return err
	}

	if err = api.svc.Delete(ctx.Request().Context(), q.ID); err != nil {
		return errors.Wrap(err, "deleting quiz")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Quiz deleted"})
}

func (api *quizApi) submit(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	q, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	var data quiz.Submission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Submission")
	}

	res, err := api.svc.Submit(ctx.Request().Context(), usr, q, data)
	if err != nil {
		return errors.Wrap(err, "submitting quiz")
	}
	return ctx.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		quiz.Result
	}{true, res})
}
