package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/chat"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/enrollment"
)

type chatApi struct {
	svc       chat.Service
	courseSvc course.Service
	enrollSvc enrollment.Service
	logger    core.Logger
	heartbeat time.Duration
}

func registerChatAPI(g *echo.Group, auth authMiddleware, opts *Options) {
	api := chatApi{
		svc:       opts.ChatSvc,
		courseSvc: opts.CourseSvc,
		enrollSvc: opts.EnrollSvc,
		logger:    opts.Logger,
		heartbeat: chat.HeartbeatInterval,
	}

	cg := g.Group("/chat/courses/:id")
	cg.GET("/stream", api.stream, auth.query)
	cg.POST("/messages", api.post, auth.required)
}

func (api *chatApi) post(ctx echo.Context) error {
	c, usr, err := courseMember(ctx, api.courseSvc, api.enrollSvc, ctx.Param("id"))
	if err != nil {
		return err
	}
	var data chat.NewMessage
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}

	msg, err := api.svc.Post(ctx.Request().Context(), usr, c.ID, data)
	if err != nil {
		return errors.Wrap(err, "posting chat message")
	}
	return ctx.JSON(http.StatusAccepted, echo.Map{"success": true, "data": msg})
}

// stream relays the room's messages as server-sent events until the client goes away.
func (api *chatApi) stream(ctx echo.Context) error {
	c, usr, err := courseMember(ctx, api.courseSvc, api.enrollSvc, ctx.Param("id"))
	if err != nil {
		return err
	}

	sub := api.svc.Subscribe(c.ID, usr.ID)
	defer api.svc.Unsubscribe(sub)

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	// tells the client the subscription is live
	if _, err = fmt.Fprint(res, ": connected\n\n"); err != nil {
		return nil
	}
	res.Flush()

	ticker := time.NewTicker(api.heartbeat)
	defer ticker.Stop()

	done := ctx.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case <-ticker.C:
			if _, err = fmt.Fprint(res, ": heartbeat\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case msg := <-sub.Outbound:
			data, err := json.Marshal(msg)
			if err != nil {
				api.logger.Error("encoding chat message", err, usr)
				continue
			}
			if _, err = fmt.Fprintf(res, "id: %s\nevent: message\ndata: %s\n\n", msg.ID, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
