package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/chat"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/dashboard"
	"github.com/skillsharp/lms/core/discussion"
	"github.com/skillsharp/lms/core/enrollment"
	"github.com/skillsharp/lms/core/media"
	"github.com/skillsharp/lms/core/payment"
	"github.com/skillsharp/lms/core/quiz"
	"github.com/skillsharp/lms/core/user"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool
		// MediaRoot is served under /media when uploads are kept on disk.
		MediaRoot string

		UserSvc       user.Service
		CourseSvc     course.Service
		EnrollSvc     enrollment.Service
		PaymentSvc    payment.Service
		QuizSvc       quiz.Service
		DiscussionSvc discussion.Service
		MediaSvc      media.Service
		ChatSvc       chat.Service
		DashboardSvc  dashboard.Service
	}

	Server struct {
		opts     *Options
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(opts *Options) *Server {
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	if conf.Server.BodyLimit != "" {
		s.app.Use(middleware.BodyLimit(conf.Server.BodyLimit))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	if s.opts.MediaRoot != "" {
		s.app.Static("/media", s.opts.MediaRoot)
	}

	g := s.app.Group("/api")
	auth := newAuthMiddleware(conf, s.opts.UserSvc)

	registerUserAPI(g, auth, s.opts)
	registerCourseAPI(g, auth, s.opts)
	registerEnrollmentAPI(g, auth, s.opts)
	registerPaymentAPI(g, auth, s.opts)
	registerWebhookAPI(g, s.opts)
	registerQuizAPI(g, auth, s.opts)
	registerDiscussionAPI(g, auth, s.opts)
	registerUploadAPI(g, auth, s.opts)
	registerChatAPI(g, auth, s.opts)
	registerAdminAPI(g, auth, s.opts)
}

// Start listens on the configured address. Listener failures are reported on Errors.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)

	s.opts.Logger.Info("API listening on " + s.opts.Conf.Server.Address)
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the process to stop gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}
