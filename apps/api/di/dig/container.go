package dig_container

import (
	"context"
	"fmt"
	"log"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/skillsharp/lms/apps/api/echo"
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
	bussvc "github.com/skillsharp/lms/services/bus"
	emailsvc "github.com/skillsharp/lms/services/email"
	logsvc "github.com/skillsharp/lms/services/logger"
	paymentsvc "github.com/skillsharp/lms/services/payment"
	storagesvc "github.com/skillsharp/lms/services/storage"
	"github.com/skillsharp/lms/storage/database"
	inmemdb "github.com/skillsharp/lms/storage/database/inmem"
	pgrepos "github.com/skillsharp/lms/storage/database/postgres"
)

// EngineInMem keeps everything in process memory, for demos and local work without postgres.
const EngineInMem = "inmem"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Repositories are provided together since they share one backend.
	Repositories struct {
		dig.Out
		DB          *sqlx.DB // nil in memory
		Transactor  core.Transactor
		Users       user.Repository
		Courses     course.Repository
		Enrollments enrollment.Repository
		Payments    payment.Repository
		Quizzes     quiz.Repository
		Discussions discussion.Repository
	}

	ServerParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Storage    media.Storage

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
)

func newLogger(conf *core.Config) (core.Logger, error) {
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		return nil, err
	}
	return logsvc.NewRollbarLogger(zl.Named("api"), conf), nil
}

func newDBLogger(conf *core.Config) (core.Logger, error) {
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		return nil, err
	}
	return logsvc.NewRollbarLogger(zl.Named("db"), conf), nil
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) (Repositories, error) {
	if strings.EqualFold(conf.Database.Engine, EngineInMem) {
		loggerParam.Logger.Warn("using the in-memory database, data is lost on restart")
		db := inmemdb.NewDB()
		return Repositories{
			Transactor:  inmemdb.NewTransactor(db),
			Users:       inmemdb.NewUserRepository(db),
			Courses:     inmemdb.NewCourseRepository(db),
			Enrollments: inmemdb.NewEnrollmentRepository(db),
			Payments:    inmemdb.NewPaymentRepository(db),
			Quizzes:     inmemdb.NewQuizRepository(db),
			Discussions: inmemdb.NewDiscussionRepository(db),
		}, nil
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		return Repositories{}, errors.Wrap(err, "setting up database")
	}
	loggerParam.Logger.Info("database ready", "host", conf.Database.Address(), "name", conf.Database.Name)
	return Repositories{
		DB:          db,
		Transactor:  database.NewTransactor(db),
		Users:       pgrepos.NewUserRepository(db),
		Courses:     pgrepos.NewCourseRepository(db),
		Enrollments: pgrepos.NewEnrollmentRepository(db),
		Payments:    pgrepos.NewPaymentRepository(db),
		Quizzes:     pgrepos.NewQuizRepository(db),
		Discussions: pgrepos.NewDiscussionRepository(db),
	}, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator(logger core.Logger) (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()

	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	payment.InitValidators(validate, translator)
	quiz.InitValidators(validate, translator)

	user.LoadCommonPasswords(logger)
	return validate, translator
}

// newGateways enables every provider that has credentials.
func newGateways(conf *core.Config, logger core.Logger) (payment.Gateways, error) {
	var gws []payment.Gateway
	if conf.Payment.StripeSecretKey != "" {
		gw, err := paymentsvc.NewStripeGateway(conf)
		if err != nil {
			return nil, err
		}
		gws = append(gws, gw)
	}
	if conf.Payment.RazorpayKeyID != "" {
		gw, err := paymentsvc.NewRazorpayGateway(conf)
		if err != nil {
			return nil, err
		}
		gws = append(gws, gw)
	}
	if len(gws) == 0 {
		logger.Warn("no payment provider configured, paid courses cannot be bought")
	}
	return payment.NewGateways(gws...), nil
}

func newStorage(conf *core.Config) (media.Storage, error) {
	switch conf.Storage.Backend {
	case "gcs":
		return storagesvc.NewGCSStorage(context.Background(), conf)
	case "", "disk":
		return storagesvc.NewDiskStorage(conf)
	default:
		return nil, errors.Errorf("unknown storage backend %q", conf.Storage.Backend)
	}
}

// newBus relays chat through redis when configured so that every instance sees every message.
func newBus(conf *core.Config, logger core.Logger) (chat.Bus, error) {
	if conf.Redis.Addr == "" {
		return chat.NewLocalBus(), nil
	}
	return bussvc.NewRedisBus(context.Background(), conf, logger)
}

func newServerOptions(p ServerParams) *echoapi.Options {
	opts := &echoapi.Options{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		CourseSvc:     p.CourseSvc,
		EnrollSvc:     p.EnrollSvc,
		PaymentSvc:    p.PaymentSvc,
		QuizSvc:       p.QuizSvc,
		DiscussionSvc: p.DiscussionSvc,
		MediaSvc:      p.MediaSvc,
		ChatSvc:       p.ChatSvc,
		DashboardSvc:  p.DashboardSvc,
	}
	if disk, ok := p.Storage.(interface{ Root() string }); ok {
		opts.MediaRoot = disk.Root()
	}
	return opts
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(newValidator))
	must(c.Provide(newGateways))
	must(c.Provide(newStorage))
	must(c.Provide(newBus))
	must(c.Provide(chat.NewHub))

	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(enrollment.NewService))
	must(c.Provide(payment.NewService))
	must(c.Provide(quiz.NewService))
	must(c.Provide(discussion.NewService))
	must(c.Provide(media.NewService))
	must(c.Provide(chat.NewService))
	must(c.Provide(dashboard.NewService))

	must(c.Provide(newServerOptions))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}

// Describe renders the dependency graph in DOT format.
func Describe(c *dig.Container) string {
	var b strings.Builder
	if err := dig.Visualize(c, &b); err != nil {
		return fmt.Sprintf("visualizing container: %v", err)
	}
	return b.String()
}
