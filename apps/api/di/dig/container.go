package dig_container

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/masomo-academy/apps/api/echo"
	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/course"
	"github.com/trezcool/masomo-academy/core/enrollment"
	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/core/payment"
	"github.com/trezcool/masomo-academy/core/revenue"
	"github.com/trezcool/masomo-academy/core/roster"
	"github.com/trezcool/masomo-academy/core/user"
	emailsvc "github.com/trezcool/masomo-academy/services/email"
	logsvc "github.com/trezcool/masomo-academy/services/logger"
	notificationsvc "github.com/trezcool/masomo-academy/services/notification"
	paymentsvc "github.com/trezcool/masomo-academy/services/payment"
	"github.com/trezcool/masomo-academy/storage"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Repos splits the storage into the repositories consumed by the services.
	Repos struct {
		dig.Out
		Users   user.Repository
		Items   course.Repository
		Ledger  ledger.Repository
		Rosters roster.Repository
	}

	// NotifierCloser releases the notification backend.
	NotifierCloser func() error

	EnrollmentParams struct {
		dig.In
		Conf      *core.Config
		Logger    core.Logger
		Ledger    ledger.Repository
		Rosters   roster.Repository
		Catalog   course.ServiceInterface
		Identity  user.ServiceInterface
		Processor payment.Processor
		Notifier  enrollment.Notifier
	}

	ServerParams struct {
		dig.In
		Conf          *core.Config
		Logger        core.Logger
		UserSvc       user.ServiceInterface
		CatalogSvc    course.ServiceInterface
		EnrollmentSvc enrollment.ServiceInterface
		Revenue       revenue.AggregatorInterface
		Validate      *validator.Validate
		Translator    ut.Translator
	}
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) (*storage.Repositories, error) {
	repos, err := storage.Open(context.Background(), conf, loggerParam.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "setting up database")
	}
	return repos, nil
}

func newRepos(s *storage.Repositories) Repos {
	return Repos{
		Users:   s.Users,
		Items:   s.Items,
		Ledger:  s.Ledger,
		Rosters: s.Rosters,
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newProcessor(conf *core.Config, logger core.Logger) (payment.Processor, error) {
	switch conf.Payment.Provider {
	case "stripe":
		return paymentsvc.NewStripeProcessor(conf), nil
	case "", "dummy":
		if !conf.Debug {
			logger.Warn("using the dummy payment processor outside of debug mode")
		}
		return paymentsvc.NewDummyProcessor(conf), nil
	}
	return nil, errors.Errorf("unknown payment provider %q", conf.Payment.Provider)
}

func newNotifier(conf *core.Config, mailSvc core.EmailService, logger core.Logger) (enrollment.Notifier, NotifierCloser, error) {
	n, closeFunc, err := notificationsvc.NewNotifier(conf, mailSvc, logger)
	return n, closeFunc, err
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newEnrollmentService(p EnrollmentParams) enrollment.ServiceInterface {
	return enrollment.NewServiceFromConfig(p.Conf, enrollment.Deps{
		Ledger:    p.Ledger,
		Roster:    p.Rosters,
		Catalog:   p.Catalog,
		Identity:  p.Identity,
		Processor: p.Processor,
		Notifier:  p.Notifier,
		Logger:    p.Logger,
	})
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		UserSvc:       p.UserSvc,
		CatalogSvc:    p.CatalogSvc,
		EnrollmentSvc: p.EnrollmentSvc,
		Revenue:       p.Revenue,
		Validate:      p.Validate,
		Translator:    p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newRepos))
	must(c.Provide(newEmailService))
	must(c.Provide(newProcessor))
	must(c.Provide(newNotifier))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService, dig.As(new(user.ServiceInterface))))
	must(c.Provide(course.NewService, dig.As(new(course.ServiceInterface))))
	must(c.Provide(newEnrollmentService))
	must(c.Provide(revenue.NewAggregator, dig.As(new(revenue.AggregatorInterface))))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
