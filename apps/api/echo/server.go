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

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/course"
	"github.com/trezcool/masomo-academy/core/enrollment"
	"github.com/trezcool/masomo-academy/core/revenue"
	"github.com/trezcool/masomo-academy/core/user"
)

type (
	ServerDeps struct {
		Conf          *core.Config
		Logger        core.Logger
		UserSvc       user.ServiceInterface
		CatalogSvc    course.ServiceInterface
		EnrollmentSvc enrollment.ServiceInterface
		Revenue       revenue.AggregatorInterface
		Validate      *validator.Validate
		Translator    ut.Translator
	}

	Server struct {
		app      *echo.Echo
		deps     ServerDeps
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		app:      echo.New(),
		deps:     deps,
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", home)

	api := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(jwtConfig(conf))

	registerUserAPI(api, jwt, conf, s.deps.UserSvc, s.deps.Validate)
	registerCatalogAPI(api, jwt, s.deps.CatalogSvc, s.deps.Validate)
	registerCheckoutAPI(api, jwt, s.deps.EnrollmentSvc, s.deps.Validate)
	registerEnrollmentAPI(api, jwt, s.deps.EnrollmentSvc)
	registerRevenueAPI(api, jwt, s.deps.Revenue)
}

// Start blocks until the server stops; startup and listen errors are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Masomo Academy API!")
}
