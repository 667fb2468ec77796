package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	dig_container "github.com/trezcool/masomo-academy/apps/api/di/dig"
	echoapi "github.com/trezcool/masomo-academy/apps/api/echo"
	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/user"
	logsvc "github.com/trezcool/masomo-academy/services/logger"
	"github.com/trezcool/masomo-academy/storage"
)

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		repos *storage.Repositories,
		closeNotifier dig_container.NotifierCloser,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.ParseEmailTemplates(conf, apiLogger)

		user.LoadCommonPasswords(apiLogger)

		if rl, ok := apiLogger.(*logsvc.RollbarLogger); ok {
			defer rl.Close()
		}
		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := repos.Close(); err != nil {
				dbLogger.Error("failed to close the database", err)
			}
		}()
		defer func() {
			if err := closeNotifier(); err != nil {
				apiLogger.Error("failed to close the notifier", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Error(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
