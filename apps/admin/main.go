package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/course"
	"github.com/trezcool/masomo-academy/core/enrollment"
	"github.com/trezcool/masomo-academy/core/payment"
	"github.com/trezcool/masomo-academy/core/user"
	emailsvc "github.com/trezcool/masomo-academy/services/email"
	logsvc "github.com/trezcool/masomo-academy/services/logger"
	notificationsvc "github.com/trezcool/masomo-academy/services/notification"
	paymentsvc "github.com/trezcool/masomo-academy/services/payment"
	"github.com/trezcool/masomo-academy/storage"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	rollbarLogger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger = rollbarLogger

	// set up DB
	repos, err := storage.Open(context.Background(), conf, logger)
	errAndDie(err)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(conf, logger)
	notifier, closeNotifier, err := notificationsvc.NewNotifier(conf, mailSvc, logger)
	errAndDie(err)
	var processor payment.Processor = paymentsvc.NewDummyProcessor(conf)
	if conf.Payment.Provider == "stripe" {
		processor = paymentsvc.NewStripeProcessor(conf)
	}

	// start CLI
	cli := commandLine{
		conf:       conf,
		mongoDB:    repos.Mongo,
		usrRepo:    repos.Users,
		ledgerRepo: repos.Ledger,
		rosterRepo: repos.Rosters,
		enrollmentSvc: enrollment.NewServiceFromConfig(conf, enrollment.Deps{
			Ledger:    repos.Ledger,
			Roster:    repos.Rosters,
			Catalog:   course.NewService(repos.Items),
			Identity:  user.NewService(repos.Users),
			Processor: processor,
			Notifier:  notifier,
			Logger:    logger,
		}),
		openLegacy: openMongoLegacy,
		out:        os.Stdout,
	}
	if repos.SQL != nil {
		cli.sqlDB = repos.SQL.DB
	}

	err = cli.run(os.Args)
	_ = closeNotifier()
	_ = repos.Close()
	rollbarLogger.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
