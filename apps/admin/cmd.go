package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"golang.org/x/term"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/enrollment"
	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/core/roster"
	"github.com/trezcool/masomo-academy/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

// legacyOpener connects to the store holding the historical rosters.
type legacyOpener func(ctx context.Context, uri, dbName string) (roster.LegacySource, func() error, error)

type commandLine struct {
	conf          *core.Config
	sqlDB         *sql.DB         // postgres only
	mongoDB       *mongo.Database // mongodb only
	usrRepo       user.Repository
	ledgerRepo    ledger.Repository
	rosterRepo    roster.Repository
	enrollmentSvc enrollment.ServiceInterface
	openLegacy    legacyOpener
	out           io.Writer
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format, args...)
}

func (cli *commandLine) printUsage() {
	cli.printf("Usage:\n")
	cli.printf("  migrate COMMAND [ARGS]                                  - run the database migrations (goose commands)\n")
	cli.printf("  adduser -name NAME -username USERNAME -email EMAIL [-roles ROLE,ROLE] - create or update an active user\n")
	cli.printf("  resetpassword -username USERNAME|EMAIL                  - reset user's password\n")
	cli.printf("  reconcile [-since 72h]                                  - replay the payment sessions of the period\n")
	cli.printf("  migrateroster [-uri MONGO_URI] [-db NAME]               - import the legacy course rosters\n")
}

// promptPassword reads a password without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	cli.printf("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	cli.printf("\n")
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserCmd.SetOutput(cli.out)
	addUserName := addUserCmd.String("name", "", "The user's display name.")
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRoles := addUserCmd.String("roles", "", "Comma separated roles, e.g. admin:,teacher:")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordCmd.SetOutput(cli.out)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	reconcileCmd := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	reconcileCmd.SetOutput(cli.out)
	reconcileSince := reconcileCmd.Duration("since", 72*time.Hour, "How far back payment sessions are replayed.")

	migrateRosterCmd := flag.NewFlagSet("migrateroster", flag.ContinueOnError)
	migrateRosterCmd.SetOutput(cli.out)
	migrateRosterURI := migrateRosterCmd.String("uri", cli.conf.Database.MongoURI, "The legacy MongoDB URI.")
	migrateRosterDB := migrateRosterCmd.String("db", cli.conf.Database.Name, "The legacy database name.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, splitRoles(*addUserRoles))

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "reconcile":
		if err := reconcileCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *reconcileSince <= 0 {
			reconcileCmd.Usage()
			return errHelp
		}
		return cli.reconcile(*reconcileSince)

	case "migrateroster":
		if err := migrateRosterCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *migrateRosterURI == "" {
			migrateRosterCmd.Usage()
			return errHelp
		}
		return cli.migrateRoster(*migrateRosterURI, *migrateRosterDB)

	default:
		cli.printUsage()
		return errHelp
	}
}

func splitRoles(s string) []string {
	var roles []string
	for _, role := range strings.Split(s, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
