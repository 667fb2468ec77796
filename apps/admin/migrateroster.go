package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/core/roster"
	"github.com/trezcool/masomo-academy/core/user"
	"github.com/trezcool/masomo-academy/storage/database/mongodb"
)

func openMongoLegacy(ctx context.Context, uri, dbName string) (roster.LegacySource, func() error, error) {
	db, err := mongodb.ConnectURI(ctx, uri, dbName)
	if err != nil {
		return nil, nil, err
	}
	return mongodb.NewLegacySource(db), func() error { return db.Client().Disconnect(context.Background()) }, nil
}

// migrateRoster imports the legacy rosters, tagging learners with a completed payment as paid.
func (cli *commandLine) migrateRoster(uri, dbName string) error {
	ctx := context.Background()
	src, closeFunc, err := cli.openLegacy(ctx, uri, dbName)
	if err != nil {
		return errors.Wrap(err, "connecting to the legacy database")
	}
	defer func() { _ = closeFunc() }()

	report, err := roster.Migrate(ctx, src, cli.rosterRepo, roster.MigrateOptions{
		Paid: cli.paidLookup,
		Name: cli.nameLookup,
	})
	if err != nil {
		return err
	}

	cli.printf("courses:    %d\n", report.Courses)
	cli.printf("members:    %d\n", report.Members)
	cli.printf("duplicates: %d\n", report.Duplicates)
	cli.printf("skipped:    %d\n", report.Skipped)
	cli.printf("inserted:   %d\n", report.Inserted)
	return nil
}

// paidLookup finds the earliest completed payment of the learner covering the course.
func (cli *commandLine) paidLookup(ctx context.Context, courseID, learnerID string) (string, time.Time, bool, error) {
	entries, err := cli.ledgerRepo.QueryEntries(ctx, ledger.QueryFilter{
		States:    []ledger.State{ledger.StateCompleted},
		ItemIDs:   []string{courseID},
		LearnerID: learnerID,
	})
	if err != nil {
		return "", time.Time{}, false, err
	}

	var (
		found     bool
		sessionID string
		paidAt    time.Time
	)
	for _, e := range entries {
		at := e.CreatedAt
		if e.CompletedAt != nil {
			at = *e.CompletedAt
		}
		if !found || at.Before(paidAt) {
			found, sessionID, paidAt = true, e.SessionID, at
		}
	}
	return sessionID, paidAt, found, nil
}

// nameLookup leaves the name empty for learners that no longer exist.
func (cli *commandLine) nameLookup(ctx context.Context, learnerID string) (string, error) {
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{ID: learnerID})
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return "", nil
		}
		return "", err
	}
	return usr.Name, nil
}
