package roster_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-academy/core/roster"
	"github.com/trezcool/masomo-academy/storage/database/inmem"
)

type staticSource []roster.LegacyRoster

func (src staticSource) LegacyRosters(context.Context) ([]roster.LegacyRoster, error) {
	return src, nil
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewRosterRepository(inmemdb.Open())

	created := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	early := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	paidAt := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)

	src := staticSource{
		{
			CourseID:  "c1",
			CreatedAt: created,
			Members: []roster.LegacyMember{
				{LearnerID: "bare"}, // bare reference
				{LearnerID: "rich", Name: "Rich", EnrolledAt: late}, // enrollment record
				{LearnerID: "rich", EnrolledAt: early},              // duplicate of an older schema
				{LearnerID: "payer"},                                // paid, bare reference
				{LearnerID: ""},                                     // unusable
			},
		},
		{CourseID: "c2"},
	}
	opts := roster.MigrateOptions{
		Paid: func(_ context.Context, courseID, learnerID string) (string, time.Time, bool, error) {
			if courseID == "c1" && learnerID == "payer" {
				return "cs_1", paidAt, true, nil
			}
			return "", time.Time{}, false, nil
		},
		Name: func(_ context.Context, learnerID string) (string, error) {
			return "Name of " + learnerID, nil
		},
	}

	report, err := roster.Migrate(ctx, src, repo, opts)
	require.NoError(t, err)
	assert.Equal(t, roster.MigrationReport{Courses: 2, Members: 5, Duplicates: 1, Skipped: 1, Inserted: 3}, report)

	bare, err := repo.GetEntry(ctx, "c1", "bare")
	require.NoError(t, err)
	assert.Equal(t, roster.Entry{CourseID: "c1", LearnerID: "bare", LearnerName: "Name of bare", EnrolledAt: created, Origin: roster.OriginLegacy}, bare)

	rich, err := repo.GetEntry(ctx, "c1", "rich")
	require.NoError(t, err)
	assert.Equal(t, "Rich", rich.LearnerName)
	assert.Equal(t, early, rich.EnrolledAt, "earliest enrollment is kept")

	payer, err := repo.GetEntry(ctx, "c1", "payer")
	require.NoError(t, err)
	assert.Equal(t, roster.OriginPaid, payer.Origin)
	assert.Equal(t, "cs_1", payer.SessionID)
	assert.Equal(t, paidAt, payer.EnrolledAt)

	// running it again changes nothing
	report, err = roster.Migrate(ctx, src, repo, opts)
	require.NoError(t, err)
	assert.Zero(t, report.Inserted)
}

func TestMigrate_keepsExistingEntries(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewRosterRepository(inmemdb.Open())
	_, err := repo.AddEntries(ctx, roster.Entry{CourseID: "c1", LearnerID: "l1", LearnerName: "Paid", Origin: roster.OriginPaid, SessionID: "cs_1"})
	require.NoError(t, err)

	src := staticSource{{CourseID: "c1", Members: []roster.LegacyMember{{LearnerID: "l1", Name: "Legacy"}}}}
	report, err := roster.Migrate(ctx, src, repo, roster.MigrateOptions{})
	require.NoError(t, err)
	assert.Zero(t, report.Inserted)

	e, err := repo.GetEntry(ctx, "c1", "l1")
	require.NoError(t, err)
	assert.Equal(t, roster.OriginPaid, e.Origin)
	assert.Equal(t, "Paid", e.LearnerName)
}

func TestMigrate_lookupError(t *testing.T) {
	repo := inmemdb.NewRosterRepository(inmemdb.Open())
	src := staticSource{{CourseID: "c1", Members: []roster.LegacyMember{{LearnerID: "l1"}}}}
	_, err := roster.Migrate(context.Background(), src, repo, roster.MigrateOptions{
		Paid: func(context.Context, string, string) (string, time.Time, bool, error) {
			return "", time.Time{}, false, errors.New("ledger down")
		},
	})
	assert.Error(t, err)
}
