package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/trezcool/masomo-academy/core/course"
	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/core/roster"
	"github.com/trezcool/masomo-academy/core/user"
	"github.com/trezcool/masomo-academy/tests"
)

// openTestDB connects to TEST_MONGO_URI and returns a fresh, migrated database.
func openTestDB(t *testing.T) *mongo.Database {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	db, err := ConnectURI(ctx, uri, "masomo_test_"+uuid.New().String()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Drop(ctx)
		_ = db.Client().Disconnect(ctx)
	})
	require.NoError(t, Migrate(ctx, db))
	return db
}

func Test_userRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))

	hero := testutil.CreateUser(t, repo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	_ = testutil.CreateUser(t, repo, "Anon", "anon", "", "", nil, true)
	_ = testutil.CreateUser(t, repo, "Anon2", "anon2", "", "", nil, true)

	got, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{"hero@test.cd"}})
	require.NoError(t, err)
	assert.Equal(t, hero.ID, got.ID)

	assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "hero", ""))
	assert.Equal(t, user.ErrEmailExists, repo.CheckUsernameUniqueness(ctx, "", "hero@test.cd"))
	assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "hero", "hero@test.cd", hero))

	dup := hero
	dup.ID = uuid.New().String()
	dup.Username = "other"
	_, err = repo.CreateUser(ctx, dup)
	assert.Equal(t, user.ErrEmailExists, err)

	_, err = repo.GetUser(ctx, user.GetFilter{ID: "unknown"})
	assert.Equal(t, user.ErrNotFound, err)
}

func Test_courseRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCourseRepository(openTestDB(t))

	crs := testutil.CreateCourse(t, repo, "Go 101", "49.99", "t1")
	mug := testutil.CreateMerch(t, repo, "Mug", "10.15", "t1", 1)
	_ = testutil.CreateCourse(t, repo, "SQL", "20", "t2")

	got, err := repo.GetItem(ctx, crs.ID)
	require.NoError(t, err)
	assert.True(t, testutil.Decimal(t, "49.99").Equal(got.Price))

	ids, err := repo.QueryTeacherIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, ids)

	require.NoError(t, repo.DecrementStock(ctx, mug.ID, 1))
	assert.Equal(t, course.ErrInsufficientStock, repo.DecrementStock(ctx, mug.ID, 1))
	require.NoError(t, repo.DecrementStock(ctx, crs.ID, 1), "untracked stock")
}

func Test_ledgerRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(openTestDB(t))
	now := time.Now().UTC().Truncate(time.Millisecond)

	items := []ledger.LineItem{{ItemID: "c1", Title: "Go 101", Kind: ledger.KindCourse, Quantity: 1, UnitPrice: testutil.Decimal(t, "49.99")}}
	e, err := ledger.NewPendingEntry("cs_1", "l1", "usd", items, now)
	require.NoError(t, err)
	require.NoError(t, repo.CreateEntry(ctx, e))
	assert.Equal(t, ledger.ErrDuplicateSession, repo.CreateEntry(ctx, e))

	ok, err := repo.CompleteEntry(ctx, "cs_1", "pi_1", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.CompleteEntry(ctx, "cs_1", "pi_1", now)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = repo.CompleteEntry(ctx, "cs_unknown", "pi_2", now)
	assert.Equal(t, ledger.ErrNotFound, err)

	got, err := repo.GetEntryByPaymentReference(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StateCompleted, got.State)
	assert.True(t, testutil.Decimal(t, "49.99").Equal(got.Amount))
	require.NotNil(t, got.CompletedAt)
	assert.True(t, now.Equal(*got.CompletedAt))

	entries, err := repo.QueryEntries(ctx, ledger.QueryFilter{States: []ledger.State{ledger.StateCompleted}, ItemIDs: []string{"c1"}})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	ev := ledger.ProcessedEvent{EventID: "evt_1", Type: "checkout.session.completed", SessionID: "cs_1", ProcessedAt: now}
	require.NoError(t, repo.MarkEventProcessed(ctx, ev))
	require.NoError(t, repo.MarkEventProcessed(ctx, ev))
	processed, err := repo.IsEventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func Test_rosterRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRosterRepository(openTestDB(t))
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	added, err := repo.AddEntries(ctx,
		roster.Entry{CourseID: "c1", LearnerID: "l1", LearnerName: "Hero", EnrolledAt: at, Origin: roster.OriginPaid, SessionID: "cs_1"},
	)
	require.NoError(t, err)
	assert.Len(t, added, 1)

	added, err = repo.AddEntries(ctx,
		roster.Entry{CourseID: "c1", LearnerID: "l1", LearnerName: "Renamed", EnrolledAt: at, Origin: roster.OriginLegacy},
		roster.Entry{CourseID: "c1", LearnerID: "l2", LearnerName: "Other", EnrolledAt: at, Origin: roster.OriginFree},
	)
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "l2", added[0].LearnerID)

	e, err := repo.GetEntry(ctx, "c1", "l1")
	require.NoError(t, err)
	assert.Equal(t, "Hero", e.LearnerName)
	assert.Equal(t, roster.OriginPaid, e.Origin)

	entries, err := repo.QueryEntries(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLegacySource_LegacyRosters(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	created := time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC)
	enrolled := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	oid := bson.NewObjectID()

	_, err := db.Collection(colLegacyCourses).InsertMany(ctx, []interface{}{
		bson.M{
			"_id":       "c1",
			"createdAt": created,
			"enrolledStudents": bson.A{
				"l1",
				oid,
				bson.M{"student": "l2", "name": "Two", "enrolledAt": enrolled},
				bson.M{"name": "nobody"},
			},
		},
		bson.M{"_id": "c2", "enrolledStudents": bson.A{}},
	})
	require.NoError(t, err)

	rosters, err := NewLegacySource(db).LegacyRosters(ctx)
	require.NoError(t, err)
	require.Len(t, rosters, 1)
	assert.Equal(t, "c1", rosters[0].CourseID)
	assert.True(t, created.Equal(rosters[0].CreatedAt))
	assert.Equal(t, []roster.LegacyMember{
		{LearnerID: "l1"},
		{LearnerID: oid.Hex()},
		{LearnerID: "l2", Name: "Two", EnrolledAt: enrolled},
		{},
	}, rosters[0].Members)

	report, err := roster.Migrate(ctx, NewLegacySource(db), NewRosterRepository(db), roster.MigrateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Inserted)
	assert.Equal(t, 1, report.Skipped)
}
