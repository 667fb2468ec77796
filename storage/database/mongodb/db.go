package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/trezcool/masomo-academy/core"
)

// Collection names.
const (
	colUsers           = "users"
	colItems           = "items"
	colLedgerEntries   = "ledger_entries"
	colProcessedEvents = "processed_events"
	colRosterEntries   = "roster_entries"
	colLegacyCourses   = "courses" // course documents embedding the historical rosters
)

// Connect opens a client on conf.Database.MongoURI and returns the application database.
func Connect(ctx context.Context, conf *core.Config) (*mongo.Database, error) {
	return ConnectURI(ctx, conf.Database.MongoURI, conf.Database.Name)
}

func ConnectURI(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongodb")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err = client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "pinging mongodb")
	}
	return client.Database(dbName), nil
}

// Migrate creates the indexes of every collection; it is safe to run repeatedly.
func Migrate(ctx context.Context, db *mongo.Database) error {
	for col, models := range migrationIndexes() {
		if _, err := db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "migrating %s indexes", col)
		}
	}
	return nil
}

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colUsers: {
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"username": bson.M{"$type": "string"}}),
			},
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"email": bson.M{"$type": "string"}}),
			},
		},
		colItems: {
			{Keys: bson.D{{Key: "teacher_id", Value: 1}, {Key: "kind", Value: 1}}},
		},
		colLedgerEntries: {
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "items.item_id", Value: 1}}},
			{
				Keys:    bson.D{{Key: "payment_reference", Value: 1}},
				Options: options.Index().SetSparse(true),
			},
		},
		colRosterEntries: {
			{
				Keys:    bson.D{{Key: "course_id", Value: 1}, {Key: "learner_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
