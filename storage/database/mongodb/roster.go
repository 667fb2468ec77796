package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/trezcool/masomo-academy/core/roster"
)

type rosterRepository struct {
	col *mongo.Collection
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *mongo.Database) roster.Repository {
	return &rosterRepository{col: db.Collection(colRosterEntries)}
}

type rosterEntryModel struct {
	CourseID    string    `bson:"course_id"`
	LearnerID   string    `bson:"learner_id"`
	LearnerName string    `bson:"learner_name"`
	EnrolledAt  time.Time `bson:"enrolled_at"`
	Origin      string    `bson:"origin"`
	SessionID   string    `bson:"session_id,omitempty"`
}

func (m rosterEntryModel) entry() roster.Entry {
	return roster.Entry{
		CourseID:    m.CourseID,
		LearnerID:   m.LearnerID,
		LearnerName: m.LearnerName,
		EnrolledAt:  m.EnrolledAt.UTC(),
		Origin:      roster.Origin(m.Origin),
		SessionID:   m.SessionID,
	}
}

// AddEntries upserts every entry with $setOnInsert, so an existing (course, learner) pair is never touched.
func (repo *rosterRepository) AddEntries(ctx context.Context, entries ...roster.Entry) ([]roster.Entry, error) {
	added := make([]roster.Entry, 0, len(entries))
	for _, e := range entries {
		e.EnrolledAt = e.EnrolledAt.UTC()
		res, err := repo.col.UpdateOne(ctx,
			bson.M{"course_id": e.CourseID, "learner_id": e.LearnerID},
			bson.M{"$setOnInsert": bson.M{
				"learner_name": e.LearnerName,
				"enrolled_at":  e.EnrolledAt,
				"origin":       string(e.Origin),
				"session_id":   e.SessionID,
			}},
			options.UpdateOne().SetUpsert(true),
		)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) { // lost a concurrent upsert of the same pair
				continue
			}
			return nil, errors.Wrap(err, "upserting roster entry")
		}
		if res.UpsertedCount > 0 {
			added = append(added, e)
		}
	}
	return added, nil
}

func (repo *rosterRepository) GetEntry(ctx context.Context, courseID, learnerID string) (roster.Entry, error) {
	var m rosterEntryModel
	if err := repo.col.FindOne(ctx, bson.M{"course_id": courseID, "learner_id": learnerID}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return roster.Entry{}, roster.ErrNotFound
		}
		return roster.Entry{}, errors.Wrap(err, "getting roster entry")
	}
	return m.entry(), nil
}

func (repo *rosterRepository) QueryEntries(ctx context.Context, courseIDs ...string) ([]roster.Entry, error) {
	q := bson.M{}
	if len(courseIDs) > 0 {
		q["course_id"] = bson.M{"$in": courseIDs}
	}

	opts := options.Find().SetSort(bson.D{{Key: "enrolled_at", Value: 1}, {Key: "course_id", Value: 1}, {Key: "learner_id", Value: 1}})
	cur, err := repo.col.Find(ctx, q, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying roster entries")
	}
	var models []rosterEntryModel
	if err = cur.All(ctx, &models); err != nil {
		return nil, errors.Wrap(err, "decoding roster entries")
	}

	entries := make([]roster.Entry, 0, len(models))
	for _, m := range models {
		entries = append(entries, m.entry())
	}
	return entries, nil
}
