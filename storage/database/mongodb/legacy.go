package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/trezcool/masomo-academy/core/roster"
)

// LegacySource reads the rosters embedded in the historical course documents, where
// "enrolledStudents" mixes bare learner ids and {student, name, enrolledAt} records.
type LegacySource struct {
	col *mongo.Collection
}

var _ roster.LegacySource = (*LegacySource)(nil) // interface compliance check

func NewLegacySource(db *mongo.Database) *LegacySource {
	return &LegacySource{col: db.Collection(colLegacyCourses)}
}

type legacyCourseModel struct {
	ID               bson.RawValue   `bson:"_id"`
	CreatedAt        time.Time       `bson:"createdAt"`
	EnrolledStudents []bson.RawValue `bson:"enrolledStudents"`
}

func (src *LegacySource) LegacyRosters(ctx context.Context) ([]roster.LegacyRoster, error) {
	cur, err := src.col.Find(ctx, bson.M{"enrolledStudents.0": bson.M{"$exists": true}})
	if err != nil {
		return nil, errors.Wrap(err, "querying legacy courses")
	}
	var models []legacyCourseModel
	if err = cur.All(ctx, &models); err != nil {
		return nil, errors.Wrap(err, "decoding legacy courses")
	}

	rosters := make([]roster.LegacyRoster, 0, len(models))
	for _, m := range models {
		lr := roster.LegacyRoster{
			CourseID:  rawID(m.ID),
			CreatedAt: m.CreatedAt.UTC(),
			Members:   make([]roster.LegacyMember, 0, len(m.EnrolledStudents)),
		}
		for _, rv := range m.EnrolledStudents {
			lr.Members = append(lr.Members, legacyMember(rv))
		}
		rosters = append(rosters, lr)
	}
	return rosters, nil
}

// legacyMember reads one enrolledStudents element; unknown shapes yield an empty LearnerID.
func legacyMember(rv bson.RawValue) roster.LegacyMember {
	doc, ok := rv.DocumentOK()
	if !ok {
		return roster.LegacyMember{LearnerID: rawID(rv)}
	}

	m := roster.LegacyMember{LearnerID: rawID(doc.Lookup("student"))}
	if name, ok := doc.Lookup("name").StringValueOK(); ok {
		m.Name = name
	}
	if at, ok := doc.Lookup("enrolledAt").TimeOK(); ok {
		m.EnrolledAt = at.UTC()
	}
	return m
}

// rawID renders a string or ObjectID reference as a string id.
func rawID(rv bson.RawValue) string {
	if s, ok := rv.StringValueOK(); ok {
		return s
	}
	if oid, ok := rv.ObjectIDOK(); ok {
		return oid.Hex()
	}
	return ""
}
