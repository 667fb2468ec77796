package roster

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Origin tells how a learner got into a course roster.
type Origin string

const (
	OriginPaid   Origin = "paid"
	OriginFree   Origin = "free"
	OriginLegacy Origin = "legacy" // migrated from the untagged roster formats
)

var (
	// errors
	ErrNotFound = errors.New("roster entry not found")
)

// Entry grants a learner access to a course.
// LearnerName is a snapshot taken at enrollment time; later identity edits do not change it.
type Entry struct {
	CourseID    string    `json:"course_id" db:"course_id"`
	LearnerID   string    `json:"learner_id" db:"learner_id"`
	LearnerName string    `json:"learner_name" db:"learner_name"`
	EnrolledAt  time.Time `json:"enrolled_at" db:"enrolled_at"`
	Origin      Origin    `json:"origin" db:"origin"`
	SessionID   string    `json:"session_id,omitempty" db:"session_id"` // paid entries only
}

// Repository is the Roster Store; (CourseID, LearnerID) is unique.
type Repository interface {
	// AddEntries inserts every entry whose (course, learner) pair is not enrolled yet and
	// returns the ones actually inserted. Existing entries are never modified.
	AddEntries(ctx context.Context, entries ...Entry) ([]Entry, error)
	GetEntry(ctx context.Context, courseID, learnerID string) (Entry, error)
	// QueryEntries returns the entries of the given courses.
	QueryEntries(ctx context.Context, courseIDs ...string) ([]Entry, error)
}

// IsEnrolled checks whether the learner already has access to the course.
func IsEnrolled(ctx context.Context, repo Repository, courseID, learnerID string) (bool, error) {
	if _, err := repo.GetEntry(ctx, courseID, learnerID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "getting roster entry")
	}
	return true, nil
}
