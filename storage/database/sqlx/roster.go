package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/roster"
)

type rosterRepository struct {
	db core.DB
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db core.DB) roster.Repository {
	return &rosterRepository{db: db}
}

const rosterColumns = "course_id, learner_id, learner_name, enrolled_at, origin, session_id"

// AddEntries inserts the whole batch in one transaction; the (course_id, learner_id) key decides what is new.
func (repo *rosterRepository) AddEntries(ctx context.Context, entries ...roster.Entry) (added []roster.Entry, err error) {
	if len(entries) == 0 {
		return []roster.Entry{}, nil
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "starting transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	q := "INSERT INTO roster_entries (" + rosterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (course_id, learner_id) DO NOTHING
		RETURNING course_id`
	added = make([]roster.Entry, 0, len(entries))
	for _, e := range entries {
		e.EnrolledAt = e.EnrolledAt.UTC()
		var courseID string
		err = tx.GetContext(ctx, &courseID, q, e.CourseID, e.LearnerID, e.LearnerName, e.EnrolledAt, string(e.Origin), e.SessionID)
		switch {
		case err == nil:
			added = append(added, e)
		case errors.Cause(err) == sql.ErrNoRows: // already enrolled
			err = nil
		default:
			return nil, errors.Wrap(err, "inserting roster entry")
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing roster entries")
	}
	return added, nil
}

func (repo *rosterRepository) GetEntry(ctx context.Context, courseID, learnerID string) (roster.Entry, error) {
	var e roster.Entry
	q := "SELECT " + rosterColumns + " FROM roster_entries WHERE course_id = $1 AND learner_id = $2"
	if err := repo.db.GetContext(ctx, &e, q, courseID, learnerID); err != nil {
		return roster.Entry{}, trapNoRowsErr(err, roster.ErrNotFound, "getting roster entry")
	}
	e.EnrolledAt = e.EnrolledAt.UTC()
	return e, nil
}

func (repo *rosterRepository) QueryEntries(ctx context.Context, courseIDs ...string) ([]roster.Entry, error) {
	var w where
	if len(courseIDs) > 0 {
		w.add("course_id = ANY(?)", pq.Array(courseIDs))
	}

	entries := make([]roster.Entry, 0)
	q := "SELECT " + rosterColumns + " FROM roster_entries" + w.String() + " ORDER BY enrolled_at, course_id, learner_id"
	if err := repo.db.SelectContext(ctx, &entries, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying roster entries")
	}
	for i := range entries {
		entries[i].EnrolledAt = entries[i].EnrolledAt.UTC()
	}
	return entries, nil
}
