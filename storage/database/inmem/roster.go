package inmemdb

import (
	"context"

	"github.com/trezcool/masomo-academy/core/roster"
)

type rosterRepository struct {
	db *rosterTable
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *DB) roster.Repository {
	return &rosterRepository{db: db.roster}
}

func (repo *rosterRepository) AddEntries(_ context.Context, entries ...roster.Entry) ([]roster.Entry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	added := make([]roster.Entry, 0, len(entries))
	for _, e := range entries {
		key := rosterKey{courseID: e.CourseID, learnerID: e.LearnerID}
		if _, ok := repo.db.table[key]; ok {
			continue
		}
		repo.db.table[key] = e
		repo.db.order = append(repo.db.order, key)
		added = append(added, e)
	}
	return added, nil
}

func (repo *rosterRepository) GetEntry(_ context.Context, courseID, learnerID string) (roster.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.table[rosterKey{courseID: courseID, learnerID: learnerID}]; ok {
		return e, nil
	}
	return roster.Entry{}, roster.ErrNotFound
}

func (repo *rosterRepository) QueryEntries(_ context.Context, courseIDs ...string) ([]roster.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := make(map[string]bool, len(courseIDs))
	for _, id := range courseIDs {
		courses[id] = true
	}
	entries := make([]roster.Entry, 0)
	for _, key := range repo.db.order {
		if len(courses) > 0 && !courses[key.courseID] {
			continue
		}
		entries = append(entries, repo.db.table[key])
	}
	return entries, nil
}
