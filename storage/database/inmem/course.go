package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/masomo-academy/core/course"
)

type courseRepository struct {
	db *itemTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db.item}
}

func copyItem(it course.Item) course.Item {
	if it.Stock != nil {
		stock := *it.Stock
		it.Stock = &stock
	}
	return it
}

func (repo *courseRepository) CreateItem(_ context.Context, it course.Item) (course.Item, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored := copyItem(it)
	repo.db.table[it.ID] = &stored
	return it, nil
}

func (repo *courseRepository) GetItem(_ context.Context, id string) (course.Item, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if it, ok := repo.db.table[id]; ok {
		return copyItem(*it), nil
	}
	return course.Item{}, course.ErrNotFound
}

func (repo *courseRepository) QueryItems(_ context.Context, filter course.QueryFilter) ([]course.Item, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := make(map[string]bool, len(filter.IDs))
	for _, id := range filter.IDs {
		ids[id] = true
	}
	items := make([]course.Item, 0)
	for _, it := range repo.db.table {
		if len(ids) > 0 && !ids[it.ID] {
			continue
		}
		if filter.TeacherID != "" && it.TeacherID != filter.TeacherID {
			continue
		}
		if filter.Kind != "" && it.Kind != filter.Kind {
			continue
		}
		items = append(items, copyItem(*it))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (repo *courseRepository) QueryTeacherIDs(_ context.Context) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, it := range repo.db.table {
		if it.IsCourse() && !seen[it.TeacherID] {
			seen[it.TeacherID] = true
			ids = append(ids, it.TeacherID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (repo *courseRepository) DecrementStock(_ context.Context, id string, qty int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	it, ok := repo.db.table[id]
	if !ok {
		return course.ErrNotFound
	}
	if it.Stock == nil {
		return nil
	}
	if *it.Stock < qty {
		return course.ErrInsufficientStock
	}
	*it.Stock -= qty
	return nil
}
