package sqlxrepos

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/course"
)

type courseRepository struct {
	exec core.DBExecutor
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) course.Repository {
	return &courseRepository{exec: exec}
}

const itemColumns = "id, title, price, active, teacher_id, kind, stock, created_at, updated_at"

func (repo *courseRepository) CreateItem(ctx context.Context, it course.Item) (course.Item, error) {
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	q := "INSERT INTO items (" + itemColumns + `)
		VALUES (:id, :title, :price, :active, :teacher_id, :kind, :stock, :created_at, :updated_at)`
	if _, err := repo.exec.NamedExecContext(ctx, q, it); err != nil {
		return course.Item{}, errors.Wrap(err, "inserting item")
	}
	return it, nil
}

func (repo *courseRepository) GetItem(ctx context.Context, id string) (course.Item, error) {
	if !isUUID(id) {
		return course.Item{}, course.ErrNotFound
	}
	var it course.Item
	if err := repo.exec.GetContext(ctx, &it, "SELECT "+itemColumns+" FROM items WHERE id = $1", id); err != nil {
		return course.Item{}, trapNoRowsErr(err, course.ErrNotFound, "getting item")
	}
	return it, nil
}

func (repo *courseRepository) QueryItems(ctx context.Context, filter course.QueryFilter) ([]course.Item, error) {
	var w where
	if len(filter.IDs) > 0 {
		w.add("id = ANY(?::uuid[])", pq.Array(validUUIDs(filter.IDs)))
	}
	if filter.TeacherID != "" {
		if !isUUID(filter.TeacherID) {
			return []course.Item{}, nil
		}
		w.add("teacher_id = ?", filter.TeacherID)
	}
	if filter.Kind != "" {
		w.add("kind = ?", string(filter.Kind))
	}

	items := make([]course.Item, 0)
	q := "SELECT " + itemColumns + " FROM items" + w.String() + " ORDER BY created_at"
	if err := repo.exec.SelectContext(ctx, &items, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying items")
	}
	return items, nil
}

func (repo *courseRepository) QueryTeacherIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0)
	q := "SELECT DISTINCT teacher_id FROM items WHERE kind = $1 ORDER BY teacher_id"
	if err := repo.exec.SelectContext(ctx, &ids, q, string(course.KindCourse)); err != nil {
		return nil, errors.Wrap(err, "querying teacher ids")
	}
	return ids, nil
}

func (repo *courseRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	if !isUUID(id) {
		return course.ErrNotFound
	}
	// a NULL stock stays NULL
	q := `UPDATE items SET stock = stock - $2, updated_at = $3
		WHERE id = $1 AND (stock IS NULL OR stock >= $2)`
	res, err := repo.exec.ExecContext(ctx, q, id, qty, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "decrementing stock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "decrementing stock")
	}
	if n > 0 {
		return nil
	}

	if _, err = repo.GetItem(ctx, id); err != nil {
		return err
	}
	return course.ErrInsufficientStock
}
