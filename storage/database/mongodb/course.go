package mongodb

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/trezcool/masomo-academy/core/course"
)

type courseRepository struct {
	col *mongo.Collection
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *mongo.Database) course.Repository {
	return &courseRepository{col: db.Collection(colItems)}
}

// itemModel keeps prices as decimal strings; binary floats never touch money.
type itemModel struct {
	ID        string    `bson:"_id"`
	Title     string    `bson:"title"`
	Price     string    `bson:"price"`
	Active    bool      `bson:"active"`
	TeacherID string    `bson:"teacher_id"`
	Kind      string    `bson:"kind"`
	Stock     *int      `bson:"stock"` // null: untracked
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toItemModel(it course.Item) itemModel {
	return itemModel{
		ID:        it.ID,
		Title:     it.Title,
		Price:     it.Price.String(),
		Active:    it.Active,
		TeacherID: it.TeacherID,
		Kind:      string(it.Kind),
		Stock:     it.Stock,
		CreatedAt: it.CreatedAt.UTC(),
		UpdatedAt: it.UpdatedAt.UTC(),
	}
}

func (m itemModel) item() (course.Item, error) {
	price, err := decimal.NewFromString(m.Price)
	if err != nil {
		return course.Item{}, errors.Wrapf(err, "parsing price of item %s", m.ID)
	}
	return course.Item{
		ID:        m.ID,
		Title:     m.Title,
		Price:     price,
		Active:    m.Active,
		TeacherID: m.TeacherID,
		Kind:      course.Kind(m.Kind),
		Stock:     m.Stock,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}, nil
}

func (repo *courseRepository) CreateItem(ctx context.Context, it course.Item) (course.Item, error) {
	if _, err := repo.col.InsertOne(ctx, toItemModel(it)); err != nil {
		return course.Item{}, errors.Wrap(err, "inserting item")
	}
	return it, nil
}

func (repo *courseRepository) GetItem(ctx context.Context, id string) (course.Item, error) {
	var m itemModel
	if err := repo.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return course.Item{}, course.ErrNotFound
		}
		return course.Item{}, errors.Wrap(err, "getting item")
	}
	return m.item()
}

func (repo *courseRepository) QueryItems(ctx context.Context, filter course.QueryFilter) ([]course.Item, error) {
	q := bson.M{}
	if len(filter.IDs) > 0 {
		q["_id"] = bson.M{"$in": filter.IDs}
	}
	if filter.TeacherID != "" {
		q["teacher_id"] = filter.TeacherID
	}
	if filter.Kind != "" {
		q["kind"] = string(filter.Kind)
	}

	cur, err := repo.col.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "querying items")
	}
	var models []itemModel
	if err = cur.All(ctx, &models); err != nil {
		return nil, errors.Wrap(err, "decoding items")
	}

	items := make([]course.Item, 0, len(models))
	for _, m := range models {
		it, err := m.item()
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (repo *courseRepository) QueryTeacherIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := repo.col.Distinct(ctx, "teacher_id", bson.M{"kind": string(course.KindCourse)}).Decode(&ids)
	if err != nil {
		return nil, errors.Wrap(err, "querying teacher ids")
	}
	if ids == nil {
		ids = []string{}
	}
	sort.Strings(ids)
	return ids, nil
}

func (repo *courseRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	it, err := repo.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if !it.TracksStock() {
		return nil
	}

	res, err := repo.col.UpdateOne(ctx,
		bson.M{"_id": id, "stock": bson.M{"$gte": qty}},
		bson.M{
			"$inc": bson.M{"stock": -qty},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return errors.Wrap(err, "decrementing stock")
	}
	if res.MatchedCount == 0 {
		return course.ErrInsufficientStock
	}
	return nil
}
