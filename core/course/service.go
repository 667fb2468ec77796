package course

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// errors
	ErrNotFound          = errors.New("item not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type (
	Repository interface {
		CreateItem(ctx context.Context, it Item) (Item, error)
		GetItem(ctx context.Context, id string) (Item, error)
		QueryItems(ctx context.Context, filter QueryFilter) ([]Item, error)
		// QueryTeacherIDs returns the distinct teachers owning at least one course.
		QueryTeacherIDs(ctx context.Context) ([]string, error)
		// DecrementStock atomically removes qty from a tracked stock; it fails with ErrInsufficientStock
		// rather than going below zero. Untracked items are left untouched.
		DecrementStock(ctx context.Context, id string, qty int) error
	}

	// ServiceInterface is the Catalog service consumed by the enrollment core.
	ServiceInterface interface {
		Create(ctx context.Context, ni NewItem) (Item, error)
		GetPurchasableItem(ctx context.Context, id string) (Item, error)
		Query(ctx context.Context, filter QueryFilter) ([]Item, error)
		QueryTeacherIDs(ctx context.Context) ([]string, error)
		DecrementStock(ctx context.Context, id string, qty int) error
	}

	Service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil) // interface compliance check

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, ni NewItem) (Item, error) {
	now := time.Now().UTC()
	return svc.repo.CreateItem(ctx, Item{
		ID:        uuid.New().String(),
		Title:     ni.Title,
		Price:     ni.Price.Round(2),
		Active:    true,
		TeacherID: ni.TeacherID,
		Kind:      ni.Kind,
		Stock:     ni.Stock,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// GetPurchasableItem returns the catalog view of an item; price and active state are authoritative.
func (svc *Service) GetPurchasableItem(ctx context.Context, id string) (Item, error) {
	return svc.repo.GetItem(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Item, error) {
	return svc.repo.QueryItems(ctx, filter)
}

func (svc *Service) QueryTeacherIDs(ctx context.Context) ([]string, error) {
	return svc.repo.QueryTeacherIDs(ctx)
}

func (svc *Service) DecrementStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return nil
	}
	return svc.repo.DecrementStock(ctx, id, qty)
}
