package course

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-academy/core"
)

type Kind string

const (
	KindCourse Kind = "course"
	KindMerch  Kind = "merch"
)

// Item is anything purchasable from the catalog: a course, or a merchandise item with a tracked stock.
type Item struct {
	ID        string          `json:"id" db:"id"`
	Title     string          `json:"title" db:"title"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Active    bool            `json:"active" db:"active"`
	TeacherID string          `json:"teacher_id" db:"teacher_id"`
	Kind      Kind            `json:"kind" db:"kind"`
	Stock     *int            `json:"stock,omitempty" db:"stock"` // nil: untracked
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

func (it Item) IsCourse() bool { return it.Kind == KindCourse }

func (it Item) IsFree() bool { return it.Price.IsZero() }

func (it Item) TracksStock() bool { return it.Stock != nil }

// NewItem contains information needed to add an Item to the catalog.
type NewItem struct {
	Title     string          `json:"title" validate:"required"`
	Price     decimal.Decimal `json:"price"`
	TeacherID string          `json:"teacher_id" validate:"required"`
	Kind      Kind            `json:"kind" validate:"required,oneof=course merch"`
	Stock     *int            `json:"stock" validate:"omitempty,min=0"`
}

func (ni *NewItem) Validate(validate *validator.Validate) error {
	ni.Title = core.CleanString(ni.Title)
	if err := validate.Struct(ni); err != nil {
		return err
	}
	if ni.Price.IsNegative() {
		return core.NewValidationError(nil, core.FieldError{Field: "price", Error: "price cannot be negative"})
	}
	if ni.Kind == KindCourse && ni.Stock != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "stock", Error: "courses have no stock"})
	}
	return nil
}

// QueryFilter applies an AND of the set fields.
type QueryFilter struct {
	IDs       []string
	TeacherID string
	Kind      Kind
}
