package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateRefunded  State = "refunded"
)

// line item kinds
const (
	KindCourse = "course"
	KindMerch  = "merch"
)

// IsFinal reports whether no settlement can move the entry anymore.
func (s State) IsFinal() bool {
	return s == StateFailed || s == StateRefunded
}

// LineItem is one purchased item with the catalog unit price at checkout time.
// Kind mirrors the catalog kind: only "course" lines grant roster access.
type LineItem struct {
	ItemID    string          `json:"item_id" bson:"item_id"`
	Title     string          `json:"title" bson:"title"`
	Kind      string          `json:"kind" bson:"kind"`
	Quantity  int             `json:"quantity" bson:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" bson:"unit_price"`
}

func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Entry is the ledger record of one provider checkout session.
type Entry struct {
	SessionID        string          `json:"session_id"`
	LearnerID        string          `json:"learner_id"`
	Items            []LineItem      `json:"items"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	State            State           `json:"state"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`
	RefundedAt       *time.Time      `json:"refunded_at,omitempty"`
}

// Total sums the line items.
func Total(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range items {
		total = total.Add(li.Total())
	}
	return total
}

// AmountFor returns the part of the entry amount paid for the given item.
func (e Entry) AmountFor(itemID string) decimal.Decimal {
	total := decimal.Zero
	for _, li := range e.Items {
		if li.ItemID == itemID {
			total = total.Add(li.Total())
		}
	}
	return total
}

// CourseIDs returns the courses purchased with the entry.
func (e Entry) CourseIDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, li := range e.Items {
		if li.Kind == KindCourse {
			ids = append(ids, li.ItemID)
		}
	}
	return ids
}

// HasItem reports whether any of the given items was purchased with the entry.
func (e Entry) HasItem(itemIDs ...string) bool {
	for _, li := range e.Items {
		for _, id := range itemIDs {
			if li.ItemID == id {
				return true
			}
		}
	}
	return false
}

// ProcessedEvent marks a provider webhook delivery as handled.
type ProcessedEvent struct {
	EventID     string    `json:"event_id" db:"event_id"`
	Type        string    `json:"type" db:"type"`
	SessionID   string    `json:"session_id" db:"session_id"`
	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`
}

// QueryFilter applies an AND of the set fields.
type QueryFilter struct {
	States        []State
	ItemIDs       []string // entries containing any of them
	LearnerID     string
	CreatedBefore time.Time
}
