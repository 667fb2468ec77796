package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// errors
	ErrNotFound         = errors.New("ledger entry not found")
	ErrDuplicateSession = errors.New("a ledger entry already exists for this session")
	ErrInvalidAmount    = errors.New("ledger amount must be greater than zero")
)

// Repository is the Ledger Store.
//
// Every state transition is a single atomic compare-and-set on the entry state:
// it reports false, without error, when the entry exists but is not in the expected state.
type Repository interface {
	// CreateEntry inserts a new pending entry, failing with ErrDuplicateSession if the session id is taken.
	CreateEntry(ctx context.Context, e Entry) error
	GetEntry(ctx context.Context, sessionID string) (Entry, error)
	GetEntryByPaymentReference(ctx context.Context, ref string) (Entry, error)
	QueryEntries(ctx context.Context, filter QueryFilter) ([]Entry, error)

	// CompleteEntry moves a pending entry to completed.
	CompleteEntry(ctx context.Context, sessionID, paymentRef string, at time.Time) (bool, error)
	// FailEntry moves a pending entry to failed.
	FailEntry(ctx context.Context, sessionID string, at time.Time) (bool, error)
	// RefundEntry moves a completed entry to refunded.
	RefundEntry(ctx context.Context, sessionID string, at time.Time) (bool, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkEventProcessed records the event; recording it twice is a no-op.
	MarkEventProcessed(ctx context.Context, ev ProcessedEvent) error
}

// NewPendingEntry builds the only valid initial state of an Entry.
func NewPendingEntry(sessionID, learnerID, currency string, items []LineItem, at time.Time) (Entry, error) {
	amount := Total(items)
	if !amount.IsPositive() {
		return Entry{}, ErrInvalidAmount
	}
	return Entry{
		SessionID: sessionID,
		LearnerID: learnerID,
		Items:     items,
		Amount:    amount,
		Currency:  currency,
		State:     StatePending,
		CreatedAt: at.UTC(),
	}, nil
}
