package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/masomo-academy/core/ledger"
)

type ledgerRepository struct {
	db *ledgerTable
}

var _ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *DB) ledger.Repository {
	return &ledgerRepository{db: db.ledger}
}

func copyEntry(e ledger.Entry) ledger.Entry {
	e.Items = append([]ledger.LineItem(nil), e.Items...)
	return e
}

func (repo *ledgerRepository) CreateEntry(_ context.Context, e ledger.Entry) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[e.SessionID]; ok {
		return ledger.ErrDuplicateSession
	}
	stored := copyEntry(e)
	repo.db.table[e.SessionID] = &stored
	return nil
}

func (repo *ledgerRepository) GetEntry(_ context.Context, sessionID string) (ledger.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.table[sessionID]; ok {
		return copyEntry(*e), nil
	}
	return ledger.Entry{}, ledger.ErrNotFound
}

func (repo *ledgerRepository) GetEntryByPaymentReference(_ context.Context, ref string) (ledger.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, e := range repo.db.table {
		if ref != "" && e.PaymentReference == ref {
			return copyEntry(*e), nil
		}
	}
	return ledger.Entry{}, ledger.ErrNotFound
}

func (repo *ledgerRepository) QueryEntries(_ context.Context, filter ledger.QueryFilter) ([]ledger.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	states := make(map[ledger.State]bool, len(filter.States))
	for _, s := range filter.States {
		states[s] = true
	}
	entries := make([]ledger.Entry, 0)
	for _, e := range repo.db.table {
		if len(states) > 0 && !states[e.State] {
			continue
		}
		if len(filter.ItemIDs) > 0 && !e.HasItem(filter.ItemIDs...) {
			continue
		}
		if filter.LearnerID != "" && e.LearnerID != filter.LearnerID {
			continue
		}
		if !filter.CreatedBefore.IsZero() && !e.CreatedAt.Before(filter.CreatedBefore) {
			continue
		}
		entries = append(entries, copyEntry(*e))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries, nil
}

// transition is the compare-and-set shared by every state change.
func (repo *ledgerRepository) transition(sessionID string, from, to ledger.State, apply func(e *ledger.Entry)) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	e, ok := repo.db.table[sessionID]
	if !ok {
		return false, ledger.ErrNotFound
	}
	if e.State != from {
		return false, nil
	}
	e.State = to
	apply(e)
	return true, nil
}

func (repo *ledgerRepository) CompleteEntry(_ context.Context, sessionID, paymentRef string, at time.Time) (bool, error) {
	return repo.transition(sessionID, ledger.StatePending, ledger.StateCompleted, func(e *ledger.Entry) {
		e.PaymentReference = paymentRef
		e.CompletedAt = &at
	})
}

func (repo *ledgerRepository) FailEntry(_ context.Context, sessionID string, at time.Time) (bool, error) {
	return repo.transition(sessionID, ledger.StatePending, ledger.StateFailed, func(e *ledger.Entry) {
		e.FailedAt = &at
	})
}

func (repo *ledgerRepository) RefundEntry(_ context.Context, sessionID string, at time.Time) (bool, error) {
	return repo.transition(sessionID, ledger.StateCompleted, ledger.StateRefunded, func(e *ledger.Entry) {
		e.RefundedAt = &at
	})
}

func (repo *ledgerRepository) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	_, ok := repo.db.events[eventID]
	return ok, nil
}

func (repo *ledgerRepository) MarkEventProcessed(_ context.Context, ev ledger.ProcessedEvent) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.events[ev.EventID]; !ok {
		repo.db.events[ev.EventID] = ev
	}
	return nil
}
