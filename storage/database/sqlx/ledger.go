package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/ledger"
)

type ledgerRepository struct {
	exec core.DBExecutor
}

var _ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(exec core.DBExecutor) ledger.Repository {
	return &ledgerRepository{exec: exec}
}

// ledgerRow is the "ledger_entries" table; line items are stored as a JSONB array.
type ledgerRow struct {
	SessionID        string          `db:"session_id"`
	LearnerID        string          `db:"learner_id"`
	Items            types.JSONText  `db:"items"`
	Amount           decimal.Decimal `db:"amount"`
	Currency         string          `db:"currency"`
	State            string          `db:"state"`
	PaymentReference sql.NullString  `db:"payment_reference"`
	CreatedAt        time.Time       `db:"created_at"`
	CompletedAt      sql.NullTime    `db:"completed_at"`
	FailedAt         sql.NullTime    `db:"failed_at"`
	RefundedAt       sql.NullTime    `db:"refunded_at"`
}

const ledgerColumns = "session_id, learner_id, items, amount, currency, state, payment_reference, created_at, completed_at, failed_at, refunded_at"

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	tt := t.Time.UTC()
	return &tt
}

func toLedgerRow(e ledger.Entry) (ledgerRow, error) {
	items, err := json.Marshal(e.Items)
	if err != nil {
		return ledgerRow{}, errors.Wrap(err, "encoding line items")
	}
	return ledgerRow{
		SessionID:        e.SessionID,
		LearnerID:        e.LearnerID,
		Items:            types.JSONText(items),
		Amount:           e.Amount,
		Currency:         e.Currency,
		State:            string(e.State),
		PaymentReference: sql.NullString{String: e.PaymentReference, Valid: e.PaymentReference != ""},
		CreatedAt:        e.CreatedAt.UTC(),
		CompletedAt:      nullTime(e.CompletedAt),
		FailedAt:         nullTime(e.FailedAt),
		RefundedAt:       nullTime(e.RefundedAt),
	}, nil
}

func (row ledgerRow) entry() (ledger.Entry, error) {
	var items []ledger.LineItem
	if err := row.Items.Unmarshal(&items); err != nil {
		return ledger.Entry{}, errors.Wrapf(err, "decoding line items of %s", row.SessionID)
	}
	return ledger.Entry{
		SessionID:        row.SessionID,
		LearnerID:        row.LearnerID,
		Items:            items,
		Amount:           row.Amount,
		Currency:         row.Currency,
		State:            ledger.State(row.State),
		PaymentReference: row.PaymentReference.String,
		CreatedAt:        row.CreatedAt.UTC(),
		CompletedAt:      timePtr(row.CompletedAt),
		FailedAt:         timePtr(row.FailedAt),
		RefundedAt:       timePtr(row.RefundedAt),
	}, nil
}

func (repo *ledgerRepository) CreateEntry(ctx context.Context, e ledger.Entry) error {
	row, err := toLedgerRow(e)
	if err != nil {
		return err
	}
	q := "INSERT INTO ledger_entries (" + ledgerColumns + `)
		VALUES (:session_id, :learner_id, :items, :amount, :currency, :state, :payment_reference,
		        :created_at, :completed_at, :failed_at, :refunded_at)`
	if _, err = repo.exec.NamedExecContext(ctx, q, row); err != nil {
		if _, ok := uniqueViolationOn(err); ok {
			return ledger.ErrDuplicateSession
		}
		return errors.Wrap(err, "inserting ledger entry")
	}
	return nil
}

func (repo *ledgerRepository) getEntry(ctx context.Context, cond string, arg interface{}) (ledger.Entry, error) {
	var row ledgerRow
	q := "SELECT " + ledgerColumns + " FROM ledger_entries WHERE " + cond
	if err := repo.exec.GetContext(ctx, &row, q, arg); err != nil {
		return ledger.Entry{}, trapNoRowsErr(err, ledger.ErrNotFound, "getting ledger entry")
	}
	return row.entry()
}

func (repo *ledgerRepository) GetEntry(ctx context.Context, sessionID string) (ledger.Entry, error) {
	return repo.getEntry(ctx, "session_id = $1", sessionID)
}

func (repo *ledgerRepository) GetEntryByPaymentReference(ctx context.Context, ref string) (ledger.Entry, error) {
	if ref == "" {
		return ledger.Entry{}, ledger.ErrNotFound
	}
	return repo.getEntry(ctx, "payment_reference = $1 LIMIT 1", ref)
}

func (repo *ledgerRepository) QueryEntries(ctx context.Context, filter ledger.QueryFilter) ([]ledger.Entry, error) {
	var w where
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, s := range filter.States {
			states = append(states, string(s))
		}
		w.add("state = ANY(?)", pq.Array(states))
	}
	if len(filter.ItemIDs) > 0 {
		w.add("EXISTS (SELECT 1 FROM jsonb_array_elements(items) li WHERE li->>'item_id' = ANY(?))", pq.Array(filter.ItemIDs))
	}
	if filter.LearnerID != "" {
		w.add("learner_id = ?", filter.LearnerID)
	}
	if !filter.CreatedBefore.IsZero() {
		w.add("created_at < ?", filter.CreatedBefore.UTC())
	}

	var rows []ledgerRow
	q := "SELECT " + ledgerColumns + " FROM ledger_entries" + w.String() + " ORDER BY created_at"
	if err := repo.exec.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying ledger entries")
	}

	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := row.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// transition is the compare-and-set shared by every state change: a single conditional UPDATE.
func (repo *ledgerRepository) transition(ctx context.Context, sessionID string, from, to ledger.State, set string, args ...interface{}) (bool, error) {
	q := "UPDATE ledger_entries SET state = $3, " + set + " WHERE session_id = $1 AND state = $2"
	res, err := repo.exec.ExecContext(ctx, q, append([]interface{}{sessionID, string(from), string(to)}, args...)...)
	if err != nil {
		return false, errors.Wrapf(err, "moving ledger entry to %s", to)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "moving ledger entry to %s", to)
	}
	if n > 0 {
		return true, nil
	}

	var exists bool
	if err = repo.exec.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE session_id = $1)", sessionID); err != nil {
		return false, errors.Wrap(err, "checking ledger entry")
	}
	if !exists {
		return false, ledger.ErrNotFound
	}
	return false, nil
}

func (repo *ledgerRepository) CompleteEntry(ctx context.Context, sessionID, paymentRef string, at time.Time) (bool, error) {
	ref := sql.NullString{String: paymentRef, Valid: paymentRef != ""}
	return repo.transition(ctx, sessionID, ledger.StatePending, ledger.StateCompleted,
		"payment_reference = $4, completed_at = $5", ref, at.UTC())
}

func (repo *ledgerRepository) FailEntry(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	return repo.transition(ctx, sessionID, ledger.StatePending, ledger.StateFailed, "failed_at = $4", at.UTC())
}

func (repo *ledgerRepository) RefundEntry(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	return repo.transition(ctx, sessionID, ledger.StateCompleted, ledger.StateRefunded, "refunded_at = $4", at.UTC())
}

func (repo *ledgerRepository) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	if err := repo.exec.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)", eventID); err != nil {
		return false, errors.Wrap(err, "checking processed event")
	}
	return exists, nil
}

func (repo *ledgerRepository) MarkEventProcessed(ctx context.Context, ev ledger.ProcessedEvent) error {
	ev.ProcessedAt = ev.ProcessedAt.UTC()
	q := `INSERT INTO processed_events (event_id, type, session_id, processed_at)
		VALUES (:event_id, :type, :session_id, :processed_at)
		ON CONFLICT (event_id) DO NOTHING`
	if _, err := repo.exec.NamedExecContext(ctx, q, ev); err != nil {
		return errors.Wrap(err, "marking event processed")
	}
	return nil
}
