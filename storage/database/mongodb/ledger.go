package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/trezcool/masomo-academy/core/ledger"
)

type ledgerRepository struct {
	entries *mongo.Collection
	events  *mongo.Collection
}

var _ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *mongo.Database) ledger.Repository {
	return &ledgerRepository{
		entries: db.Collection(colLedgerEntries),
		events:  db.Collection(colProcessedEvents),
	}
}

type lineItemModel struct {
	ItemID    string `bson:"item_id"`
	Title     string `bson:"title"`
	Kind      string `bson:"kind"`
	Quantity  int    `bson:"quantity"`
	UnitPrice string `bson:"unit_price"`
}

type ledgerEntryModel struct {
	SessionID        string          `bson:"_id"`
	LearnerID        string          `bson:"learner_id"`
	Items            []lineItemModel `bson:"items"`
	Amount           string          `bson:"amount"`
	Currency         string          `bson:"currency"`
	State            string          `bson:"state"`
	PaymentReference string          `bson:"payment_reference,omitempty"`
	CreatedAt        time.Time       `bson:"created_at"`
	CompletedAt      *time.Time      `bson:"completed_at,omitempty"`
	FailedAt         *time.Time      `bson:"failed_at,omitempty"`
	RefundedAt       *time.Time      `bson:"refunded_at,omitempty"`
}

func toLedgerEntryModel(e ledger.Entry) ledgerEntryModel {
	items := make([]lineItemModel, 0, len(e.Items))
	for _, li := range e.Items {
		items = append(items, lineItemModel{
			ItemID:    li.ItemID,
			Title:     li.Title,
			Kind:      li.Kind,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitPrice.String(),
		})
	}
	return ledgerEntryModel{
		SessionID:        e.SessionID,
		LearnerID:        e.LearnerID,
		Items:            items,
		Amount:           e.Amount.String(),
		Currency:         e.Currency,
		State:            string(e.State),
		PaymentReference: e.PaymentReference,
		CreatedAt:        e.CreatedAt.UTC(),
		CompletedAt:      e.CompletedAt,
		FailedAt:         e.FailedAt,
		RefundedAt:       e.RefundedAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	tt := t.UTC()
	return &tt
}

func (m ledgerEntryModel) entry() (ledger.Entry, error) {
	items := make([]ledger.LineItem, 0, len(m.Items))
	for _, li := range m.Items {
		price, err := decimal.NewFromString(li.UnitPrice)
		if err != nil {
			return ledger.Entry{}, errors.Wrapf(err, "parsing unit price of %s", m.SessionID)
		}
		items = append(items, ledger.LineItem{
			ItemID:    li.ItemID,
			Title:     li.Title,
			Kind:      li.Kind,
			Quantity:  li.Quantity,
			UnitPrice: price,
		})
	}
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return ledger.Entry{}, errors.Wrapf(err, "parsing amount of %s", m.SessionID)
	}
	return ledger.Entry{
		SessionID:        m.SessionID,
		LearnerID:        m.LearnerID,
		Items:            items,
		Amount:           amount,
		Currency:         m.Currency,
		State:            ledger.State(m.State),
		PaymentReference: m.PaymentReference,
		CreatedAt:        m.CreatedAt.UTC(),
		CompletedAt:      utcPtr(m.CompletedAt),
		FailedAt:         utcPtr(m.FailedAt),
		RefundedAt:       utcPtr(m.RefundedAt),
	}, nil
}

func (repo *ledgerRepository) CreateEntry(ctx context.Context, e ledger.Entry) error {
	if _, err := repo.entries.InsertOne(ctx, toLedgerEntryModel(e)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrDuplicateSession
		}
		return errors.Wrap(err, "inserting ledger entry")
	}
	return nil
}

func (repo *ledgerRepository) findOne(ctx context.Context, filter bson.M) (ledger.Entry, error) {
	var m ledgerEntryModel
	if err := repo.entries.FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return ledger.Entry{}, ledger.ErrNotFound
		}
		return ledger.Entry{}, errors.Wrap(err, "getting ledger entry")
	}
	return m.entry()
}

func (repo *ledgerRepository) GetEntry(ctx context.Context, sessionID string) (ledger.Entry, error) {
	return repo.findOne(ctx, bson.M{"_id": sessionID})
}

func (repo *ledgerRepository) GetEntryByPaymentReference(ctx context.Context, ref string) (ledger.Entry, error) {
	if ref == "" {
		return ledger.Entry{}, ledger.ErrNotFound
	}
	return repo.findOne(ctx, bson.M{"payment_reference": ref})
}

func (repo *ledgerRepository) QueryEntries(ctx context.Context, filter ledger.QueryFilter) ([]ledger.Entry, error) {
	q := bson.M{}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, s := range filter.States {
			states = append(states, string(s))
		}
		q["state"] = bson.M{"$in": states}
	}
	if len(filter.ItemIDs) > 0 {
		q["items.item_id"] = bson.M{"$in": filter.ItemIDs}
	}
	if filter.LearnerID != "" {
		q["learner_id"] = filter.LearnerID
	}
	if !filter.CreatedBefore.IsZero() {
		q["created_at"] = bson.M{"$lt": filter.CreatedBefore.UTC()}
	}

	cur, err := repo.entries.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "querying ledger entries")
	}
	var models []ledgerEntryModel
	if err = cur.All(ctx, &models); err != nil {
		return nil, errors.Wrap(err, "decoding ledger entries")
	}

	entries := make([]ledger.Entry, 0, len(models))
	for _, m := range models {
		e, err := m.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// transition is the compare-and-set shared by every state change: the state is part of the filter.
func (repo *ledgerRepository) transition(ctx context.Context, sessionID string, from, to ledger.State, set bson.M) (bool, error) {
	set["state"] = string(to)
	err := repo.entries.FindOneAndUpdate(ctx,
		bson.M{"_id": sessionID, "state": string(from)},
		bson.M{"$set": set},
	).Err()
	if err == nil {
		return true, nil
	}
	if !isNoDocuments(err) {
		return false, errors.Wrapf(err, "moving ledger entry to %s", to)
	}

	n, err := repo.entries.CountDocuments(ctx, bson.M{"_id": sessionID})
	if err != nil {
		return false, errors.Wrap(err, "checking ledger entry")
	}
	if n == 0 {
		return false, ledger.ErrNotFound
	}
	return false, nil
}

func (repo *ledgerRepository) CompleteEntry(ctx context.Context, sessionID, paymentRef string, at time.Time) (bool, error) {
	set := bson.M{"completed_at": at.UTC()}
	if paymentRef != "" {
		set["payment_reference"] = paymentRef
	}
	return repo.transition(ctx, sessionID, ledger.StatePending, ledger.StateCompleted, set)
}

func (repo *ledgerRepository) FailEntry(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	return repo.transition(ctx, sessionID, ledger.StatePending, ledger.StateFailed, bson.M{"failed_at": at.UTC()})
}

func (repo *ledgerRepository) RefundEntry(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	return repo.transition(ctx, sessionID, ledger.StateCompleted, ledger.StateRefunded, bson.M{"refunded_at": at.UTC()})
}

func (repo *ledgerRepository) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := repo.events.CountDocuments(ctx, bson.M{"_id": eventID})
	if err != nil {
		return false, errors.Wrap(err, "checking processed event")
	}
	return n > 0, nil
}

func (repo *ledgerRepository) MarkEventProcessed(ctx context.Context, ev ledger.ProcessedEvent) error {
	_, err := repo.events.UpdateOne(ctx,
		bson.M{"_id": ev.EventID},
		bson.M{"$setOnInsert": bson.M{
			"type":         ev.Type,
			"session_id":   ev.SessionID,
			"processed_at": ev.ProcessedAt.UTC(),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return errors.Wrap(err, "marking event processed")
	}
	return nil
}
