package enrollment

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core/course"
	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/core/payment"
	"github.com/trezcool/masomo-academy/core/roster"
)

// Checkout opens a payment session for the requested items and records it as pending in the ledger.
// Prices are always read from the catalog.
func (svc *Service) Checkout(ctx context.Context, learnerID string, req CheckoutRequest) (CheckoutResult, error) {
	if len(req.Items) == 0 {
		return CheckoutResult{}, validationErr(errors.New("at least one item is required"), "items")
	}
	if len(req.Items) > MaxCartItems {
		return CheckoutResult{}, validationErr(ErrCartTooLarge, "items")
	}
	learner, err := svc.getLearner(ctx, learnerID)
	if err != nil {
		return CheckoutResult{}, err
	}

	lineItems, err := svc.buildLineItems(ctx, learnerID, mergeQuantities(req.Items))
	if err != nil {
		return CheckoutResult{}, err
	}
	if !ledger.Total(lineItems).IsPositive() {
		return CheckoutResult{}, validationErr(ErrFreeItem, "items")
	}

	sessReq := payment.SessionRequest{
		Currency:      svc.opts.Currency,
		SuccessURL:    svc.opts.SuccessURL,
		CancelURL:     svc.opts.CancelURL,
		CustomerEmail: learner.Email,
		Metadata:      payment.Metadata{LearnerID: learnerID},
	}
	for _, li := range lineItems {
		sessReq.LineItems = append(sessReq.LineItems, payment.LineItem{Name: li.Title, Quantity: li.Quantity, UnitPrice: li.UnitPrice})
		sessReq.Metadata.Items = append(sessReq.Metadata.Items, payment.MetadataItem{ItemID: li.ItemID, Quantity: li.Quantity})
	}

	pctx, cancel := svc.providerCtx(ctx)
	defer cancel()
	sess, err := svc.Processor.CreateSession(pctx, sessReq)
	if err != nil {
		return CheckoutResult{}, errors.Wrap(err, "creating payment session")
	}

	entry, err := ledger.NewPendingEntry(sess.ID, learnerID, svc.opts.Currency, lineItems, svc.nowFunc())
	if err != nil {
		return CheckoutResult{}, errors.Wrap(err, "building ledger entry")
	}
	if err = svc.Ledger.CreateEntry(ctx, entry); err != nil {
		// the session metadata lets the reconciliation job rebuild the entry
		svc.Logger.Error("orphaned payment session", err, map[string]interface{}{"session_id": sess.ID, "learner_id": learnerID})
		return CheckoutResult{}, errors.Wrap(err, "recording ledger entry")
	}

	svc.Logger.Info("checkout session created", map[string]interface{}{
		"session_id": sess.ID,
		"learner_id": learnerID,
		"amount":     entry.Amount.StringFixed(2),
	})
	return CheckoutResult{SessionID: sess.ID, RedirectURL: sess.RedirectURL}, nil
}

func (svc *Service) buildLineItems(ctx context.Context, learnerID string, items []ItemQuantity) ([]ledger.LineItem, error) {
	lineItems := make([]ledger.LineItem, 0, len(items))
	for _, iq := range items {
		if iq.Quantity <= 0 {
			return nil, validationErr(errors.New("quantity must be at least 1"), "quantity")
		}
		it, err := svc.Catalog.GetPurchasableItem(ctx, iq.ItemID)
		if err != nil {
			return nil, errors.Wrapf(err, "getting item %s", iq.ItemID)
		}
		if !it.Active {
			return nil, validationErr(ErrItemInactive, "items")
		}
		if it.IsFree() {
			return nil, validationErr(ErrFreeItem, "items")
		}

		qty := iq.Quantity
		switch it.Kind {
		case course.KindCourse:
			qty = 1
			enrolled, err := roster.IsEnrolled(ctx, svc.Roster, it.ID, learnerID)
			if err != nil {
				return nil, err
			}
			if enrolled {
				return nil, validationErr(ErrAlreadyEnrolled, "items")
			}
		default:
			if it.TracksStock() && *it.Stock < qty {
				return nil, validationErr(ErrOutOfStock, "quantity")
			}
		}

		lineItems = append(lineItems, ledger.LineItem{
			ItemID:    it.ID,
			Title:     it.Title,
			Kind:      string(it.Kind),
			Quantity:  qty,
			UnitPrice: it.Price,
		})
	}
	return lineItems, nil
}

// mergeQuantities folds repeated items into one line, keeping the request order.
func mergeQuantities(items []ItemQuantity) []ItemQuantity {
	merged := make([]ItemQuantity, 0, len(items))
	index := make(map[string]int, len(items))
	for _, iq := range items {
		if i, ok := index[iq.ItemID]; ok {
			merged[i].Quantity += iq.Quantity
			continue
		}
		index[iq.ItemID] = len(merged)
		merged = append(merged, iq)
	}
	return merged
}
