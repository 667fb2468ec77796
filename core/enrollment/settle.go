package enrollment

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core/course"
	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/core/payment"
	"github.com/trezcool/masomo-academy/core/roster"
	"github.com/trezcool/masomo-academy/core/user"
)

// Outcome is the result of a settlement attempt.
type Outcome struct {
	Entry ledger.Entry
	// Applied is true for the attempt that moved the entry out of pending.
	Applied bool
}

// Settle confirms a paid session: it grants course access then completes the ledger entry.
// Every trigger (poll, webhook, reconciliation) goes through it and it is safe to call any
// number of times, concurrently or not: only the first completion decrements stock and notifies.
func (svc *Service) Settle(ctx context.Context, sessionID, paymentRef string) (Outcome, error) {
	v, err, _ := svc.flight.Do(sessionID, func() (interface{}, error) {
		return svc.settle(ctx, sessionID, paymentRef)
	})
	if err != nil {
		return Outcome{}, err
	}
	return v.(Outcome), nil
}

func (svc *Service) settle(ctx context.Context, sessionID, paymentRef string) (Outcome, error) {
	entry, err := svc.Ledger.GetEntry(ctx, sessionID)
	if err != nil {
		if errors.Cause(err) == ledger.ErrNotFound {
			svc.Logger.Error("settlement without ledger entry", map[string]interface{}{"session_id": sessionID})
			return Outcome{}, errors.Wrap(ErrNoLedgerEntry, sessionID)
		}
		return Outcome{}, errors.Wrap(err, "getting ledger entry")
	}
	switch entry.State {
	case ledger.StateCompleted, ledger.StateRefunded:
		return Outcome{Entry: entry}, nil
	case ledger.StateFailed:
		return Outcome{Entry: entry}, errors.Wrap(ErrNotSettleable, sessionID)
	}

	learner, err := svc.Identity.GetByID(ctx, entry.LearnerID)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return Outcome{}, errors.Wrap(err, "getting learner")
		}
		svc.Logger.Warn("settling for an unknown learner", map[string]interface{}{"session_id": sessionID, "learner_id": entry.LearnerID})
		learner = user.User{ID: entry.LearnerID}
	}

	// access is granted before the ledger moves: a crash in between leaves a pending entry
	// that the next trigger completes, never a completed entry without access.
	now := svc.nowFunc()
	courseIDs := entry.CourseIDs()
	if len(courseIDs) > 0 {
		entries := make([]roster.Entry, 0, len(courseIDs))
		for _, courseID := range courseIDs {
			entries = append(entries, roster.Entry{
				CourseID:    courseID,
				LearnerID:   entry.LearnerID,
				LearnerName: learner.Name,
				EnrolledAt:  now,
				Origin:      roster.OriginPaid,
				SessionID:   sessionID,
			})
		}
		if _, err = svc.Roster.AddEntries(ctx, entries...); err != nil {
			return Outcome{}, errors.Wrap(err, "adding roster entries")
		}
	}

	won, err := svc.Ledger.CompleteEntry(ctx, sessionID, paymentRef, now)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "completing ledger entry")
	}
	if !won {
		if entry, err = svc.Ledger.GetEntry(ctx, sessionID); err != nil {
			return Outcome{}, errors.Wrap(err, "getting ledger entry")
		}
		if entry.State == ledger.StateFailed {
			return Outcome{Entry: entry}, errors.Wrap(ErrNotSettleable, sessionID)
		}
		return Outcome{Entry: entry}, nil
	}

	entry.State = ledger.StateCompleted
	entry.PaymentReference = paymentRef
	entry.CompletedAt = &now
	svc.afterSettlement(ctx, entry, learner)

	svc.Logger.Info("payment settled", map[string]interface{}{
		"session_id": sessionID,
		"learner_id": entry.LearnerID,
		"amount":     entry.Amount.StringFixed(2),
	})
	return Outcome{Entry: entry, Applied: true}, nil
}

// afterSettlement runs the side effects owned by the winner of the completion. Their failure
// never undoes a settlement, so errors are only reported.
func (svc *Service) afterSettlement(ctx context.Context, entry ledger.Entry, learner user.User) {
	for _, li := range entry.Items {
		if li.Kind != ledger.KindMerch {
			continue
		}
		if err := svc.Catalog.DecrementStock(ctx, li.ItemID, li.Quantity); err != nil {
			if errors.Cause(err) == course.ErrInsufficientStock {
				svc.Logger.Error("item oversold", err, map[string]interface{}{"session_id": entry.SessionID, "item_id": li.ItemID})
				continue
			}
			svc.Logger.Error("could not decrement stock", err, map[string]interface{}{"session_id": entry.SessionID, "item_id": li.ItemID})
		}
	}

	if svc.Notifier == nil {
		return
	}
	err := svc.Notifier.NotifyEnrollment(ctx, Receipt{
		SessionID:    entry.SessionID,
		LearnerID:    entry.LearnerID,
		LearnerName:  learner.Name,
		LearnerEmail: learner.Email,
		Items:        entry.Items,
		Amount:       entry.Amount,
		Currency:     entry.Currency,
		CompletedAt:  *entry.CompletedAt,
	})
	if err != nil {
		svc.Logger.Warn("could not notify enrollment", err, map[string]interface{}{"session_id": entry.SessionID})
	}
}

// Expire fails a pending entry whose session will never be paid.
func (svc *Service) Expire(ctx context.Context, sessionID string) (bool, error) {
	won, err := svc.Ledger.FailEntry(ctx, sessionID, svc.nowFunc())
	if err != nil {
		if errors.Cause(err) == ledger.ErrNotFound {
			svc.Logger.Info("expired session without ledger entry", map[string]interface{}{"session_id": sessionID})
			return false, nil
		}
		return false, errors.Wrap(err, "failing ledger entry")
	}
	if won {
		svc.Logger.Info("payment session expired", map[string]interface{}{"session_id": sessionID})
	}
	return won, nil
}

// Refund records a refund of a completed entry. Course access is left untouched.
func (svc *Service) Refund(ctx context.Context, paymentRef string) (bool, error) {
	entry, err := svc.Ledger.GetEntryByPaymentReference(ctx, paymentRef)
	if err != nil {
		if errors.Cause(err) == ledger.ErrNotFound {
			svc.Logger.Warn("refund of an unknown payment", map[string]interface{}{"payment_reference": paymentRef})
			return false, nil
		}
		return false, errors.Wrap(err, "getting ledger entry")
	}
	won, err := svc.Ledger.RefundEntry(ctx, entry.SessionID, svc.nowFunc())
	if err != nil {
		return false, errors.Wrap(err, "refunding ledger entry")
	}
	if won {
		svc.Logger.Warn("payment refunded, course access kept", map[string]interface{}{
			"session_id": entry.SessionID,
			"learner_id": entry.LearnerID,
			"courses":    entry.CourseIDs(),
		})
	}
	return won, nil
}

// Verify resolves the state of a session on behalf of the learner returning from the payment page.
func (svc *Service) Verify(ctx context.Context, sessionID, learnerID string) (VerifyResult, error) {
	entry, err := svc.Ledger.GetEntry(ctx, sessionID)
	switch {
	case err == nil:
		if learnerID != "" && entry.LearnerID != learnerID {
			return VerifyResult{}, errors.Wrap(ledger.ErrNotFound, sessionID)
		}
		switch entry.State {
		case ledger.StateCompleted, ledger.StateRefunded:
			return VerifyResult{Completed: true, State: entry.State}, nil
		case ledger.StateFailed:
			return VerifyResult{State: entry.State}, nil
		}
	case errors.Cause(err) != ledger.ErrNotFound:
		return VerifyResult{}, errors.Wrap(err, "getting ledger entry")
	}

	pctx, cancel := svc.providerCtx(ctx)
	defer cancel()
	sess, perr := svc.Processor.RetrieveSession(pctx, sessionID)
	if perr != nil {
		if errors.Cause(perr) == payment.ErrSessionNotFound {
			return VerifyResult{}, errors.Wrap(ledger.ErrNotFound, sessionID)
		}
		return VerifyResult{}, errors.Wrap(perr, "retrieving payment session")
	}
	if err != nil {
		// no ledger entry: only the session metadata tells who paid
		meta, merr := payment.ParseMetadata(sess.Metadata)
		if merr != nil || (learnerID != "" && meta.LearnerID != learnerID) {
			return VerifyResult{}, errors.Wrap(ledger.ErrNotFound, sessionID)
		}
	}

	switch {
	case sess.IsPaid():
		out, err := svc.Settle(ctx, sess.ID, sess.PaymentReference)
		if err != nil {
			if errors.Cause(err) == ErrNotSettleable {
				return VerifyResult{State: ledger.StateFailed}, nil
			}
			return VerifyResult{}, err
		}
		return VerifyResult{Completed: true, State: out.Entry.State}, nil
	case sess.Status == payment.SessionExpired:
		if _, err := svc.Expire(ctx, sess.ID); err != nil {
			return VerifyResult{}, err
		}
		return VerifyResult{State: ledger.StateFailed}, nil
	}
	return VerifyResult{State: ledger.StatePending}, nil
}

// HandleWebhook processes a provider event. A returned error asks the provider to deliver it again.
func (svc *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := svc.Processor.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Cause(err) == payment.ErrInvalidSignature {
			svc.Logger.Warn("rejected webhook", err)
		}
		return errors.Wrap(err, "parsing webhook")
	}
	if ev == nil {
		return nil
	}

	seen, err := svc.Ledger.IsEventProcessed(ctx, ev.ID)
	if err != nil {
		return errors.Wrap(err, "checking event")
	}
	if seen {
		return nil
	}

	if err = svc.dispatch(ctx, ev); err != nil {
		return err
	}

	return svc.Ledger.MarkEventProcessed(ctx, ledger.ProcessedEvent{
		EventID:     ev.ID,
		Type:        string(ev.Type),
		SessionID:   ev.Session.ID,
		ProcessedAt: svc.nowFunc(),
	})
}

func (svc *Service) dispatch(ctx context.Context, ev *payment.Event) error {
	switch ev.Type {
	case payment.EventSessionCompleted, payment.EventSessionAsyncPaymentPassed:
		if !ev.Session.IsPaid() {
			// delayed payment method: the async events follow
			return nil
		}
		_, err := svc.Settle(ctx, ev.Session.ID, ev.Session.PaymentReference)
		if errors.Cause(err) == ErrNotSettleable {
			svc.Logger.Error("payment collected for a failed entry", err, map[string]interface{}{"session_id": ev.Session.ID, "event_id": ev.ID})
			return nil
		}
		return err
	case payment.EventSessionExpired, payment.EventSessionAsyncPaymentFailed:
		_, err := svc.Expire(ctx, ev.Session.ID)
		return err
	case payment.EventChargeRefunded:
		_, err := svc.Refund(ctx, ev.PaymentReference)
		return err
	}
	return nil
}
