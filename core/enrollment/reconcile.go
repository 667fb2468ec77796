package enrollment

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/core/payment"
)

// ReconcileReport sums up a reconciliation run.
type ReconcileReport struct {
	Scanned       int      `json:"scanned"`
	Recovered     int      `json:"recovered"`     // ledger entries rebuilt from session metadata
	Settled       int      `json:"settled"`       // settlements applied by this run
	Expired       int      `json:"expired"`       // pending entries failed by this run
	Skipped       int      `json:"skipped"`       // sessions not created by the platform
	Unrecoverable []string `json:"unrecoverable"` // session ids needing an operator
}

type reconcileResult int

const (
	resultNone reconcileResult = iota
	resultSettled
	resultExpired
	resultSkipped
)

// Reconcile compares the sessions created since the given time, and the pending ledger entries,
// with the processor state. Orphaned sessions are rebuilt from their metadata, then every paid
// session is settled and every expired one failed.
func (svc *Service) Reconcile(ctx context.Context, since time.Time) (ReconcileReport, error) {
	var report ReconcileReport

	pctx, cancel := svc.providerCtx(ctx)
	sessions, err := svc.Processor.ListSessions(pctx, since)
	cancel()
	if err != nil {
		return report, errors.Wrap(err, "listing payment sessions")
	}

	// pending entries older than the window still need an answer
	pending, err := svc.Ledger.QueryEntries(ctx, ledger.QueryFilter{States: []ledger.State{ledger.StatePending}})
	if err != nil {
		return report, errors.Wrap(err, "querying pending entries")
	}
	listed := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		listed[s.ID] = true
	}

	var mu sync.Mutex
	record := func(sessionID string, recovered bool, res reconcileResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Scanned++
		if recovered {
			report.Recovered++
		}
		if err != nil {
			svc.Logger.Error("could not reconcile session", err, map[string]interface{}{"session_id": sessionID})
			report.Unrecoverable = append(report.Unrecoverable, sessionID)
			return
		}
		switch res {
		case resultSettled:
			report.Settled++
		case resultExpired:
			report.Expired++
		case resultSkipped:
			report.Skipped++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(svc.opts.ReconcileWorkers)
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			recovered, res, err := svc.reconcileSession(gctx, s)
			record(s.ID, recovered, res, err)
			return nil
		})
	}
	for _, e := range pending {
		if listed[e.SessionID] {
			continue
		}
		sessionID := e.SessionID
		g.Go(func() error {
			pctx, cancel := svc.providerCtx(gctx)
			s, err := svc.Processor.RetrieveSession(pctx, sessionID)
			cancel()
			if err != nil {
				record(sessionID, false, resultNone, errors.Wrap(err, "retrieving payment session"))
				return nil
			}
			res, err := svc.applySessionState(gctx, s)
			record(sessionID, false, res, err)
			return nil
		})
	}
	_ = g.Wait()

	if err = ctx.Err(); err != nil {
		return report, err
	}
	svc.Logger.Info("reconciliation done", map[string]interface{}{
		"scanned":       report.Scanned,
		"recovered":     report.Recovered,
		"settled":       report.Settled,
		"expired":       report.Expired,
		"unrecoverable": len(report.Unrecoverable),
	})
	return report, nil
}

func (svc *Service) reconcileSession(ctx context.Context, s payment.Session) (bool, reconcileResult, error) {
	if !payment.IsPlatformSession(s.Metadata) {
		return false, resultSkipped, nil
	}
	meta, err := payment.ParseMetadata(s.Metadata)
	if err != nil {
		return false, resultNone, err
	}

	var recovered bool
	_, err = svc.Ledger.GetEntry(ctx, s.ID)
	switch {
	case errors.Cause(err) == ledger.ErrNotFound:
		if s.Status == payment.SessionExpired {
			return false, resultSkipped, nil
		}
		if err = svc.recoverEntry(ctx, s, meta); err != nil {
			return false, resultNone, err
		}
		recovered = true
	case err != nil:
		return false, resultNone, errors.Wrap(err, "getting ledger entry")
	}

	res, err := svc.applySessionState(ctx, s)
	return recovered, res, err
}

func (svc *Service) applySessionState(ctx context.Context, s payment.Session) (reconcileResult, error) {
	switch {
	case s.IsPaid():
		out, err := svc.Settle(ctx, s.ID, s.PaymentReference)
		if err != nil {
			return resultNone, err
		}
		if out.Applied {
			return resultSettled, nil
		}
	case s.Status == payment.SessionExpired:
		won, err := svc.Expire(ctx, s.ID)
		if err != nil {
			return resultNone, err
		}
		if won {
			return resultExpired, nil
		}
	}
	return resultNone, nil
}

// recoverEntry rebuilds the pending ledger entry of a session from its metadata.
// The rebuilt amount must match what the processor collected.
func (svc *Service) recoverEntry(ctx context.Context, s payment.Session, meta payment.Metadata) error {
	lineItems := make([]ledger.LineItem, 0, len(meta.Items))
	for _, iq := range meta.Items {
		it, err := svc.Catalog.GetPurchasableItem(ctx, iq.ItemID)
		if err != nil {
			return errors.Wrapf(err, "getting item %s", iq.ItemID)
		}
		lineItems = append(lineItems, ledger.LineItem{
			ItemID:    it.ID,
			Title:     it.Title,
			Kind:      string(it.Kind),
			Quantity:  iq.Quantity,
			UnitPrice: it.Price,
		})
	}

	currency := s.Currency
	if currency == "" {
		currency = svc.opts.Currency
	}
	entry, err := ledger.NewPendingEntry(s.ID, meta.LearnerID, currency, lineItems, s.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "rebuilding ledger entry")
	}
	if !s.AmountTotal.IsZero() && !entry.Amount.Equal(s.AmountTotal) {
		return errors.Errorf("rebuilt amount %s does not match collected amount %s", entry.Amount.StringFixed(2), s.AmountTotal.StringFixed(2))
	}
	if err = svc.Ledger.CreateEntry(ctx, entry); err != nil && errors.Cause(err) != ledger.ErrDuplicateSession {
		return errors.Wrap(err, "recording ledger entry")
	}
	svc.Logger.Warn("ledger entry rebuilt from session metadata", map[string]interface{}{"session_id": s.ID, "learner_id": meta.LearnerID})
	return nil
}
