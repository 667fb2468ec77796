package paymentsvc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/core/payment"
)

// DummyProcessor keeps the sessions in memory. It is used in development and tests, where
// payments are confirmed by calling MarkPaid then delivering the event returned by SignEvent.
type DummyProcessor struct {
	mu          sync.Mutex
	sessions    map[string]*payment.Session
	secret      []byte
	redirectURL string
	unavailable bool
}

var _ payment.Processor = (*DummyProcessor)(nil) // interface compliance check

func NewDummyProcessor(conf *core.Config) *DummyProcessor {
	return &DummyProcessor{
		sessions:    make(map[string]*payment.Session),
		secret:      []byte(conf.Payment.WebhookSecret),
		redirectURL: conf.FrontendBaseURL + "/checkout/dummy",
	}
}

// dummyEvent is the webhook payload format of the DummyProcessor.
type dummyEvent struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	SessionID        string `json:"session_id,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`
}

// SetUnavailable makes every call fail with payment.ErrProviderUnavailable.
func (dp *DummyProcessor) SetUnavailable(unavailable bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.unavailable = unavailable
}

func (dp *DummyProcessor) CreateSession(_ context.Context, req payment.SessionRequest) (payment.Session, error) {
	meta, err := req.Metadata.Encode()
	if err != nil {
		return payment.Session{}, errors.Wrap(payment.ErrInvalidRequest, err.Error())
	}
	if len(req.LineItems) == 0 {
		return payment.Session{}, errors.Wrap(payment.ErrInvalidRequest, "no line items")
	}

	dp.mu.Lock()
	defer dp.mu.Unlock()
	if dp.unavailable {
		return payment.Session{}, payment.ErrProviderUnavailable
	}

	items := make([]ledger.LineItem, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		items = append(items, ledger.LineItem{Quantity: li.Quantity, UnitPrice: li.UnitPrice})
	}
	id := "cs_dummy_" + uuid.New().String()
	s := &payment.Session{
		ID:            id,
		RedirectURL:   dp.redirectURL + "?session_id=" + id,
		Status:        payment.SessionOpen,
		PaymentStatus: payment.PaymentUnpaid,
		AmountTotal:   ledger.Total(items),
		Currency:      req.Currency,
		CustomerEmail: req.CustomerEmail,
		Metadata:      meta,
		CreatedAt:     time.Now().UTC(),
	}
	dp.sessions[id] = s
	return *s, nil
}

func (dp *DummyProcessor) RetrieveSession(_ context.Context, sessionID string) (payment.Session, error) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if dp.unavailable {
		return payment.Session{}, payment.ErrProviderUnavailable
	}
	s, ok := dp.sessions[sessionID]
	if !ok {
		return payment.Session{}, payment.ErrSessionNotFound
	}
	return *s, nil
}

func (dp *DummyProcessor) ListSessions(_ context.Context, createdAfter time.Time) ([]payment.Session, error) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if dp.unavailable {
		return nil, payment.ErrProviderUnavailable
	}
	sessions := make([]payment.Session, 0)
	for _, s := range dp.sessions {
		if s.CreatedAt.After(createdAfter) {
			sessions = append(sessions, *s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.After(sessions[j].CreatedAt) })
	return sessions, nil
}

func (dp *DummyProcessor) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	expected, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(expected, dp.sign(payload)) {
		return nil, payment.ErrInvalidSignature
	}

	var de dummyEvent
	if err = json.Unmarshal(payload, &de); err != nil {
		return nil, errors.Wrap(err, "decoding event")
	}
	ev := &payment.Event{ID: de.ID, Type: payment.EventType(de.Type), PaymentReference: de.PaymentReference}
	switch ev.Type {
	case payment.EventChargeRefunded:
	case payment.EventSessionCompleted,
		payment.EventSessionAsyncPaymentPassed,
		payment.EventSessionAsyncPaymentFailed,
		payment.EventSessionExpired:
		dp.mu.Lock()
		if s, ok := dp.sessions[de.SessionID]; ok {
			ev.Session = *s
		} else {
			ev.Session = payment.Session{ID: de.SessionID}
		}
		dp.mu.Unlock()
	default:
		return nil, nil
	}
	return ev, nil
}

func (dp *DummyProcessor) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, dp.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignEvent builds a signed webhook delivery for the given session (or payment reference,
// for refunds), as the provider would send it.
func (dp *DummyProcessor) SignEvent(eventID string, typ payment.EventType, ref string) (payload []byte, signature string) {
	de := dummyEvent{ID: eventID, Type: string(typ)}
	if typ == payment.EventChargeRefunded {
		de.PaymentReference = ref
	} else {
		de.SessionID = ref
	}
	payload, _ = json.Marshal(de)
	return payload, hex.EncodeToString(dp.sign(payload))
}

// MarkPaid completes the session as if the learner had paid.
func (dp *DummyProcessor) MarkPaid(sessionID string) (payment.Session, error) {
	return dp.update(sessionID, func(s *payment.Session) {
		s.Status = payment.SessionComplete
		s.PaymentStatus = payment.PaymentPaid
		s.PaymentReference = "pi_dummy_" + uuid.New().String()
	})
}

// Expire abandons the session.
func (dp *DummyProcessor) Expire(sessionID string) (payment.Session, error) {
	return dp.update(sessionID, func(s *payment.Session) {
		s.Status = payment.SessionExpired
	})
}

// AddSession registers a session created out of band.
func (dp *DummyProcessor) AddSession(s payment.Session) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.sessions[s.ID] = &s
}

func (dp *DummyProcessor) update(sessionID string, apply func(s *payment.Session)) (payment.Session, error) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	s, ok := dp.sessions[sessionID]
	if !ok {
		return payment.Session{}, payment.ErrSessionNotFound
	}
	apply(s)
	return *s, nil
}
