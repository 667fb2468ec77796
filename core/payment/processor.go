package payment

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// errors
	ErrSessionNotFound = errors.New("payment session not found")
	// ErrInvalidSignature is permanent: a webhook failing verification is never retried.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrProviderUnavailable is retryable: the processor could not be reached or failed on its side.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrInvalidRequest      = errors.New("invalid payment request")
)

type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionComplete SessionStatus = "complete"
	SessionExpired  SessionStatus = "expired"
)

type PaymentStatus string

const (
	PaymentPaid              PaymentStatus = "paid"
	PaymentUnpaid            PaymentStatus = "unpaid"
	PaymentNoPaymentRequired PaymentStatus = "no_payment_required"
)

type EventType string

const (
	EventSessionCompleted          EventType = "checkout.session.completed"
	EventSessionAsyncPaymentPassed EventType = "checkout.session.async_payment_succeeded"
	EventSessionAsyncPaymentFailed EventType = "checkout.session.async_payment_failed"
	EventSessionExpired            EventType = "checkout.session.expired"
	EventChargeRefunded            EventType = "charge.refunded"
)

type (
	LineItem struct {
		Name      string
		Quantity  int
		UnitPrice decimal.Decimal
	}

	SessionRequest struct {
		LineItems     []LineItem
		Currency      string
		SuccessURL    string
		CancelURL     string
		CustomerEmail string
		// Metadata is mandatory: it is the only way to rebuild a ledger entry lost after session creation.
		Metadata Metadata
	}

	Session struct {
		ID               string
		RedirectURL      string
		Status           SessionStatus
		PaymentStatus    PaymentStatus
		PaymentReference string
		AmountTotal      decimal.Decimal
		Currency         string
		CustomerEmail    string
		Metadata         map[string]string
		CreatedAt        time.Time
	}

	// Event is a verified webhook delivery, normalized from the provider format.
	Event struct {
		ID               string
		Type             EventType
		Session          Session // checkout.session.* events
		PaymentReference string  // charge.* events
	}

	// Processor is the external payment processor.
	Processor interface {
		CreateSession(ctx context.Context, req SessionRequest) (Session, error)
		RetrieveSession(ctx context.Context, sessionID string) (Session, error)
		// ListSessions returns the sessions created after the given time, most recent first.
		ListSessions(ctx context.Context, createdAfter time.Time) ([]Session, error)
		// ParseWebhook verifies the signature of the raw payload and normalizes the event.
		// It returns nil, nil for event types the platform does not handle.
		ParseWebhook(payload []byte, signature string) (*Event, error)
	}
)

// IsPaid reports whether the money has been collected for the session.
func (s Session) IsPaid() bool {
	return s.PaymentStatus == PaymentPaid
}

// IsRetryable tells whether an operation failing with err may succeed when retried as is.
func IsRetryable(err error) bool {
	return errors.Cause(err) == ErrProviderUnavailable
}
