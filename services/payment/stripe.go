package paymentsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/payment"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

type stripeProcessor struct {
	sc            *client.API
	webhookSecret string
}

var _ payment.Processor = (*stripeProcessor)(nil) // interface compliance check

// NewStripeProcessor uses its own client instance, never the package level stripe.Key.
func NewStripeProcessor(conf *core.Config) payment.Processor {
	sc := &client.API{}
	sc.Init(conf.Payment.SecretKey, nil)
	return &stripeProcessor{sc: sc, webhookSecret: conf.Payment.WebhookSecret}
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func (sp *stripeProcessor) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	meta, err := req.Metadata.Encode()
	if err != nil {
		return payment.Session{}, errors.Wrap(payment.ErrInvalidRequest, err.Error())
	}
	if len(req.LineItems) == 0 {
		return payment.Session{}, errors.Wrap(payment.ErrInvalidRequest, "no line items")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: meta,
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for _, li := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
				UnitAmount: stripe.Int64(toCents(li.UnitPrice)),
			},
			Quantity: stripe.Int64(int64(li.Quantity)),
		})
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := sp.sc.CheckoutSessions.New(params)
	if err != nil {
		return payment.Session{}, mapStripeError(err)
	}
	return toSession(s), nil
}

func (sp *stripeProcessor) RetrieveSession(ctx context.Context, sessionID string) (payment.Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := sp.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return payment.Session{}, mapStripeError(err)
	}
	return toSession(s), nil
}

func (sp *stripeProcessor) ListSessions(ctx context.Context, createdAfter time.Time) ([]payment.Session, error) {
	params := &stripe.CheckoutSessionListParams{}
	params.Filters.AddFilter("created", "gt", strconv.FormatInt(createdAfter.Unix(), 10))
	params.Context = ctx

	sessions := make([]payment.Session, 0)
	it := sp.sc.CheckoutSessions.List(params)
	for it.Next() {
		sessions = append(sessions, toSession(it.CheckoutSession()))
	}
	if err := it.Err(); err != nil {
		return nil, mapStripeError(err)
	}
	return sessions, nil
}

func (sp *stripeProcessor) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, sp.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Wrap(payment.ErrInvalidSignature, err.Error())
	}

	ev := &payment.Event{ID: event.ID, Type: payment.EventType(event.Type)}
	switch ev.Type {
	case payment.EventSessionCompleted,
		payment.EventSessionAsyncPaymentPassed,
		payment.EventSessionAsyncPaymentFailed,
		payment.EventSessionExpired:
		var s stripe.CheckoutSession
		if err = json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, errors.Wrap(err, "decoding checkout session")
		}
		ev.Session = toSession(&s)
	case payment.EventChargeRefunded:
		var ch stripe.Charge
		if err = json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, errors.Wrap(err, "decoding charge")
		}
		if ch.PaymentIntent != nil {
			ev.PaymentReference = ch.PaymentIntent.ID
		}
	default:
		return nil, nil
	}
	return ev, nil
}

func toSession(s *stripe.CheckoutSession) payment.Session {
	sess := payment.Session{
		ID:            s.ID,
		RedirectURL:   s.URL,
		Status:        payment.SessionStatus(s.Status),
		PaymentStatus: payment.PaymentStatus(s.PaymentStatus),
		AmountTotal:   fromCents(s.AmountTotal),
		Currency:      string(s.Currency),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
		CreatedAt:     time.Unix(s.Created, 0).UTC(),
	}
	if s.PaymentIntent != nil {
		sess.PaymentReference = s.PaymentIntent.ID
	}
	return sess
}

// mapStripeError translates the client errors into the processor ones.
func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		// network error or deadline
		return errors.Wrap(payment.ErrProviderUnavailable, err.Error())
	}
	switch {
	case stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
		stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		return errors.Wrap(payment.ErrProviderUnavailable, stripeErr.Msg)
	case stripeErr.HTTPStatusCode == http.StatusNotFound:
		return errors.Wrap(payment.ErrSessionNotFound, stripeErr.Msg)
	}
	return errors.Wrap(payment.ErrInvalidRequest, stripeErr.Msg)
}
