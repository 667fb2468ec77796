package paymentsvc

import (
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/payment"
)

const testWebhookSecret = "whsec_test"

func newTestStripeProcessor() payment.Processor {
	conf := &core.Config{Payment: core.PaymentConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret}}
	return NewStripeProcessor(conf)
}

func signStripePayload(payload string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func Test_toCents(t *testing.T) {
	assert.Equal(t, int64(4999), toCents(decimal.RequireFromString("49.99")))
	assert.Equal(t, int64(1000), toCents(decimal.NewFromInt(10)))
	assert.Equal(t, int64(1), toCents(decimal.RequireFromString("0.005")))
	assert.True(t, decimal.RequireFromString("49.99").Equal(fromCents(4999)))
}

func Test_stripeProcessor_ParseWebhook(t *testing.T) {
	sp := newTestStripeProcessor()

	t.Run("checkout session completed", func(t *testing.T) {
		payload := `{
			"id": "evt_1",
			"object": "event",
			"type": "checkout.session.completed",
			"data": {"object": {
				"id": "cs_1",
				"object": "checkout.session",
				"status": "complete",
				"payment_status": "paid",
				"payment_intent": "pi_1",
				"amount_total": 4999,
				"currency": "usd",
				"created": 1700000000,
				"metadata": {"purpose": "enrollment", "learner_id": "l1", "items": "c1:1"}
			}}
		}`
		ev, err := sp.ParseWebhook([]byte(payload), signStripePayload(payload))
		require.NoError(t, err)
		require.NotNil(t, ev)

		assert.Equal(t, "evt_1", ev.ID)
		assert.Equal(t, payment.EventSessionCompleted, ev.Type)
		assert.Equal(t, "cs_1", ev.Session.ID)
		assert.True(t, ev.Session.IsPaid())
		assert.Equal(t, payment.SessionComplete, ev.Session.Status)
		assert.Equal(t, "pi_1", ev.Session.PaymentReference)
		assert.True(t, decimal.RequireFromString("49.99").Equal(ev.Session.AmountTotal))
		assert.Equal(t, "l1", ev.Session.Metadata["learner_id"])
	})

	t.Run("charge refunded", func(t *testing.T) {
		payload := `{
			"id": "evt_2",
			"object": "event",
			"type": "charge.refunded",
			"data": {"object": {"id": "ch_1", "object": "charge", "payment_intent": "pi_1"}}
		}`
		ev, err := sp.ParseWebhook([]byte(payload), signStripePayload(payload))
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, payment.EventChargeRefunded, ev.Type)
		assert.Equal(t, "pi_1", ev.PaymentReference)
	})

	t.Run("ignored event", func(t *testing.T) {
		payload := `{"id": "evt_3", "object": "event", "type": "customer.created", "data": {"object": {"id": "cus_1"}}}`
		ev, err := sp.ParseWebhook([]byte(payload), signStripePayload(payload))
		require.NoError(t, err)
		assert.Nil(t, ev)
	})

	t.Run("forged signature", func(t *testing.T) {
		payload := `{"id": "evt_4", "object": "event", "type": "checkout.session.completed", "data": {"object": {"id": "cs_1"}}}`
		_, err := sp.ParseWebhook([]byte(payload), "t=1700000000,v1=deadbeef")
		assert.Equal(t, payment.ErrInvalidSignature, errors.Cause(err))
	})

	t.Run("tampered payload", func(t *testing.T) {
		payload := `{"id": "evt_5", "object": "event", "type": "checkout.session.completed", "data": {"object": {"id": "cs_1"}}}`
		sig := signStripePayload(payload)
		_, err := sp.ParseWebhook([]byte(payload+" "), sig)
		assert.Equal(t, payment.ErrInvalidSignature, errors.Cause(err))
	})
}

func Test_mapStripeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "network", err: errors.New("dial tcp: i/o timeout"), want: payment.ErrProviderUnavailable},
		{name: "outage", err: &stripe.Error{HTTPStatusCode: http.StatusBadGateway}, want: payment.ErrProviderUnavailable},
		{name: "rate limited", err: &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests}, want: payment.ErrProviderUnavailable},
		{name: "missing session", err: &stripe.Error{HTTPStatusCode: http.StatusNotFound}, want: payment.ErrSessionNotFound},
		{name: "bad request", err: &stripe.Error{HTTPStatusCode: http.StatusBadRequest}, want: payment.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Cause(mapStripeError(tt.err)))
		})
	}
	assert.True(t, payment.IsRetryable(mapStripeError(errors.New("EOF"))))
}
