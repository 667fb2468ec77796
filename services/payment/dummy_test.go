package paymentsvc

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/payment"
)

func newTestDummyProcessor() *DummyProcessor {
	return NewDummyProcessor(&core.Config{
		FrontendBaseURL: "http://localhost:3000",
		Payment:         core.PaymentConfig{WebhookSecret: testWebhookSecret},
	})
}

func newTestSessionRequest() payment.SessionRequest {
	return payment.SessionRequest{
		LineItems: []payment.LineItem{
			{Name: "Go 101", Quantity: 1, UnitPrice: decimal.RequireFromString("49.99")},
			{Name: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("5.15")},
		},
		Currency: "usd",
		Metadata: payment.Metadata{LearnerID: "l1", Items: []payment.MetadataItem{{ItemID: "c1", Quantity: 1}, {ItemID: "m1", Quantity: 2}}},
	}
}

func TestDummyProcessor_CreateSession(t *testing.T) {
	ctx := context.Background()
	dp := newTestDummyProcessor()

	s, err := dp.CreateSession(ctx, newTestSessionRequest())
	require.NoError(t, err)
	assert.Contains(t, s.RedirectURL, "session_id="+s.ID)
	assert.Equal(t, payment.SessionOpen, s.Status)
	assert.False(t, s.IsPaid())
	assert.True(t, decimal.RequireFromString("60.29").Equal(s.AmountTotal))

	meta, err := payment.ParseMetadata(s.Metadata)
	require.NoError(t, err)
	assert.Equal(t, "l1", meta.LearnerID)

	_, err = dp.CreateSession(ctx, payment.SessionRequest{LineItems: newTestSessionRequest().LineItems})
	assert.Equal(t, payment.ErrInvalidRequest, errors.Cause(err), "metadata is mandatory")

	dp.SetUnavailable(true)
	_, err = dp.CreateSession(ctx, newTestSessionRequest())
	assert.True(t, payment.IsRetryable(err))
}

func TestDummyProcessor_MarkPaid(t *testing.T) {
	ctx := context.Background()
	dp := newTestDummyProcessor()
	s, err := dp.CreateSession(ctx, newTestSessionRequest())
	require.NoError(t, err)

	_, err = dp.MarkPaid(s.ID)
	require.NoError(t, err)

	got, err := dp.RetrieveSession(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPaid())
	assert.NotEmpty(t, got.PaymentReference)

	_, err = dp.RetrieveSession(ctx, "cs_unknown")
	assert.Equal(t, payment.ErrSessionNotFound, errors.Cause(err))

	sessions, err := dp.ListSessions(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	sessions, err = dp.ListSessions(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestDummyProcessor_ParseWebhook(t *testing.T) {
	ctx := context.Background()
	dp := newTestDummyProcessor()
	s, err := dp.CreateSession(ctx, newTestSessionRequest())
	require.NoError(t, err)
	_, err = dp.MarkPaid(s.ID)
	require.NoError(t, err)

	payload, sig := dp.SignEvent("evt_1", payment.EventSessionCompleted, s.ID)
	ev, err := dp.ParseWebhook(payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, s.ID, ev.Session.ID)
	assert.True(t, ev.Session.IsPaid())

	_, err = dp.ParseWebhook(payload, "deadbeef")
	assert.Equal(t, payment.ErrInvalidSignature, errors.Cause(err))
	_, err = dp.ParseWebhook(payload, "not hex")
	assert.Equal(t, payment.ErrInvalidSignature, errors.Cause(err))

	payload, sig = dp.SignEvent("evt_2", "customer.created", s.ID)
	ev, err = dp.ParseWebhook(payload, sig)
	require.NoError(t, err)
	assert.Nil(t, ev)
}
