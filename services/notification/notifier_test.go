package notificationsvc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/enrollment"
	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/services/email"
	"github.com/trezcool/masomo-academy/tests"
)

func newTestReceipt(t *testing.T) enrollment.Receipt {
	return enrollment.Receipt{
		SessionID:    "cs_1",
		LearnerID:    "l1",
		LearnerName:  "Hero",
		LearnerEmail: "hero@test.cd",
		Items: []ledger.LineItem{
			{ItemID: "c1", Title: "Go 101", Kind: ledger.KindCourse, Quantity: 1, UnitPrice: testutil.Decimal(t, "49.99")},
		},
		Amount:      testutil.Decimal(t, "49.99"),
		Currency:    "usd",
		CompletedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func Test_emailNotifier_NotifyEnrollment(t *testing.T) {
	conf := testutil.NewConfig()
	core.ParseEmailTemplates(conf, testutil.NopLogger{})
	emailsvc.ResetSentMessages()

	n := NewEmailNotifier(emailsvc.NewConsoleServiceMock(conf, testutil.NopLogger{}))
	require.NoError(t, n.NotifyEnrollment(context.Background(), newTestReceipt(t)))

	require.Len(t, emailsvc.SentMessages, 1)
	msg := emailsvc.SentMessages[0]
	assert.Equal(t, "hero@test.cd", msg.To[0].Address)
	assert.Contains(t, msg.TextContent, "Hi Hero,")
	assert.Contains(t, msg.TextContent, "49.99 USD")
	assert.Contains(t, msg.TextContent, "- Go 101 x1")
	assert.Contains(t, msg.HTMLContent, "Go 101")
	assert.Equal(t, []string{"enrollment"}, msg.Categories)
	assert.Equal(t, "cs_1", msg.Args["session_id"])

	require.Len(t, msg.Attachments, 1)
	at := msg.Attachments[0]
	assert.Equal(t, "receipt-cs_1.csv", at.Filename)
	assert.Equal(t, "text/csv", at.ContentType)
	receipt, err := base64.StdEncoding.DecodeString(at.Content.String())
	require.NoError(t, err)
	assert.Equal(t,
		"item,kind,quantity,unit_price,total,currency\nGo 101,course,1,49.99,49.99,USD\nTOTAL,,,,49.99,USD\n",
		string(receipt),
	)

	r := newTestReceipt(t)
	r.LearnerEmail = ""
	assert.Error(t, n.NotifyEnrollment(context.Background(), r))
}

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
}

func (ch *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if ch.err != nil {
		return ch.err
	}
	ch.keys = append(ch.keys, key)
	ch.published = append(ch.published, msg)
	return nil
}

func TestRabbitMQNotifier_NotifyEnrollment(t *testing.T) {
	ch := &fakeChannel{}
	n := &RabbitMQNotifier{chn: ch, queue: "enrollment_notifications"}

	require.NoError(t, n.NotifyEnrollment(context.Background(), newTestReceipt(t)))
	require.Len(t, ch.published, 1)
	assert.Equal(t, "enrollment_notifications", ch.keys[0])

	pub := ch.published[0]
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, "cs_1", pub.MessageId)

	var msg EnrollmentMessage
	require.NoError(t, json.Unmarshal(pub.Body, &msg))
	assert.Equal(t, "l1", msg.LearnerID)
	assert.Equal(t, "hero@test.cd", msg.Email)
	assert.True(t, testutil.Decimal(t, "49.99").Equal(msg.Amount))
	assert.Len(t, msg.Items, 1)

	ch.err = errors.New("channel closed")
	assert.Error(t, n.NotifyEnrollment(context.Background(), newTestReceipt(t)))
}

func TestNewNotifier(t *testing.T) {
	conf := testutil.NewConfig()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NopLogger{})

	n, closeFn, err := NewNotifier(conf, mailSvc, testutil.NopLogger{})
	require.NoError(t, err)
	assert.IsType(t, &emailNotifier{}, n)
	assert.NoError(t, closeFn())

	conf.Notification.Backend = BackendLog
	n, _, err = NewNotifier(conf, mailSvc, testutil.NopLogger{})
	require.NoError(t, err)
	assert.NoError(t, n.NotifyEnrollment(context.Background(), newTestReceipt(t)))

	conf.Notification.Backend = "pigeon"
	_, _, err = NewNotifier(conf, mailSvc, testutil.NopLogger{})
	assert.Error(t, err)
}
