package notificationsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/enrollment"
	"github.com/trezcool/masomo-academy/core/ledger"
)

const publishTimeout = 5 * time.Second

// publisher is the part of *amqp.Channel used to notify.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type (
	// EnrollmentMessage is the body published for every settled payment.
	EnrollmentMessage struct {
		SessionID   string            `json:"session_id"`
		LearnerID   string            `json:"learner_id"`
		LearnerName string            `json:"learner_name"`
		Email       string            `json:"email"`
		Amount      decimal.Decimal   `json:"amount"`
		Currency    string            `json:"currency"`
		Items       []ledger.LineItem `json:"items"`
		CompletedAt time.Time         `json:"completed_at"`
	}

	RabbitMQNotifier struct {
		conn  *amqp.Connection
		chn   publisher
		queue string
	}
)

var _ enrollment.Notifier = (*RabbitMQNotifier)(nil) // interface compliance check

// NewRabbitMQNotifier connects to the broker and declares the durable enrollment queue.
func NewRabbitMQNotifier(conf *core.Config) (*RabbitMQNotifier, error) {
	conn, err := amqp.Dial(conf.Notification.RabbitMQURL)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to rabbitmq")
	}
	chn, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening channel")
	}
	_, err = chn.QueueDeclare(
		conf.Notification.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "declaring queue")
	}
	return &RabbitMQNotifier{conn: conn, chn: chn, queue: conf.Notification.Queue}, nil
}

func (n *RabbitMQNotifier) NotifyEnrollment(ctx context.Context, r enrollment.Receipt) error {
	body, err := json.Marshal(EnrollmentMessage{
		SessionID:   r.SessionID,
		LearnerID:   r.LearnerID,
		LearnerName: r.LearnerName,
		Email:       r.LearnerEmail,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Items:       r.Items,
		CompletedAt: r.CompletedAt,
	})
	if err != nil {
		return errors.Wrap(err, "encoding message")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = n.chn.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    r.SessionID,
		Timestamp:    r.CompletedAt,
		Body:         body,
	})
	return errors.Wrap(err, "publishing enrollment")
}

func (n *RabbitMQNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}
