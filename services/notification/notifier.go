package notificationsvc

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/enrollment"
)

// notification backends
const (
	BackendEmail    = "email"
	BackendRabbitMQ = "rabbitmq"
	BackendLog      = "log"
)

// NewNotifier picks the notification backend from the configuration.
// The returned close function releases the backend resources.
func NewNotifier(conf *core.Config, mailSvc core.EmailService, logger core.Logger) (enrollment.Notifier, func() error, error) {
	noop := func() error { return nil }
	switch conf.Notification.Backend {
	case "", BackendEmail:
		return NewEmailNotifier(mailSvc), noop, nil
	case BackendRabbitMQ:
		n, err := NewRabbitMQNotifier(conf)
		if err != nil {
			return nil, noop, err
		}
		return n, n.Close, nil
	case BackendLog:
		return &logNotifier{logger: logger}, noop, nil
	}
	return nil, noop, errors.Errorf("unknown notification backend %q", conf.Notification.Backend)
}

type logNotifier struct {
	logger core.Logger
}

func (n *logNotifier) NotifyEnrollment(_ context.Context, r enrollment.Receipt) error {
	n.logger.Info("enrollment notification", map[string]interface{}{
		"session_id": r.SessionID,
		"learner_id": r.LearnerID,
		"amount":     r.Amount.StringFixed(2),
	})
	return nil
}
