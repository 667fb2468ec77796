package notificationsvc

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/mail"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/enrollment"
)

const enrollmentTemplate = "enrollment_confirmed"

type emailNotifier struct {
	mailSvc core.EmailService
}

var _ enrollment.Notifier = (*emailNotifier)(nil) // interface compliance check

// NewEmailNotifier sends the payment receipt by email; sending happens in the background.
func NewEmailNotifier(mailSvc core.EmailService) enrollment.Notifier {
	return &emailNotifier{mailSvc: mailSvc}
}

func (n *emailNotifier) NotifyEnrollment(_ context.Context, r enrollment.Receipt) error {
	if r.LearnerEmail == "" {
		return errors.Errorf("learner %s has no email", r.LearnerID)
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: r.LearnerName, Address: r.LearnerEmail}},
		Subject:      "Payment received",
		Categories:   []string{"enrollment"},
		Args:         map[string]string{"session_id": r.SessionID, "learner_id": r.LearnerID},
		TemplateName: enrollmentTemplate,
		TemplateData: struct {
			enrollment.Receipt
			Currency string
		}{
			Receipt:  r,
			Currency: strings.ToUpper(r.Currency),
		},
	}

	receipt, err := receiptCSV(r)
	if err != nil {
		return errors.Wrap(err, "writing receipt")
	}
	if err = msg.Attach(receipt, "receipt-"+r.SessionID+".csv", "text/csv"); err != nil {
		return errors.Wrap(err, "attaching receipt")
	}
	n.mailSvc.SendMessages(msg)
	return nil
}

// receiptCSV lists the line items, followed by the total.
func receiptCSV(r enrollment.Receipt) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	currency := strings.ToUpper(r.Currency)

	rows := [][]string{{"item", "kind", "quantity", "unit_price", "total", "currency"}}
	for _, li := range r.Items {
		rows = append(rows, []string{
			li.Title, li.Kind, strconv.Itoa(li.Quantity), li.UnitPrice.StringFixed(2), li.Total().StringFixed(2), currency,
		})
	}
	rows = append(rows, []string{"TOTAL", "", "", "", r.Amount.StringFixed(2), currency})

	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf, nil
}
