package enrollment

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/course"
	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/core/payment"
	"github.com/trezcool/masomo-academy/core/roster"
	"github.com/trezcool/masomo-academy/core/user"
)

// MaxCartItems bounds the lines of a checkout so that the session metadata stays within the provider limits.
const MaxCartItems = 50

var (
	// validation errors
	ErrCartTooLarge    = errors.Errorf("a checkout holds at most %d items", MaxCartItems)
	ErrFreeItem        = errors.New("free items cannot be checked out, enroll instead")
	ErrPaidItem        = errors.New("this item is not free")
	ErrNotACourse      = errors.New("this item is not a course")
	ErrItemInactive    = errors.New("this item is not available")
	ErrAlreadyEnrolled = errors.New("already enrolled in this course")
	ErrOutOfStock      = errors.New("not enough items in stock")
	ErrLearnerInactive = errors.New("learner account is deactivated")

	// ErrNoLedgerEntry is an integrity error: a settlement was received for a session the ledger does not know.
	ErrNoLedgerEntry = errors.New("settlement received for a session without ledger entry")
	// ErrNotSettleable is returned when a payment is confirmed for an entry that already failed.
	ErrNotSettleable = errors.New("ledger entry can no longer be settled")
)

type (
	// Receipt is what the learner is notified of once a payment settles.
	Receipt struct {
		SessionID    string
		LearnerID    string
		LearnerName  string
		LearnerEmail string
		Items        []ledger.LineItem
		Amount       decimal.Decimal
		Currency     string
		CompletedAt  time.Time
	}

	// Notifier is fire-and-forget: implementations must not block on delivery,
	// and a returned error never undoes a settlement.
	Notifier interface {
		NotifyEnrollment(ctx context.Context, r Receipt) error
	}

	ItemQuantity struct {
		ItemID   string `json:"item_id" validate:"required"`
		Quantity int    `json:"quantity" validate:"min=1,max=100"`
	}

	CheckoutRequest struct {
		Items []ItemQuantity `json:"items" validate:"required,min=1,max=50,dive"`
	}

	CheckoutResult struct {
		SessionID   string `json:"session_id"`
		RedirectURL string `json:"redirect_url"`
	}

	VerifyResult struct {
		Completed bool         `json:"completed"`
		State     ledger.State `json:"state"`
	}

	ServiceInterface interface {
		Checkout(ctx context.Context, learnerID string, req CheckoutRequest) (CheckoutResult, error)
		EnrollFree(ctx context.Context, learnerID, courseID string) (roster.Entry, error)
		CourseRoster(ctx context.Context, courseID string) (course.Item, []roster.Entry, error)
		// Verify is the poll path: learnerID restricts the lookup to the payer's sessions, unless empty.
		Verify(ctx context.Context, sessionID, learnerID string) (VerifyResult, error)
		// HandleWebhook is the push path.
		HandleWebhook(ctx context.Context, payload []byte, signature string) error
		Reconcile(ctx context.Context, since time.Time) (ReconcileReport, error)
	}

	Deps struct {
		Ledger    ledger.Repository
		Roster    roster.Repository
		Catalog   course.ServiceInterface
		Identity  user.ServiceInterface
		Processor payment.Processor
		Notifier  Notifier
		Logger    core.Logger
	}

	Options struct {
		Currency         string
		SuccessURL       string
		CancelURL        string
		ProviderTimeout  time.Duration
		ReconcileWorkers int
	}

	Service struct {
		Deps
		opts    Options
		flight  singleflight.Group
		nowFunc func() time.Time
	}
)

var _ ServiceInterface = (*Service)(nil) // interface compliance check

func NewService(deps Deps, opts Options) *Service {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 10 * time.Second
	}
	if opts.ReconcileWorkers <= 0 {
		opts.ReconcileWorkers = 4
	}
	return &Service{
		Deps:    deps,
		opts:    opts,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// NewServiceFromConfig builds the Service with the options found in conf.
func NewServiceFromConfig(conf *core.Config, deps Deps) *Service {
	return NewService(deps, Options{
		Currency:        conf.Payment.Currency,
		SuccessURL:      conf.Payment.SuccessURL,
		CancelURL:       conf.Payment.CancelURL,
		ProviderTimeout: conf.Payment.Timeout,
	})
}

// providerCtx bounds every call to the payment processor.
func (svc *Service) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, svc.opts.ProviderTimeout)
}

func validationErr(err error, field string) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

func (svc *Service) getLearner(ctx context.Context, learnerID string) (user.User, error) {
	learner, err := svc.Identity.GetByID(ctx, learnerID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting learner")
	}
	if !learner.IsActive {
		return user.User{}, validationErr(ErrLearnerInactive, "learner")
	}
	return learner, nil
}
