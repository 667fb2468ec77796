package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/course"
	"github.com/trezcool/masomo-academy/core/user"
)

// NewConfig returns the configuration used by tests; nothing is read from the environment.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:          "Masomo Academy",
		Env:              "TEST",
		TestMode:         true,
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://localhost:8080",
		DefaultFromEmail: mail.Address{Name: "Masomo Academy", Address: "noreply@localhost"},
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
			DisableReqLogs:            true,
		},
		Payment: core.PaymentConfig{
			Provider:      "dummy",
			WebhookSecret: "whsec_test",
			Currency:      "usd",
			SuccessURL:    "http://localhost:8080/checkout/success",
			CancelURL:     "http://localhost:8080/checkout/cancel",
			Timeout:       time.Second,
		},
		Notification: core.NotificationConfig{Backend: "email"},
	}
}

// NopLogger discards everything.
type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// Decimal parses s or fails the test.
func Decimal(t *testing.T, s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("Decimal(%s) failed: %v", s, err)
	}
	return d
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateCourse adds an active course to the catalog.
func CreateCourse(t *testing.T, repo course.Repository, title, price, teacherID string) course.Item {
	return createItem(t, repo, course.Item{
		Title:     title,
		Price:     Decimal(t, price),
		TeacherID: teacherID,
		Kind:      course.KindCourse,
	})
}

// CreateMerch adds an active merchandise item; a negative stock means untracked.
func CreateMerch(t *testing.T, repo course.Repository, title, price, teacherID string, stock int) course.Item {
	it := course.Item{
		Title:     title,
		Price:     Decimal(t, price),
		TeacherID: teacherID,
		Kind:      course.KindMerch,
	}
	if stock >= 0 {
		it.Stock = &stock
	}
	return createItem(t, repo, it)
}

func createItem(t *testing.T, repo course.Repository, it course.Item) course.Item {
	now := time.Now().UTC()
	it.ID = uuid.New().String()
	it.Active = true
	it.CreatedAt = now
	it.UpdatedAt = now
	it, err := repo.CreateItem(context.Background(), it)
	if err != nil {
		t.Fatalf("createItem() failed: %v", err)
	}
	return it
}
