package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/masomo-academy/apps/api/echo"
	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/course"
	"github.com/trezcool/masomo-academy/core/enrollment"
	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/core/revenue"
	"github.com/trezcool/masomo-academy/core/roster"
	"github.com/trezcool/masomo-academy/core/user"
	"github.com/trezcool/masomo-academy/services/email"
	"github.com/trezcool/masomo-academy/services/notification"
	"github.com/trezcool/masomo-academy/services/payment"
	"github.com/trezcool/masomo-academy/storage/database/inmem"
	"github.com/trezcool/masomo-academy/tests"
)

// testApp is an API server backed by the in-memory database and the dummy payment processor.
type testApp struct {
	conf       *core.Config
	server     *echoapi.Server
	userRepo   user.Repository
	courseRepo course.Repository
	ledgerRepo ledger.Repository
	rosterRepo roster.Repository
	processor  *paymentsvc.DummyProcessor
}

func setup(t *testing.T) *testApp {
	conf := testutil.NewConfig()
	logger := testutil.NopLogger{}
	db := inmemdb.Open()

	app := &testApp{
		conf:       conf,
		userRepo:   inmemdb.NewUserRepository(db),
		courseRepo: inmemdb.NewCourseRepository(db),
		ledgerRepo: inmemdb.NewLedgerRepository(db),
		rosterRepo: inmemdb.NewRosterRepository(db),
		processor:  paymentsvc.NewDummyProcessor(conf),
	}

	emailsvc.ResetSentMessages()
	notifier, closeNotifier, err := notificationsvc.NewNotifier(conf, emailsvc.NewConsoleServiceMock(conf, logger), logger)
	if err != nil {
		t.Fatalf("NewNotifier() failed: %v", err)
	}
	t.Cleanup(func() { _ = closeNotifier() })

	usrSvc := user.NewService(app.userRepo)
	catalog := course.NewService(app.courseRepo)
	enrollmentSvc := enrollment.NewServiceFromConfig(conf, enrollment.Deps{
		Ledger:    app.ledgerRepo,
		Roster:    app.rosterRepo,
		Catalog:   catalog,
		Identity:  usrSvc,
		Processor: app.processor,
		Notifier:  notifier,
		Logger:    logger,
	})

	app.server = echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		UserSvc:       usrSvc,
		CatalogSvc:    catalog,
		EnrollmentSvc: enrollmentSvc,
		Revenue:       revenue.NewAggregator(app.ledgerRepo, app.rosterRepo, catalog, usrSvc, logger),
		Validate:      validate,
		Translator:    translator,
	})
	return app
}

func (app *testApp) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	app.server.ServeHTTP(rec, req)
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	token, err := echoapi.GenerateToken(app.conf, echoapi.GetUserClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	header   http.Header
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
