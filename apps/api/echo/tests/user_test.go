package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/masomo-academy/apps/api/echo"
	"github.com/trezcool/masomo-academy/core/user"
	"github.com/trezcool/masomo-academy/tests"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)

	_ = testutil.CreateUser(t, app.userRepo, "Hero", "hero", "hero@test.cd", "Sup3r-s3cret!", []string{user.RoleStudent}, true)
	_ = testutil.CreateUser(t, app.userRepo, "N Dog", "ndog", "ndog@test.cd", "Sup3r-s3cret!", []string{user.RoleStudent}, false)

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echoapi.LoginRequest{Username: "this field is required", Password: "this field is required"}),
		},
		{
			name: "unknown user", body: marchallObj(t, echoapi.LoginRequest{Username: "lol", Password: "Sup3r-s3cret!"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", body: marchallObj(t, echoapi.LoginRequest{Username: "hero", Password: "lol"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive user", body: marchallObj(t, echoapi.LoginRequest{Username: "ndog", Password: "Sup3r-s3cret!"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "by username", body: marchallObj(t, echoapi.LoginRequest{Username: "HERO ", Password: "Sup3r-s3cret!"}), wantCode: http.StatusOK},
		{name: "by email", body: marchallObj(t, echoapi.LoginRequest{Username: "hero@test.cd", Password: "Sup3r-s3cret!"}), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.serve(req, rec)

			// cannot guess the token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				var respData echoapi.LoginResponse
				unmarshal(t, rec, &respData)
				assert.NotEmpty(t, respData.Token)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_login_noSecretKey(t *testing.T) {
	app := setup(t)
	_ = testutil.CreateUser(t, app.userRepo, "Hero", "hero", "hero@test.cd", "Sup3r-s3cret!", []string{user.RoleStudent}, true)
	app.conf.SecretKey = ""

	req, rec := newRequest(http.MethodPost, "/api/users/login", marchallObj(t, echoapi.LoginRequest{Username: "hero", Password: "Sup3r-s3cret!"}))
	app.serve(req, rec)
	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())

	select {
	case <-app.server.ShutdownSignal():
	case <-time.After(time.Second):
		t.Error("server was not asked to shut down")
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	app := setup(t)

	naughty := testutil.CreateUser(t, app.userRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleStudent}, false)
	student := testutil.CreateUser(t, app.userRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    app.conf.AppName,
			Subject:   student.ID,
			ExpiresAt: now.Add(app.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * app.conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		IsStudent:    true,
		Roles:        student.Roles,
	}
	unrefreshableToken, err := echoapi.GenerateToken(app.conf, unrefreshableClaims)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Inactive user not allowed", token: app.getToken(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: app.getToken(t, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.serve(req, rec)

			if tt.wantCode == http.StatusOK {
				require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				var respData echoapi.LoginResponse
				unmarshal(t, rec, &respData)
				assert.NotEmpty(t, respData.Token)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_me(t *testing.T) {
	app := setup(t)
	student := testutil.CreateUser(t, app.userRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)

	req, rec := newAuthRequest(http.MethodGet, "/api/users/me", app.getToken(t, student))
	app.serve(req, rec)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, student)}, rec)

	// token of a user that no longer exists
	ghost := user.User{ID: "ghost", Roles: []string{user.RoleStudent}}
	req, rec = newAuthRequest(http.MethodGet, "/api/users/me", app.getToken(t, ghost))
	app.serve(req, rec)
	checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "user not authenticated"})}, rec)
}

func Test_userApi_create(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.userRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, app.userRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)

	newTeacher := user.NewUser{
		Name:            "Jane Doe",
		Username:        "jane",
		Email:           "jane@test.cd",
		Password:        "Zq8!Wx#Lp2vB",
		PasswordConfirm: "Zq8!Wx#Lp2vB",
		Roles:           []string{user.RoleTeacher},
	}
	owner := newTeacher
	owner.Username, owner.Email, owner.Roles = "boss", "boss@test.cd", []string{user.RoleAdminOwner}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Admin required", token: app.getToken(t, student), body: marchallObj(t, newTeacher), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{
			name: "cannot grant a higher role", token: app.getToken(t, admin), body: marchallObj(t, owner),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{name: "created", token: app.getToken(t, admin), body: marchallObj(t, newTeacher), wantCode: http.StatusCreated},
		{
			name: "username taken", token: app.getToken(t, admin), body: marchallObj(t, newTeacher),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/register"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.serve(req, rec)

			if tt.wantCode == http.StatusCreated {
				require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				var usr user.User
				unmarshal(t, rec, &usr)
				assert.NotEmpty(t, usr.ID)
				assert.Equal(t, "jane", usr.Username)
				assert.True(t, usr.IsTeacher())
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}
