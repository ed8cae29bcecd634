package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arjuunns/Smart-hostel/apps/shared"
	"github.com/arjuunns/Smart-hostel/core/user"
	emailsvc "github.com/arjuunns/Smart-hostel/services/email"
	testutil "github.com/arjuunns/Smart-hostel/tests"
)

var (
	errMissingToken   = httpErr{Error: "missing or malformed jwt"}
	errPermission     = httpErr{Error: "permission denied"}
	errNotFound       = httpErr{Error: "not found"}
	errAuthentication = httpErr{Error: "authentication failed"}
	errDeactivated    = httpErr{Error: "account deactivated"}

	// Monday; leaves in tests start on the following Friday
	testNow = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
)

type httpErr struct {
	Error string `json:"error"`
}

type testEnv struct {
	srv  *Server
	app  *shared.App
	mail *emailsvc.ConsoleServiceMock

	student, other, warden, guard, admin user.User
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	testutil.MockNow(t, testNow)
	app, mail := testutil.NewApp(t)

	srv := NewServer(ServerDeps{
		Conf:           app.Conf,
		Logger:         app.Logger,
		Validate:       app.Validate,
		Translator:     app.Translator,
		DisableReqLogs: true,
		UserSvc:        app.Users,
		LeaveSvc:       app.Leaves,
		AttendanceSvc:  app.Attendance,
		CalendarSvc:    app.Calendar,
		Analyzer:       app.Analyzer,
		Predictor:      app.Predictor,
	})

	repo := app.Repos.Users
	return &testEnv{
		srv:     srv,
		app:     app,
		mail:    mail,
		student: testutil.CreateUser(t, repo, "Asha Rao", "asha@example.com", user.RoleStudent, true, testNow.Add(-4*time.Hour)),
		other:   testutil.CreateUser(t, repo, "Ben Okafor", "ben@example.com", user.RoleStudent, true, testNow.Add(-3*time.Hour)),
		warden:  testutil.CreateUser(t, repo, "Wanda Kim", "wanda@example.com", user.RoleWarden, true, testNow.Add(-2*time.Hour)),
		guard:   testutil.CreateUser(t, repo, "Gus Lima", "gus@example.com", user.RoleGuard, true, testNow.Add(-1*time.Hour)),
		admin:   testutil.CreateUser(t, repo, "Ada Root", "ada@example.com", user.RoleAdmin, true, testNow),
	}
}

func (env *testEnv) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := env.srv.auth.GenerateToken(env.srv.auth.UserClaims(usr))
	require.NoError(t, err)
	return token
}

// do serves a request as usr; a zero usr sends no token. body is marshalled to JSON unless it is nil.
func (env *testEnv) do(t *testing.T, method, path string, usr user.User, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if usr.ID != "" {
		req.Header.Set("Authorization", "Bearer "+env.token(t, usr))
	}
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	return rec
}

func newAuthRequest(method, path, token string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func bgCtx() context.Context { return context.Background() }

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func checkError(t *testing.T, rec *httptest.ResponseRecorder, wantCode int, want httpErr) {
	t.Helper()
	if rec.Code != wantCode {
		t.Errorf("code = %v; want %v (body %s)", rec.Code, wantCode, rec.Body.String())
	}
	var got httpErr
	decode(t, rec, &got)
	if got != want {
		t.Errorf("error = %+v; want %+v", got, want)
	}
}

func checkCode(t *testing.T, rec *httptest.ResponseRecorder, wantCode int) {
	t.Helper()
	if rec.Code != wantCode {
		t.Fatalf("code = %v; want %v (body %s)", rec.Code, wantCode, rec.Body.String())
	}
}

func TestServer_home(t *testing.T) {
	env := setup(t)
	rec := env.do(t, http.MethodGet, "/", user.User{}, nil)
	checkCode(t, rec, http.StatusOK)
	if want := "Welcome to Smart Hostel API!"; rec.Body.String() != want {
		t.Errorf("body = %q; want %q", rec.Body.String(), want)
	}
}
