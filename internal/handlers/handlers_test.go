package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"talkdrove/internal/middleware"
	"talkdrove/internal/models"
	"talkdrove/internal/services"
	"talkdrove/internal/utils"
)

const cookieName = "talkdrove-session"

type stubSignup struct {
	requestErr error
	user       *models.User
	verifyErr  error
	lastIP     string
}

func (s *stubSignup) RequestSignup(_ context.Context, _ models.SignupRequest, clientIP string) error {
	s.lastIP = clientIP
	return s.requestErr
}

func (s *stubSignup) VerifySignup(context.Context, string, string) (*models.User, error) {
	return s.user, s.verifyErr
}

type stubLogin struct {
	res       *services.LoginResult
	err       error
	device    *models.SessionUser
	deviceErr error
}

func (s *stubLogin) Login(context.Context, string, string, string, string) (*services.LoginResult, error) {
	return s.res, s.err
}

func (s *stubLogin) VerifyDeviceLogin(context.Context, string, string) (*models.SessionUser, error) {
	return s.device, s.deviceErr
}

type stubUsers map[int64]*models.SessionUser

func (u stubUsers) SessionUserByID(_ context.Context, id int64, deviceID string) (*models.SessionUser, error) {
	su, ok := u[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	cp := *su
	cp.DeviceID = deviceID
	return &cp, nil
}

type stubDeployments struct {
	DeploymentManager
	deleted *services.DeleteAppResult
	err     error
	actor   services.Actor
}

func (s *stubDeployments) DeployApp(_ context.Context, userID int64, req models.DeployRequest) (*models.DeployedApp, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.DeployedApp{UserID: userID, AppName: req.AppName, HerokuAppName: req.AppName}, nil
}

func (s *stubDeployments) DeleteApp(_ context.Context, a services.Actor, _ string) (*services.DeleteAppResult, error) {
	s.actor = a
	return s.deleted, s.err
}

type testServer struct {
	router   *gin.Engine
	sessions *services.SessionService
	signup   *stubSignup
	login    *stubLogin
	deploy   *stubDeployments
}

func newTestServer(t *testing.T, users stubUsers) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sessions := services.NewSessionService(services.NewMemorySessionStore(nil), "handler-secret", time.Hour, nil)
	ts := &testServer{
		sessions: sessions,
		signup:   &stubSignup{},
		login:    &stubLogin{},
		deploy:   &stubDeployments{},
	}
	auth := NewAuthHandler(ts.signup, ts.login, sessions, CookieOptions{Name: cookieName})
	deploy := NewDeploymentHandler(ts.deploy)

	r := gin.New()
	api := r.Group("/api", middleware.LoadSession(sessions, cookieName))
	api.POST("/signup", auth.Signup)
	api.POST("/verify-signup", auth.VerifySignup)
	api.POST("/login", auth.Login)
	api.POST("/logout", auth.Logout)
	api.GET("/check-login", auth.CheckLogin)
	user := api.Group("", middleware.RequireLogin(users))
	user.POST("/deploy", deploy.Deploy)
	user.DELETE("/apps/:appName", deploy.DeleteApp)
	ts.router = r
	return ts
}

func (ts *testServer) do(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.5:41000"
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&services.ValidationError{Message: "Username already taken"}, http.StatusBadRequest},
		{&services.MismatchError{AttemptsLeft: 2}, http.StatusBadRequest},
		{services.ErrVerificationExpired, http.StatusBadRequest},
		{services.ErrVerificationNotFound, http.StatusBadRequest},
		{services.ErrAttemptsExceeded, http.StatusTooManyRequests},
		{fmt.Errorf("%w: %w", services.ErrCredentialExhausted, fmt.Errorf("dial tcp: i/o timeout")), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: no such table: wallets", services.ErrTransactionFailed), http.StatusInternalServerError},
		{services.ErrInvalidCredentials, http.StatusUnauthorized},
		{services.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("app x: %w", services.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("app x: %w", services.ErrConflict), http.StatusConflict},
		{&utils.APIError{Status: 422, ID: "invalid_params", Message: "secret detail"}, http.StatusBadRequest},
		{fmt.Errorf("pq: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.signup.requestErr = tc.err
			w := ts.do(http.MethodPost, "/api/signup", models.SignupRequest{Email: "a@gmail.com", Password: "password123", Username: "abc"}, nil)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			body := decode(t, w)
			if body["success"] != false {
				t.Fatalf("expected success=false, got %v", body)
			}
			msg, _ := body["message"].(string)
			for _, leak := range []string{"wallets", "i/o timeout", "refused", "secret detail"} {
				if bytes.Contains([]byte(msg), []byte(leak)) {
					t.Fatalf("internal detail %q leaked in %q", leak, msg)
				}
			}
		})
	}
}

func TestFailedAccountCreationAsksForNewSignup(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signup.verifyErr = fmt.Errorf("%w: no such table: wallets", services.ErrTransactionFailed)
	w := ts.do(http.MethodPost, "/api/verify-signup", map[string]string{"email": "a@gmail.com", "code": "AB12CD"}, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if msg, _ := decode(t, w)["message"].(string); msg != "Account creation failed. Please sign up again" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestSignupPassesClientIP(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(http.MethodPost, "/api/signup", models.SignupRequest{Email: "a@gmail.com", Password: "password123", Username: "abc"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ts.signup.lastIP != "203.0.113.5" {
		t.Fatalf("expected client ip, got %q", ts.signup.lastIP)
	}

	w = ts.do(http.MethodPost, "/api/signup", map[string]string{"email": "a@gmail.com"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected bind failure to be 400, got %d", w.Code)
	}
}

func TestVerifySignupBannedGetsNoSession(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signup.user = &models.User{ID: 7, Email: "b@gmail.com", IsBanned: true, Status: models.UserStatusBanned}

	w := ts.do(http.MethodPost, "/api/verify-signup", models.VerifyCodeRequest{Email: "b@gmail.com", Code: "AB12CD"}, nil)
	if w.Code != http.StatusOK || decode(t, w)["banned"] != true {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
	if len(w.Result().Cookies()) != 0 {
		t.Fatalf("a banned signup must not get a session")
	}
}

func TestLoginSessionRoundTrip(t *testing.T) {
	users := stubUsers{5: {ID: 5, Email: "u@gmail.com", IsVerified: true}}
	ts := newTestServer(t, users)
	ts.login.res = &services.LoginResult{User: &models.SessionUser{ID: 5, Email: "u@gmail.com", IsVerified: true, DeviceID: "dev-1"}}

	w := ts.do(http.MethodPost, "/api/login", models.LoginRequest{Email: "u@gmail.com", Password: "password123"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d", w.Code)
	}
	cookie := sessionCookie(t, w)
	if !cookie.HttpOnly {
		t.Fatalf("session cookie must be HttpOnly")
	}

	w = ts.do(http.MethodGet, "/api/check-login", nil, cookie)
	if decode(t, w)["loggedIn"] != true {
		t.Fatalf("expected logged in, got %s", w.Body.String())
	}

	w = ts.do(http.MethodPost, "/api/deploy", models.DeployRequest{BotID: 1, AppName: "my-bot"}, cookie)
	if w.Code != http.StatusCreated {
		t.Fatalf("deploy status = %d %s", w.Code, w.Body.String())
	}

	w = ts.do(http.MethodPost, "/api/logout", nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d", w.Code)
	}
	w = ts.do(http.MethodGet, "/api/check-login", nil, cookie)
	if decode(t, w)["loggedIn"] != false {
		t.Fatalf("expected revoked session, got %s", w.Body.String())
	}
	w = ts.do(http.MethodPost, "/api/deploy", models.DeployRequest{BotID: 1, AppName: "my-bot"}, cookie)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", w.Code)
	}
}

func TestLoginNewDeviceChallenge(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.login.res = &services.LoginResult{RequireVerification: true, PendingDeviceID: "dev-2"}

	w := ts.do(http.MethodPost, "/api/login", models.LoginRequest{Email: "u@gmail.com", Password: "password123"}, nil)
	body := decode(t, w)
	if w.Code != http.StatusOK || body["requireVerification"] != true || body["deviceId"] != "dev-2" {
		t.Fatalf("unexpected response %d %v", w.Code, body)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Fatalf("no session before device verification")
	}
}

func TestDeleteAppReportsProviderFailure(t *testing.T) {
	users := stubUsers{5: {ID: 5, IsAdmin: true}}
	ts := newTestServer(t, users)
	token, err := ts.sessions.Issue(context.Background(), models.SessionUser{ID: 5})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	ts.deploy.deleted = &services.DeleteAppResult{AppName: "my-bot", HerokuDeleted: false}

	w := ts.do(http.MethodDelete, "/api/apps/my-bot", nil, &http.Cookie{Name: cookieName, Value: token})
	body := decode(t, w)
	if w.Code != http.StatusOK || body["herokuDeleted"] != false {
		t.Fatalf("unexpected response %d %v", w.Code, body)
	}
	if !ts.deploy.actor.IsAdmin {
		t.Fatalf("admin flag must come from the database, got %+v", ts.deploy.actor)
	}
}
