package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/ecom-backend/internal/auth"
	"github.com/MikeMC777/ecom-backend/internal/memory"
	"github.com/MikeMC777/ecom-backend/internal/user"
)

func init() { gin.SetMode(gin.TestMode) }

// captureMailer records sent mail so tests can fish the OTP out of the body.
type captureMailer struct {
	to      string
	subject string
	body    string
}

func (m *captureMailer) Send(to, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return nil
}

type authEnv struct {
	router *gin.Engine
	store  *memory.Store
	mailer *captureMailer
	tokens *auth.Tokens
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	store := memory.NewStore()
	authStore := memory.NewAuthStore()
	mailer := &captureMailer{}
	tokens := auth.NewTokens("test-secret", 15*time.Minute, 7*24*time.Hour)

	r := gin.New()
	g := r.Group("/auth")
	g.POST("/register", auth.RegisterHandler(store.Users()))
	g.POST("/login", auth.LoginHandler(store.Users(), tokens))
	g.POST("/logout", auth.LogoutHandler(tokens, authStore))
	g.POST("/refresh", auth.RefreshHandler(tokens, authStore))
	g.POST("/password-reset/request", auth.PasswordResetRequestHandler(authStore, mailer))
	g.POST("/password-reset/verify", auth.PasswordResetVerifyHandler(authStore, store.Users()))

	// a protected probe route, to observe blacklisting from the outside
	r.GET("/me", auth.RequireUser(tokens, store.Users(), authStore), func(c *gin.Context) {
		c.JSON(http.StatusOK, auth.CurrentUser(c))
	})
	return &authEnv{router: r, store: store, mailer: mailer, tokens: tokens}
}

func (e *authEnv) post(t *testing.T, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *authEnv) register(t *testing.T, email, password string) {
	t.Helper()
	w := e.post(t, "/auth/register", gin.H{"email": email, "password": password}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: status=%d body=%s", w.Code, w.Body.String())
	}
}

func (e *authEnv) login(t *testing.T, email, password string) auth.TokenResponse {
	t.Helper()
	w := e.post(t, "/auth/login", gin.H{"email": email, "password": password}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login: status=%d body=%s", w.Code, w.Body.String())
	}
	var tr auth.TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &tr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return tr
}

func (e *authEnv) me(t *testing.T, access string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	e := newAuthEnv(t)
	e.register(t, "ana@example.com", "secret123")

	// duplicate email rejected
	w := e.post(t, "/auth/register", gin.H{"email": "ana@example.com", "password": "other"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register: status=%d", w.Code)
	}

	tr := e.login(t, "ana@example.com", "secret123")
	if tr.AccessToken == "" || tr.RefreshToken == "" || tr.TokenType != "bearer" {
		t.Fatalf("token response incompleta: %+v", tr)
	}

	// the access token actually works
	if w := e.me(t, tr.AccessToken); w.Code != http.StatusOK {
		t.Fatalf("me: status=%d body=%s", w.Code, w.Body.String())
	}
	// the password hash must never leave the server
	if strings.Contains(e.me(t, tr.AccessToken).Body.String(), "secret123") {
		t.Fatal("response leaks the password")
	}
}

func TestLoginRejections(t *testing.T) {
	e := newAuthEnv(t)
	e.register(t, "ana@example.com", "secret123")

	w := e.post(t, "/auth/login", gin.H{"email": "ana@example.com", "password": "wrong"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status=%d", w.Code)
	}
	w = e.post(t, "/auth/login", gin.H{"email": "nobody@example.com", "password": "whatever"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email: status=%d", w.Code)
	}
	w = e.post(t, "/auth/login", gin.H{"email": "ana@example.com"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing password: status=%d", w.Code)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	e := newAuthEnv(t)
	e.register(t, "ana@example.com", "secret123")
	tr := e.login(t, "ana@example.com", "secret123")

	if w := e.me(t, tr.AccessToken); w.Code != http.StatusOK {
		t.Fatalf("pre-logout me: status=%d", w.Code)
	}
	w := e.post(t, "/auth/logout", gin.H{}, map[string]string{"Authorization": "Bearer " + tr.AccessToken})
	if w.Code != http.StatusOK {
		t.Fatalf("logout: status=%d body=%s", w.Code, w.Body.String())
	}
	if w := e.me(t, tr.AccessToken); w.Code != http.StatusUnauthorized {
		t.Fatalf("post-logout me: status=%d, esperaba 401", w.Code)
	}
}

func TestRefreshRotation(t *testing.T) {
	e := newAuthEnv(t)
	e.register(t, "ana@example.com", "secret123")
	tr := e.login(t, "ana@example.com", "secret123")

	w := e.post(t, "/auth/refresh", gin.H{"refresh_token": tr.RefreshToken}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: status=%d body=%s", w.Code, w.Body.String())
	}
	var next auth.TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &next); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w := e.me(t, next.AccessToken); w.Code != http.StatusOK {
		t.Fatalf("new access rejected: status=%d", w.Code)
	}

	// the consumed refresh token must not work a second time
	w = e.post(t, "/auth/refresh", gin.H{"refresh_token": tr.RefreshToken}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh: status=%d, esperaba 401", w.Code)
	}

	// an access token is not a refresh token
	w = e.post(t, "/auth/refresh", gin.H{"refresh_token": tr.AccessToken}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("access-as-refresh: status=%d, esperaba 401", w.Code)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	e := newAuthEnv(t)
	e.register(t, "ana@example.com", "oldpass")

	w := e.post(t, "/auth/password-reset/request", gin.H{"email": "ana@example.com"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("request: status=%d body=%s", w.Code, w.Body.String())
	}
	if e.mailer.to != "ana@example.com" {
		t.Fatalf("mail sent to %q", e.mailer.to)
	}
	otp := strings.TrimPrefix(e.mailer.body, "Your OTP is: ")
	if len(otp) != 6 {
		t.Fatalf("otp=%q in body %q", otp, e.mailer.body)
	}

	// wrong code fails and does not consume the stored one
	w = e.post(t, "/auth/password-reset/verify",
		gin.H{"email": "ana@example.com", "otp": "000000x", "new_password": "newpass"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("wrong otp: status=%d", w.Code)
	}

	w = e.post(t, "/auth/password-reset/verify",
		gin.H{"email": "ana@example.com", "otp": otp, "new_password": "newpass"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: status=%d body=%s", w.Code, w.Body.String())
	}

	// old password dead, new one works
	if w := e.post(t, "/auth/login", gin.H{"email": "ana@example.com", "password": "oldpass"}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("old password still valid: status=%d", w.Code)
	}
	e.login(t, "ana@example.com", "newpass")

	// the code is single use
	w = e.post(t, "/auth/password-reset/verify",
		gin.H{"email": "ana@example.com", "otp": otp, "new_password": "again"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("otp reuse: status=%d, esperaba 400", w.Code)
	}
}

// the request endpoint must answer the same for unknown addresses
func TestPasswordResetNoUserLeak(t *testing.T) {
	e := newAuthEnv(t)
	w := e.post(t, "/auth/password-reset/request", gin.H{"email": "ghost@example.com"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, esperaba 200", w.Code)
	}
}

func TestRequireUserRejections(t *testing.T) {
	e := newAuthEnv(t)
	e.register(t, "ana@example.com", "secret123")
	tr := e.login(t, "ana@example.com", "secret123")

	if w := e.me(t, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d", w.Code)
	}
	if w := e.me(t, "garbage"); w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status=%d", w.Code)
	}
	// a refresh token is not valid on protected routes
	if w := e.me(t, tr.RefreshToken); w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh-as-access: status=%d", w.Code)
	}

	// deactivated account gets a 400
	u, err := e.store.Users().GetByEmail(context.Background(), "ana@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	off := false
	if _, err := e.store.Users().Update(context.Background(), u.ID, user.Patch{IsActive: &off}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if w := e.me(t, tr.AccessToken); w.Code != http.StatusBadRequest {
		t.Fatalf("inactive user: status=%d, esperaba 400", w.Code)
	}
}
