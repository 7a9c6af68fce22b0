package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/redmonkez12/printcost-auth/internal/auth"
	"github.com/redmonkez12/printcost-auth/internal/config"
	"github.com/redmonkez12/printcost-auth/internal/logging"
	"github.com/redmonkez12/printcost-auth/internal/metrics"
	"github.com/redmonkez12/printcost-auth/internal/ratelimit"
	"github.com/redmonkez12/printcost-auth/internal/user"

	"github.com/prometheus/client_golang/prometheus"
)

type outbox struct {
	mu            sync.Mutex
	verifications []string
	resets        []string
}

func (o *outbox) SendVerificationEmail(_ context.Context, _, _, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verifications = append(o.verifications, token)
	return nil
}

func (o *outbox) SendPasswordResetEmail(_ context.Context, _, _, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resets = append(o.resets, token)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	handler http.Handler
	mail    *outbox
	resets  *auth.MemoryTokenRepository
	clock   *fakeClock
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithOrigins(t, "*")
}

func newTestEnvWithOrigins(t *testing.T, origins ...string) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test", AllowedOrigins: origins, AuthBasePath: "/auth"},
	}
	logger := logging.NewDiscard()

	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := auth.NewJWTService([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	env := &testEnv{
		mail:    &outbox{},
		resets:  auth.NewMemoryTokenRepository(),
		clock:   &fakeClock{now: time.Now()},
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	}

	svc := auth.NewService(
		user.NewMemoryRepository(),
		auth.NewMemoryTokenRepository(),
		env.resets,
		auth.NewMemorySessionRepository(),
		tokens,
		env.mail,
		hasher,
		logger,
		auth.TokenTTLs{Session: 24 * time.Hour, EmailVerification: 24 * time.Hour, PasswordReset: time.Hour},
	)

	limiter := ratelimit.NewMemory(20, time.Minute, env.clock.Now)

	env.handler = NewRouter(
		cfg,
		auth.NewHandler(svc, env.metrics, logger),
		auth.NewMiddleware(svc),
		limiter,
		env.metrics,
		logger,
	)
	return env
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) json(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(r.body, &out), string(r.body))
	return out
}

// do sends a request from caller. An empty caller sends no X-Forwarded-For.
func (e *testEnv) do(t *testing.T, method, path, caller, bearer string, body any) response {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set("X-Forwarded-For", caller)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return response{status: rec.Code, header: rec.Header(), body: rec.Body.Bytes()}
}

func TestRouter_SignupVerifyLoginMeLogout(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/auth/signup", "10.0.0.1", "", map[string]string{
		"name": "Ana", "email": "ana@x.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, res.status, string(res.body))
	assert.NotContains(t, string(res.body), env.mail.verifications[0])

	res = env.do(t, http.MethodPost, "/auth/login", "10.0.0.1", "", map[string]string{
		"email": "ana@x.com", "password": "secret1",
	})
	require.Equal(t, http.StatusForbidden, res.status)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", res.json(t)["code"])

	res = env.do(t, http.MethodGet, "/auth/verify-email?token="+env.mail.verifications[0], "10.0.0.1", "", nil)
	require.Equal(t, http.StatusOK, res.status, string(res.body))

	res = env.do(t, http.MethodPost, "/auth/login", "10.0.0.1", "", map[string]string{
		"email": "ana@x.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, res.status, string(res.body))
	login := res.json(t)
	token, _ := login["token"].(string)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, login["expires_at"])
	u := login["user"].(map[string]any)
	assert.Equal(t, "ana@x.com", u["email"])
	assert.NotContains(t, u, "password_hash")
	assert.NotContains(t, string(res.body), "$2a$")

	res = env.do(t, http.MethodGet, "/auth/me", "10.0.0.1", token, nil)
	require.Equal(t, http.StatusOK, res.status, string(res.body))
	assert.Equal(t, "Ana", res.json(t)["user"].(map[string]any)["name"])

	res = env.do(t, http.MethodPost, "/auth/logout", "10.0.0.1", token, nil)
	require.Equal(t, http.StatusOK, res.status)

	res = env.do(t, http.MethodGet, "/auth/me", "10.0.0.1", token, nil)
	assert.Equal(t, http.StatusUnauthorized, res.status)
	assert.Equal(t, "UNAUTHORIZED", res.json(t)["code"])
}

func TestRouter_ForgotPasswordUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/auth/forgot-password", "10.0.0.1", "", map[string]string{"email": "ghost@nowhere.com"})

	assert.Equal(t, http.StatusOK, res.status)
	assert.NotEmpty(t, res.json(t)["message"])
	assert.Zero(t, env.resets.Len())
	assert.Empty(t, env.mail.resets)
}

func TestRouter_LoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/auth/signup", "10.0.0.1", "", map[string]string{
		"name": "Ana", "email": "ana@x.com", "password": "secret1",
	})
	env.do(t, http.MethodGet, "/auth/verify-email?token="+env.mail.verifications[0], "10.0.0.1", "", nil)

	wrong := env.do(t, http.MethodPost, "/auth/login", "10.0.0.1", "", map[string]string{"email": "ana@x.com", "password": "nope"})
	missing := env.do(t, http.MethodPost, "/auth/login", "10.0.0.1", "", map[string]string{"email": "ghost@nowhere.com", "password": "nope"})

	assert.Equal(t, http.StatusUnauthorized, wrong.status)
	assert.Equal(t, wrong.status, missing.status)
	assert.Equal(t, wrong.body, missing.body)
}

func TestRouter_AntiEnumerationBodies(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/auth/signup", "10.0.0.1", "", map[string]string{
		"name": "Ana", "email": "ana@x.com", "password": "secret1",
	})

	for _, path := range []string{"/auth/forgot-password", "/auth/resend-verification"} {
		known := env.do(t, http.MethodPost, path, "10.0.0.1", "", map[string]string{"email": "ana@x.com"})
		unknown := env.do(t, http.MethodPost, path, "10.0.0.1", "", map[string]string{"email": "ghost@nowhere.com"})

		assert.Equal(t, http.StatusOK, known.status, path)
		assert.Equal(t, known.status, unknown.status, path)
		assert.Equal(t, known.body, unknown.body, path)
	}
}

func TestRouter_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"signup missing name", http.MethodPost, "/auth/signup", map[string]string{"email": "a@x.com", "password": "p"}, http.StatusBadRequest, "NAME_REQUIRED"},
		{"verify missing token", http.MethodGet, "/auth/verify-email", nil, http.StatusBadRequest, "TOKEN_REQUIRED"},
		{"verify unknown token", http.MethodGet, "/auth/verify-email?token=abc", nil, http.StatusBadRequest, "INVALID_TOKEN"},
		{"resend missing email", http.MethodPost, "/auth/resend-verification", map[string]string{}, http.StatusBadRequest, "EMAIL_REQUIRED"},
		{"login missing password", http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com"}, http.StatusBadRequest, "PASSWORD_REQUIRED"},
		{"forgot missing email", http.MethodPost, "/auth/forgot-password", map[string]string{}, http.StatusBadRequest, "EMAIL_REQUIRED"},
		{"reset missing token", http.MethodPost, "/auth/reset-password", map[string]string{"password": "x"}, http.StatusBadRequest, "TOKEN_REQUIRED"},
		{"reset unknown token", http.MethodPost, "/auth/reset-password", map[string]string{"token": "abc", "password": "x"}, http.StatusBadRequest, "INVALID_TOKEN"},
		{"malformed body", http.MethodPost, "/auth/login", "not an object", http.StatusBadRequest, "INVALID_REQUEST_BODY"},
		{"me without token", http.MethodGet, "/auth/me", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"logout without token", http.MethodPost, "/auth/logout", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Distinct callers so the table never trips the limiter.
			caller := "10.1.0." + string(rune('a'+i))
			res := env.do(t, tt.method, tt.path, caller, "", tt.body)
			assert.Equal(t, tt.status, res.status, string(res.body))
			assert.Equal(t, tt.code, res.json(t)["code"])
		})
	}
}

func TestRouter_DuplicateSignupIsConflict(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"name": "Ana", "email": "ana@x.com", "password": "secret1"}

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/auth/signup", "10.0.0.1", "", body).status)

	res := env.do(t, http.MethodPost, "/auth/signup", "10.0.0.1", "", body)
	assert.Equal(t, http.StatusConflict, res.status)
	assert.Equal(t, "EMAIL_ALREADY_EXISTS", res.json(t)["code"])
}

func TestRouter_RateLimit(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 20; i++ {
		res := env.do(t, http.MethodGet, "/auth/me", "198.51.100.1, 10.0.0.1", "", nil)
		require.Equal(t, http.StatusUnauthorized, res.status, "request %d", i+1)
	}

	res := env.do(t, http.MethodGet, "/auth/me", "198.51.100.1", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, res.status)
	assert.Equal(t, "TOO_MANY_REQUESTS", res.json(t)["code"])
	assert.Equal(t, "60", res.header.Get("Retry-After"))

	// Other callers are unaffected.
	res = env.do(t, http.MethodGet, "/auth/me", "198.51.100.2", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.status)

	// Health stays reachable.
	res = env.do(t, http.MethodGet, "/health", "198.51.100.1", "", nil)
	assert.Equal(t, http.StatusOK, res.status)

	env.clock.Advance(59 * time.Second)
	res = env.do(t, http.MethodGet, "/auth/me", "198.51.100.1", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, res.status)

	env.clock.Advance(time.Second)
	res = env.do(t, http.MethodGet, "/auth/me", "198.51.100.1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.status)
}

func TestRouter_MissingForwardedForSharesOneBucket(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 20; i++ {
		env.do(t, http.MethodGet, "/health-check", "", "", nil)
	}

	res := env.do(t, http.MethodGet, "/auth/me", "", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, res.status)
}

func TestRouter_PreflightIsNotRateLimited(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 30; i++ {
		res := env.do(t, http.MethodOptions, "/auth/login", "203.0.113.9", "", nil)
		require.Equal(t, http.StatusNoContent, res.status)
		assert.Equal(t, "*", res.header.Get("Access-Control-Allow-Origin"))
		assert.Contains(t, res.header.Get("Access-Control-Allow-Headers"), "Authorization")
		assert.Empty(t, res.body)
	}

	res := env.do(t, http.MethodGet, "/auth/me", "203.0.113.9", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.status)
}

func TestRouter_BrowserPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestRouter_PreflightWithUnlistedHeaders(t *testing.T) {
	for _, origins := range [][]string{{"*"}, {"https://other.example"}} {
		env := newTestEnvWithOrigins(t, origins...)

		req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-Requested-With")
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code, origins)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), origins)
		assert.Equal(t, "Content-Type, X-Requested-With", rec.Header().Get("Access-Control-Allow-Headers"), origins)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST", origins)
	}
}

func TestRouter_UnknownRoutes(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodGet, "/auth/unknown"},
		{http.MethodGet, "/auth/login"},
		{http.MethodDelete, "/auth/me"},
	} {
		res := env.do(t, tc.method, tc.path, "10.0.0.1", "", nil)
		assert.Equal(t, http.StatusNotFound, res.status, tc.method+" "+tc.path)
		assert.Equal(t, "NOT_FOUND", res.json(t)["code"])
	}
}

func TestRouter_SecurityHeadersAndRequestID(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, "nosniff", res.header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", res.header.Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'none'", res.header.Get("Content-Security-Policy"))
}

func TestRouter_Metrics(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/auth/login", "10.0.0.1", "", map[string]string{"email": "ghost@nowhere.com", "password": "x"})

	res := env.do(t, http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, res.status)
	body := string(res.body)
	assert.True(t, strings.Contains(body, `auth_events_total{event="login",outcome="INVALID_CREDENTIALS"} 1`), body)
	assert.Contains(t, body, `http_requests_total{method="POST",path="/auth/login",status="401"} 1`)
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logging.WithLogger(req.Context(), logging.NewDiscard()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error","code":"INTERNAL_ERROR"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "boom")
}
