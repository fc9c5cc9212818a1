package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexboard/lexboard/internal/config"
	"github.com/lexboard/lexboard/pkg/apiclient"
	"github.com/lexboard/lexboard/pkg/health"
	"github.com/lexboard/lexboard/pkg/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type testEnv struct {
	store    *session.MemoryStore
	registry *session.Registry
	red      *Redirector
	router   http.Handler
}

// newTestEnv wires the full gateway stack against a fake backend.
func newTestEnv(t *testing.T, backend http.HandlerFunc) *testEnv {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	l := discardLogger()
	store := session.NewMemoryStore()
	registry := session.NewRegistry()
	red := NewRedirector()

	client, err := apiclient.New(apiclient.DefaultConfig(srv.URL))
	require.NoError(t, err)

	guard := apiclient.NewAuthGuard(store, registry, red, apiclient.DefaultAuthGuardConfig(), l)
	client.OnRequest(apiclient.BearerAuth(store, l))
	client.OnRequest(apiclient.SanitizeIdentifiers(l))
	client.OnResponse(guard.Intercept)

	cb := apiclient.NewCircuitBreakerClient(client, apiclient.DefaultCircuitBreakerConfig("test-backend"), l)

	cfg := &config.Config{
		Environment:        "development",
		CORSAllowedOrigins: []string{"*"},
		RateLimitRPS:       100,
		RateLimitBurst:     100,
	}

	router := NewRouter(Deps{
		Auth:    NewAuthHandler(client, store, registry, guard, l),
		Profile: NewProfileHandler(client, l),
		Proxy:   NewProxy(cb, client, red, l),
		Health:  health.NewHandler(),
		Config:  cfg,
		Logger:  l,
	})

	return &testEnv{store: store, registry: registry, red: red, router: router}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func expiredToken(t *testing.T) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestLoginStoresCredentialAndResetsFlags(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer"}`))
	})

	env.registry.MarkExpired()
	env.registry.SetRedirecting(true)

	rec := env.do(t, http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"hunter22"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":true}`, rec.Body.String())

	token, err := env.store.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
	assert.False(t, env.registry.IsExpiredShown())
	assert.False(t, env.registry.IsRedirecting())
}

func TestLoginRejectsInvalidPayload(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called for invalid payloads")
	})

	rec := env.do(t, http.MethodPost, "/auth/login", `{"email":"not-an-email","password":"x"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
}

func TestLoginFailurePropagatesWithoutRedirect(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid credentials"}`))
	})

	rec := env.do(t, http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"wrongpass"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// A bad password is not an expired session.
	assert.Empty(t, env.red.Consume())
	assert.False(t, env.registry.IsExpiredShown())
}

func TestVerifyOTPEstablishesSession(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/otp/verify", r.URL.Path)
		_, _ = w.Write([]byte(`{"access_token":"otp-tok"}`))
	})

	rec := env.do(t, http.MethodPost, "/auth/otp/verify", `{"phone":"+255712345678","code":"123456"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	token, err := env.store.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "otp-tok", token)
}

func TestLogoutClearsCredential(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, env.store.SetToken(context.Background(), "tok"))

	rec := env.do(t, http.MethodPost, "/auth/logout", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	token, err := env.store.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestSessionStateUnauthenticated(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := env.do(t, http.MethodGet, "/session", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())
}

func TestSessionStateStaleCredentialExpiresImmediately(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})
	require.NoError(t, env.store.SetToken(context.Background(), expiredToken(t)))

	rec := env.do(t, http.MethodGet, "/session", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "session_expired")

	token, err := env.store.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Contains(t, env.red.Consume(), "/login?message=")
}

func TestSessionResetClearsFlags(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})
	env.registry.MarkExpired()
	env.registry.SetRedirecting(true)

	rec := env.do(t, http.MethodPost, "/session/reset", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, env.registry.IsExpiredShown())
	assert.False(t, env.registry.IsRedirecting())
}

func TestMeRoutesFreshAccountToOnboarding(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/profile", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":7,"email":"u7@example.com","full_name":"User 7"}`))
	})

	rec := env.do(t, http.MethodGet, "/me", "", map[string]string{"X-Page-Path": "/dashboard/cases"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"incomplete":true`)
	assert.Contains(t, rec.Body.String(), `"new_user":true`)
	assert.Contains(t, rec.Body.String(), `"action":"onboard"`)
}

func TestMeDeadSessionReturnsSessionExpired(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"token expired"}`))
	})
	require.NoError(t, env.store.SetToken(context.Background(), "tok"))

	rec := env.do(t, http.MethodGet, "/me", "", map[string]string{"X-Page-Path": "/dashboard/cases"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "SESSION_EXPIRED")

	token, err := env.store.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestMePromptsEstablishedAccountMissingUsername(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":7,"email":"ada@example.com","full_name":"Ada Mwakasege"}`))
	})

	rec := env.do(t, http.MethodGet, "/me", "", map[string]string{"X-Page-Path": "/dashboard/cases"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"action":"prompt"`)
}

func TestMeCompleteProfileNeedsNothing(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":7,"email":"ada@example.com","full_name":"Ada Mwakasege","username":"ada"}`))
	})

	rec := env.do(t, http.MethodGet, "/me", "", map[string]string{"X-Page-Path": "/dashboard/cases"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"incomplete":false`)
	assert.Contains(t, rec.Body.String(), `"action":"none"`)
}

func TestProxyForwardsRequestAndResponse(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lawyer/all", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[{"id":1}]`))
	})
	require.NoError(t, env.store.SetToken(context.Background(), "tok"))

	rec := env.do(t, http.MethodGet, "/api/lawyer/all", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `[{"id":1}]`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestProxyRewritesPaddedIdentifier(t *testing.T) {
	var seenPath string
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	rec := env.do(t, http.MethodGet, "/api/lawyer/007/portfolio", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/lawyer/7/portfolio", seenPath)
}

func TestProxyRejectsMalformedIdentifier(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("rejected requests must never reach the backend")
	})

	rec := env.do(t, http.MethodGet, "/api/lawyer/undefined", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
}

func TestProxyRedirectsOnceOnExpiredSession(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	require.NoError(t, env.store.SetToken(context.Background(), "stale-tok"))

	rec := env.do(t, http.MethodGet, "/api/cases/list", "", map[string]string{"X-Page-Path": "/dashboard/cases"})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/login?message=")

	token, err := env.store.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)

	// The episode is consumed: the next 401 inside the window relays as-is.
	rec = env.do(t, http.MethodGet, "/api/cases/list", "", map[string]string{"X-Page-Path": "/dashboard/cases"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProxyNo401RedirectOnAuthSurface(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	rec := env.do(t, http.MethodGet, "/api/cases/list", "", map[string]string{"X-Page-Path": "/login"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, env.red.Consume())
}

func TestProxyUsesRefererWhenHeaderAbsent(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	rec := env.do(t, http.MethodGet, "/api/cases/list", "", map[string]string{
		"Referer": "https://app.example.com/register?step=2",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, env.red.Consume())
}

func TestHealthLive(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := env.do(t, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"up"`)
}
