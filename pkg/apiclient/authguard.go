package apiclient

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lexboard/lexboard/pkg/session"
)

// Navigator performs a full-page navigation away from the dashboard. It is
// deliberately separate from in-app routing: the forced-logout redirect must
// work even while page state is being torn down.
type Navigator interface {
	Navigate(url string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(url string)

func (f NavigatorFunc) Navigate(url string) { f(url) }

// AuthGuardConfig tunes the auth-failure coordinator.
type AuthGuardConfig struct {
	// LoginPath is the unauthenticated entry surface the user is sent to.
	LoginPath string

	// ExpiredMessage is shown on the login surface via query parameter.
	ExpiredMessage string

	// AuthSurfaces are page path substrings on which a 401 is a bad login,
	// not an expired session.
	AuthSurfaces []string

	// LoginEndpoints are outbound path substrings identifying credential
	// exchange calls; a 401 from these never triggers the redirect path.
	LoginEndpoints []string
}

// DefaultAuthGuardConfig returns the standard dashboard surfaces.
func DefaultAuthGuardConfig() AuthGuardConfig {
	return AuthGuardConfig{
		LoginPath:      "/login",
		ExpiredMessage: "Your session has expired. Please sign in again.",
		AuthSurfaces:   []string{"/login", "/register", "/welcome"},
		LoginEndpoints: []string{"/auth/login", "/auth/otp", "/auth/password"},
	}
}

var (
	authFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apiclient_auth_failures_total",
			Help: "Backend responses indicating a missing, invalid, or expired credential",
		},
	)

	sessionRedirectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apiclient_session_redirects_total",
			Help: "Forced-logout navigations performed after session expiry",
		},
	)
)

// AuthGuard is the response-side coordinator for authentication failures.
// Any number of concurrent calls may come back 401 in the same instant; the
// guard clears the stored credential and produces exactly one navigation to
// the login surface per expiry episode. The original failure always
// propagates to the caller.
type AuthGuard struct {
	store    session.CredentialStore
	registry *session.Registry
	nav      Navigator
	cfg      AuthGuardConfig
	logger   *slog.Logger
}

// NewAuthGuard creates the coordinator. Register its Intercept method on the
// client's after-receive chain.
func NewAuthGuard(store session.CredentialStore, registry *session.Registry, nav Navigator, cfg AuthGuardConfig, logger *slog.Logger) *AuthGuard {
	return &AuthGuard{
		store:    store,
		registry: registry,
		nav:      nav,
		cfg:      cfg,
		logger:   logger,
	}
}

// Intercept observes every completed backend call. Non-401 outcomes pass
// through untouched, as do 401s from the auth surfaces themselves (a bad
// password is not an expired session) and 401s from credential exchange
// endpoints. Everything else runs the coordinated expiry path.
func (g *AuthGuard) Intercept(req *http.Request, resp *http.Response, err error) error {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return err
	}
	authFailuresTotal.Inc()

	if g.onAuthSurface(PagePathFromContext(req.Context())) || g.isLoginAttempt(req.URL.Path) {
		return err
	}

	g.expire(req.Context())
	return err
}

// Expire runs the coordinated logout path directly. Bootstrap code calls
// this when it finds a stale credential before any request is made.
func (g *AuthGuard) Expire(ctx context.Context) {
	g.expire(ctx)
}

func (g *AuthGuard) expire(ctx context.Context) {
	if err := g.store.Clear(ctx); err != nil {
		g.logger.WarnContext(ctx, "failed to clear stored credential",
			slog.String("error", err.Error()),
		)
	}

	// First observer of this expiry episode wins; everyone else has
	// nothing left to do.
	if !g.registry.BeginExpiry() {
		return
	}

	target := g.cfg.LoginPath + "?message=" + url.QueryEscape(g.cfg.ExpiredMessage)
	g.logger.InfoContext(ctx, "session expired, redirecting to login",
		slog.String("target", g.cfg.LoginPath),
	)
	sessionRedirectsTotal.Inc()
	g.nav.Navigate(target)
}

func (g *AuthGuard) onAuthSurface(pagePath string) bool {
	if pagePath == "" {
		return false
	}
	for _, s := range g.cfg.AuthSurfaces {
		if strings.Contains(pagePath, s) {
			return true
		}
	}
	return false
}

func (g *AuthGuard) isLoginAttempt(outboundPath string) bool {
	for _, e := range g.cfg.LoginEndpoints {
		if strings.Contains(outboundPath, e) {
			return true
		}
	}
	return false
}
