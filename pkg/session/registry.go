package session

import (
	"sync"
	"time"
)

// DefaultExpiryNoticeTTL is how long the "session expired" notice is
// considered already-shown after MarkExpired.
const DefaultExpiryNoticeTTL = 5 * time.Second

// Registry tracks the transient auth-failure coordination state shared by
// all in-flight backend calls: whether a session-expired notice has already
// been surfaced, and whether a forced-logout navigation is already underway.
//
// The expired flag self-clears: IsExpiredShown compares against a deadline
// recorded by MarkExpired instead of relying on a background timer, so the
// registry needs no goroutines and no cancellation handling. The redirecting
// flag has no timer and is cleared only by ResetAll, typically on arrival at
// the login surface.
type Registry struct {
	mu             sync.Mutex
	expiryDeadline time.Time
	redirecting    bool

	ttl time.Duration
	now func() time.Time // injectable clock for testing
}

// NewRegistry creates a registry with the default 5s notice window.
func NewRegistry() *Registry {
	return &Registry{
		ttl: DefaultExpiryNoticeTTL,
		now: time.Now,
	}
}

// MarkExpired records that a session-expired notice has been surfaced.
// The flag reads as true for the notice window and then clears on its own.
// Calling it again within the window extends the deadline.
func (r *Registry) MarkExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiryDeadline = r.now().Add(r.ttl)
}

// IsExpiredShown reports whether a session-expired notice was surfaced
// within the notice window. No side effects.
func (r *Registry) IsExpiredShown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now().Before(r.expiryDeadline)
}

// SetRedirecting sets the redirect-in-progress flag.
func (r *Registry) SetRedirecting(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirecting = v
}

// IsRedirecting reports whether a forced-logout navigation is underway.
func (r *Registry) IsRedirecting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redirecting
}

// ResetAll clears both flags immediately. Called when the unauthenticated
// entry surface mounts, so the next auth-failure cycle starts clean.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiryDeadline = time.Time{}
	r.redirecting = false
}

// BeginExpiry atomically checks whether an expiry episode is already in
// progress and, if not, marks both the expired and redirecting flags.
// Exactly one of any number of concurrent callers observes true; the rest
// observe false. A redirect already underway suppresses new episodes even
// after the notice window lapses; only ResetAll re-arms. This is the
// check-then-act step the auth-failure coordinator relies on to guarantee
// a single redirect per expiry episode.
func (r *Registry) BeginExpiry() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.redirecting || r.now().Before(r.expiryDeadline) {
		return false
	}
	r.expiryDeadline = r.now().Add(r.ttl)
	r.redirecting = true
	return true
}
