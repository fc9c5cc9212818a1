package handler

import "sync"

// Redirector is the gateway's Navigator: the auth-failure coordinator
// records the forced-logout target here, and the request that triggered it
// turns the recorded navigation into a single HTTP 302 to the browser.
type Redirector struct {
	mu     sync.Mutex
	target string
}

// NewRedirector creates an empty redirector.
func NewRedirector() *Redirector {
	return &Redirector{}
}

// Navigate records the full-page navigation target.
func (r *Redirector) Navigate(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target = url
}

// Consume returns the pending navigation target and clears it, so exactly
// one in-flight browser request serves the redirect.
func (r *Redirector) Consume() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.target
	r.target = ""
	return t
}
