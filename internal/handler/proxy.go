package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lexboard/lexboard/pkg/apiclient"
	apperrors "github.com/lexboard/lexboard/pkg/errors"
	"github.com/lexboard/lexboard/pkg/logger"
)

// Proxy forwards dashboard calls under /api to the backend through the
// interceptor-equipped client, so bearer attachment, identifier
// sanitization, timeout extension, and auth-failure coordination apply to
// every feature call. A reverse proxy would bypass all of that, which is
// why the forwarding is done through the client.
type Proxy struct {
	backend    *apiclient.CircuitBreakerClient
	client     *apiclient.Client
	redirector *Redirector
	logger     *slog.Logger
}

// NewProxy wires the pass-through forwarder.
func NewProxy(backend *apiclient.CircuitBreakerClient, client *apiclient.Client, red *Redirector, l *slog.Logger) *Proxy {
	return &Proxy{
		backend:    backend,
		client:     client,
		redirector: red,
		logger:     l,
	}
}

// hopHeaders are stripped when relaying; everything else passes through.
var hopHeaders = []string{"Connection", "Keep-Alive", "Transfer-Encoding", "Upgrade", "Authorization"}

// Forward relays the request at the path under /api.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request) {
	backendPath := strings.TrimPrefix(r.URL.Path, "/api")
	if r.URL.RawQuery != "" {
		backendPath += "?" + r.URL.RawQuery
	}

	ctx := apiclient.WithPagePath(r.Context(), browserPagePath(r))
	req, err := p.client.NewRequest(ctx, r.Method, backendPath, r.Body)
	if err != nil {
		respondError(w, r, apperrors.InvalidInput(err.Error()))
		return
	}
	copyInboundHeaders(req, r)

	resp, err := p.backend.Do(req)

	// A coordinated expiry may have been recorded while this call was in
	// flight; the browser gets a single full-page redirect to login.
	if target := p.redirector.Consume(); target != "" {
		http.Redirect(w, r, target, http.StatusFound)
		if resp != nil {
			_ = resp.Body.Close()
		}
		return
	}

	if err != nil {
		p.forwardError(w, r, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	copyOutboundHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.FromContext(r.Context()).WarnContext(r.Context(), "relay interrupted",
			slog.String("path", backendPath),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Proxy) forwardError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apiclient.IsIdentifierError(err):
		respondError(w, r, apperrors.InvalidInput(err.Error()))
	case apiclient.IsCircuitOpen(err):
		respondError(w, r, &apperrors.AppError{
			Code:    "SERVICE_UNAVAILABLE",
			Message: "backend temporarily unavailable",
			Status:  http.StatusServiceUnavailable,
			Err:     apperrors.ErrUpstream,
		})
	default:
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "backend call failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		respondError(w, r, apperrors.Upstream("backend unreachable"))
	}
}

func copyInboundHeaders(dst *http.Request, src *http.Request) {
	for name, values := range src.Header {
		if isHopHeader(name) {
			continue
		}
		// Content-Type default stays unless the dashboard sent its own.
		for _, v := range values {
			if name == "Content-Type" {
				dst.Header.Set(name, v)
				continue
			}
			dst.Header.Add(name, v)
		}
	}
}

func copyOutboundHeaders(w http.ResponseWriter, resp *http.Response) {
	for name, values := range resp.Header {
		if isHopHeader(name) {
			continue
		}
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if http.CanonicalHeaderKey(name) == h {
			return true
		}
	}
	return false
}
