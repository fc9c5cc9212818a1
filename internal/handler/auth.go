package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lexboard/lexboard/pkg/apiclient"
	"github.com/lexboard/lexboard/pkg/logger"
	"github.com/lexboard/lexboard/pkg/session"
	"github.com/lexboard/lexboard/pkg/validator"
)

// tokenResponse is the credential exchange payload the backend returns on
// successful login or OTP verification.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type otpSendRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
}

type otpVerifyRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// AuthHandler owns the credential lifecycle endpoints: login, OTP exchange,
// logout, and the session-state queries the dashboard bootstraps from.
type AuthHandler struct {
	client   *apiclient.Client
	store    session.CredentialStore
	registry *session.Registry
	guard    *apiclient.AuthGuard
	logger   *slog.Logger
}

// NewAuthHandler wires the credential endpoints.
func NewAuthHandler(client *apiclient.Client, store session.CredentialStore, registry *session.Registry, guard *apiclient.AuthGuard, l *slog.Logger) *AuthHandler {
	return &AuthHandler{
		client:   client,
		store:    store,
		registry: registry,
		guard:    guard,
		logger:   l,
	}
}

// Login exchanges email+password for a bearer credential via the backend
// and stores it. A fresh login always resets the expiry coordination flags.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	var tok tokenResponse
	if err := h.client.PostJSON(r.Context(), "/auth/login", req, &tok); err != nil {
		respondError(w, r, err)
		return
	}

	h.establishSession(w, r, tok)
}

// SendOTP relays an OTP delivery request to the backend.
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpSendRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.client.PostJSON(r.Context(), "/auth/otp/send", req, nil); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// VerifyOTP exchanges phone+code for a bearer credential.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	var tok tokenResponse
	if err := h.client.PostJSON(r.Context(), "/auth/otp/verify", req, &tok); err != nil {
		respondError(w, r, err)
		return
	}

	h.establishSession(w, r, tok)
}

func (h *AuthHandler) establishSession(w http.ResponseWriter, r *http.Request, tok tokenResponse) {
	if err := h.store.SetToken(r.Context(), tok.AccessToken); err != nil {
		respondError(w, r, err)
		return
	}
	h.registry.ResetAll()

	logger.FromContext(r.Context()).InfoContext(r.Context(), "session established")
	respondJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

// Logout deletes the stored credential. Explicit logout, unlike expiry,
// needs no coordination: the dashboard navigates itself.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// ResetSession clears both coordination flags. The unauthenticated entry
// page calls this on mount so the next expiry cycle starts clean.
func (h *AuthHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	h.registry.ResetAll()
	respondJSON(w, http.StatusNoContent, nil)
}

// SessionState reports whether a usable credential is stored. A credential
// whose expiry claim is already in the past runs the coordinated expiry
// path immediately instead of waiting for the next 401.
func (h *AuthHandler) SessionState(w http.ResponseWriter, r *http.Request) {
	token, err := h.store.Token(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	if token == "" {
		respondJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	if session.IsStale(token, time.Now()) {
		h.guard.Expire(r.Context())
		respondJSON(w, http.StatusOK, map[string]any{
			"authenticated": false,
			"reason":        "session_expired",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"redirecting":   h.registry.IsRedirecting(),
	})
}
