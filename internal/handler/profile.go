package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/lexboard/lexboard/internal/domain"
	"github.com/lexboard/lexboard/pkg/apiclient"
	apperrors "github.com/lexboard/lexboard/pkg/errors"
)

// profileState is the gate's verdict, consumed by the dashboard shell.
type profileState struct {
	Incomplete bool                 `json:"incomplete"`
	NewUser    bool                 `json:"new_user"`
	Action     domain.ProfileAction `json:"action"`
}

type meResponse struct {
	User    domain.User  `json:"user"`
	Profile profileState `json:"profile"`
}

// ProfileHandler serves the current user's profile with the
// profile-completeness verdict attached.
type ProfileHandler struct {
	client *apiclient.Client
	logger *slog.Logger
}

// NewProfileHandler wires the profile endpoint.
func NewProfileHandler(client *apiclient.Client, l *slog.Logger) *ProfileHandler {
	return &ProfileHandler{client: client, logger: l}
}

// Me fetches the profile from the backend and applies the completeness
// gate against the page the browser is currently on.
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	pagePath := browserPagePath(r)
	ctx := apiclient.WithPagePath(r.Context(), pagePath)

	var user domain.User
	if err := h.client.GetJSON(ctx, "/user/profile", &user); err != nil {
		// The profile endpoint is never a login attempt, so a 401 here is a
		// dead session by the coordinator's own rules, not a bad password.
		if apperrors.HTTPStatus(err) == http.StatusUnauthorized {
			respondError(w, r, apperrors.SessionExpired("your session has expired, please sign in again"))
			return
		}
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, meResponse{
		User: user,
		Profile: profileState{
			Incomplete: user.IsIncomplete(),
			NewUser:    user.LooksLikeNewUser(),
			Action:     domain.OnboardingDecision(user, pagePath),
		},
	})
}

// browserPagePath recovers the dashboard page the request originates from:
// the explicit X-Page-Path header when the dashboard sets it, the Referer
// path otherwise.
func browserPagePath(r *http.Request) string {
	if p := r.Header.Get("X-Page-Path"); p != "" {
		return p
	}
	if ref := r.Header.Get("Referer"); ref != "" {
		if u, err := url.Parse(ref); err == nil {
			return u.Path
		}
	}
	return ""
}
