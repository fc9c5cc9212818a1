package apiclient

import (
	"log/slog"
	"net/http"

	"github.com/lexboard/lexboard/pkg/session"
)

// BearerAuth returns a request interceptor that attaches the stored
// credential as a bearer Authorization header. Requests go out
// unauthenticated when no credential is stored, and a store read failure
// degrades the same way rather than blocking the call.
func BearerAuth(store session.CredentialStore, logger *slog.Logger) RequestInterceptor {
	return func(req *http.Request) error {
		token, err := store.Token(req.Context())
		if err != nil {
			logger.WarnContext(req.Context(), "credential store unavailable, sending unauthenticated",
				slog.String("error", err.Error()),
			)
			return nil
		}
		if token == "" {
			return nil
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
}

// SanitizeIdentifiers returns a request interceptor that validates and
// canonicalizes numeric entity ids in the request path. Malformed ids fail
// the request closed before it reaches the network.
func SanitizeIdentifiers(logger *slog.Logger) RequestInterceptor {
	return func(req *http.Request) error {
		clean, err := SanitizePath(req.URL.Path)
		if err != nil {
			logger.WarnContext(req.Context(), "rejecting request with malformed identifier",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.String("error", err.Error()),
			)
			return err
		}
		if clean != req.URL.Path {
			logger.DebugContext(req.Context(), "canonicalized path identifier",
				slog.String("from", req.URL.Path),
				slog.String("to", clean),
			)
			req.URL.Path = clean
			req.URL.RawPath = ""
		}
		return nil
	}
}
