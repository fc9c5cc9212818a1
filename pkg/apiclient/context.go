package apiclient

import "context"

type contextKey string

const pagePathKey contextKey = "page_path"

// WithPagePath returns a context carrying the dashboard page path the
// outbound call originates from. The gateway sets it from the browser's
// Referer so the auth-failure coordinator can tell whether the user is
// already on an auth surface.
func WithPagePath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pagePathKey, path)
}

// PagePathFromContext extracts the originating page path, or "" when absent.
func PagePathFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(pagePathKey).(string); ok {
		return p
	}
	return ""
}
