package apiclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/lexboard/lexboard/pkg/errors"
)

// backendErrorBody covers the two error shapes the backend produces: the
// structured {"error": {"code", "message"}} envelope and the flat
// {"detail": "..."} form used by older endpoints.
type backendErrorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Detail string `json:"detail"`
}

// ParseResponseError reads the body of a non-2xx backend response and
// translates it into an AppError preserving the backend's message where
// possible. The body is fully consumed and closed. Callers should only
// invoke this for error statuses.
func ParseResponseError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return fmt.Errorf("backend returned status %d (failed to read body: %w)", resp.StatusCode, err)
	}

	var body backendErrorBody
	if json.Unmarshal(bodyBytes, &body) == nil {
		if body.Error != nil {
			return mapBackendError(resp.StatusCode, body.Error.Message)
		}
		if body.Detail != "" {
			return mapBackendError(resp.StatusCode, body.Detail)
		}
	}

	return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(bodyBytes))
}

func mapBackendError(status int, message string) error {
	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(message)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(message)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(message)
	case status == http.StatusConflict:
		return apperrors.Conflict(message)
	case status >= 500:
		return apperrors.Upstream(message)
	default:
		return &apperrors.AppError{
			Code:    "BACKEND_ERROR",
			Message: message,
			Status:  status,
		}
	}
}
