package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/lexboard/lexboard/pkg/errors"
	"github.com/lexboard/lexboard/pkg/logger"
	"github.com/lexboard/lexboard/pkg/validator"
)

// errorResponse is the JSON envelope for all gateway errors.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// respondError maps err onto the standard error envelope. Validation errors
// carry per-field messages; AppErrors keep their code and status; anything
// else becomes an opaque 500 so internals do not leak to the browser.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
			Code:    "INVALID_INPUT",
			Message: valErr.Error(),
			Fields:  valErr.Fields(),
		}})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		respondJSON(w, appErr.Status, errorResponse{Error: errorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
		}})
		return
	}

	logger.FromContext(r.Context()).ErrorContext(r.Context(), "unhandled error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	internal := apperrors.Internal(err)
	respondJSON(w, internal.Status, errorResponse{Error: errorBody{
		Code:    internal.Code,
		Message: internal.Message,
	}})
}
