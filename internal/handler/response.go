package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/agrotrack/plotmanager/internal/domain"
	"github.com/agrotrack/plotmanager/internal/security/middleware"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// MessageResponse acknowledges an operation without returning a record
type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP statuses. Causes of
// 500s are logged and never echoed.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var verr *domain.ValidationError
	var dup *domain.DuplicateError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: verr.Error(), Fields: verr.Fields})
	case errors.As(err, &dup):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: dup.Error()})
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "invalid credentials"})
	case errors.Is(err, domain.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "authentication required"})
	case errors.Is(err, domain.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "invalid or expired token"})
	case errors.Is(err, domain.ErrPrincipalNotFound):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "user not found"})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Message: "you do not have permission to perform this action"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Message: "resource not found"})
	default:
		log.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
	}
}

// decodeJSON reads the request body into dst. Unknown keys are dropped,
// so fields a caller may not set (owner, id) never reach the services.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		v := domain.NewValidationError()
		if errors.Is(err, io.EOF) {
			v.Add("body", "request body is required")
		} else {
			v.Add("body", "request body must be valid JSON")
		}
		return v
	}
	return nil
}
