package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"ananse-reader/internal/domain"
)

type errorResponse struct {
	Error   string                  `json:"error"`
	Code    string                  `json:"code"`
	Details []domain.FieldViolation `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondError maps domain errors to HTTP responses. Validation wins over
// conflict so a taken slug is reported against its field.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if verr, ok := domain.AsValidationError(err); ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation failed",
			Code:    "validation_failed",
			Details: verr.Violations,
		})
		return
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "conflict")
	case errors.Is(err, context.DeadlineExceeded):
		s.log.Warn().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("request timed out")
		writeError(w, http.StatusServiceUnavailable, "timeout", "request timed out")
	default:
		s.log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
