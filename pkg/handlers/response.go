package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
)

// ApiResponse is the envelope of every JSON response.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// statusFor maps a service error onto an HTTP status. The error code in the body
// is the failure label reported by the CLI as well.
func statusFor(err error) int {
	var providerErr *apperrors.SuggestionProviderError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrInputFormat):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNoSource),
		errors.Is(err, apperrors.ErrNoSchema),
		errors.Is(err, apperrors.ErrNoMapping):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrSchemaUnavailable),
		errors.As(err, &providerErr) && providerErr.Unavailable,
		errors.Is(err, apperrors.ErrPipelineStep):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with the status and label it maps to.
func writeServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	if err := ErrorResponse(w, status, apperrors.FailureLabel(err), err.Error()); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
