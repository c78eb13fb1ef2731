package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		errorCode  string
		message    string
	}{
		{"bad request", http.StatusBadRequest, "bad_request", "invalid input"},
		{"not found", http.StatusNotFound, "not_found", "resource not found"},
		{"internal error", http.StatusInternalServerError, "internal_error", "something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			err := ErrorResponse(w, tt.statusCode, tt.errorCode, tt.message)
			if err != nil {
				t.Fatalf("ErrorResponse returned error: %v", err)
			}

			resp := w.Result()
			defer resp.Body.Close()

			if resp.StatusCode != tt.statusCode {
				t.Errorf("status code = %d, want %d", resp.StatusCode, tt.statusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response body: %v", err)
			}
			if body["error"] != tt.errorCode {
				t.Errorf("body[error] = %q, want %q", body["error"], tt.errorCode)
			}
			if body["message"] != tt.message {
				t.Errorf("body[message] = %q, want %q", body["message"], tt.message)
			}
		})
	}
}

func TestWriteJSON_StatusCodes(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated} {
		w := httptest.NewRecorder()
		if err := WriteJSON(w, status, ApiResponse{Success: true}); err != nil {
			t.Fatalf("WriteJSON returned error: %v", err)
		}
		if w.Code != status {
			t.Errorf("status code = %d, want %d", w.Code, status)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("session x: %w", apperrors.ErrNotFound), http.StatusNotFound},
		{"conflict", apperrors.ErrConflict, http.StatusConflict},
		{"parse error", &apperrors.NoHeadersError{}, http.StatusBadRequest},
		{"no source", apperrors.ErrNoSource, http.StatusConflict},
		{"no schema", apperrors.ErrNoSchema, http.StatusConflict},
		{"no mapping", apperrors.ErrNoMapping, http.StatusConflict},
		{"schema unavailable", &apperrors.SchemaUnavailableError{Reason: "empty"}, http.StatusBadGateway},
		{"provider unavailable", &apperrors.SuggestionProviderError{Message: "down", Unavailable: true}, http.StatusBadGateway},
		{"provider malformed", &apperrors.SuggestionProviderError{Message: "bad json"}, http.StatusInternalServerError},
		{"pipeline", &apperrors.PipelineStepError{File: "a.csv", Step: "commit", Cause: errors.New("x")}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWriteServiceError_UsesFailureLabel(t *testing.T) {
	w := httptest.NewRecorder()
	writeServiceError(w, apperrors.ErrNoSource, zap.NewNop())

	if w.Code != http.StatusConflict {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusConflict)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body["error"] != "no source loaded" {
		t.Errorf("body[error] = %q, want %q", body["error"], "no source loaded")
	}
}
