package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestParseSessionID(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name      string
		pathValue string
		wantOK    bool
	}{
		{name: "valid UUID", pathValue: "550e8400-e29b-41d4-a716-446655440000", wantOK: true},
		{name: "invalid UUID", pathValue: "not-a-uuid"},
		{name: "empty UUID", pathValue: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.SetPathValue("sid", tt.pathValue)
			rec := httptest.NewRecorder()

			id, ok := ParseSessionID(rec, req, logger)

			if ok != tt.wantOK {
				t.Fatalf("ParseSessionID() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok {
				if id.String() != tt.pathValue {
					t.Errorf("ParseSessionID() id = %s, want %s", id, tt.pathValue)
				}
				return
			}

			if id != uuid.Nil {
				t.Errorf("ParseSessionID() id = %v, want uuid.Nil", id)
			}
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if body["error"] != "invalid_session_id" {
				t.Errorf("error code = %q, want %q", body["error"], "invalid_session_id")
			}
		})
	}
}
