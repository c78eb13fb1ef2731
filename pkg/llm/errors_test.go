package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "minimal",
			err:  &Error{Type: ErrorTypeAuth, Message: "authentication failed"},
			want: "auth authentication failed",
		},
		{
			name: "full context, endpoint reduced to host",
			err: NewErrorWithContext(ErrorTypeEndpoint, "server error", true,
				errors.New("underlying network issue"), "gpt-4o", "https://api.openai.com/v1", 503),
			want: "endpoint HTTP 503 model=gpt-4o endpoint=api.openai.com server error: underlying network issue",
		},
		{
			name: "unparseable endpoint omitted",
			err:  &Error{Type: ErrorTypeModel, Message: "model not found", Endpoint: "::not a url"},
			want: "model model not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg         string
		wantType    ErrorType
		wantStatus  int
		retryable   bool
		unavailable bool
	}{
		{"HTTP 503 Service Unavailable", ErrorTypeEndpoint, 503, true, true},
		{"HTTP 500 Internal Server Error", ErrorTypeEndpoint, 500, true, true},
		{"HTTP 401 Unauthorized", ErrorTypeAuth, 401, false, true},
		{"error, status code: 403, forbidden", ErrorTypeAuth, 403, false, true},
		{"invalid x-api-key", ErrorTypeAuth, 0, false, true},
		{"HTTP 404 Not Found", ErrorTypeEndpoint, 404, false, true},
		{"model gpt-9 does not exist", ErrorTypeModel, 0, false, true},
		{"HTTP 429 Too Many Requests", ErrorTypeRateLimited, 429, true, true},
		{"rate limit exceeded", ErrorTypeRateLimited, 0, true, true},
		{"dial tcp 127.0.0.1:8080: connect: connection refused", ErrorTypeEndpoint, 0, true, true},
		{"Post \"http://llm/v1\": context deadline exceeded", ErrorTypeEndpoint, 0, true, true},
		{"context canceled", ErrorTypeUnknown, 0, false, false},
		{"something odd happened", ErrorTypeUnknown, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			cause := errors.New(tt.msg)
			got := ClassifyError(fmt.Errorf("call provider: %w", cause))

			require.NotNil(t, got)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantStatus, got.StatusCode)
			assert.Equal(t, tt.retryable, got.IsRetryable())
			assert.Equal(t, tt.unavailable, IsUnavailable(got))
			assert.ErrorIs(t, got, cause)
		})
	}
}

func TestClassifyError_KeepsClassifiedError(t *testing.T) {
	original := &Error{Type: ErrorTypeEndpoint, Message: "server error", Retryable: true, StatusCode: 503}

	assert.Same(t, original, ClassifyError(original))
	assert.Same(t, original, ClassifyError(fmt.Errorf("wrapped: %w", original)))
	assert.Nil(t, ClassifyError(nil))
}

func TestExtractStatusCode(t *testing.T) {
	tests := []struct {
		msg  string
		want int
	}{
		{"HTTP 503 Service Unavailable", 503},
		{"status 429 rate limited", 429},
		{"status: 500", 500},
		{"code 502 bad gateway", 502},
		{"Status: 404 Not Found", 404},
		{"processed 503 records", 0},
		{"port 5432 connection failed", 0},
		{"error after 429 seconds", 0},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, extractStatusCode(tt.msg))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeRateLimited, GetErrorType(fmt.Errorf("x: %w", &Error{Type: ErrorTypeRateLimited})))
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
	assert.False(t, IsUnavailable(errors.New("plain")))
}
