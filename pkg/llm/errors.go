package llm

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType classifies an LLM failure.
type ErrorType string

const (
	ErrorTypeNone        ErrorType = ""
	ErrorTypeEndpoint    ErrorType = "endpoint"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeModel       ErrorType = "model"
	ErrorTypeRateLimited ErrorType = "rate_limited"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is a classified provider failure. Endpoint is printed as its host only.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
	Endpoint   string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " HTTP %d", e.StatusCode)
	}
	if e.Model != "" {
		fmt.Fprintf(&b, " model=%s", e.Model)
	}
	if host := endpointHost(e.Endpoint); host != "" {
		fmt.Fprintf(&b, " endpoint=%s", host)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the request may succeed if sent again.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// Unavailable reports whether the provider could not be used at all, as opposed
// to answering badly. Throttling counts as unavailable.
func (e *Error) Unavailable() bool {
	switch e.Type {
	case ErrorTypeEndpoint, ErrorTypeAuth, ErrorTypeModel, ErrorTypeRateLimited:
		return true
	}
	return false
}

// NewErrorWithContext creates an Error tagged with the model and endpoint that produced it.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

// statusCodePattern only accepts a code introduced by http/status/code so that
// counts and port numbers in messages are not mistaken for status codes.
var statusCodePattern = regexp.MustCompile(`(?i)\b(?:http|status|code)\s*:?\s*([1-5]\d{2})\b`)

func extractStatusCode(msg string) int {
	m := statusCodePattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

type classification struct {
	errType   ErrorType
	message   string
	retryable bool
	matches   func(msg string, status int) bool
}

func containsAny(msg string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}

// classifications are tried in order; msg is lower-cased.
var classifications = []classification{
	{ErrorTypeAuth, "authentication failed", false, func(msg string, status int) bool {
		return status == 401 || status == 403 || containsAny(msg, "unauthorized", "invalid api key", "invalid x-api-key")
	}},
	{ErrorTypeModel, "model not found", false, func(msg string, _ int) bool {
		return strings.Contains(msg, "model") && containsAny(msg, "not found", "does not exist")
	}},
	{ErrorTypeEndpoint, "endpoint not found", false, func(_ string, status int) bool {
		return status == 404
	}},
	{ErrorTypeRateLimited, "rate limited", true, func(msg string, status int) bool {
		return status == 429 || containsAny(msg, "rate limit", "too many requests")
	}},
	{ErrorTypeEndpoint, "connection failed", true, func(msg string, _ int) bool {
		return containsAny(msg, "connection refused", "no such host")
	}},
	{ErrorTypeUnknown, "request cancelled", false, func(msg string, _ int) bool {
		return strings.Contains(msg, "context canceled")
	}},
	{ErrorTypeEndpoint, "request timeout", true, func(msg string, _ int) bool {
		return containsAny(msg, "timeout", "deadline exceeded")
	}},
	{ErrorTypeEndpoint, "server error", true, func(_ string, status int) bool {
		return status >= 500
	}},
}

// ClassifyError wraps err in an *Error, deriving its type from the status code and
// message the provider library produced. An *Error in the chain is returned as is.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	msg := err.Error()
	status := extractStatusCode(msg)
	lower := strings.ToLower(msg)

	for _, c := range classifications {
		if c.matches(lower, status) {
			return &Error{Type: c.errType, Message: c.message, Retryable: c.retryable, Cause: err, StatusCode: status}
		}
	}
	return &Error{Type: ErrorTypeUnknown, Message: "llm error", Cause: err, StatusCode: status}
}

// IsUnavailable reports whether err is an *Error meaning the provider could not be used.
func IsUnavailable(err error) bool {
	var llmErr *Error
	return errors.As(err, &llmErr) && llmErr.Unavailable()
}

// GetErrorType returns the type of an *Error in err's chain, or ErrorTypeUnknown.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if endpoint == "" || err != nil {
		return ""
	}
	return u.Host
}
