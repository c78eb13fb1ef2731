package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// Error categories. Every typed error below matches exactly one of these via errors.Is.
	ErrInputFormat        = errors.New("input format error")
	ErrSchemaUnavailable  = errors.New("schema unavailable")
	ErrSuggestionProvider = errors.New("suggestion provider error")
	ErrFeedbackWrite      = errors.New("feedback write error")
	ErrPipelineStep       = errors.New("pipeline step error")

	// Preconditions for the user-invocable actions.
	ErrNoSource = errors.New("no source loaded")
	ErrNoSchema = errors.New("no schema loaded")

	// ErrNoMapping is returned by exports when no row maps to a real target.
	ErrNoMapping = errors.New("no valid column mappings found")
)

// EmptyInputError is returned when a tabular file has no non-blank lines.
type EmptyInputError struct {
	Role string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("%s file is empty", e.Role)
}

func (e *EmptyInputError) Is(target error) bool { return target == ErrInputFormat }

// NoHeadersError is returned when a source file's header row has no non-empty cells.
type NoHeadersError struct{}

func (e *NoHeadersError) Error() string {
	return "no valid column headers found in source file"
}

func (e *NoHeadersError) Is(target error) bool { return target == ErrInputFormat }

// DuplicateHeadersError is returned when a source header appears more than once.
// Headers key the mapping rows, so they must be unique within a session.
type DuplicateHeadersError struct {
	Headers []string
}

func (e *DuplicateHeadersError) Error() string {
	return fmt.Sprintf("source file has duplicate column headers: %s", strings.Join(e.Headers, ", "))
}

func (e *DuplicateHeadersError) Is(target error) bool { return target == ErrInputFormat }

// MissingColumnsError names the required columns absent from a knowledge-base file.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("knowledge-base file missing required headers: %s", strings.Join(e.Missing, ", "))
}

func (e *MissingColumnsError) Is(target error) bool { return target == ErrInputFormat }

// SchemaUnavailableError wraps a failed or empty target schema fetch.
type SchemaUnavailableError struct {
	Reason string
	Cause  error
}

func (e *SchemaUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("target schema unavailable: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("target schema unavailable: %s", e.Reason)
}

func (e *SchemaUnavailableError) Is(target error) bool { return target == ErrSchemaUnavailable }
func (e *SchemaUnavailableError) Unwrap() error        { return e.Cause }

// SuggestionProviderError wraps a transport failure or malformed response from the
// suggestion provider. Unavailable is set when the provider could not be reached at all.
type SuggestionProviderError struct {
	Message     string
	Unavailable bool
	Cause       error
}

func (e *SuggestionProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("suggestion provider: %s: %v", e.Message, e.Cause)
	}
	return "suggestion provider: " + e.Message
}

func (e *SuggestionProviderError) Is(target error) bool { return target == ErrSuggestionProvider }
func (e *SuggestionProviderError) Unwrap() error        { return e.Cause }

// FeedbackWriteError reports a failed synonym/antonym update for a single target.
type FeedbackWriteError struct {
	Target string
	Cause  error
}

func (e *FeedbackWriteError) Error() string {
	return fmt.Sprintf("feedback write for %q: %v", e.Target, e.Cause)
}

func (e *FeedbackWriteError) Is(target error) bool { return target == ErrFeedbackWrite }
func (e *FeedbackWriteError) Unwrap() error        { return e.Cause }

// PipelineStepError reports the ingestion step that aborted a file's pipeline.
type PipelineStepError struct {
	File  string
	Step  string
	Cause error
}

func (e *PipelineStepError) Error() string {
	return fmt.Sprintf("ingestion of %s failed at step %s: %v", e.File, e.Step, e.Cause)
}

func (e *PipelineStepError) Is(target error) bool { return target == ErrPipelineStep }
func (e *PipelineStepError) Unwrap() error        { return e.Cause }

// FailureLabel maps an error onto the labels reported by the user-facing actions.
func FailureLabel(err error) string {
	var providerErr *SuggestionProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNoSource):
		return "no source loaded"
	case errors.Is(err, ErrNoSchema), errors.Is(err, ErrSchemaUnavailable):
		return "no schema loaded"
	case errors.Is(err, ErrNoMapping):
		return "no mapping"
	case errors.As(err, &providerErr) && providerErr.Unavailable:
		return "provider unavailable"
	case errors.Is(err, ErrInputFormat), errors.Is(err, ErrSuggestionProvider):
		return "parse error"
	case errors.Is(err, ErrPipelineStep):
		return "ingestion failed"
	case errors.Is(err, ErrFeedbackWrite):
		return "feedback write failed"
	default:
		return "failed"
	}
}
