package services

import "fmt"

// ValidationError marks malformed caller input (count out of range, unknown
// kind, empty upload). Surfaced directly, never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ExtractionError wraps a failure to pull text out of an uploaded PDF.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string { return fmt.Sprintf("pdf extraction failed: %v", e.Err) }
func (e *ExtractionError) Unwrap() error { return e.Err }

// GenerationError wraps an LLM collaborator failure. It aborts the whole
// pipeline; callers surface a generic "processing failed" without provider
// detail.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }

// MalformedGenerationError marks one structurally invalid generated item
// (wrong answer count, zero or several correct answers). Recoverable per
// item: the orchestrator drops the item and asks for a replacement within a
// bounded retry budget.
type MalformedGenerationError struct {
	Reason string
}

func (e *MalformedGenerationError) Error() string {
	return "malformed generated question: " + e.Reason
}
