// Package faults defines the error taxonomy shared by the model gateway, the
// renderer client, and the pipeline's top-level recovery: sentinel errors,
// structured error types, and a single classifier over raw error text and
// status codes so overload detection is tested once and reused everywhere.
package faults

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQuotaExceeded is returned when placing a hold would exceed the
	// owner's remaining budget.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrAborted is returned when a cancellation signal is observed at a
	// stage boundary.
	ErrAborted = errors.New("request aborted")

	// ErrOwnershipMismatch is returned when a session mutation names an
	// owner other than the stored one.
	ErrOwnershipMismatch = errors.New("session owner mismatch")

	// ErrSessionNotFound is returned for reads and mutations of unknown
	// session ids.
	ErrSessionNotFound = errors.New("session not found")
)

// ErrorKind classifies a failure for retry decisions and user messaging.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindOverloaded
	KindRetryable
	KindFatalParse
	KindQuotaExceeded
	KindAborted
	KindCompile
	KindExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case KindOverloaded:
		return "overloaded"
	case KindRetryable:
		return "retryable"
	case KindFatalParse:
		return "fatal_parse"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindAborted:
		return "aborted"
	case KindCompile:
		return "compile"
	case KindExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

var overloadMarkers = []string{
	"overloaded",
	"rate limit",
	"rate-limited",
	"resource exhausted",
	"resource_exhausted",
	"too many requests",
	"capacity",
}

var retryableMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"temporarily unavailable",
	"unavailable",
	"eof",
}

// Classify maps raw error text plus any available HTTP status code onto an
// ErrorKind. Both the gateway retry loop and the pipeline's terminal catch use
// this same function.
func Classify(text string, status int) ErrorKind {
	switch status {
	case 429, 503, 529:
		return KindOverloaded
	case 500, 502, 504, 408:
		return KindRetryable
	}

	lowered := strings.ToLower(text)

	for _, marker := range overloadMarkers {
		if strings.Contains(lowered, marker) {
			return KindOverloaded
		}
	}

	for _, marker := range retryableMarkers {
		if strings.Contains(lowered, marker) {
			return KindRetryable
		}
	}

	return KindUnknown
}

// ClassifyError resolves an error into an ErrorKind, honoring the structured
// types before falling back to text sniffing.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	if errors.Is(err, ErrQuotaExceeded) {
		return KindQuotaExceeded
	}
	if errors.Is(err, ErrAborted) {
		return KindAborted
	}
	// A dead caller context is a cancellation, not a provider failure; the
	// text markers must not see it ("deadline exceeded" reads as retryable).
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindAborted
	}

	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return KindCompile
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return KindFatalParse
	}

	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		if exhausted.LastKind == KindOverloaded {
			return KindOverloaded
		}
		return KindExhausted
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return Classify(statusErr.Body, statusErr.Code)
	}

	return Classify(err.Error(), 0)
}

// StatusError carries a provider or renderer HTTP failure with its status
// code, so classification does not have to parse it back out of a message.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream error: status %d", e.Code)
	}
	return fmt.Sprintf("upstream error: status %d: %s", e.Code, e.Body)
}

// ParseError marks a fatally malformed structured response. It is never
// retried.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "structured response parse failed: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExhaustedError is raised when the gateway runs out of retry attempts. It
// keeps the attempt count and the classification of the last failure.
type ExhaustedError struct {
	Attempts int
	LastKind ErrorKind
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// CompileError carries renderer diagnostics: a log excerpt, the offending
// line numbers, and the discrete parsed error messages. It is recoverable at
// single-version granularity and never aborts a whole session.
type CompileError struct {
	LogExcerpt  string
	LineNumbers []int
	Errors      []string
}

func (e *CompileError) Error() string {
	if len(e.Errors) > 0 {
		return "document failed to compile: " + e.Errors[0]
	}
	return "document failed to compile"
}

// UserMessage converts a terminal pipeline error into the single user-safe
// line the caller receives. Raw internal detail never crosses this boundary.
func UserMessage(kind ErrorKind) string {
	switch kind {
	case KindQuotaExceeded:
		return "You have no generation credits remaining. Request a quota increase to continue."
	case KindAborted:
		return "Generation cancelled."
	case KindOverloaded:
		return "The AI provider is overloaded right now. Please retry in a few minutes."
	default:
		return "Generation failed. Please try again."
	}
}
