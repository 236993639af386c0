package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/sparqlflow/internal/queryir"
)

// RuntimeError represents an error detected during engine execution.
//
// Runtime errors include:
//   - Count underflow: a row, edge or result retracted more often than added
//   - Unsupported delta: a delta kind the entry point does not accept
//
// Count underflow means the store listener contract was broken upstream. It
// is raised as a panic carrying a *RuntimeError and is never recovered by
// the engine itself.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// QueryID identifies the affected query, when known.
	QueryID string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeCountUnderflow indicates a retraction without a matching addition.
	ErrCodeCountUnderflow RuntimeErrorCode = "COUNT_UNDERFLOW"

	// ErrCodeUnsupportedDelta indicates a delta the entry point cannot process.
	ErrCodeUnsupportedDelta RuntimeErrorCode = "UNSUPPORTED_DELTA"

	// ErrCodeInvalidQuery indicates a query tree that failed validation.
	ErrCodeInvalidQuery RuntimeErrorCode = "INVALID_QUERY"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.QueryID != "" {
		return fmt.Sprintf("%s: %s (query=%s)", e.Code, e.Message, e.QueryID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnderflowError returns true if the error is a count underflow.
// Uses errors.As to handle wrapped errors.
func IsUnderflowError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCountUnderflow
	}
	return false
}

// IsInvalidQueryError returns true if Prepare rejected the query tree.
func IsInvalidQueryError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidQuery
	}
	return false
}

// NewUnderflowError creates a RuntimeError for count underflow.
func NewUnderflowError(where, message string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCountUnderflow,
		Message: message,
		Details: map[string]string{"where": where},
	}
}

// newInvalidQueryError summarizes validation errors.
func newInvalidQueryError(errs []queryir.ValidationError) *RuntimeError {
	msgs := make([]string, len(errs))
	details := make(map[string]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
		details[e.Field] = e.Code
	}
	return &RuntimeError{
		Code:    ErrCodeInvalidQuery,
		Message: strings.Join(msgs, "; "),
		Details: details,
	}
}

// RecoverUnderflow converts an underflow panic into an error. Use it in a
// deferred call at boundaries that must report rather than crash, such as
// the CLI:
//
//	defer engine.RecoverUnderflow(&err)
//
// Other panics are re-raised.
func RecoverUnderflow(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if re, ok := r.(*RuntimeError); ok && re.Code == ErrCodeCountUnderflow {
		*errp = re
		return
	}
	panic(r)
}
