// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for brigade.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies brigade errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeParse indicates structured output could not be parsed.
	CodeParse ErrorCode = "PARSE_ERROR"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeStoreError indicates a persistence layer error.
	CodeStoreError ErrorCode = "STORE_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeDuplicateRun indicates a start was issued for a run id that is
	// already in flight or paused.
	CodeDuplicateRun ErrorCode = "DUPLICATE_RUN"

	// CodeUnknownRun indicates a resume was issued for a run id with no
	// checkpoint.
	CodeUnknownRun ErrorCode = "UNKNOWN_RUN"

	// CodeNotAwaitingInput indicates a resume was issued for a run that is
	// not paused at the interruption point.
	CodeNotAwaitingInput ErrorCode = "NOT_AWAITING_INPUT"
)

// BrigadeError is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type BrigadeError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *BrigadeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *BrigadeError) Unwrap() error {
	return e.Err
}

// New creates a new BrigadeError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *BrigadeError {
	return &BrigadeError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *BrigadeError) WithContext(key string, value interface{}) *BrigadeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *BrigadeError) WithRecoverable(recoverable bool) *BrigadeError {
	e.Recoverable = recoverable
	return e
}

// AsBrigadeError attempts to convert an error to a BrigadeError.
// Returns the error as BrigadeError if it is one, or wraps it otherwise.
func AsBrigadeError(err error) *BrigadeError {
	if err == nil {
		return nil
	}
	var be *BrigadeError
	if stderrors.As(err, &be) {
		return be
	}
	return New(CodeInternal, "wrapped error", err)
}

// IsCode reports whether err carries the given brigade error code.
func IsCode(err error, code ErrorCode) bool {
	var be *BrigadeError
	if stderrors.As(err, &be) {
		return be.Code == code
	}
	return false
}
