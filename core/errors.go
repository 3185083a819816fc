package core

import "github.com/pkg/errors"

// FieldError reports a validation failure on a single input field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError carries a user-facing message plus any per-field
// details. API layers render it as a client error rather than a
// server fault, so domain rules (insufficient funds, duplicate
// student IDs, closed goals) should surface through it.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

// NewValidationError wraps err with optional field details.
func NewValidationError(err error, fields ...FieldError) error {
	return &ValidationError{Err: err, Fields: fields}
}

func (e ValidationError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// shutdown signals an unrecoverable condition. A handler returning one
// tells the server to stop accepting traffic.
type shutdown struct {
	message string
}

// NewShutdownError returns an error that requests a graceful shutdown.
func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

// IsShutdown checks whether err, at its root cause, requests a shutdown.
func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
