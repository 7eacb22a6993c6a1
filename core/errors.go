package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return "validation failed"
	}
	return err.Err.Error()
}

// ConflictError reports a uniqueness violation (duplicate email...).
type ConflictError struct {
	ValidationError
}

func NewConflictError(err error, flds ...FieldError) error {
	return &ConflictError{ValidationError{err, flds}}
}

type NotFoundError struct {
	message string
}

func NewNotFoundError(msg string) *NotFoundError {
	return &NotFoundError{message: msg}
}

func (err NotFoundError) Error() string {
	return err.message
}

type PermissionError struct {
	message string
}

func NewPermissionError(msg string) *PermissionError {
	return &PermissionError{message: msg}
}

func (err PermissionError) Error() string {
	return err.message
}

// ProviderError wraps a failed call to a third-party provider (Stripe, Razorpay, GCS...).
type ProviderError struct {
	Provider string
	Err      error
}

func NewProviderError(provider string, err error) error {
	return &ProviderError{Provider: provider, Err: err}
}

func (err ProviderError) Error() string {
	return err.Provider + ": " + err.Err.Error()
}

func (err ProviderError) Unwrap() error {
	return err.Err
}

// IsNotFound checks whether the root cause of err is a *NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
