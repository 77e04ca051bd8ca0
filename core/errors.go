package core

import (
	"database/sql"

	"github.com/pkg/errors"
)

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
		return ""
	}
	return err.Err.Error()
}

// StorageError wraps an unexpected failure of the underlying store (I/O, driver, constraint).
// Expected conditions (not found, already refunded, ...) are never reported as StorageError.
type StorageError struct {
	Op  string
	Err error
}

// A closed connection pool cannot recover: it is reported as a shutdown error instead.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) {
		return NewShutdownError("storage: " + op + ": " + err.Error())
	}
	return &StorageError{Op: op, Err: errors.WithStack(err)}
}

func (err StorageError) Error() string {
	return "storage: " + err.Op + ": " + err.Err.Error()
}

func (err StorageError) Unwrap() error {
	return err.Err
}

func IsStorageError(err error) bool {
	_, ok := errors.Cause(err).(*StorageError)
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
