package storage

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by drivers for operations they do not implement.
var ErrUnsupported = errors.New("operation not supported by storage driver")

// ValidationError rejects a malformed or cross-tenant request before it
// touches the store.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	if e.Reason == "" {
		return "invalid request"
	}
	return "invalid request: " + e.Reason
}

// NotFoundError is returned when a referenced record or position does not exist.
type NotFoundError struct {
	What string
	Key  string
}

func (e NotFoundError) Error() string {
	what := e.What
	if what == "" {
		what = "record"
	}
	if e.Key == "" {
		return what + " not found"
	}
	return what + " not found: " + e.Key
}

// ConflictError is returned when creating a record that already exists.
type ConflictError struct {
	What string
	Key  string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.What, e.Key)
}

// StorageError wraps a backend failure. Its message is deliberately generic
// so callers can surface it without leaking backend detail; the wrapped
// error stays available to logs through Unwrap.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage error"
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Detail returns the operation and wrapped error for logging.
func (e *StorageError) Detail() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// CapabilityError wraps a failure or timeout of an external capability such
// as the embedder, the LLM or the transcriber.
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s capability failed: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *StorageError for op, leaving nil, taxonomy errors
// and existing storage errors untouched.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		se *StorageError
		nf NotFoundError
		ve ValidationError
		ce ConflictError
	)
	if errors.As(err, &se) || errors.As(err, &nf) || errors.As(err, &ve) || errors.As(err, &ce) {
		return err
	}

	return &StorageError{Op: op, Err: err}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
