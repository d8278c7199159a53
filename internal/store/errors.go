package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("store unavailable")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrAccountNotFound indicates that the requested account does not exist.
	ErrAccountNotFound = fmt.Errorf("%w: account", ErrNotFound)
)

// OpError records which backend operation failed for which account. It
// unwraps to the mapped store error, so callers keep using errors.Is.
type OpError struct {
	Backend   string
	Op        string
	AccountID string
	Err       error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s account %q: %v", e.Backend, e.Op, e.AccountID, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError wraps err, returning nil when err is nil.
func NewOpError(backend, op, accountID string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Backend: backend, Op: op, AccountID: accountID, Err: err}
}
