package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument means the caller passed input the queue cannot act on.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound means the tenant's store holds no item with the given id.
	ErrNotFound = errors.New("sync item not found")

	// ErrInvalidState means a lifecycle transition was attempted on a terminal item.
	ErrInvalidState = errors.New("invalid lifecycle state")
)

// StorageError wraps a persistence failure from whichever backend holds the items.
// The queue never retries these itself; they bubble to the caller unmodified.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err with the failing store operation name.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is (or wraps) a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
