package service

import (
	"errors"
	"fmt"

	"github.com/emrgen/docvault/internal/store"
)

var (
	// ErrNotFound is returned when a document or version does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller may not perform an operation on a document.
	// It always wraps ErrNoGrant or ErrInsufficientLevel.
	ErrForbidden = errors.New("access denied")
	// ErrNoGrant is the reason for a denial when the caller holds no usable permission.
	ErrNoGrant = errors.New("no grant")
	// ErrInsufficientLevel is the reason for a denial when the caller's level is too low.
	ErrInsufficientLevel = errors.New("insufficient level")
	// ErrInvalidLevel is returned for a permission level outside owner, editor and viewer.
	ErrInvalidLevel = errors.New("invalid permission level")
	// ErrInvalidArgument is returned for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStorage wraps persistence failures. The failed unit of work left no partial state.
	ErrStorage = errors.New("storage failure")
)

var sentinels = []error{ErrNotFound, ErrForbidden, ErrInvalidLevel, ErrInvalidArgument, ErrStorage}

// storageError maps store errors onto the service taxonomy.
func storageError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}

	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	return fmt.Errorf("%w: %v", ErrStorage, err)
}
