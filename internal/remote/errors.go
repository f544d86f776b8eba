package remote

import (
	"errors"
	"fmt"

	"github.com/mschirtzinger/workq/internal/types"
)

// Common errors returned by remote operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, remote.ErrTimeout) {
//	    // try again later
//	}
var (
	// ErrNotConfigured is returned when an operation needs a remote but the
	// workspace is local-only.
	ErrNotConfigured = errors.New("no remote configured")

	// ErrUnknownKind is returned by Open for an unregistered backend kind.
	ErrUnknownKind = errors.New("unknown remote kind")

	// ErrUnavailable is returned when the backend cannot be reached at all,
	// e.g. the client binary is missing or the shared directory is gone.
	ErrUnavailable = errors.New("remote unavailable")

	// ErrTimeout is returned when a remote call exceeds its timeout.
	ErrTimeout = errors.New("remote operation timed out")

	// ErrRejected is returned when the remote refuses a request as invalid.
	ErrRejected = errors.New("rejected by remote")
)

// RemoteError wraps a failure from a remote call with the operation and
// target item.
type RemoteError struct {
	Op     string
	ItemID string
	Err    error
}

func (e *RemoteError) Error() string {
	if e.ItemID == "" {
		return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.ItemID, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *RemoteError, or nil if err is nil. Errors that are
// already RemoteErrors are returned unchanged.
func Wrap(op, itemID string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{Op: op, ItemID: itemID, Err: err}
}

// IsRetryable returns true if the error is likely to succeed on retry.
// Missing items, rejected requests and validation failures never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, types.ErrNotFound) || errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrUnknownKind) {
		return false
	}
	if _, ok := types.AsValidation(err); ok {
		return false
	}
	return true
}
