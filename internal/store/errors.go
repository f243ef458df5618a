package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when no document exists under the key.
	ErrNotFound = errors.New("store: document not found")

	// ErrPermanent marks a rejection that retrying cannot fix.
	ErrPermanent = errors.New("store: permanent failure")

	// ErrFeedClosed ends a subscription whose change feed went away.
	ErrFeedClosed = errors.New("store: change feed closed")
)

// TransientError wraps a failure expected to succeed on retry
// (connection reset, throttling, serialization conflict).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("store: transient %s failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// Retryable reports whether err is worth another attempt. Permanent
// rejections, missing documents and cancelled contexts are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
