package alert

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRecipients means the directory resolved zero contacts for a
	// trigger. The authority fallback should make this impossible, so it
	// signals misconfiguration and the trigger must not silently succeed.
	ErrNoRecipients = errors.New("no recipients resolved for user")

	// ErrUnknownAlert is returned by Resolve and MergeLocation when the
	// target alert does not exist or is already closed.
	ErrUnknownAlert = errors.New("unknown alert")
)

// SendError classifies a channel send failure. Transient failures are
// retried with backoff; permanent failures settle the dispatch record
// immediately.
type SendError struct {
	Permanent bool
	Err       error
}

func (e *SendError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("permanent: %v", e.Err)
	}
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable send failure.
func Transient(err error) error { return &SendError{Err: err} }

// Permanent wraps err as a non-retryable send failure.
func Permanent(err error) error { return &SendError{Permanent: true, Err: err} }

// IsPermanent reports whether err is a permanent send failure. Unclassified
// errors are treated as transient so ordinary network trouble gets retried.
func IsPermanent(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Permanent
}
