// File: internal/ui/errors.go
package ui

import "errors"

// The error taxonomy separates expected absence from infrastructure failure.
// "Control not found on this attempt" is a value (the ok=false return of
// Locate), never an error; everything below signals that the surrounding
// machinery is broken and the caller must react.
var (
	// ErrTargetNotFound: session acquisition exhausted its timeout. Fatal
	// for the run unless the target can be restarted.
	ErrTargetNotFound = errors.New("target application not found")

	// ErrStaleHandle: the session's underlying window reference died. The
	// owner reconnects and retries the current action exactly once.
	ErrStaleHandle = errors.New("session handle is stale")

	// ErrVerificationFailed: the action was performed but its effect could
	// not be confirmed within the verification window.
	ErrVerificationFailed = errors.New("action verification failed")

	// ErrDialogTimeout: an expected modal interrupt never appeared within
	// the bounded poll.
	ErrDialogTimeout = errors.New("expected dialog did not appear")

	// ErrWaitTimeout: a PollUntil predicate never became true.
	ErrWaitTimeout = errors.New("wait timed out")

	// ErrCancelled: the cancellation signal was raised during a bounded wait.
	ErrCancelled = errors.New("run cancelled")
)

// IsInfrastructure reports whether err must propagate past the strategy
// chain instead of being treated as an ordinary miss.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrStaleHandle) || errors.Is(err, ErrTargetNotFound)
}
