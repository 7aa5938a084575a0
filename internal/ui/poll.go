// File: internal/ui/poll.go
package ui

import (
	"context"
	"fmt"
	"time"
)

// CancelCheck reports whether the user has requested a graceful stop. It is
// consulted between poll iterations so cancellation takes effect within one
// interval. A nil check never cancels.
type CancelCheck func() bool

// PollUntil is the single wait primitive for the whole system: every
// bounded wait (element, dialog, file, verification) goes through here so
// timeout and cancellation semantics stay uniform. There is no blocking
// without a timeout anywhere else.
//
// The predicate is evaluated immediately, then once per interval until it
// returns true, it returns an error, the timeout elapses (ErrWaitTimeout),
// the context ends, or cancellation is requested (ErrCancelled).
func PollUntil(ctx context.Context, interval, timeout time.Duration, cancelled CancelCheck, pred func(context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if cancelled != nil && cancelled() {
			return ErrCancelled
		}
		ok, err := pred(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s", ErrWaitTimeout, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
