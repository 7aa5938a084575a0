// File: internal/ui/poll_test.go
package ui

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollUntil_ImmediateSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	start := time.Now()
	err := PollUntil(context.Background(), 50*time.Millisecond, time.Second, nil, func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "predicate should be evaluated before the first sleep")
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPollUntil_EventualSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := PollUntil(context.Background(), 5*time.Millisecond, time.Second, nil, func(context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPollUntil_Timeout(t *testing.T) {
	t.Parallel()

	err := PollUntil(context.Background(), 5*time.Millisecond, 30*time.Millisecond, nil, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestPollUntil_PredicateError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	err := PollUntil(context.Background(), 5*time.Millisecond, time.Second, nil, func(context.Context) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestPollUntil_Cancellation(t *testing.T) {
	t.Parallel()

	var stop atomic.Bool
	calls := 0
	err := PollUntil(context.Background(), 5*time.Millisecond, time.Second, stop.Load, func(context.Context) (bool, error) {
		calls++
		stop.Store(true)
		return false, nil
	})
	assert.ErrorIs(t, err, ErrCancelled)
	// The check runs before each evaluation, so cancellation lands within
	// one interval of being requested.
	assert.Equal(t, 1, calls)
}

func TestPollUntil_ContextEnds(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := PollUntil(ctx, 5*time.Millisecond, time.Second, nil, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
