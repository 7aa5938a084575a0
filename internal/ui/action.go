// File: internal/ui/action.go
package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ActionKind enumerates the supported interactions.
type ActionKind int

const (
	ActionClick ActionKind = iota
	ActionSetText
	ActionSelect
)

func (k ActionKind) String() string {
	switch k {
	case ActionClick:
		return "click"
	case ActionSetText:
		return "set-text"
	case ActionSelect:
		return "select-option"
	default:
		return "unknown"
	}
}

// Action pairs a kind with its payload (the text to set or option to pick).
type Action struct {
	Kind ActionKind
	Text string
}

// Verify is a caller-supplied post-condition over the session state. Many
// of the target UIs accept clicks with no visible effect, so an action only
// counts as performed once its observable effect is confirmed; the layer
// performing the input event cannot judge that itself.
type Verify func(ctx context.Context) (bool, error)

// Outcome reports an attempted action: whether it verified, the strategy
// that produced the reference (for diagnostics), and the failure cause.
type Outcome struct {
	OK       bool
	Strategy string
	Err      error
}

// Executor performs click/set-text/select on a located reference and polls
// the caller's verification predicate. It never retries internally: retry
// policy belongs to the pipeline controller, which may re-locate first
// because the UI state can shift between attempts.
type Executor struct {
	verifyTimeout time.Duration
	pollInterval  time.Duration
	cancelled     CancelCheck
	log           *zap.Logger
}

// NewExecutor creates an executor. cancelled may be nil.
func NewExecutor(log *zap.Logger, verifyTimeout, pollInterval time.Duration, cancelled CancelCheck) *Executor {
	return &Executor{
		verifyTimeout: verifyTimeout,
		pollInterval:  pollInterval,
		cancelled:     cancelled,
		log:           log.Named("executor"),
	}
}

// Perform dispatches the action through the reference and confirms it via
// verify. A nil verify accepts the action as soon as the input event lands.
func (e *Executor) Perform(ctx context.Context, s *SessionHandle, ref Ref, act Action, verify Verify) Outcome {
	out := Outcome{Strategy: ref.Strategy}

	if err := e.dispatch(ctx, s, ref, act); err != nil {
		if !s.IsValid(ctx) {
			err = fmt.Errorf("%w: dispatching %s: %v", ErrStaleHandle, act.Kind, err)
		}
		out.Err = err
		return out
	}

	if verify == nil {
		out.OK = true
		return out
	}

	err := PollUntil(ctx, e.pollInterval, e.verifyTimeout, e.cancelled, verify)
	switch {
	case err == nil:
		out.OK = true
	case errors.Is(err, ErrWaitTimeout):
		out.Err = fmt.Errorf("%w: %s via %s had no confirmed effect", ErrVerificationFailed, act.Kind, ref.Strategy)
	default:
		out.Err = err
	}
	if out.Err != nil {
		e.log.Debug("Action failed verification",
			zap.Stringer("action", act.Kind),
			zap.String("strategy", ref.Strategy),
			zap.Error(out.Err))
	}
	return out
}

// dispatch routes the action to the right backend primitive for the
// reference kind.
func (e *Executor) dispatch(ctx context.Context, s *SessionHandle, ref Ref, act Action) error {
	b := s.Backend()

	switch ref.Kind {
	case NodeRef:
		switch act.Kind {
		case ActionClick:
			return b.Click(ctx, ref.Node)
		case ActionSetText:
			return b.SetText(ctx, ref.Node, act.Text)
		case ActionSelect:
			return b.SelectOption(ctx, ref.Node, act.Text)
		}

	case PointRef:
		if act.Kind != ActionClick {
			return fmt.Errorf("geometric reference supports click only, got %s", act.Kind)
		}
		return b.ClickAt(ctx, ref.Bounds.X, ref.Bounds.Y)

	case KeysRef:
		// The keyboard fallback reaches the control by traversal; typed
		// text or an option choice is appended to the same sequence.
		keys := ref.Keys
		if act.Kind != ActionClick && act.Text != "" {
			keys = append(append([]string{}, keys...), act.Text)
		}
		return b.SendKeys(ctx, keys)
	}
	return fmt.Errorf("unsupported reference kind %d", ref.Kind)
}
