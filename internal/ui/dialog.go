// File: internal/ui/dialog.go
package ui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// DialogKind classifies the fixed set of expected modal interrupts.
type DialogKind int

const (
	DialogLogin DialogKind = iota
	DialogNotice
	DialogConfirm
	DialogSuccess
)

func (k DialogKind) String() string {
	switch k {
	case DialogLogin:
		return "login"
	case DialogNotice:
		return "notice"
	case DialogConfirm:
		return "confirm"
	case DialogSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// DialogSpec describes one recognizable dialog and its fixed resolution:
// click the affirmative button, or press the fallback key when the button
// cannot be located.
type DialogSpec struct {
	Kind        DialogKind
	TitleRE     *regexp.Regexp
	Affirmative string
	FallbackKey string
}

// Resolution is the watcher's report. Handled=false means no recognized
// dialog appeared within the wait, which is an ordinary outcome: either no
// interrupt occurred, or a slow success summary has not surfaced yet and
// the caller re-invokes the watcher in its bounded polling loop.
type Resolution struct {
	Handled    bool
	Kind       DialogKind
	Title      string
	Identifier string
}

// Watcher scans for expected modal interrupts and resolves them. It runs
// interleaved with the pipeline at well-defined checkpoints, on the same
// control thread, so it never races the main flow for window focus.
type Watcher struct {
	locator      *Locator
	exec         *Executor
	specs        []DialogSpec
	idPattern    *regexp.Regexp
	pollInterval time.Duration
	dismissWait  time.Duration
	cancelled    CancelCheck
	log          *zap.Logger
}

// NewWatcher builds a watcher over the given dialog specs. idPattern may be
// nil to use DefaultIdentifierPattern; cancelled may be nil.
func NewWatcher(log *zap.Logger, locator *Locator, exec *Executor, specs []DialogSpec, idPattern *regexp.Regexp, pollInterval, dismissWait time.Duration, cancelled CancelCheck) *Watcher {
	return &Watcher{
		locator:      locator,
		exec:         exec,
		specs:        specs,
		idPattern:    idPattern,
		pollInterval: pollInterval,
		dismissWait:  dismissWait,
		cancelled:    cancelled,
		log:          log.Named("dialogs"),
	}
}

// Resolve scans the target's top-level windows for dialogs of the expected
// kinds for up to maxWait, resolving the first recognized one. Absence is
// not an error; infrastructure failures are.
func (w *Watcher) Resolve(ctx context.Context, s *SessionHandle, kinds []DialogKind, maxWait time.Duration) (Resolution, error) {
	wanted := make(map[DialogKind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}

	var spec DialogSpec
	var win Window
	err := PollUntil(ctx, w.pollInterval, maxWait, w.cancelled, func(ctx context.Context) (bool, error) {
		windows, err := s.Backend().ListWindows(ctx)
		if err != nil {
			return false, fmt.Errorf("%w: scanning for dialogs: %v", ErrStaleHandle, err)
		}
		for _, cand := range windows {
			if cand.ID == s.Window().ID {
				continue
			}
			for _, sp := range w.specs {
				if wanted[sp.Kind] && sp.TitleRE.MatchString(cand.Title) {
					spec, win = sp, cand
					return true, nil
				}
			}
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, ErrWaitTimeout) {
			// Nothing surfaced. The caller decides whether that is fine
			// (no interrupt happened) or re-invokes (slow success summary).
			return Resolution{}, nil
		}
		return Resolution{}, err
	}

	w.log.Info("Dialog recognized",
		zap.Stringer("kind", spec.Kind),
		zap.String("title", win.Title))
	return w.handle(ctx, s, spec, win)
}

// handle resolves one recognized dialog: extract the identifier first when
// it is a success summary, then dismiss.
func (w *Watcher) handle(ctx context.Context, s *SessionHandle, spec DialogSpec, win Window) (Resolution, error) {
	res := Resolution{Handled: true, Kind: spec.Kind, Title: win.Title}

	if spec.Kind == DialogSuccess {
		res.Identifier = w.extractIdentifier(ctx, s, win)
		if res.Identifier == "" {
			w.log.Warn("Success dialog yielded no identifier", zap.String("title", win.Title))
		}
	}

	if err := w.dismiss(ctx, s, spec, win); err != nil {
		return res, err
	}
	return res, nil
}

// extractIdentifier pulls the generated identifier out of a success
// summary: clipboard round-trip first, text-pattern extraction from the
// dialog body as the fallback.
func (w *Watcher) extractIdentifier(ctx context.Context, s *SessionHandle, win Window) string {
	b := s.Backend()

	if err := b.SendKeys(ctx, []string{"ctrl+a", "ctrl+c"}); err == nil {
		if clip, err := b.Clipboard(ctx); err == nil {
			if id := ExtractIdentifier(w.idPattern, clip); id != "" {
				return id
			}
		}
	}

	body, err := b.ReadText(ctx, win.ID)
	if err != nil {
		w.log.Debug("Reading dialog body failed", zap.Error(err))
		return ""
	}
	return ExtractIdentifier(w.idPattern, body)
}

// dismiss clicks the affirmative button located through the strategy
// chain, scoped to the dialog window, falling back to the designated
// keystroke. Dismissal is verified by the dialog disappearing.
func (w *Watcher) dismiss(ctx context.Context, s *SessionHandle, spec DialogSpec, win Window) error {
	gone := func(ctx context.Context) (bool, error) {
		windows, err := s.Backend().ListWindows(ctx)
		if err != nil {
			return false, fmt.Errorf("%w: confirming dismissal: %v", ErrStaleHandle, err)
		}
		for _, cand := range windows {
			if cand.ID == win.ID {
				return false, nil
			}
		}
		return true, nil
	}

	q := ControlQuery{
		Text:    spec.Affirmative,
		Control: "button",
		Exclude: []Predicate{Visible, Enabled},
	}
	if ref, ok, err := w.locator.LocateIn(ctx, s, win.ID, q); err != nil {
		return err
	} else if ok {
		out := w.exec.Perform(ctx, s, ref, Action{Kind: ActionClick}, gone)
		if out.OK {
			return nil
		}
		w.log.Warn("Affirmative click did not dismiss dialog, trying fallback key",
			zap.String("button", spec.Affirmative), zap.Error(out.Err))
	}

	if spec.FallbackKey == "" {
		return fmt.Errorf("%w: %q has no affirmative button and no fallback key", ErrVerificationFailed, win.Title)
	}
	if err := s.Backend().SendKeys(ctx, []string{spec.FallbackKey}); err != nil {
		return fmt.Errorf("%w: fallback keystroke: %v", ErrStaleHandle, err)
	}
	if err := PollUntil(ctx, w.pollInterval, w.dismissWait, w.cancelled, gone); err != nil {
		if errors.Is(err, ErrWaitTimeout) {
			return fmt.Errorf("%w: %q survived the fallback keystroke", ErrVerificationFailed, win.Title)
		}
		return err
	}
	return nil
}
