// File: internal/pipeline/controller.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/lotpilot-cli/internal/ui"
)

// Options tunes the controller's retry and wait policy.
type Options struct {
	// StageAttempts caps in-place attempts per stage before the item fails.
	StageAttempts int
	// PollInterval is the base cadence for bounded waits.
	PollInterval time.Duration
	// DialogWait bounds one watcher scan for modal interrupts.
	DialogWait time.Duration
	// SubmitPolls is how many DialogWait-sized scans Submit gives a slow
	// success summary before declaring a dialog timeout.
	SubmitPolls int
	// HandoffWait bounds AwaitConfirmation's wait for the downstream
	// system's identifier.
	HandoffWait time.Duration
	// Pace rate-limits item starts so the run does not hammer the target.
	// Nil disables pacing.
	Pace *rate.Limiter
}

func (o *Options) setDefaults() {
	if o.StageAttempts < 1 {
		o.StageAttempts = 3
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.DialogWait <= 0 {
		o.DialogWait = 5 * time.Second
	}
	if o.SubmitPolls < 1 {
		o.SubmitPolls = 6
	}
	if o.HandoffWait <= 0 {
		o.HandoffWait = 2 * time.Minute
	}
}

// Summary is the run's aggregate outcome.
type Summary struct {
	RunID    string
	Total    int
	Recorded int
	Failed   int
	Partial  int
	Skipped  int
}

// Controller drives every item of a stage through the per-item state
// machine. One item's failure never aborts the run: the item lands in the
// ledger as Failed and the next item starts from a fresh state. Only two
// things stop a run early: the target cannot be acquired at all, or a
// ledger append fails (no checkpoint, no progress).
type Controller struct {
	sessions  *ui.SessionManager
	locator   *ui.Locator
	exec      *ui.Executor
	ledger    *Ledger
	cancelled ui.CancelCheck
	opts      Options
	runID     string
	log       *zap.Logger
}

// NewController wires the controller. cancelled may be nil.
func NewController(log *zap.Logger, sessions *ui.SessionManager, locator *ui.Locator, exec *ui.Executor, ledger *Ledger, cancelled ui.CancelCheck, opts Options) *Controller {
	opts.setDefaults()
	return &Controller{
		sessions:  sessions,
		locator:   locator,
		exec:      exec,
		ledger:    ledger,
		cancelled: cancelled,
		opts:      opts,
		runID:     uuid.NewString(),
		log:       log.Named("pipeline"),
	}
}

// RunID returns this controller's run identifier, stamped on every ledger
// entry it writes.
func (c *Controller) RunID() string { return c.runID }

// Run processes items in strict input order against the plan's target.
// Items already terminal in the ledger are skipped, which is what makes a
// crashed run resumable by pointing it at the same ledger.
func (c *Controller) Run(ctx context.Context, plan StagePlan, items []*WorkflowItem) (Summary, error) {
	sum := Summary{RunID: c.runID, Total: len(items)}

	s, err := c.sessions.Acquire(ctx, plan.Target)
	if err != nil {
		return sum, fmt.Errorf("acquiring target %q: %w", plan.Target.Name, err)
	}

	watcher := ui.NewWatcher(c.log, c.locator, c.exec, plan.Dialogs, nil,
		c.opts.PollInterval, c.opts.DialogWait, c.cancelled)

	var processed []*WorkflowItem
	for _, item := range items {
		if status, ok := c.ledger.Terminal(item.Key); ok {
			c.log.Info("Skipping item with terminal ledger entry",
				zap.String("item", item.Key),
				zap.String("status", string(status)))
			sum.Skipped++
			continue
		}
		if c.cancelled != nil && c.cancelled() {
			c.log.Warn("Stopping before next item: cancellation requested")
			break
		}
		if c.opts.Pace != nil && len(processed) > 0 {
			if err := c.opts.Pace.Wait(ctx); err != nil {
				break
			}
		}

		state := NewPipelineState()
		c.runItem(ctx, s, watcher, plan, item, state)
		processed = append(processed, item)

		partial := item.Report != nil && !item.Report.Full()
		entry := LedgerEntry{
			RunID:      c.runID,
			ItemKey:    item.Key,
			Status:     state.Status(),
			Stage:      state.Stage(),
			Attempts:   state.Attempts(),
			Identifier: item.Identifier,
			HandoffID:  item.HandoffID,
			Partial:    partial,
			Error:      state.LastError(),
			Timestamp:  time.Now(),
		}
		// The append is the item's checkpoint; it must land before the next
		// item starts. A failed append aborts the run.
		if err := c.ledger.Append(entry); err != nil {
			return sum, fmt.Errorf("checkpointing %q: %w", item.Key, err)
		}

		if state.Status() == StatusRecorded {
			sum.Recorded++
		} else {
			sum.Failed++
		}
		if partial {
			sum.Partial++
		}
	}

	if len(processed) > 0 {
		path := StageArtifactPath(plan.OutputDir, plan.ArtifactPrefix, time.Now())
		if err := WriteStageResults(path, processed); err != nil {
			return sum, err
		}
		for _, it := range processed {
			it.ArtifactPath = path
		}
		c.log.Info("Stage artifact written",
			zap.String("path", path),
			zap.Int("items", len(processed)))
	}
	return sum, nil
}

// runItem walks one item through the state machine until it is terminal.
func (c *Controller) runItem(ctx context.Context, s *ui.SessionHandle, w *ui.Watcher, plan StagePlan, item *WorkflowItem, state *PipelineState) {
	log := c.log.With(zap.String("item", item.Key))
	log.Info("Item started")

	for !state.Stage().Terminal() {
		stage := state.Stage()
		err := c.step(ctx, s, w, plan, item, stage)
		if err == nil {
			if aerr := state.Advance(c.nextStage(stage, plan)); aerr != nil {
				state.Fail(aerr.Error())
				return
			}
			continue
		}

		if errors.Is(err, ui.ErrCancelled) {
			log.Warn("Item failed: run cancelled mid-stage", zap.Stringer("stage", stage))
			state.Fail(fmt.Sprintf("cancelled during %s", stage))
			return
		}

		if errors.Is(err, ui.ErrDialogTimeout) {
			// The stage's action was already dispatched; re-running the stage
			// would drive it again (at Submit that means a duplicate business
			// submission). A dialog timeout escalates straight to item
			// failure, never a retry.
			log.Error("Dialog wait exhausted, failing item without retry",
				zap.Stringer("stage", stage), zap.Error(err))
			state.Fail(fmt.Sprintf("%s: %v", stage, err))
			return
		}

		if ui.IsInfrastructure(err) {
			// Re-acquire the running target, then let the normal retry
			// budget repeat the interrupted stage.
			log.Warn("Infrastructure failure mid-stage, reconnecting",
				zap.Stringer("stage", stage), zap.Error(err))
			if rerr := s.Reconnect(ctx); rerr != nil {
				state.Fail(fmt.Sprintf("%s: reconnect failed: %v", stage, rerr))
				return
			}
		}

		attempts := state.Retry()
		if attempts >= c.opts.StageAttempts {
			log.Error("Stage attempts exhausted",
				zap.Stringer("stage", stage),
				zap.Int("attempts", attempts),
				zap.Error(err))
			state.Fail(fmt.Sprintf("%s: %v", stage, err))
			return
		}
		log.Warn("Stage attempt failed, retrying in place",
			zap.Stringer("stage", stage),
			zap.Int("attempt", attempts),
			zap.Error(err))
	}
	log.Info("Item finished",
		zap.String("status", string(state.Status())),
		zap.String("identifier", item.Identifier))
}

// nextStage maps a completed stage to its successor. AwaitConfirmation only
// exists for targets that hand off to a downstream system.
func (c *Controller) nextStage(stage Stage, plan StagePlan) Stage {
	if stage == StageSubmit && !plan.RequireHandoff {
		return StageRecorded
	}
	return stage + 1
}

func (c *Controller) step(ctx context.Context, s *ui.SessionHandle, w *ui.Watcher, plan StagePlan, item *WorkflowItem, stage Stage) error {
	switch stage {
	case StageOpenForm:
		return c.openForm(ctx, s, plan)
	case StageSearch:
		return c.search(ctx, s, w, plan, item)
	case StageValidateResults:
		return c.validateResults(ctx, s, plan, item)
	case StageSelectRows:
		return c.selectRows(ctx, s, plan)
	case StageSubmit:
		return c.submit(ctx, s, w, plan, item)
	case StageAwaitConfirmation:
		return c.awaitConfirmation(ctx, plan, item)
	}
	return fmt.Errorf("no step defined for stage %s", stage)
}

// mustLocate resolves a query and turns a clean miss into a stage error, so
// the retry budget applies.
func (c *Controller) mustLocate(ctx context.Context, s *ui.SessionHandle, q ui.ControlQuery) (ui.Ref, error) {
	ref, ok, err := c.locator.Locate(ctx, s, q)
	if err != nil {
		return ui.Ref{}, err
	}
	if !ok {
		return ui.Ref{}, fmt.Errorf("control %q not found by any strategy", q.Text)
	}
	return ref, nil
}

// present builds a verification predicate that a control is locatable.
func (c *Controller) present(s *ui.SessionHandle, q ui.ControlQuery) ui.Verify {
	return func(ctx context.Context) (bool, error) {
		_, ok, err := c.locator.Locate(ctx, s, q)
		if err != nil {
			return false, err
		}
		return ok, nil
	}
}

// openForm enters the target's work screen, confirmed by the key entry
// field becoming locatable.
func (c *Controller) openForm(ctx context.Context, s *ui.SessionHandle, plan StagePlan) error {
	ref, err := c.mustLocate(ctx, s, plan.Screen.EntryPoint)
	if err != nil {
		return err
	}
	out := c.exec.Perform(ctx, s, ref, ui.Action{Kind: ui.ActionClick}, c.present(s, plan.Screen.KeyField))
	return out.Err
}

// search types the item key and triggers the search, then clears any modal
// interrupts the search raised before the results are trusted.
func (c *Controller) search(ctx context.Context, s *ui.SessionHandle, w *ui.Watcher, plan StagePlan, item *WorkflowItem) error {
	field, err := c.mustLocate(ctx, s, plan.Screen.KeyField)
	if err != nil {
		return err
	}
	var typed ui.Verify
	if field.Kind == ui.NodeRef {
		typed = func(ctx context.Context) (bool, error) {
			got, err := s.Backend().ReadText(ctx, field.Node)
			if err != nil {
				return false, err
			}
			return strings.TrimSpace(got) == item.Key, nil
		}
	}
	out := c.exec.Perform(ctx, s, field, ui.Action{Kind: ui.ActionSetText, Text: item.Key}, typed)
	if out.Err != nil {
		return out.Err
	}

	btn, err := c.mustLocate(ctx, s, plan.Screen.SearchButton)
	if err != nil {
		return err
	}
	out = c.exec.Perform(ctx, s, btn, ui.Action{Kind: ui.ActionClick}, nil)
	if out.Err != nil {
		return out.Err
	}

	// Login prompts, notices and confirmations can all interpose here.
	// Resolve until a scan comes back clean.
	for {
		res, err := w.Resolve(ctx, s, []ui.DialogKind{ui.DialogLogin, ui.DialogNotice, ui.DialogConfirm}, c.opts.DialogWait)
		if err != nil {
			return err
		}
		if !res.Handled {
			return nil
		}
	}
}

// validateResults enumerates the surfaced rows for the item and diffs them
// against the expected units. A mismatch is recorded in the report sidecar,
// not fatal; zero surfaced rows is fatal for the attempt because there is
// nothing to select.
func (c *Controller) validateResults(ctx context.Context, s *ui.SessionHandle, plan StagePlan, item *WorkflowItem) error {
	q := plan.Screen.ResultRows
	q.Text = item.Key
	rows, err := c.locator.Enumerate(ctx, s, q)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no result rows surfaced for %q", item.Key)
	}

	surfaced := make([]string, 0, len(rows))
	for _, r := range rows {
		surfaced = append(surfaced, strings.TrimSpace(r.Text))
	}
	report := BuildMatchReport(item.Key, item.ExpectedUnits, surfaced)
	if len(item.ExpectedUnits) == 0 {
		report.ExpectedCount = item.Quantity
	}
	item.Report = report

	if report.Full() {
		c.log.Debug("Result rows match expectations",
			zap.String("item", item.Key),
			zap.Int("rows", report.SurfacedCount))
	} else {
		c.log.Warn("Result rows differ from expectations; proceeding with partial batch",
			zap.String("item", item.Key),
			zap.Int("expected", report.ExpectedCount),
			zap.Int("surfaced", report.SurfacedCount),
			zap.Strings("missing", report.Missing),
			zap.Strings("unexpected", report.Unexpected))
	}

	sidecar := filepath.Join(plan.OutputDir, item.Key+"_match.json")
	if err := report.Write(sidecar); err != nil {
		c.log.Warn("Match report sidecar not written", zap.Error(err))
	}
	return nil
}

// selectRows marks the rows per the plan's selection mode and stages them
// through the aggregation action, confirmed by the submit control becoming
// locatable.
func (c *Controller) selectRows(ctx context.Context, s *ui.SessionHandle, plan StagePlan) error {
	selectQ := plan.Screen.SelectVisible
	if plan.SelectionMode == SelectAvailable {
		selectQ = plan.Screen.SelectAvailable
	}

	sel, err := c.mustLocate(ctx, s, selectQ)
	if err != nil {
		return err
	}
	out := c.exec.Perform(ctx, s, sel, ui.Action{Kind: ui.ActionClick}, c.present(s, plan.Screen.Aggregate))
	if out.Err != nil {
		return out.Err
	}

	agg, err := c.mustLocate(ctx, s, plan.Screen.Aggregate)
	if err != nil {
		return err
	}
	out = c.exec.Perform(ctx, s, agg, ui.Action{Kind: ui.ActionClick}, c.present(s, plan.Screen.Submit))
	return out.Err
}

// submit triggers submission and runs the bounded polling loop for the
// success summary, harvesting the generated identifier. Confirmation
// prompts surfacing mid-wait are dismissed by the watcher and the wait
// continues; a wait that exhausts every poll is a dialog timeout, which
// fails the item outright (runItem never retries it, so the submit
// control is clicked at most once per item).
func (c *Controller) submit(ctx context.Context, s *ui.SessionHandle, w *ui.Watcher, plan StagePlan, item *WorkflowItem) error {
	ref, err := c.mustLocate(ctx, s, plan.Screen.Submit)
	if err != nil {
		return err
	}
	out := c.exec.Perform(ctx, s, ref, ui.Action{Kind: ui.ActionClick}, nil)
	if out.Err != nil {
		return out.Err
	}

	for i := 0; i < c.opts.SubmitPolls; i++ {
		res, err := w.Resolve(ctx, s, []ui.DialogKind{ui.DialogConfirm, ui.DialogSuccess}, c.opts.DialogWait)
		if err != nil {
			return err
		}
		if res.Handled && res.Kind == ui.DialogSuccess {
			item.Identifier = res.Identifier
			if item.Identifier == "" {
				c.log.Warn("Success summary carried no identifier", zap.String("item", item.Key))
			}
			return nil
		}
		// A handled confirm keeps the submission moving; an empty scan
		// means the summary is slow. Either way, poll again.
	}
	return fmt.Errorf("%w: no success summary after %d polls of %s",
		ui.ErrDialogTimeout, c.opts.SubmitPolls, c.opts.DialogWait)
}

// awaitConfirmation waits for the downstream system's identifier to appear
// in the handoff artifact for this item.
func (c *Controller) awaitConfirmation(ctx context.Context, plan StagePlan, item *WorkflowItem) error {
	err := ui.PollUntil(ctx, c.opts.PollInterval, c.opts.HandoffWait, c.cancelled, func(ctx context.Context) (bool, error) {
		id, err := ReadHandoffID(plan.HandoffDir, plan.HandoffPrefix, item.Key)
		if err != nil {
			// Not written yet, or the artifact does not mention this key
			// yet. Keep waiting.
			return false, nil
		}
		item.HandoffID = id
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("awaiting handoff for %q: %w", item.Key, err)
	}
	return nil
}
