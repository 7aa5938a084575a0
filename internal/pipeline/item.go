// File: internal/pipeline/item.go
package pipeline

import "fmt"

// Stage is one step of the per-item pipeline. Transitions are strictly
// forward; a failed attempt at a stage either retries in place or moves the
// item to terminal failure, never back to an earlier stage.
type Stage int

const (
	StageOpenForm Stage = iota
	StageSearch
	StageValidateResults
	StageSelectRows
	StageSubmit
	StageAwaitConfirmation
	StageRecorded // terminal success
	StageFailed   // terminal failure
)

func (s Stage) String() string {
	switch s {
	case StageOpenForm:
		return "OpenForm"
	case StageSearch:
		return "Search"
	case StageValidateResults:
		return "ValidateResults"
	case StageSelectRows:
		return "SelectRows"
	case StageSubmit:
		return "Submit"
	case StageAwaitConfirmation:
		return "AwaitConfirmation"
	case StageRecorded:
		return "Recorded"
	case StageFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Terminal reports whether the stage ends the item's pipeline.
func (s Stage) Terminal() bool { return s == StageRecorded || s == StageFailed }

// Status is an item's terminal disposition.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusRecorded Status = "Recorded"
	StatusFailed   Status = "Failed"
)

// WorkflowItem is one business record moving through the pipeline: its
// input fields plus the outputs each stage produces.
type WorkflowItem struct {
	Key      string // lot/unit key
	PartType string
	Quantity int
	// ExpectedUnits optionally names the individual units expected to
	// surface; when absent, validation compares counts only.
	ExpectedUnits []string

	// Stage outputs.
	Identifier   string // generated by the target's success summary
	HandoffID    string // generated by the downstream system
	ArtifactPath string
	Report       *MatchReport
}

// PipelineState is the per-item state machine. Transitions are the only
// permitted mutation path; once terminal the state refuses further change.
type PipelineState struct {
	stage    Stage
	attempts int // attempts spent on the current stage
	status   Status
	errMsg   string
}

// NewPipelineState starts an item at OpenForm.
func NewPipelineState() *PipelineState {
	return &PipelineState{stage: StageOpenForm, status: StatusPending}
}

func (p *PipelineState) Stage() Stage    { return p.stage }
func (p *PipelineState) Attempts() int   { return p.attempts }
func (p *PipelineState) Status() Status  { return p.status }
func (p *PipelineState) LastError() string { return p.errMsg }

// Advance moves to the next stage, resetting the attempt counter. Backward
// or terminal-escaping moves are programming errors.
func (p *PipelineState) Advance(next Stage) error {
	if p.stage.Terminal() {
		return fmt.Errorf("cannot advance: item already terminal in %s", p.stage)
	}
	if next <= p.stage {
		return fmt.Errorf("cannot advance backwards from %s to %s", p.stage, next)
	}
	p.stage = next
	p.attempts = 0
	if next == StageRecorded {
		p.status = StatusRecorded
	}
	return nil
}

// Retry counts one more in-place attempt at the current stage and returns
// the new attempt count.
func (p *PipelineState) Retry() int {
	p.attempts++
	return p.attempts
}

// Fail moves the item to terminal failure with a captured cause.
func (p *PipelineState) Fail(cause string) {
	if p.stage.Terminal() {
		return
	}
	p.stage = StageFailed
	p.status = StatusFailed
	p.errMsg = cause
}
