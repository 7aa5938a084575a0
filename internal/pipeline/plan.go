// File: internal/pipeline/plan.go
package pipeline

import (
	"fmt"
	"regexp"

	"github.com/xkilldash9x/lotpilot-cli/internal/config"
	"github.com/xkilldash9x/lotpilot-cli/internal/ui"
)

// SelectionMode picks the row-selection semantics for SelectRows.
type SelectionMode string

const (
	SelectVisible   SelectionMode = "visible"
	SelectAvailable SelectionMode = "available"
)

// ScreenMap names the controls one target's screens expose, as ControlQuery
// values ready for the locator. Together with the dialog titles these
// strings are the wire protocol to the target: renaming a control there is
// a breaking change here.
type ScreenMap struct {
	EntryPoint      ui.ControlQuery
	KeyField        ui.ControlQuery
	SearchButton    ui.ControlQuery
	ResultRows      ui.ControlQuery
	SelectVisible   ui.ControlQuery
	SelectAvailable ui.ControlQuery
	Aggregate       ui.ControlQuery
	Submit          ui.ControlQuery
}

// StagePlan is everything the controller needs to drive one target's stage
// of the workflow.
type StagePlan struct {
	Target        ui.TargetDescriptor
	Screen        ScreenMap
	Dialogs       []ui.DialogSpec
	SelectionMode SelectionMode

	// OutputDir receives the stage artifact, ledger sidecars and match
	// reports for this run.
	OutputDir      string
	ArtifactPrefix string

	// RequireHandoff enables AwaitConfirmation: the item is complete only
	// once the downstream system's identifier shows up in HandoffDir.
	RequireHandoff bool
	HandoffDir     string
	HandoffPrefix  string
}

func buttonQuery(text string) ui.ControlQuery {
	return ui.ControlQuery{
		Text:    text,
		Control: "button",
		Exclude: []ui.Predicate{ui.Visible, ui.Enabled},
	}
}

// PlanFromConfig assembles a StagePlan for one configured target.
func PlanFromConfig(t config.TargetConfig, mode SelectionMode, outputDir string) (StagePlan, error) {
	ctl := t.Controls
	screen := ScreenMap{
		EntryPoint:   buttonQuery(ctl.EntryPoint),
		SearchButton: buttonQuery(ctl.SearchButton),
		KeyField: ui.ControlQuery{
			Text:    ctl.KeyField,
			Control: "edit",
			Exclude: []ui.Predicate{ui.Visible, ui.Enabled},
		},
		ResultRows:      ui.RowQuery(ctl.ResultRows),
		SelectVisible:   buttonQuery(ctl.SelectVisible),
		SelectAvailable: buttonQuery(ctl.SelectAvailable),
		Aggregate:       buttonQuery(ctl.Aggregate),
		Submit:          buttonQuery(ctl.Submit),
	}

	dialogs, err := dialogSpecs(t.Dialogs)
	if err != nil {
		return StagePlan{}, err
	}

	prefix := t.ArtifactPrefix
	if prefix == "" {
		prefix = t.Name
	}

	return StagePlan{
		Target: ui.TargetDescriptor{
			Name:         t.Name,
			TitlePattern: t.TitlePattern,
			Backend:      t.Backend,
			Timeout:      t.AcquireTimeout,
		},
		Screen:         screen,
		Dialogs:        dialogs,
		SelectionMode:  mode,
		OutputDir:      outputDir,
		ArtifactPrefix: prefix,
		RequireHandoff: t.RequireHandoff,
		HandoffDir:     t.HandoffDir,
		HandoffPrefix:  "handoff",
	}, nil
}

func dialogSpecs(d config.DialogTitles) ([]ui.DialogSpec, error) {
	affirmative := d.Affirmative
	if affirmative == "" {
		affirmative = "OK"
	}
	fallback := d.FallbackKey
	if fallback == "" {
		fallback = "enter"
	}

	var specs []ui.DialogSpec
	add := func(kind ui.DialogKind, pattern string) error {
		if pattern == "" {
			return nil
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("dialog pattern for %s: %w", kind, err)
		}
		specs = append(specs, ui.DialogSpec{
			Kind:        kind,
			TitleRE:     re,
			Affirmative: affirmative,
			FallbackKey: fallback,
		})
		return nil
	}
	if err := add(ui.DialogLogin, d.Login); err != nil {
		return nil, err
	}
	if err := add(ui.DialogNotice, d.Notice); err != nil {
		return nil, err
	}
	if err := add(ui.DialogConfirm, d.Confirm); err != nil {
		return nil, err
	}
	if err := add(ui.DialogSuccess, d.Success); err != nil {
		return nil, err
	}
	return specs, nil
}
