// File: internal/pipeline/plan_test.go
package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/lotpilot-cli/internal/config"
	"github.com/xkilldash9x/lotpilot-cli/internal/ui"
)

func sampleTarget() config.TargetConfig {
	return config.TargetConfig{
		Name:         "mole",
		TitlePattern: `Workbench`,
		Backend:      "cdp",
		Dialogs: config.DialogTitles{
			Notice:  `^Notice`,
			Confirm: `^Confirm`,
			Success: `Complete`,
		},
		Controls: config.ControlTitles{
			EntryPoint:   "Lot Disposition",
			KeyField:     "Lot Number",
			SearchButton: "Search",
			ResultRows:   "Result",
			Submit:       "Submit Batch",
		},
	}
}

func TestPlanFromConfig(t *testing.T) {
	t.Parallel()

	plan, err := PlanFromConfig(sampleTarget(), SelectAvailable, "/out/run1")
	require.NoError(t, err)

	assert.Equal(t, "mole", plan.Target.Name)
	assert.Equal(t, "cdp", plan.Target.Backend)
	assert.Equal(t, SelectAvailable, plan.SelectionMode)
	assert.Equal(t, "/out/run1", plan.OutputDir)
	assert.Equal(t, "mole", plan.ArtifactPrefix, "artifact prefix falls back to the target name")

	assert.Equal(t, "Lot Disposition", plan.Screen.EntryPoint.Text)
	assert.Equal(t, "button", plan.Screen.EntryPoint.Control)
	assert.Equal(t, "edit", plan.Screen.KeyField.Control)
	assert.Equal(t, "row", plan.Screen.ResultRows.Control)

	// Only configured dialog titles produce specs; defaults fill in the
	// dismissal actions.
	require.Len(t, plan.Dialogs, 3)
	kinds := make([]ui.DialogKind, 0, len(plan.Dialogs))
	for _, d := range plan.Dialogs {
		kinds = append(kinds, d.Kind)
		assert.Equal(t, "OK", d.Affirmative)
		assert.Equal(t, "enter", d.FallbackKey)
	}
	assert.Equal(t, []ui.DialogKind{ui.DialogNotice, ui.DialogConfirm, ui.DialogSuccess}, kinds)
}

func TestPlanFromConfig_InvalidDialogPattern(t *testing.T) {
	t.Parallel()

	target := sampleTarget()
	target.Dialogs.Success = `([`
	_, err := PlanFromConfig(target, SelectVisible, "/out")
	assert.Error(t, err)
}

func TestPlanFromConfig_ExplicitOverrides(t *testing.T) {
	t.Parallel()

	target := sampleTarget()
	target.ArtifactPrefix = "disposition"
	target.Dialogs.Affirmative = "Yes"
	target.Dialogs.FallbackKey = "escape"
	target.RequireHandoff = true
	target.HandoffDir = "/handoff"

	plan, err := PlanFromConfig(target, SelectVisible, "/out")
	require.NoError(t, err)
	assert.Equal(t, "disposition", plan.ArtifactPrefix)
	assert.True(t, plan.RequireHandoff)
	assert.Equal(t, "/handoff", plan.HandoffDir)
	for _, d := range plan.Dialogs {
		assert.Equal(t, "Yes", d.Affirmative)
		assert.Equal(t, "escape", d.FallbackKey)
	}
}
