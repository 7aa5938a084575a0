// File: internal/pipeline/item_test.go
package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineState_ForwardProgression(t *testing.T) {
	t.Parallel()

	st := NewPipelineState()
	assert.Equal(t, StageOpenForm, st.Stage())
	assert.Equal(t, StatusPending, st.Status())

	order := []Stage{
		StageSearch, StageValidateResults, StageSelectRows,
		StageSubmit, StageAwaitConfirmation, StageRecorded,
	}
	for _, next := range order {
		require.NoError(t, st.Advance(next))
		assert.Equal(t, next, st.Stage())
		assert.Zero(t, st.Attempts(), "advancing must reset the attempt counter")
	}
	assert.Equal(t, StatusRecorded, st.Status())
	assert.True(t, st.Stage().Terminal())
}

func TestPipelineState_RejectsBackwardMoves(t *testing.T) {
	t.Parallel()

	st := NewPipelineState()
	require.NoError(t, st.Advance(StageSelectRows))

	assert.Error(t, st.Advance(StageSearch))
	assert.Error(t, st.Advance(StageSelectRows), "advancing to the current stage is not a transition")
	assert.Equal(t, StageSelectRows, st.Stage())
}

func TestPipelineState_TerminalIsFinal(t *testing.T) {
	t.Parallel()

	st := NewPipelineState()
	st.Fail("target vanished")
	assert.Equal(t, StageFailed, st.Stage())
	assert.Equal(t, StatusFailed, st.Status())
	assert.Equal(t, "target vanished", st.LastError())

	assert.Error(t, st.Advance(StageRecorded))
	st.Fail("second cause")
	assert.Equal(t, "target vanished", st.LastError(), "a terminal state must not be overwritten")
}

func TestPipelineState_RetryCountsInPlace(t *testing.T) {
	t.Parallel()

	st := NewPipelineState()
	assert.Equal(t, 1, st.Retry())
	assert.Equal(t, 2, st.Retry())
	assert.Equal(t, StageOpenForm, st.Stage(), "retry never moves the stage")

	require.NoError(t, st.Advance(StageSearch))
	assert.Equal(t, 1, st.Retry(), "attempts are per stage")
}

func TestStage_StringAndTerminal(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "OpenForm", StageOpenForm.String())
	assert.Equal(t, "AwaitConfirmation", StageAwaitConfirmation.String())
	assert.False(t, StageSubmit.Terminal())
	assert.True(t, StageRecorded.Terminal())
	assert.True(t, StageFailed.Terminal())
}
