// File: internal/pipeline/artifacts_test.go
package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageArtifactPath(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 23, 14, 15, 3, 0, time.UTC)
	got := StageArtifactPath("/out", "mole", now)
	assert.Equal(t, filepath.Join("/out", "mole_Results_20260823_141503.csv"), got)
}

func TestFindLatest_PicksNewestByName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{
		"mole_Results_20260820_090000.csv",
		"mole_Results_20260823_141503.csv",
		"mole_Results_20260822_235959.csv",
		"spark_Results_20260824_000000.csv", // other prefix, must not win
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	got, err := FindLatest(dir, "mole")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mole_Results_20260823_141503.csv"), got)
}

func TestFindLatest_NoArtifact(t *testing.T) {
	t.Parallel()

	_, err := FindLatest(t.TempDir(), "mole")
	assert.Error(t, err)
}

func TestWriteStageResults(t *testing.T) {
	t.Parallel()

	items := []*WorkflowItem{
		{
			Key: "LOT-1", PartType: "widget", Quantity: 2,
			Identifier: "MIR-100", HandoffID: "VPO-1",
			Report: BuildMatchReport("LOT-1", []string{"U1"}, []string{"U1"}),
		},
		{Key: "LOT-2", Quantity: 1},
	}
	path := filepath.Join(t.TempDir(), "mole_Results_20260823_141503.csv")
	require.NoError(t, WriteStageResults(path, items))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "SourceLot,PartType,Quantity,Identifier,HandoffID,FullMatch")
	assert.Contains(t, content, "LOT-1,widget,2,MIR-100,VPO-1,true")
	assert.Contains(t, content, "LOT-2,,1,,,")
}

func TestReadHandoffID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	older := "handoff_Results_20260822_000000.csv"
	newer := "handoff_Results_20260823_000000.csv"
	require.NoError(t, os.WriteFile(filepath.Join(dir, older),
		[]byte("LOT-1,STALE-1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, newer),
		[]byte("LOT-1,VPO-884213\nLOT-2,VPO-884214\n"), 0o644))

	id, err := ReadHandoffID(dir, "handoff", "LOT-2")
	require.NoError(t, err)
	assert.Equal(t, "VPO-884214", id)

	// Only the newest artifact counts.
	id, err = ReadHandoffID(dir, "handoff", "LOT-1")
	require.NoError(t, err)
	assert.Equal(t, "VPO-884213", id)

	_, err = ReadHandoffID(dir, "handoff", "LOT-9")
	assert.Error(t, err)
}
