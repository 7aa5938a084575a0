// File: internal/pipeline/ledger_test.go
package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testEntry(key string, status Status) LedgerEntry {
	stage := StageRecorded
	if status == StatusFailed {
		stage = StageFailed
	}
	return LedgerEntry{
		RunID:      "run-1",
		ItemKey:    key,
		Status:     status,
		Stage:      stage,
		Attempts:   1,
		Identifier: "MIR-100",
		Timestamp:  time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
	}
}

func TestLedger_AppendAndReadBack(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.csv")
	l, err := OpenLedger(zaptest.NewLogger(t), path)
	require.NoError(t, err)

	require.NoError(t, l.Append(testEntry("LOT-1", StatusRecorded)))
	require.NoError(t, l.Append(testEntry("LOT-2", StatusFailed)))

	// Entries must be durable before Close: read the file while the ledger
	// is still open.
	entries, err := ReadLedger(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "LOT-1", entries[0].ItemKey)
	assert.Equal(t, StatusRecorded, entries[0].Status)
	assert.Equal(t, StageRecorded, entries[0].Stage)
	assert.Equal(t, "MIR-100", entries[0].Identifier)
	assert.Equal(t, StatusFailed, entries[1].Status)

	require.NoError(t, l.Close())
}

func TestLedger_ReopenSkipsTerminalItems(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.csv")
	l, err := OpenLedger(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	require.NoError(t, l.Append(testEntry("LOT-1", StatusRecorded)))
	require.NoError(t, l.Append(testEntry("LOT-2", StatusFailed)))
	require.NoError(t, l.Close())

	// A resumed run opens the same file and must see both terminal keys.
	l2, err := OpenLedger(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	defer l2.Close()

	status, ok := l2.Terminal("LOT-1")
	require.True(t, ok)
	assert.Equal(t, StatusRecorded, status)
	status, ok = l2.Terminal("LOT-2")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, status)
	_, ok = l2.Terminal("LOT-3")
	assert.False(t, ok)

	// Appending after reopen must not rewrite the header.
	require.NoError(t, l2.Append(testEntry("LOT-3", StatusRecorded)))
	entries, err := ReadLedger(path)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestLedger_HeaderWrittenOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.csv")
	l, err := OpenLedger(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_id,item_key,status")

	l2, err := OpenLedger(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	require.NoError(t, l2.Close())

	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestReadLedger_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := ReadLedger(filepath.Join(t.TempDir(), "absent.csv"))
	assert.True(t, os.IsNotExist(err))
}
