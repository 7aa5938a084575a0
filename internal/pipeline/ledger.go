// File: internal/pipeline/ledger.go
package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ledgerHeader is the fixed column set of the run ledger.
var ledgerHeader = []string{
	"run_id", "item_key", "status", "stage", "attempts",
	"identifier", "handoff_id", "partial", "error", "timestamp",
}

// LedgerEntry is one terminal item outcome.
type LedgerEntry struct {
	RunID      string
	ItemKey    string
	Status     Status
	Stage      Stage
	Attempts   int
	Identifier string
	HandoffID  string
	Partial    bool
	Error      string
	Timestamp  time.Time
}

// Ledger is the append-only, durably flushed record of per-item outcomes.
// An append for item i always completes before item i+1 starts processing,
// which is what makes resumption well-defined after a mid-run failure.
type Ledger struct {
	path string
	f    *os.File
	w    *csv.Writer
	// terminal holds the keys already Recorded/Failed, loaded at open so a
	// resumed run can skip them.
	terminal map[string]Status
	log      *zap.Logger
}

// OpenLedger opens (or creates) the ledger at path in append mode and
// indexes its existing terminal entries.
func OpenLedger(log *zap.Logger, path string) (*Ledger, error) {
	terminal := make(map[string]Status)
	if entries, err := ReadLedger(path); err == nil {
		for _, e := range entries {
			terminal[e.ItemKey] = e.Status
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading existing ledger: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	l := &Ledger{
		path:     path,
		f:        f,
		w:        csv.NewWriter(f),
		terminal: terminal,
		log:      log.Named("ledger"),
	}

	if len(terminal) == 0 {
		if info, err := f.Stat(); err == nil && info.Size() == 0 {
			if err := l.w.Write(ledgerHeader); err != nil {
				f.Close()
				return nil, fmt.Errorf("writing ledger header: %w", err)
			}
			l.w.Flush()
			if err := l.w.Error(); err != nil {
				f.Close()
				return nil, err
			}
		}
	}
	return l, nil
}

// Append writes one entry and flushes it to durable storage before
// returning. This is the crash-recovery checkpoint: no entry, no progress.
func (l *Ledger) Append(e LedgerEntry) error {
	record := []string{
		e.RunID,
		e.ItemKey,
		string(e.Status),
		e.Stage.String(),
		strconv.Itoa(e.Attempts),
		e.Identifier,
		e.HandoffID,
		strconv.FormatBool(e.Partial),
		e.Error,
		e.Timestamp.UTC().Format(time.RFC3339),
	}
	if err := l.w.Write(record); err != nil {
		return fmt.Errorf("appending ledger entry for %q: %w", e.ItemKey, err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("flushing ledger entry for %q: %w", e.ItemKey, err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("syncing ledger: %w", err)
	}
	l.terminal[e.ItemKey] = e.Status
	l.log.Info("Ledger entry written",
		zap.String("item", e.ItemKey),
		zap.String("status", string(e.Status)))
	return nil
}

// Terminal returns the already-terminal status for the key, if any.
func (l *Ledger) Terminal(key string) (Status, bool) {
	s, ok := l.terminal[key]
	return s, ok
}

// Close flushes and closes the underlying file.
func (l *Ledger) Close() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}

// ReadLedger parses every entry from a ledger file.
func ReadLedger(path string) ([]LedgerEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(ledgerHeader)

	var entries []LedgerEntry
	first := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing ledger %s: %w", path, err)
		}
		if first {
			first = false
			if record[0] == ledgerHeader[0] {
				continue
			}
		}
		attempts, _ := strconv.Atoi(record[4])
		partial, _ := strconv.ParseBool(record[7])
		ts, _ := time.Parse(time.RFC3339, record[9])
		entries = append(entries, LedgerEntry{
			RunID:      record[0],
			ItemKey:    record[1],
			Status:     Status(record[2]),
			Stage:      parseStage(record[3]),
			Attempts:   attempts,
			Identifier: record[5],
			HandoffID:  record[6],
			Partial:    partial,
			Error:      record[8],
			Timestamp:  ts,
		})
	}
	return entries, nil
}

func parseStage(s string) Stage {
	for st := StageOpenForm; st <= StageFailed; st++ {
		if st.String() == s {
			return st
		}
	}
	return StageFailed
}
