// File: internal/pipeline/artifacts.go
package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// artifactTimeLayout matches the timestamp embedded in stage artifact
// names: lexicographic order equals chronological order.
const artifactTimeLayout = "20060102_150405"

// StageArtifactPath builds the timestamped output filename for a stage,
// e.g. "mole_Results_20260823_141503.csv".
func StageArtifactPath(dir, prefix string, now time.Time) string {
	name := fmt.Sprintf("%s_Results_%s.csv", prefix, now.Format(artifactTimeLayout))
	return filepath.Join(dir, name)
}

// FindLatest locates the most recent stage artifact for a prefix by the
// naming convention. This file boundary is the sole coupling between
// stages driving different target applications.
func FindLatest(dir, prefix string) (string, error) {
	pattern := filepath.Join(dir, prefix+"_Results_*.csv")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no %s artifact found in %s", prefix, dir)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// WriteStageResults writes the stage summary table: one row per item with
// its terminal outputs. Match reports go to per-item JSON sidecars.
func WriteStageResults(path string, items []*WorkflowItem) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating stage artifact: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"SourceLot", "PartType", "Quantity", "Identifier", "HandoffID", "FullMatch"}); err != nil {
		return err
	}
	for _, it := range items {
		full := ""
		if it.Report != nil {
			full = strconv.FormatBool(it.Report.Full())
		}
		record := []string{
			it.Key, it.PartType, strconv.Itoa(it.Quantity),
			it.Identifier, it.HandoffID, full,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadHandoffID scans the newest handoff artifact in dir for the item key
// and returns the downstream identifier paired with it. The handoff file
// is a two-column table (key, identifier) written by the secondary system's
// stage.
func ReadHandoffID(dir, prefix, key string) (string, error) {
	path, err := FindLatest(dir, prefix)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parsing handoff artifact %s: %w", path, err)
	}
	for _, record := range records {
		if len(record) >= 2 && strings.EqualFold(strings.TrimSpace(record[0]), key) {
			return strings.TrimSpace(record[1]), nil
		}
	}
	return "", fmt.Errorf("no handoff identifier for %q in %s", key, path)
}
