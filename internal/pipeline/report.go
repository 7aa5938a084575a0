// File: internal/pipeline/report.go
package pipeline

import (
	"fmt"
	"os"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MatchReport compares the rows the target surfaced for an item against
// the set expected from the input. It is a correctness checkpoint
// independent of submission: a mismatch is recorded, not fatal, because
// partial availability is an expected real-world condition.
type MatchReport struct {
	ItemKey       string   `json:"item_key"`
	ExpectedCount int      `json:"expected_count"`
	SurfacedCount int      `json:"surfaced_count"`
	Missing       []string `json:"missing,omitempty"`
	Unexpected    []string `json:"unexpected,omitempty"`
}

// BuildMatchReport diffs expected against surfaced unit keys. When the
// input carries no per-unit keys, expected is empty and only the counts
// are meaningful.
func BuildMatchReport(itemKey string, expected, surfaced []string) *MatchReport {
	r := &MatchReport{
		ItemKey:       itemKey,
		ExpectedCount: len(expected),
		SurfacedCount: len(surfaced),
	}

	have := make(map[string]bool, len(surfaced))
	for _, s := range surfaced {
		have[s] = true
	}
	want := make(map[string]bool, len(expected))
	for _, e := range expected {
		want[e] = true
		if !have[e] {
			r.Missing = append(r.Missing, e)
		}
	}
	for _, s := range surfaced {
		if !want[s] && len(expected) > 0 {
			r.Unexpected = append(r.Unexpected, s)
		}
	}
	sort.Strings(r.Missing)
	sort.Strings(r.Unexpected)
	return r
}

// Full reports a complete match: every expected row surfaced and nothing
// unexpected appeared.
func (r *MatchReport) Full() bool {
	return len(r.Missing) == 0 && len(r.Unexpected) == 0 &&
		r.SurfacedCount >= r.ExpectedCount
}

// Write persists the report as a JSON sidecar next to the stage artifact.
func (r *MatchReport) Write(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding match report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing match report: %w", err)
	}
	return nil
}

// ReadReport loads a previously written report sidecar.
func ReadReport(path string) (*MatchReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r MatchReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding match report %s: %w", path, err)
	}
	return &r, nil
}
