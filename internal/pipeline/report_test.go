// File: internal/pipeline/report_test.go
package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMatchReport(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		expected []string
		surfaced []string
		want     MatchReport
		full     bool
	}{
		{
			name:     "full match",
			expected: []string{"U1", "U2"},
			surfaced: []string{"U2", "U1"},
			want:     MatchReport{ItemKey: "LOT-1", ExpectedCount: 2, SurfacedCount: 2},
			full:     true,
		},
		{
			name:     "partial availability",
			expected: []string{"U1", "U2", "U3"},
			surfaced: []string{"U1"},
			want: MatchReport{
				ItemKey: "LOT-1", ExpectedCount: 3, SurfacedCount: 1,
				Missing: []string{"U2", "U3"},
			},
			full: false,
		},
		{
			name:     "unexpected rows surfaced",
			expected: []string{"U1"},
			surfaced: []string{"U1", "U9"},
			want: MatchReport{
				ItemKey: "LOT-1", ExpectedCount: 1, SurfacedCount: 2,
				Unexpected: []string{"U9"},
			},
			full: false,
		},
		{
			name:     "count-only comparison without unit keys",
			expected: nil,
			surfaced: []string{"row1", "row2"},
			want:     MatchReport{ItemKey: "LOT-1", ExpectedCount: 0, SurfacedCount: 2},
			full:     true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := BuildMatchReport("LOT-1", tc.expected, tc.surfaced)
			if diff := cmp.Diff(&tc.want, got); diff != "" {
				t.Errorf("report mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tc.full, got.Full())
		})
	}
}

func TestMatchReport_SidecarRoundTrip(t *testing.T) {
	t.Parallel()

	r := BuildMatchReport("LOT-7", []string{"U1", "U2"}, []string{"U1"})
	path := filepath.Join(t.TempDir(), "LOT-7_match.json")
	require.NoError(t, r.Write(path))

	back, err := ReadReport(path)
	require.NoError(t, err)
	if diff := cmp.Diff(r, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
