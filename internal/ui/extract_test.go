// File: internal/ui/extract_test.go
package ui

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
)

func TestExtractIdentifier(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		text string
		want string
	}{
		{
			name: "labeled request number",
			text: "Your submission succeeded.\nRequest #: MIR-2041577\nThank you.",
			want: "MIR-2041577",
		},
		{
			name: "labeled lowercase identifier",
			text: "record: mir-17",
			want: "mir-17",
		},
		{
			name: "bare identifier without label",
			text: "Submission VPO884213 has been queued.",
			want: "VPO884213",
		},
		{
			name: "labeled form wins over bare pattern",
			text: "Batch ABCDE-99999 done. Request #: MIR-1",
			want: "MIR-1",
		},
		{
			name: "no identifier present",
			text: "Operation completed successfully.",
			want: "",
		},
		{
			name: "too-short digit run is not an identifier",
			text: "See section AB-123 for details.",
			want: "",
		},
		{
			name: "empty input",
			text: "",
			want: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ExtractIdentifier(nil, tc.text))
		})
	}
}

// FuzzExtractIdentifier checks that extraction never panics and that any
// extracted identifier is a substring of the input.
func FuzzExtractIdentifier(f *testing.F) {
	f.Add([]byte("Request #: MIR-2041577"))
	f.Add([]byte("Submission VPO884213 queued"))
	f.Add([]byte(""))

	f.Fuzz(func(t *testing.T, data []byte) {
		fc := fuzz.NewConsumer(data)
		text, err := fc.GetString()
		if err != nil {
			return
		}
		id := ExtractIdentifier(nil, text)
		if id != "" && !strings.Contains(text, id) {
			t.Fatalf("extracted %q is not a substring of the input %q", id, text)
		}
	})
}
