// File: internal/ui/extract.go
package ui

import "regexp"

// DefaultIdentifierPattern matches the generated record identifiers the
// targets print in their success dialogs ("MIR2041577", "VPO-884213", ...):
// an uppercase prefix followed by at least four digits.
var DefaultIdentifierPattern = regexp.MustCompile(`\b([A-Z]{2,5}-?[0-9]{4,})\b`)

// labeledIdentifier catches the explicit "Request #: X" phrasing some
// dialogs use, which the bare pattern can miss when the identifier is
// lowercase or shorter than usual.
var labeledIdentifier = regexp.MustCompile(`(?i)(?:request|record|number|id)\s*[#:]\s*([A-Za-z0-9-]+)`)

// ExtractIdentifier pulls a generated identifier out of dialog text. The
// labeled form wins over the bare pattern; empty string means no match.
func ExtractIdentifier(pattern *regexp.Regexp, text string) string {
	if m := labeledIdentifier.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if pattern == nil {
		pattern = DefaultIdentifierPattern
	}
	if m := pattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
