// File: internal/ui/query.go
package ui

// Predicate is one exclusion rule evaluated against a candidate control.
// A candidate is admitted only if every predicate returns true.
type Predicate func(Node) bool

// ControlQuery is the logical description of a control to find. Immutable
// once constructed; strategies never modify it.
type ControlQuery struct {
	// Text is the control's primary title or label.
	Text string
	// Control optionally narrows the control type ("button", "edit", ...).
	Control string
	// Class optionally narrows the native window class (strategy 3).
	Class string
	// Ordinal selects among multiple admitted candidates (0 = first).
	Ordinal int
	// Exclude is the set of exclusion predicates.
	Exclude []Predicate
}

// Admits reports whether the candidate passes every exclusion predicate.
func (q ControlQuery) Admits(n Node) bool {
	for _, p := range q.Exclude {
		if !p(n) {
			return false
		}
	}
	return true
}

// Standard exclusion predicates. Disabled and invisible controls accept
// clicks in several of the target UIs without doing anything, so queries
// for actionable controls should carry at least these two.

func Enabled(n Node) bool { return n.Enabled }

func Visible(n Node) bool { return n.Visible }

// NotHistorical excludes read-only archive rows, which the targets render
// identically to live rows apart from a marker attribute.
func NotHistorical(n Node) bool { return n.Attrs["historical"] != "true" }

// ActionableQuery is the common case: a control matched by title that must
// be visible and enabled.
func ActionableQuery(text string) ControlQuery {
	return ControlQuery{
		Text:    text,
		Exclude: []Predicate{Visible, Enabled},
	}
}

// RowQuery matches live result rows by title, skipping historical ones.
func RowQuery(text string) ControlQuery {
	return ControlQuery{
		Text:    text,
		Control: "row",
		Exclude: []Predicate{Visible, NotHistorical},
	}
}
