// File: internal/ui/backend.go
package ui

import "context"

// NodeID identifies one control inside a backend's view of the target.
// IDs are only meaningful to the backend that produced them and only for
// as long as the underlying window is live.
type NodeID int64

// Rect is a screen-space rectangle in CSS pixels.
type Rect struct {
	X, Y, W, H float64
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() (x, y float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Node is a backend-surfaced control: identity plus the state the locator's
// exclusion predicates operate on.
type Node struct {
	ID      NodeID
	Text    string
	Class   string
	Control string // control type: "button", "edit", "row", ...
	Bounds  Rect
	Visible bool
	Enabled bool
	// Attrs carries backend-specific markers, e.g. "historical" on
	// read-only archive rows.
	Attrs map[string]string
}

// Window is one top-level window of the target application.
type Window struct {
	ID    NodeID
	Title string
}

// MatchMode selects how QueryTree compares control text.
type MatchMode int

const (
	MatchExact MatchMode = iota
	MatchSubstring
)

// RootScope queries the session's main window rather than a specific child.
const RootScope NodeID = 0

// Backend abstracts the automation transport. The locator strategies, the
// action executor and the dialog watcher are all written against this seam,
// which is what makes them testable without a live target and keeps the
// door open for transports other than the chromedp one in internal/ui/cdp.
//
// A Backend is NOT safe for concurrent use; the pipeline drives it from a
// single control thread.
type Backend interface {
	// Alive cheaply reports whether the underlying window still exists.
	Alive(ctx context.Context) bool

	// Foreground brings the target window to the front so coordinate
	// strategies stay valid.
	Foreground(ctx context.Context) error

	// WindowRect returns the target window's bounding rectangle.
	WindowRect(ctx context.Context) (Rect, error)

	// ListWindows enumerates the target's top-level windows, including
	// modal dialogs.
	ListWindows(ctx context.Context) ([]Window, error)

	// QueryTree resolves controls through the accessibility tree, scoped
	// to the given window (RootScope for the main window).
	QueryTree(ctx context.Context, scope NodeID, text string, mode MatchMode, control string) ([]Node, error)

	// EnumNative enumerates controls by native class and text, bypassing
	// accessibility trees that are incomplete or slow to build.
	EnumNative(ctx context.Context, class, text string) ([]Node, error)

	// Click clicks a previously resolved control.
	Click(ctx context.Context, id NodeID) error

	// ClickAt dispatches a raw pointer click at screen coordinates.
	ClickAt(ctx context.Context, x, y float64) error

	// SetText replaces the content of a text control.
	SetText(ctx context.Context, id NodeID, text string) error

	// SelectOption picks an option from a select/combo control.
	SelectOption(ctx context.Context, id NodeID, option string) error

	// SendKeys synthesizes a keyboard sequence against the focused window.
	SendKeys(ctx context.Context, keys []string) error

	// ReadText returns the visible text of a control or window.
	ReadText(ctx context.Context, id NodeID) (string, error)

	// Clipboard returns the current clipboard contents.
	Clipboard(ctx context.Context) (string, error)

	// Close releases the backend's resources.
	Close(ctx context.Context) error
}

// RefKind discriminates how an actionable reference is operated on.
type RefKind int

const (
	// NodeRef points at a resolved control.
	NodeRef RefKind = iota
	// PointRef is a bare screen coordinate (geometric strategy).
	PointRef
	// KeysRef is a synthesized keyboard sequence (keyboard-nav strategy).
	KeysRef
)

// Ref is the actionable reference a locator strategy produces.
type Ref struct {
	Kind     RefKind
	Node     NodeID
	Bounds   Rect
	Keys     []string
	Strategy string // name of the strategy that produced the reference
}
