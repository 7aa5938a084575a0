// File: internal/ui/locator.go
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Strategy is one technique for resolving a ControlQuery into an actionable
// reference. Strategies are stateless, receive the session and the window
// scope to search, and report a miss as (Ref{}, false, nil) — an error
// return is reserved for infrastructure failures.
//
// New location techniques are added by implementing this interface, never
// by branching inside an existing strategy.
type Strategy interface {
	Name() string
	Try(ctx context.Context, s *SessionHandle, scope NodeID, q ControlQuery) (Ref, bool, error)
}

// FracOffset expresses a learned control position as fractions of the
// target window's bounding rectangle, so the geometric strategy survives
// window moves and resizes. Inherently the most fragile technique; it is
// deliberately last but one in the chain.
type FracOffset struct {
	FX, FY float64
}

// Locator iterates an ordered strategy chain, most reliable first. For a
// fixed session state and query the chain is deterministic: the same
// strategy produces the reference on every call.
type Locator struct {
	strategies      []Strategy
	strategyTimeout time.Duration
	log             *zap.Logger
}

// LocatorOption configures a Locator.
type LocatorOption func(*locatorConfig)

type locatorConfig struct {
	offsets   map[string]FracOffset
	sequences map[string][]string
}

// WithOffset registers a learned fractional offset for the geometric
// strategy, keyed by the query's primary text.
func WithOffset(text string, off FracOffset) LocatorOption {
	return func(c *locatorConfig) { c.offsets[text] = off }
}

// WithKeySequence registers a menu/focus traversal for the keyboard
// fallback strategy, keyed by the query's primary text.
func WithKeySequence(text string, keys ...string) LocatorOption {
	return func(c *locatorConfig) { c.sequences[text] = keys }
}

// NewLocator builds the standard chain: exact tree lookup, fuzzy tree
// lookup, native enumeration, geometric estimate, keyboard navigation.
// strategyTimeout bounds each individual strategy so a hanging one cannot
// starve the rest of the chain.
func NewLocator(log *zap.Logger, strategyTimeout time.Duration, opts ...LocatorOption) *Locator {
	cfg := &locatorConfig{
		offsets:   make(map[string]FracOffset),
		sequences: make(map[string][]string),
	}
	for _, o := range opts {
		o(cfg)
	}
	return &Locator{
		strategies: []Strategy{
			exactTreeStrategy{},
			fuzzyTreeStrategy{},
			nativeEnumStrategy{},
			geometricStrategy{offsets: cfg.offsets},
			keyboardNavStrategy{sequences: cfg.sequences},
		},
		strategyTimeout: strategyTimeout,
		log:             log.Named("locator"),
	}
}

// Locate resolves a query against the session's main window. The boolean
// result is false when every strategy missed; that is an ordinary outcome,
// not an error. Errors mean infrastructure trouble (stale session), after
// which the caller must re-acquire the session and retry once.
func (l *Locator) Locate(ctx context.Context, s *SessionHandle, q ControlQuery) (Ref, bool, error) {
	return l.LocateIn(ctx, s, RootScope, q)
}

// LocateIn resolves a query scoped to a specific window (a modal dialog,
// typically).
func (l *Locator) LocateIn(ctx context.Context, s *SessionHandle, scope NodeID, q ControlQuery) (Ref, bool, error) {
	if !s.IsValid(ctx) {
		return Ref{}, false, fmt.Errorf("%w: before locate of %q", ErrStaleHandle, q.Text)
	}

	for _, strat := range l.strategies {
		sctx, cancel := context.WithTimeout(ctx, l.strategyTimeout)
		ref, ok, err := strat.Try(sctx, s, scope, q)
		cancel()

		if err != nil {
			// A strategy error against a dead session is infrastructure;
			// against a live one it is just that strategy failing, and the
			// chain moves on.
			if !s.IsValid(ctx) {
				return Ref{}, false, fmt.Errorf("%w: during %s for %q: %v", ErrStaleHandle, strat.Name(), q.Text, err)
			}
			l.log.Debug("Strategy errored, trying next",
				zap.String("strategy", strat.Name()),
				zap.String("query", q.Text),
				zap.Error(err))
			continue
		}
		if ok {
			l.log.Debug("Control located",
				zap.String("strategy", strat.Name()),
				zap.String("query", q.Text))
			ref.Strategy = strat.Name()
			return ref, true, nil
		}
	}
	return Ref{}, false, nil
}

// Enumerate returns every admitted control matching the query, for callers
// that need the full candidate set (result-row validation). Only the tree
// strategies apply; enumeration falls back from exact to substring match.
func (l *Locator) Enumerate(ctx context.Context, s *SessionHandle, q ControlQuery) ([]Node, error) {
	if !s.IsValid(ctx) {
		return nil, fmt.Errorf("%w: before enumerate of %q", ErrStaleHandle, q.Text)
	}
	nodes, err := s.Backend().QueryTree(ctx, RootScope, q.Text, MatchExact, q.Control)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerating %q: %v", ErrStaleHandle, q.Text, err)
	}
	if len(nodes) == 0 {
		nodes, err = s.Backend().QueryTree(ctx, RootScope, q.Text, MatchSubstring, q.Control)
		if err != nil {
			return nil, fmt.Errorf("%w: enumerating %q: %v", ErrStaleHandle, q.Text, err)
		}
	}
	admitted := nodes[:0]
	for _, n := range nodes {
		if q.Admits(n) {
			admitted = append(admitted, n)
		}
	}
	return admitted, nil
}

// pickOrdinal applies the query's ordinal hint to an admitted candidate set.
func pickOrdinal(q ControlQuery, candidates []Node) (Node, bool) {
	if q.Ordinal < 0 || q.Ordinal >= len(candidates) {
		return Node{}, false
	}
	return candidates[q.Ordinal], true
}

func admitted(q ControlQuery, nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if q.Admits(n) {
			out = append(out, n)
		}
	}
	return out
}

// -- Strategy 1: exact accessibility-tree lookup --

type exactTreeStrategy struct{}

func (exactTreeStrategy) Name() string { return "tree-exact" }

func (exactTreeStrategy) Try(ctx context.Context, s *SessionHandle, scope NodeID, q ControlQuery) (Ref, bool, error) {
	nodes, err := s.Backend().QueryTree(ctx, scope, q.Text, MatchExact, q.Control)
	if err != nil {
		return Ref{}, false, err
	}
	n, ok := pickOrdinal(q, admitted(q, nodes))
	if !ok {
		return Ref{}, false, nil
	}
	return Ref{Kind: NodeRef, Node: n.ID, Bounds: n.Bounds}, true, nil
}

// -- Strategy 2: substring/fuzzy accessibility-tree lookup --

type fuzzyTreeStrategy struct{}

func (fuzzyTreeStrategy) Name() string { return "tree-fuzzy" }

// normalizeTitle strips cosmetic variance: mnemonic ampersands, trailing
// ellipses and surrounding whitespace.
func normalizeTitle(t string) string {
	t = strings.ReplaceAll(t, "&", "")
	t = strings.TrimSuffix(strings.TrimSpace(t), "...")
	t = strings.TrimSuffix(t, "…")
	return strings.TrimSpace(t)
}

func (fuzzyTreeStrategy) Try(ctx context.Context, s *SessionHandle, scope NodeID, q ControlQuery) (Ref, bool, error) {
	want := normalizeTitle(q.Text)
	nodes, err := s.Backend().QueryTree(ctx, scope, want, MatchSubstring, q.Control)
	if err != nil {
		return Ref{}, false, err
	}
	matched := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if strings.Contains(
			strings.ToLower(normalizeTitle(n.Text)),
			strings.ToLower(want),
		) {
			matched = append(matched, n)
		}
	}
	n, ok := pickOrdinal(q, admitted(q, matched))
	if !ok {
		return Ref{}, false, nil
	}
	return Ref{Kind: NodeRef, Node: n.ID, Bounds: n.Bounds}, true, nil
}

// -- Strategy 3: native enumeration by class and text --

type nativeEnumStrategy struct{}

func (nativeEnumStrategy) Name() string { return "native-enum" }

func (nativeEnumStrategy) Try(ctx context.Context, s *SessionHandle, scope NodeID, q ControlQuery) (Ref, bool, error) {
	if scope != RootScope {
		// Native enumeration sees only top-level children.
		return Ref{}, false, nil
	}
	class := q.Class
	if class == "" {
		class = q.Control
	}
	nodes, err := s.Backend().EnumNative(ctx, class, q.Text)
	if err != nil {
		return Ref{}, false, err
	}
	n, ok := pickOrdinal(q, admitted(q, nodes))
	if !ok {
		return Ref{}, false, nil
	}
	return Ref{Kind: NodeRef, Node: n.ID, Bounds: n.Bounds}, true, nil
}

// -- Strategy 4: geometric estimate from a learned fractional offset --

type geometricStrategy struct {
	offsets map[string]FracOffset
}

func (geometricStrategy) Name() string { return "geometric" }

func (g geometricStrategy) Try(ctx context.Context, s *SessionHandle, scope NodeID, q ControlQuery) (Ref, bool, error) {
	off, ok := g.offsets[q.Text]
	if !ok {
		return Ref{}, false, nil
	}
	rect, err := s.Backend().WindowRect(ctx)
	if err != nil {
		return Ref{}, false, err
	}
	x := rect.X + off.FX*rect.W
	y := rect.Y + off.FY*rect.H
	return Ref{Kind: PointRef, Bounds: Rect{X: x, Y: y}}, true, nil
}

// -- Strategy 5: keyboard-navigation fallback --

type keyboardNavStrategy struct {
	sequences map[string][]string
}

func (keyboardNavStrategy) Name() string { return "keyboard-nav" }

func (k keyboardNavStrategy) Try(ctx context.Context, s *SessionHandle, scope NodeID, q ControlQuery) (Ref, bool, error) {
	seq, ok := k.sequences[q.Text]
	if !ok {
		return Ref{}, false, nil
	}
	return Ref{Kind: KeysRef, Keys: seq}, true, nil
}
