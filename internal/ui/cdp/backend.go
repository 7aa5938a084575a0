// File: internal/ui/cdp/backend.go
package cdp

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lotpilot-cli/internal/config"
	"github.com/xkilldash9x/lotpilot-cli/internal/ui"
)

// refAttr is the DOM attribute used to pin stable references onto matched
// elements, so that a NodeID stays actionable across queries.
const refAttr = "data-lotpilot-ref"

// rootWindowID is the fixed NodeID of the session's main document.
const rootWindowID ui.NodeID = 1

// Backend drives one browser-hosted target through the Chrome DevTools
// protocol. It implements ui.Backend.
type Backend struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	nextRef int64
	log     *zap.Logger
}

var _ ui.Backend = (*Backend)(nil)

// New launches (or attaches to) a browser, opens a tab and navigates it to
// the target URL. Allocator flags follow the same shape as a plain
// production chromedp launch, minus automation banners.
func New(ctx context.Context, log *zap.Logger, cfg config.BrowserConfig, url string) (*Backend, error) {
	opts := buildAllocatorOptions(cfg)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	b := &Backend{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		nextRef:     int64(rootWindowID) + 1,
		log:         log.Named("cdp"),
	}

	navTimeout := cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 45 * time.Second
	}
	navCtx, cancel := context.WithTimeout(tabCtx, navTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		b.Close(ctx)
		return nil, fmt.Errorf("navigating to %s: %w", url, err)
	}
	b.log.Info("Browser target ready", zap.String("url", url))
	return b, nil
}

// buildAllocatorOptions assembles browser flags from configuration.
func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
	)

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	// Container-friendly flags.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}

// selectorFor maps a NodeID back to a CSS selector.
func selectorFor(id ui.NodeID) string {
	if id == rootWindowID {
		return "html"
	}
	return fmt.Sprintf(`[%s="%d"]`, refAttr, id)
}

// controlSelector widens a logical control type into the CSS selector set
// that covers how the target apps actually render it.
func controlSelector(control string) string {
	switch control {
	case "button":
		return `button, input[type=button], input[type=submit], [role=button], a.btn`
	case "edit":
		return `input[type=text], input[type=search], input:not([type]), textarea`
	case "select":
		return `select, [role=combobox], [role=listbox]`
	case "row":
		return `tr, [role=row], li.row`
	case "":
		return `*`
	default:
		return control
	}
}

// nodeMeta mirrors the JSON shape produced by the scan script.
type nodeMeta struct {
	ID         int64   `json:"id"`
	Text       string  `json:"text"`
	Class      string  `json:"class"`
	Control    string  `json:"control"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Visible    bool    `json:"visible"`
	Enabled    bool    `json:"enabled"`
	Historical string  `json:"historical"`
}

type scanResult struct {
	Nodes []nodeMeta `json:"nodes"`
	Next  int64      `json:"next"`
}

// scanScript finds elements under a scope matching text and control type,
// tags each with a stable ref attribute, and reports metadata. Matching on
// innerText/value/aria-label is the closest browser analog of an
// accessibility-tree title lookup.
const scanScript = `(() => {
	const scopeSel = %s;
	const root = scopeSel === "" ? document : document.querySelector(scopeSel);
	if (!root) return {nodes: [], next: %d};
	const want = %s;
	const exact = %t;
	const sel = %s;
	let next = %d;
	const nodes = [];
	for (const el of root.querySelectorAll(sel)) {
		const text = (el.innerText || el.value || el.getAttribute('aria-label') || '').trim();
		const hit = exact ? text === want
			: (want === '' || text.toLowerCase().includes(want.toLowerCase()));
		if (!hit) continue;
		const r = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		let id;
		const existing = el.getAttribute('%s');
		if (existing) { id = parseInt(existing, 10); }
		else { id = next++; el.setAttribute('%s', String(id)); }
		nodes.push({
			id: id, text: text, class: el.className || '',
			control: el.tagName.toLowerCase(),
			x: r.x, y: r.y, w: r.width, h: r.height,
			visible: r.width > 0 && r.height > 0
				&& style.visibility !== 'hidden' && style.display !== 'none',
			enabled: !el.disabled && el.getAttribute('aria-disabled') !== 'true',
			historical: el.getAttribute('data-historical')
				|| (el.classList.contains('historical') ? 'true' : ''),
		});
	}
	return {nodes: nodes, next: next};
})()`

func (b *Backend) scan(ctx context.Context, scope ui.NodeID, text string, exact bool, selector string) ([]ui.Node, error) {
	scopeSel := ""
	if scope != ui.RootScope {
		scopeSel = selectorFor(scope)
	}
	script := fmt.Sprintf(scanScript,
		strconv.Quote(scopeSel), b.nextRef,
		strconv.Quote(text), exact,
		strconv.Quote(selector), b.nextRef,
		refAttr, refAttr)

	var res scanResult
	if err := chromedp.Run(b.runCtx(ctx), chromedp.Evaluate(script, &res)); err != nil {
		return nil, err
	}
	if res.Next > b.nextRef {
		b.nextRef = res.Next
	}

	nodes := make([]ui.Node, 0, len(res.Nodes))
	for _, m := range res.Nodes {
		nodes = append(nodes, ui.Node{
			ID:      ui.NodeID(m.ID),
			Text:    m.Text,
			Class:   m.Class,
			Control: m.Control,
			Bounds:  ui.Rect{X: m.X, Y: m.Y, W: m.W, H: m.H},
			Visible: m.Visible,
			Enabled: m.Enabled,
			Attrs:   map[string]string{"historical": m.Historical},
		})
	}
	return nodes, nil
}

// runCtx binds the caller's cancellation and deadline to the tab context.
// chromedp actions must run on the tab context, so the caller's ctx cannot
// be passed through directly; instead its Done and deadline are mirrored
// onto a child of the tab context.
func (b *Backend) runCtx(ctx context.Context) context.Context {
	var bound context.Context
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		bound, cancel = context.WithDeadline(b.tabCtx, deadline)
	} else {
		bound, cancel = context.WithCancel(b.tabCtx)
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-bound.Done():
		}
		cancel()
	}()
	return bound
}

// -- ui.Backend implementation --

func (b *Backend) Alive(ctx context.Context) bool {
	if b.tabCtx.Err() != nil {
		return false
	}
	probe, cancel := context.WithTimeout(b.tabCtx, 2*time.Second)
	defer cancel()
	var title string
	return chromedp.Run(probe, chromedp.Title(&title)) == nil
}

func (b *Backend) Foreground(ctx context.Context) error {
	return chromedp.Run(b.runCtx(ctx), chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
}

func (b *Backend) WindowRect(ctx context.Context) (ui.Rect, error) {
	var rect ui.Rect
	err := chromedp.Run(b.runCtx(ctx), chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, cssVisualViewport, _, err := page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return err
		}
		rect = ui.Rect{
			X: cssVisualViewport.PageX,
			Y: cssVisualViewport.PageY,
			W: cssVisualViewport.ClientWidth,
			H: cssVisualViewport.ClientHeight,
		}
		return nil
	}))
	return rect, err
}

// windowsScript reports the main document plus any open modal dialog,
// identified by its heading or aria-label.
const windowsScript = `(() => {
	let next = %d;
	const out = [{id: %d, title: document.title}];
	for (const el of document.querySelectorAll('dialog[open], [role=dialog], [role=alertdialog], .modal.show')) {
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) continue;
		let id;
		const existing = el.getAttribute('%s');
		if (existing) { id = parseInt(existing, 10); }
		else { id = next++; el.setAttribute('%s', String(id)); }
		const head = el.querySelector('h1,h2,h3,.title,.modal-title,header');
		const title = (el.getAttribute('aria-label')
			|| (head ? head.innerText : '')
			|| el.innerText || '').trim().split('\n')[0];
		out.push({id: id, title: title});
	}
	return {windows: out, next: next};
})()`

func (b *Backend) ListWindows(ctx context.Context) ([]ui.Window, error) {
	script := fmt.Sprintf(windowsScript, b.nextRef, rootWindowID, refAttr, refAttr)
	var res struct {
		Windows []struct {
			ID    int64  `json:"id"`
			Title string `json:"title"`
		} `json:"windows"`
		Next int64 `json:"next"`
	}
	if err := chromedp.Run(b.runCtx(ctx), chromedp.Evaluate(script, &res)); err != nil {
		return nil, err
	}
	if res.Next > b.nextRef {
		b.nextRef = res.Next
	}
	windows := make([]ui.Window, 0, len(res.Windows))
	for _, w := range res.Windows {
		windows = append(windows, ui.Window{ID: ui.NodeID(w.ID), Title: w.Title})
	}
	return windows, nil
}

func (b *Backend) QueryTree(ctx context.Context, scope ui.NodeID, text string, mode ui.MatchMode, control string) ([]ui.Node, error) {
	return b.scan(ctx, scope, text, mode == ui.MatchExact, controlSelector(control))
}

// EnumNative enumerates by element class, bypassing text-role matching the
// way native window enumeration bypasses an incomplete accessibility tree.
func (b *Backend) EnumNative(ctx context.Context, class, text string) ([]ui.Node, error) {
	selector := "*"
	if class != "" {
		selector = "." + class + ", " + class
	}
	return b.scan(ctx, ui.RootScope, text, false, selector)
}

func (b *Backend) Click(ctx context.Context, id ui.NodeID) error {
	return chromedp.Run(b.runCtx(ctx), chromedp.Click(selectorFor(id), chromedp.ByQuery))
}

func (b *Backend) ClickAt(ctx context.Context, x, y float64) error {
	return chromedp.Run(b.runCtx(ctx), chromedp.ActionFunc(func(ctx context.Context) error {
		press := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).WithClickCount(1)
		if err := press.Do(ctx); err != nil {
			return err
		}
		release := input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).WithClickCount(1)
		return release.Do(ctx)
	}))
}

func (b *Backend) SetText(ctx context.Context, id ui.NodeID, text string) error {
	sel := selectorFor(id)
	return chromedp.Run(b.runCtx(ctx),
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.SetValue(sel, text, chromedp.ByQuery),
		// The frameworks behind the web targets only notice programmatic
		// value changes when input/change fire.
		chromedp.Evaluate(fmt.Sprintf(`(() => {
			const el = document.querySelector(%s);
			if (!el) return;
			el.dispatchEvent(new Event('input', {bubbles: true}));
			el.dispatchEvent(new Event('change', {bubbles: true}));
		})()`, strconv.Quote(sel)), nil),
	)
}

func (b *Backend) SelectOption(ctx context.Context, id ui.NodeID, option string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el || !el.options) return false;
		for (let i = 0; i < el.options.length; i++) {
			if (el.options[i].text.trim() === %s) {
				el.selectedIndex = i;
				el.dispatchEvent(new Event('change', {bubbles: true}));
				return true;
			}
		}
		return false;
	})()`, strconv.Quote(selectorFor(id)), strconv.Quote(option))

	var picked bool
	if err := chromedp.Run(b.runCtx(ctx), chromedp.Evaluate(script, &picked)); err != nil {
		return err
	}
	if !picked {
		return fmt.Errorf("option %q not present in select %d", option, id)
	}
	return nil
}

func (b *Backend) SendKeys(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := b.sendKey(ctx, k); err != nil {
			return fmt.Errorf("sending %q: %w", k, err)
		}
	}
	return nil
}

func (b *Backend) sendKey(ctx context.Context, key string) error {
	run := b.runCtx(ctx)
	switch strings.ToLower(key) {
	case "enter":
		return chromedp.Run(run, chromedp.KeyEvent(kb.Enter))
	case "escape", "esc":
		return chromedp.Run(run, chromedp.KeyEvent(kb.Escape))
	case "tab":
		return chromedp.Run(run, chromedp.KeyEvent(kb.Tab))
	}

	if parts := strings.Split(strings.ToLower(key), "+"); len(parts) > 1 {
		var mods input.Modifier
		for _, m := range parts[:len(parts)-1] {
			switch m {
			case "ctrl", "control":
				mods |= input.ModifierCtrl
			case "alt":
				mods |= input.ModifierAlt
			case "shift":
				mods |= input.ModifierShift
			}
		}
		ch := parts[len(parts)-1]
		return chromedp.Run(run, chromedp.ActionFunc(func(ctx context.Context) error {
			down := input.DispatchKeyEvent(input.KeyDown).WithModifiers(mods).WithKey(ch)
			if err := down.Do(ctx); err != nil {
				return err
			}
			up := input.DispatchKeyEvent(input.KeyUp).WithModifiers(mods).WithKey(ch)
			return up.Do(ctx)
		}))
	}

	// Anything else is literal text for the focused control.
	return chromedp.Run(run, chromedp.KeyEvent(key))
}

// readTextScript reads an element's displayed text. Form controls carry
// their content in value, not innerText, so both are consulted (same
// fallback chain as the scan script's text matching).
const readTextScript = `(() => {
	const el = document.querySelector(%s);
	if (!el) return '';
	return el.innerText || el.value || '';
})()`

func (b *Backend) ReadText(ctx context.Context, id ui.NodeID) (string, error) {
	sel := selectorFor(id)
	if id == rootWindowID {
		sel = "body"
	}
	script := fmt.Sprintf(readTextScript, strconv.Quote(sel))

	var text string
	err := chromedp.Run(b.runCtx(ctx), chromedp.Evaluate(script, &text))
	return text, err
}

func (b *Backend) Clipboard(ctx context.Context) (string, error) {
	var text string
	err := chromedp.Run(b.runCtx(ctx), chromedp.Evaluate(
		`navigator.clipboard.readText()`, &text,
		func(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
	return text, err
}

func (b *Backend) Close(ctx context.Context) error {
	if b.tabCancel != nil {
		b.tabCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}
