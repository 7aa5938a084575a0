// File: internal/ui/backend_fake_test.go
package ui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// fakeBackend is a scriptable in-memory Backend. Controls are registered
// per scope; hooks let tests attach side effects to inputs the way a real
// target would react to them.
type fakeBackend struct {
	mu sync.Mutex

	alive   bool
	windows []Window
	rect    Rect
	// nodes maps a window scope to the controls visible inside it.
	nodes map[NodeID][]Node
	// native holds the controls visible to native enumeration.
	native []Node
	texts  map[NodeID]string
	clip   string

	clicked    []NodeID
	clickedAt  []Rect
	typed      map[NodeID]string
	selections map[NodeID]string
	keysSent   [][]string
	closed     int

	onClick    func(id NodeID) error
	onSendKeys func(keys []string) error
	queryErr   error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		alive:      true,
		windows:    []Window{{ID: 1, Title: "Main Window"}},
		rect:       Rect{X: 100, Y: 50, W: 800, H: 600},
		nodes:      make(map[NodeID][]Node),
		texts:      make(map[NodeID]string),
		typed:      make(map[NodeID]string),
		selections: make(map[NodeID]string),
	}
}

func (f *fakeBackend) addNode(scope NodeID, n Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[scope] = append(f.nodes[scope], n)
}

func (f *fakeBackend) removeWindow(id NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.windows[:0]
	for _, w := range f.windows {
		if w.ID != id {
			kept = append(kept, w)
		}
	}
	f.windows = kept
	delete(f.nodes, id)
}

func (f *fakeBackend) Alive(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeBackend) Foreground(context.Context) error { return nil }

func (f *fakeBackend) WindowRect(context.Context) (Rect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rect, nil
}

func (f *fakeBackend) ListWindows(context.Context) ([]Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Window, len(f.windows))
	copy(out, f.windows)
	return out, nil
}

func (f *fakeBackend) QueryTree(_ context.Context, scope NodeID, text string, mode MatchMode, control string) ([]Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []Node
	for _, n := range f.nodes[scope] {
		if control != "" && n.Control != control {
			continue
		}
		switch mode {
		case MatchExact:
			if n.Text != text {
				continue
			}
		case MatchSubstring:
			if !strings.Contains(strings.ToLower(n.Text), strings.ToLower(text)) {
				continue
			}
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeBackend) EnumNative(_ context.Context, class, text string) ([]Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Node
	for _, n := range f.native {
		if n.Class == class && n.Text == text {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeBackend) Click(_ context.Context, id NodeID) error {
	f.mu.Lock()
	f.clicked = append(f.clicked, id)
	hook := f.onClick
	f.mu.Unlock()
	if hook != nil {
		return hook(id)
	}
	return nil
}

func (f *fakeBackend) ClickAt(_ context.Context, x, y float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clickedAt = append(f.clickedAt, Rect{X: x, Y: y})
	return nil
}

func (f *fakeBackend) SetText(_ context.Context, id NodeID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed[id] = text
	f.texts[id] = text
	return nil
}

func (f *fakeBackend) SelectOption(_ context.Context, id NodeID, option string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selections[id] = option
	return nil
}

func (f *fakeBackend) SendKeys(_ context.Context, keys []string) error {
	f.mu.Lock()
	f.keysSent = append(f.keysSent, keys)
	hook := f.onSendKeys
	f.mu.Unlock()
	if hook != nil {
		return hook(keys)
	}
	return nil
}

func (f *fakeBackend) ReadText(_ context.Context, id NodeID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.texts[id]
	if !ok {
		return "", fmt.Errorf("no text for node %d", id)
	}
	return t, nil
}

func (f *fakeBackend) Clipboard(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clip, nil
}

func (f *fakeBackend) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	f.alive = false
	return nil
}

// newTestSession builds a handle directly, bypassing acquisition.
func newTestSession(t *testing.T, b Backend) *SessionHandle {
	t.Helper()
	return &SessionHandle{
		desc:     TargetDescriptor{Name: "test", TitlePattern: "Main", Timeout: time.Second},
		backend:  b,
		window:   Window{ID: 1, Title: "Main Window"},
		titleRE:  regexp.MustCompile("Main"),
		factory:  func(context.Context, TargetDescriptor) (Backend, error) { return b, nil },
		interval: 5 * time.Millisecond,
		log:      zaptest.NewLogger(t),
	}
}

func actionableButton(id NodeID, text string) Node {
	return Node{
		ID: id, Text: text, Control: "button",
		Bounds:  Rect{X: 10, Y: 10, W: 80, H: 24},
		Visible: true, Enabled: true,
	}
}
