// File: internal/pipeline/cancel.go
package pipeline

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"sync/atomic"

	"go.uber.org/zap"
)

// abortKey is the single designated cancellation key (Esc). On a cooked
// terminal stdin is line-buffered, so the byte only reaches the reader
// once Enter is pressed; SIGINT (ctrl+c) delivers immediately either way.
const abortKey = 0x1b

// Monitor watches for a graceful-stop request: the designated key on the
// given reader, or SIGINT. Requested is polled by every bounded wait in
// the pipeline, so cancellation lands within one polling interval: the
// current item unwinds as Failed, then the run stops before the next item.
type Monitor struct {
	requested atomic.Bool
	log       *zap.Logger
}

// NewMonitor creates an unarmed monitor.
func NewMonitor(log *zap.Logger) *Monitor {
	return &Monitor{log: log.Named("cancel")}
}

// Start launches the background listeners. The key listener reads from r
// (os.Stdin in production; tests pass a pipe) and exits on EOF or read
// error; the signal listener exits when ctx ends.
func (m *Monitor) Start(ctx context.Context, r io.Reader) {
	go m.watchKeys(r)
	go m.watchSignals(ctx)
}

func (m *Monitor) watchKeys(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		if b == abortKey {
			m.trip("abort key pressed")
			return
		}
	}
}

func (m *Monitor) watchSignals(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	defer signal.Stop(ch)

	select {
	case <-ch:
		m.trip("interrupt signal received")
	case <-ctx.Done():
	}
}

func (m *Monitor) trip(why string) {
	if m.requested.CompareAndSwap(false, true) {
		m.log.Warn("Graceful stop requested; finishing at next safe checkpoint",
			zap.String("cause", why))
	}
}

// Requested reports whether a stop has been requested. Matches the
// ui.CancelCheck signature.
func (m *Monitor) Requested() bool { return m.requested.Load() }

// RequestStop trips the monitor programmatically (used by tests and by the
// run command when the outer context ends).
func (m *Monitor) RequestStop() { m.trip("stop requested") }
