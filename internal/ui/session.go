// File: internal/ui/session.go
package ui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// TargetDescriptor identifies a top-level window to attach to. It is
// created per connection attempt and discarded once a SessionHandle holds
// the resolved window.
type TargetDescriptor struct {
	Name         string
	TitlePattern string // regexp over window titles
	Backend      string // transport hint, e.g. "cdp"
	Timeout      time.Duration
}

// BackendFactory creates the transport for a descriptor. The factory must
// attach to (or navigate to) an already-running target; launching a second
// instance of the target would duplicate in-progress work.
type BackendFactory func(ctx context.Context, desc TargetDescriptor) (Backend, error)

// SessionHandle owns one live reference to a target window. At most one
// valid handle per target exists at any time (enforced by SessionManager);
// the handle is never shared across goroutines.
type SessionHandle struct {
	desc    TargetDescriptor
	backend Backend
	window  Window
	titleRE *regexp.Regexp

	factory   BackendFactory
	interval  time.Duration
	cancelled CancelCheck
	log       *zap.Logger
}

// Descriptor returns the descriptor this handle was resolved from.
func (s *SessionHandle) Descriptor() TargetDescriptor { return s.desc }

// Backend exposes the transport for the locator and executor layers.
func (s *SessionHandle) Backend() Backend { return s.backend }

// Window returns the resolved top-level window.
func (s *SessionHandle) Window() Window { return s.window }

// IsValid cheaply checks that the underlying window is still live.
func (s *SessionHandle) IsValid(ctx context.Context) bool {
	return s.backend != nil && s.backend.Alive(ctx)
}

// attach polls for a window matching the descriptor's title pattern within
// the given budget and brings it to the foreground.
func (s *SessionHandle) attach(ctx context.Context, timeout time.Duration) error {
	err := PollUntil(ctx, s.interval, timeout, s.cancelled, func(ctx context.Context) (bool, error) {
		windows, err := s.backend.ListWindows(ctx)
		if err != nil {
			return false, fmt.Errorf("%w: enumerating windows: %v", ErrStaleHandle, err)
		}
		for _, w := range windows {
			if s.titleRE.MatchString(w.Title) {
				s.window = w
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, ErrWaitTimeout) {
			return fmt.Errorf("%w: no window matching %q within %s", ErrTargetNotFound, s.desc.TitlePattern, timeout)
		}
		return err
	}
	if err := s.backend.Foreground(ctx); err != nil {
		return fmt.Errorf("%w: foregrounding %q: %v", ErrStaleHandle, s.window.Title, err)
	}
	return nil
}

// Reconnect re-resolves the same descriptor after the handle was found
// invalid. The running target is reattached, never relaunched; only the
// transport is rebuilt if it died with the window.
func (s *SessionHandle) Reconnect(ctx context.Context) error {
	s.log.Warn("Reconnecting stale session", zap.String("target", s.desc.Name))

	if s.backend != nil && !s.backend.Alive(ctx) {
		_ = s.backend.Close(ctx)
		backend, err := s.factory(ctx, s.desc)
		if err != nil {
			return fmt.Errorf("%w: rebuilding transport: %v", ErrStaleHandle, err)
		}
		s.backend = backend
	}
	return s.attach(ctx, s.desc.Timeout)
}

// Close releases the underlying transport.
func (s *SessionHandle) Close(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	err := s.backend.Close(ctx)
	s.backend = nil
	return err
}

// SessionManager owns every live session. It enforces the at-most-one
// invariant: acquiring a target that already has a valid handle returns the
// existing handle instead of opening a duplicate.
type SessionManager struct {
	factory   BackendFactory
	interval  time.Duration
	cancelled CancelCheck
	live      map[string]*SessionHandle
	log       *zap.Logger
}

// NewSessionManager creates a manager. interval tunes the acquisition poll;
// cancelled may be nil.
func NewSessionManager(log *zap.Logger, factory BackendFactory, interval time.Duration, cancelled CancelCheck) *SessionManager {
	return &SessionManager{
		factory:   factory,
		interval:  interval,
		cancelled: cancelled,
		live:      make(map[string]*SessionHandle),
		log:       log.Named("sessions"),
	}
}

// Acquire returns a live handle for the descriptor, reusing the existing
// one when it is still valid. Expiry of desc.Timeout without finding the
// target yields ErrTargetNotFound.
func (m *SessionManager) Acquire(ctx context.Context, desc TargetDescriptor) (*SessionHandle, error) {
	if h, ok := m.live[desc.Name]; ok {
		if h.IsValid(ctx) {
			m.log.Debug("Reusing live session", zap.String("target", desc.Name))
			return h, nil
		}
		// Invalid leftover; drop it before building a fresh handle.
		_ = h.Close(ctx)
		delete(m.live, desc.Name)
	}

	titleRE, err := regexp.Compile(desc.TitlePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid title pattern %q: %w", desc.TitlePattern, err)
	}

	backend, err := m.factory(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("%w: creating transport for %q: %v", ErrTargetNotFound, desc.Name, err)
	}

	h := &SessionHandle{
		desc:      desc,
		backend:   backend,
		titleRE:   titleRE,
		factory:   m.factory,
		interval:  m.interval,
		cancelled: m.cancelled,
		log:       m.log,
	}
	if err := h.attach(ctx, desc.Timeout); err != nil {
		_ = backend.Close(ctx)
		return nil, err
	}

	m.log.Info("Session acquired",
		zap.String("target", desc.Name),
		zap.String("window", h.window.Title))
	m.live[desc.Name] = h
	return h, nil
}

// Release closes and forgets the named session, if any.
func (m *SessionManager) Release(ctx context.Context, name string) {
	if h, ok := m.live[name]; ok {
		_ = h.Close(ctx)
		delete(m.live, name)
	}
}

// CloseAll releases every live session. Called at end of run.
func (m *SessionManager) CloseAll(ctx context.Context) {
	for name, h := range m.live {
		_ = h.Close(ctx)
		delete(m.live, name)
	}
}
