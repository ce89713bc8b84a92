// Package live tracks in-flight voice relay sessions so shutdown can drain
// them gracefully.
package live

import (
	"context"
	"log/slog"
	"sync"
)

// Session is the slice of a live relay the tracker manages.
type Session interface {
	// ID identifies the session in logs.
	ID() string
	// Cancel tears the relay down immediately.
	Cancel()
}

// Tracker is a registry of live relay sessions.
type Tracker struct {
	mu       sync.Mutex
	sessions map[Session]struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{sessions: make(map[Session]struct{}), logger: logger}
}

// Register adds a session and returns its unregister func. The unregister
// func is safe to call more than once.
func (t *Tracker) Register(s Session) func() {
	t.mu.Lock()
	t.sessions[s] = struct{}{}
	t.mu.Unlock()
	t.wg.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.sessions, s)
			t.mu.Unlock()
			t.wg.Done()
		})
	}
}

// Count returns the number of live sessions.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// CancelAll tears down every live session.
func (t *Tracker) CancelAll() {
	t.mu.Lock()
	live := make([]Session, 0, len(t.sessions))
	for s := range t.sessions {
		live = append(live, s)
	}
	t.mu.Unlock()
	for _, s := range live {
		t.logger.Info("canceling live session", "session_id", s.ID())
		s.Cancel()
	}
}

// Wait blocks until every live session has unregistered or ctx expires.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
