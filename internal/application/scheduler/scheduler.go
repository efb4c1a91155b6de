package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type key struct {
	session string
	step    string
}

type entry struct {
	timer *time.Timer
	gen   uint64
}

// Timers runs at most one pending callback per (session, step).
type Timers struct {
	mu      sync.Mutex
	pending map[key]*entry
	gen     uint64
	logger  zerolog.Logger
}

// New creates an empty scheduler.
func New(logger zerolog.Logger) *Timers {
	return &Timers{
		pending: make(map[key]*entry),
		logger:  logger.With().Str("service", "scheduler").Logger(),
	}
}

// Schedule runs fn after d, replacing any pending callback for the same key.
func (t *Timers) Schedule(sessionID, step string, d time.Duration, fn func()) {
	k := key{sessionID, step}

	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.pending[k]; ok {
		old.timer.Stop()
	}
	t.gen++
	e := &entry{gen: t.gen}
	e.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		cur, ok := t.pending[k]
		if !ok || cur.gen != e.gen {
			t.mu.Unlock()
			return
		}
		delete(t.pending, k)
		t.mu.Unlock()
		t.logger.Debug().Str("session_id", sessionID).Str("step", step).Msg("timer fired")
		fn()
	})
	t.pending[k] = e
}

// Cancel stops the pending callback for (sessionID, step), if any.
func (t *Timers) Cancel(sessionID, step string) {
	k := key{sessionID, step}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.pending[k]; ok {
		e.timer.Stop()
		delete(t.pending, k)
	}
}

// CancelSession stops every pending callback for sessionID.
func (t *Timers) CancelSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, e := range t.pending {
		if k.session == sessionID {
			e.timer.Stop()
			delete(t.pending, k)
		}
	}
}

// Pending reports whether a callback is scheduled for (sessionID, step).
func (t *Timers) Pending(sessionID, step string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[key{sessionID, step}]
	return ok
}

// Stop cancels everything.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, e := range t.pending {
		e.timer.Stop()
		delete(t.pending, k)
	}
}
