package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/moonrise/moonrise/internal/config"
	"github.com/moonrise/moonrise/internal/domain/archive"
	"github.com/moonrise/moonrise/internal/domain/death"
	"github.com/moonrise/moonrise/internal/domain/game"
	"github.com/moonrise/moonrise/internal/domain/phase"
	"github.com/moonrise/moonrise/internal/infrastructure/memory"
)

// manualTimers only fires callbacks when a test asks it to.
type manualTimers struct {
	mu      sync.Mutex
	pending map[string]func()
}

func newManualTimers() *manualTimers {
	return &manualTimers{pending: make(map[string]func())}
}

func timerKey(sessionID, step string) string { return sessionID + "|" + step }

func (m *manualTimers) Schedule(sessionID, step string, _ time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[timerKey(sessionID, step)] = fn
}

func (m *manualTimers) Cancel(sessionID, step string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, timerKey(sessionID, step))
}

func (m *manualTimers) CancelSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.pending {
		if strings.HasPrefix(k, sessionID+"|") {
			delete(m.pending, k)
		}
	}
}

func (m *manualTimers) has(sessionID, step string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[timerKey(sessionID, step)]
	return ok
}

// callback returns the pending callback for step without consuming it.
func (m *manualTimers) callback(sessionID, step string) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[timerKey(sessionID, step)]
}

func (m *manualTimers) fire(sessionID, step string) bool {
	m.mu.Lock()
	k := timerKey(sessionID, step)
	fn, ok := m.pending[k]
	delete(m.pending, k)
	m.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

type sentEvent struct {
	scope  string
	target string
	event  game.Event
}

// recordingHub remembers every event and group membership.
type recordingHub struct {
	mu     sync.Mutex
	sent   []sentEvent
	groups map[string]map[string]bool
}

func newRecordingHub() *recordingHub {
	return &recordingHub{groups: make(map[string]map[string]bool)}
}

func (h *recordingHub) record(scope, target string, ev game.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, sentEvent{scope: scope, target: target, event: ev})
}

func (h *recordingHub) ToSession(_ string, ev game.Event) { h.record("session", "", ev) }

func (h *recordingHub) ToGroup(_, group string, ev game.Event) { h.record("group", group, ev) }

func (h *recordingHub) ToPlayer(_, pid string, ev game.Event) { h.record("player", pid, ev) }

func (h *recordingHub) JoinGroup(_, pid, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.groups[group] == nil {
		h.groups[group] = make(map[string]bool)
	}
	h.groups[group][pid] = true
}

func (h *recordingHub) LeaveGroup(_, pid, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.groups[group], pid)
}

func (h *recordingHub) inGroup(pid, group string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.groups[group][pid]
}

// events returns events of type typ sent to scope/target, oldest first.
func (h *recordingHub) events(scope, target, typ string) []game.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []game.Event
	for _, s := range h.sent {
		if s.scope == scope && s.target == target && s.event.Type == typ {
			out = append(out, s.event)
		}
	}
	return out
}

func (h *recordingHub) last(t *testing.T, scope, target, typ string) game.Event {
	t.Helper()
	evs := h.events(scope, target, typ)
	require.NotEmpty(t, evs, "no %s event for %s %s", typ, scope, target)
	return evs[len(evs)-1]
}

type mockNarrator struct {
	mock.Mock
}

func (m *mockNarrator) Tell(ctx context.Context, history []string) (string, error) {
	args := m.Called(ctx, history)
	return args.String(0), args.Error(1)
}

type harness struct {
	t      *testing.T
	svc    *Service
	store  *memory.Store
	timers *manualTimers
	hub    *recordingHub
	sid    string
}

type seat struct {
	id   string
	role game.Role
}

type harnessOption func(*harnessDeps)

type harnessDeps struct {
	narrator Narrator
	archive  archive.Repository
	rules    *config.Rules
}

func withNarrator(n Narrator) harnessOption {
	return func(d *harnessDeps) { d.narrator = n }
}

func withArchive(r archive.Repository) harnessOption {
	return func(d *harnessDeps) { d.archive = r }
}

func newService(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	deps := harnessDeps{rules: config.DefaultRules()}
	for _, o := range opts {
		o(&deps)
	}
	h := &harness{
		t:      t,
		store:  memory.NewStore(time.Minute, zerolog.Nop()),
		timers: newManualTimers(),
		hub:    newRecordingHub(),
	}
	h.svc = NewService(
		h.store,
		phase.NewMachine(),
		death.NewEngine(),
		h.timers,
		h.hub,
		config.StaticRules(deps.rules),
		deps.narrator,
		deps.archive,
		zerolog.Nop(),
	)
	return h
}

// newGame seats players with fixed roles, already past role assignment.
func newGame(t *testing.T, seats []seat, opts ...harnessOption) *harness {
	t.Helper()
	h := newService(t, opts...)
	ids := make([]string, len(seats))
	for i, st := range seats {
		ids[i] = st.id
	}
	s := game.NewSession("game-1", ids, time.Now())
	for _, st := range seats {
		s.AssignRole(st.id, st.role)
		h.hub.JoinGroup(s.ID, st.id, st.role.Group())
		if st.role == game.RoleThief {
			s.ThiefID = st.id
		}
	}
	s.Phase = phase.RoleAssignment
	s.Round = 1
	require.NoError(t, h.store.Put(s))
	h.sid = s.ID
	return h
}

func (h *harness) session() *game.Session {
	s, ok := h.store.Get(h.sid)
	require.True(h.t, ok)
	return s
}

// with runs fn under the session lock.
func (h *harness) with(fn func(s *game.Session)) {
	s := h.session()
	s.Mu.Lock()
	defer s.Mu.Unlock()
	fn(s)
}

func (h *harness) phase() phase.Phase {
	var p phase.Phase
	h.with(func(s *game.Session) { p = s.Phase })
	return p
}

func (h *harness) eyesClosing() bool {
	var v bool
	h.with(func(s *game.Session) { v = s.EyesClosing })
	return v
}

// jump enters p directly from its predecessor.
func (h *harness) jump(p phase.Phase) {
	h.with(func(s *game.Session) {
		for i, x := range phase.DefaultOrder {
			if x == p && i > 0 {
				s.Phase = phase.DefaultOrder[i-1]
			}
		}
		h.svc.enter(s, p)
	})
}

// paceUntil fires pacing pauses until p is open for actions.
func (h *harness) paceUntil(p phase.Phase) {
	h.t.Helper()
	for i := 0; i < 20; i++ {
		if h.phase() == p && !h.eyesClosing() {
			return
		}
		require.True(h.t, h.timers.fire(h.sid, stepPacing), "no pacing pause pending before %s (at %s)", p, h.phase())
	}
	h.t.Fatalf("never reached %s", p)
}

func (h *harness) fire(step string) {
	h.t.Helper()
	require.True(h.t, h.timers.fire(h.sid, step), "no %s timer pending", step)
}

func (h *harness) alive(id string) bool {
	var v bool
	h.with(func(s *game.Session) { v = s.IsAlive(id) })
	return v
}

func (h *harness) ctx() context.Context { return context.Background() }
