package phase

import (
	"fmt"
	"sync"
	"time"
)

// Phase represents a step of the game loop.
type Phase string

const (
	Lobby          Phase = "LOBBY"
	RoleAssignment Phase = "ROLE_ASSIGNMENT"
	Thief          Phase = "NIGHT_THIEF"
	Cupid          Phase = "NIGHT_CUPID"
	Lovers         Phase = "NIGHT_LOVERS"
	Seer           Phase = "NIGHT_SEER"
	Wolves         Phase = "NIGHT_WOLVES"
	Witch          Phase = "NIGHT_WITCH"
	Morning        Phase = "DAY_MORNING"
	Vote           Phase = "DAY_VOTE"
	Resolve        Phase = "DAY_RESOLVE"
	CheckEnd       Phase = "CHECK_END"
	Ended          Phase = "ENDED"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// IsNight reports whether p is one of the built-in night sub-phases.
func (p Phase) IsNight() bool {
	switch p {
	case Thief, Cupid, Lovers, Seer, Wolves, Witch:
		return true
	}
	return false
}

// DefaultOrder is the fixed linear phase order of a standard game.
var DefaultOrder = []Phase{
	Lobby, RoleAssignment,
	Thief, Cupid, Lovers, Seer, Wolves, Witch,
	Morning, Vote, Resolve, CheckEnd, Ended,
}

// StateError reports an action or transition attempted in the wrong phase.
type StateError struct {
	From   Phase
	To     Phase
	Action string
}

func (e *StateError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("action %s not allowed in phase %s", e.Action, e.From)
	}
	return fmt.Sprintf("invalid phase transition %s -> %s", e.From, e.To)
}

// Stateful is anything carrying a phase that the machine can move.
type Stateful interface {
	CurrentPhase() Phase
	SetPhase(p Phase, at time.Time)
}

// Machine validates transitions along a linear order plus explicit edges.
type Machine struct {
	mu    sync.RWMutex
	order []Phase
	index map[Phase]int
	edges map[Phase][]Phase
}

// NewMachine returns the standard machine: DefaultOrder plus the
// CheckEnd -> Thief loop back into the night.
func NewMachine() *Machine {
	m := &Machine{
		order: append([]Phase(nil), DefaultOrder...),
		index: make(map[Phase]int, len(DefaultOrder)),
		edges: make(map[Phase][]Phase),
	}
	for i, p := range m.order {
		m.index[p] = i
	}
	m.edges[CheckEnd] = []Phase{Thief}
	return m
}

// Register adds explicit edges from -> to. from may be a phase unknown to the
// linear order, which is how variant rule sets insert their own phases.
func (m *Machine) Register(from Phase, to ...Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range to {
		if !containsPhase(m.edges[from], t) {
			m.edges[from] = append(m.edges[from], t)
		}
	}
}

// CanTransition reports whether from -> to is structurally legal.
func (m *Machine) CanTransition(from, to Phase) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i, ok := m.index[from]; ok && i+1 < len(m.order) && m.order[i+1] == to {
		return true
	}
	return containsPhase(m.edges[from], to)
}

// Next returns the linear successor of p, if any.
func (m *Machine) Next(p Phase) (Phase, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[p]
	if !ok || i+1 >= len(m.order) {
		return "", false
	}
	return m.order[i+1], true
}

// Successors lists every phase reachable from p in one step.
func (m *Machine) Successors(p Phase) []Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Phase
	if i, ok := m.index[p]; ok && i+1 < len(m.order) {
		out = append(out, m.order[i+1])
	}
	for _, e := range m.edges[p] {
		if !containsPhase(out, e) {
			out = append(out, e)
		}
	}
	return out
}

// Apply moves s to phase to. It does not check business preconditions.
func (m *Machine) Apply(s Stateful, to Phase, now time.Time) error {
	from := s.CurrentPhase()
	if !m.CanTransition(from, to) {
		return &StateError{From: from, To: to}
	}
	s.SetPhase(to, now)
	return nil
}

func containsPhase(list []Phase, p Phase) bool {
	for _, x := range list {
		if x == p {
			return true
		}
	}
	return false
}
