package game

import (
	"sync"
	"time"

	"github.com/moonrise/moonrise/internal/domain/barrier"
	"github.com/moonrise/moonrise/internal/domain/phase"
)

// Participant is a player seated in a session.
type Participant struct {
	ID        string    `json:"id"`
	Connected bool      `json:"connected"`
	Ready     bool      `json:"ready"`
	Role      Role      `json:"-"`
	Lover     string    `json:"-"`
	LastSeen  time.Time `json:"lastSeen"`

	// Transport is opaque to the engine.
	Transport any `json:"-"`
}

// NightState is the per-round scratch state of night actions.
type NightState struct {
	Attacked   string
	Saved      string
	Poisoned   string
	WolfVotes  map[string]string
	SeerProbed string
	ThiefDone  bool
	WitchDone  bool
}

// Inventory tracks single-use abilities for the whole session.
type Inventory struct {
	HealUsed   bool
	PoisonUsed bool
	CupidUsed  bool
	HunterShot map[string]bool
}

// RevoteState restricts a revote to tied candidates.
type RevoteState struct {
	Candidates []string
	Round      int
}

// SeerProbe is one entry in the seer's private log.
type SeerProbe struct {
	Round  int    `json:"round"`
	Target string `json:"target"`
	Role   Role   `json:"role"`
}

// HistoryEntry is an event kept for recaps and the archive.
type HistoryEntry struct {
	Round  int         `json:"round"`
	Phase  phase.Phase `json:"phase"`
	Kind   string      `json:"kind"`
	Actor  string      `json:"actor,omitempty"`
	Target string      `json:"target,omitempty"`
	Detail string      `json:"detail,omitempty"`
	Public bool        `json:"public"`
	At     time.Time   `json:"at"`
}

// Session is one running game. Every field is guarded by Mu.
type Session struct {
	Mu sync.Mutex

	ID           string
	Phase        phase.Phase
	Round        int
	Epoch        uint64
	Participants []*Participant
	Roles        map[string]Role
	Alive        map[string]bool
	Night        NightState
	Inventory    Inventory
	Ballots      map[string]string
	VoteClosed   bool
	Revote       RevoteState

	PendingDeaths  []Death
	DeferredGrief  []string
	PendingHunters []string
	Recap          []Death
	Shots          []HunterShot

	Center    []Role
	ThiefID   string
	LoverMode LoverMode
	Acks      map[phase.Phase]*barrier.Barrier

	SeerLog []SeerProbe
	History []HistoryEntry

	EyesClosing bool
	Deadline    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Winner      Winner
	EndedAt     time.Time
}

// NewSession creates a lobby session seating ids in order.
func NewSession(id string, ids []string, now time.Time) *Session {
	s := &Session{
		ID:        id,
		Phase:     phase.Lobby,
		Roles:     make(map[string]Role, len(ids)),
		Alive:     make(map[string]bool, len(ids)),
		Ballots:   make(map[string]string),
		Acks:      make(map[phase.Phase]*barrier.Barrier),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Inventory.HunterShot = make(map[string]bool)
	s.ResetNight()
	for _, pid := range ids {
		s.Participants = append(s.Participants, &Participant{ID: pid, Connected: true, LastSeen: now})
		s.Alive[pid] = true
	}
	return s
}

// CurrentPhase implements phase.Stateful.
func (s *Session) CurrentPhase() phase.Phase { return s.Phase }

// SetPhase implements phase.Stateful.
func (s *Session) SetPhase(p phase.Phase, at time.Time) {
	s.Phase = p
	s.UpdatedAt = at
	s.NextEpoch()
}

// NextEpoch invalidates timer callbacks armed before it.
func (s *Session) NextEpoch() uint64 {
	s.Epoch++
	return s.Epoch
}

// ResetNight clears per-round night scratch.
func (s *Session) ResetNight() {
	s.Night = NightState{WolfVotes: make(map[string]string)}
}

// Participant returns the participant with id, or nil.
func (s *Session) Participant(id string) *Participant {
	for _, p := range s.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// IsAlive reports whether id is in the alive set.
func (s *Session) IsAlive(id string) bool {
	return s.Alive[id]
}

// IsActive reports whether id is alive and connected.
func (s *Session) IsActive(id string) bool {
	p := s.Participant(id)
	return p != nil && p.Connected && s.Alive[id]
}

// RoleOf returns the role assigned to id.
func (s *Session) RoleOf(id string) Role {
	return s.Roles[id]
}

// AssignRole sets id's role in both the role map and the participant.
func (s *Session) AssignRole(id string, r Role) {
	s.Roles[id] = r
	if p := s.Participant(id); p != nil {
		p.Role = r
	}
}

// AliveIDs returns living participant ids in seating order.
func (s *Session) AliveIDs() []string {
	var out []string
	for _, p := range s.Participants {
		if s.Alive[p.ID] {
			out = append(out, p.ID)
		}
	}
	return out
}

// ActiveIDs returns living and connected participant ids in seating order.
func (s *Session) ActiveIDs() []string {
	var out []string
	for _, p := range s.Participants {
		if p.Connected && s.Alive[p.ID] {
			out = append(out, p.ID)
		}
	}
	return out
}

// Holders returns every participant currently holding r, alive or not.
func (s *Session) Holders(r Role) []string {
	var out []string
	for _, p := range s.Participants {
		if s.Roles[p.ID] == r {
			out = append(out, p.ID)
		}
	}
	return out
}

// ActiveHolder returns the first alive and connected holder of r.
func (s *Session) ActiveHolder(r Role) (string, bool) {
	for _, id := range s.Holders(r) {
		if s.IsActive(id) {
			return id, true
		}
	}
	return "", false
}

// AliveWolves returns living wolf-faction ids.
func (s *Session) AliveWolves() []string {
	var out []string
	for _, id := range s.AliveIDs() {
		if s.Roles[id].Faction() == FactionWolves {
			out = append(out, id)
		}
	}
	return out
}

// ActiveWolves returns living and connected wolf-faction ids.
func (s *Session) ActiveWolves() []string {
	var out []string
	for _, id := range s.ActiveIDs() {
		if s.Roles[id].Faction() == FactionWolves {
			out = append(out, id)
		}
	}
	return out
}

// LoverOf returns id's bonded partner, or "".
func (s *Session) LoverOf(id string) string {
	if p := s.Participant(id); p != nil {
		return p.Lover
	}
	return ""
}

// Lovers returns the bonded pair, if any.
func (s *Session) Lovers() (string, string, bool) {
	for _, p := range s.Participants {
		if p.Lover != "" {
			return p.ID, p.Lover, true
		}
	}
	return "", "", false
}

// Bond links a and b symmetrically and derives the lover camp mode.
func (s *Session) Bond(a, b string) {
	pa, pb := s.Participant(a), s.Participant(b)
	if pa == nil || pb == nil || a == b {
		return
	}
	pa.Lover = b
	pb.Lover = a
	if s.Roles[a].Faction() == s.Roles[b].Faction() {
		s.LoverMode = LoversSameCamp
	} else {
		s.LoverMode = LoversMixedCamp
	}
}

// Kill removes id from the alive set.
func (s *Session) Kill(id string) {
	delete(s.Alive, id)
}

// Record appends a history entry for the current round and phase.
func (s *Session) Record(kind, actor, target, detail string, public bool, at time.Time) {
	s.History = append(s.History, HistoryEntry{
		Round:  s.Round,
		Phase:  s.Phase,
		Kind:   kind,
		Actor:  actor,
		Target: target,
		Detail: detail,
		Public: public,
		At:     at,
	})
}

// IsOver reports whether the session reached its terminal phase.
func (s *Session) IsOver() bool {
	return s.Phase == phase.Ended
}

// Barrier returns the acknowledgment barrier for p, if one is open.
func (s *Session) Barrier(p phase.Phase) *barrier.Barrier {
	return s.Acks[p]
}

// OpenBarrier replaces the barrier for p with one expecting ids.
func (s *Session) OpenBarrier(p phase.Phase, ids ...string) *barrier.Barrier {
	b := barrier.New(ids...)
	s.Acks[p] = b
	s.NextEpoch()
	return b
}

// SyncBarrier shrinks the barrier for p to alive, connected participants
// and reports whether it is satisfied. A missing barrier is not satisfied.
func (s *Session) SyncBarrier(p phase.Phase) bool {
	b := s.Acks[p]
	if b == nil {
		return false
	}
	return b.Retain(s.IsActive)
}
