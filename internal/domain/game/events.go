package game

import "time"

// Event types pushed to participants.
const (
	EventPhaseChanged  = "phase_changed"
	EventRoleAssigned  = "role_assigned"
	EventWake          = "wake"
	EventThiefSwapped  = "thief_swapped"
	EventLoversBonded  = "lovers_bonded"
	EventSeerResult    = "seer_result"
	EventWolfStatus    = "wolf_status"
	EventWolfTally     = "wolf_tally"
	EventWolfLocked    = "wolf_locked"
	EventWitchStatus   = "witch_status"
	EventHunterAsk     = "hunter_ask"
	EventHunterShot    = "hunter_shot"
	EventDayRecap      = "day_recap"
	EventAckStatus     = "ack_status"
	EventVoteOptions   = "vote_options"
	EventVoteStatus    = "vote_status"
	EventVoteResult    = "vote_result"
	EventGameEnded     = "game_ended"
	EventStateSync     = "state_sync"
	EventNarration     = "narration"
	EventPlayerPresent = "player_presence"
)

// Event is an outbound message. Deadline is zero when the event carries none.
type Event struct {
	Type     string    `json:"type"`
	Payload  any       `json:"payload,omitempty"`
	Deadline time.Time `json:"deadline,omitempty"`
}

// Broadcaster delivers events to a whole session, a role-scoped group, or one participant.
type Broadcaster interface {
	ToSession(sessionID string, ev Event)
	ToGroup(sessionID, group string, ev Event)
	ToPlayer(sessionID, playerID string, ev Event)
	JoinGroup(sessionID, playerID, group string)
	LeaveGroup(sessionID, playerID, group string)
}

// Store is the registry of live sessions.
type Store interface {
	Put(s *Session) error
	Get(id string) (*Session, bool)
	Delete(id string)
	Len() int
}
