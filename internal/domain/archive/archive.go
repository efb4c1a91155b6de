package archive

import (
	"time"

	"github.com/moonrise/moonrise/internal/domain/game"
)

// Record is a finished game kept after the session is purged.
type Record struct {
	SessionID string               `json:"sessionId"`
	Winner    game.Winner          `json:"winner"`
	Rounds    int                  `json:"rounds"`
	Roles     map[string]game.Role `json:"roles"`
	Lovers    []string             `json:"lovers,omitempty"`
	Deaths    []game.Death         `json:"deaths"`
	History   []game.HistoryEntry  `json:"history"`
	StartedAt time.Time            `json:"startedAt"`
	EndedAt   time.Time            `json:"endedAt"`
}

// FromSession snapshots a finished session. Caller holds s.Mu.
func FromSession(s *game.Session) *Record {
	r := &Record{
		SessionID: s.ID,
		Winner:    s.Winner,
		Rounds:    s.Round,
		Roles:     make(map[string]game.Role, len(s.Roles)),
		History:   append([]game.HistoryEntry(nil), s.History...),
		StartedAt: s.CreatedAt,
		EndedAt:   s.EndedAt,
	}
	for id, role := range s.Roles {
		r.Roles[id] = role
	}
	if a, b, ok := s.Lovers(); ok {
		r.Lovers = []string{a, b}
	}
	for _, h := range s.History {
		if h.Kind == "death" {
			r.Deaths = append(r.Deaths, game.Death{Victim: h.Target, Cause: game.Cause(h.Detail), Role: s.Roles[h.Target]})
		}
	}
	return r
}
