package orchestrator

import (
	"fmt"
	"time"

	"github.com/moonrise/moonrise/internal/domain/game"
	"github.com/moonrise/moonrise/internal/domain/phase"
)

// PhasePayload accompanies phase_changed.
type PhasePayload struct {
	Phase       phase.Phase `json:"phase"`
	Round       int         `json:"round"`
	EyesClosing bool        `json:"eyesClosing,omitempty"`
}

// RolePayload is the private role reveal.
type RolePayload struct {
	Role game.Role `json:"role"`
	Pack []string  `json:"pack,omitempty"`
}

// WakePayload tells one actor what they may choose.
type WakePayload struct {
	Phase     phase.Phase `json:"phase"`
	Options   []string    `json:"options,omitempty"`
	Center    []game.Role `json:"center,omitempty"`
	MustSwap  bool        `json:"mustSwap,omitempty"`
	Attacked  string      `json:"attacked,omitempty"`
	CanHeal   bool        `json:"canHeal,omitempty"`
	CanPoison bool        `json:"canPoison,omitempty"`
}

// WolfStatusPayload is broadcast to the pack after every vote.
type WolfStatusPayload struct {
	Votes     map[string]string `json:"votes"`
	Tally     game.Tally        `json:"tally"`
	Remaining int               `json:"remaining"`
	Target    string            `json:"target,omitempty"`
}

// HunterAskPayload asks a dying hunter to shoot.
type HunterAskPayload struct {
	Targets []string `json:"targets"`
}

// RecapPayload lists deaths with revealed roles.
type RecapPayload struct {
	Round  int               `json:"round"`
	Deaths []game.Death      `json:"deaths"`
	Shots  []game.HunterShot `json:"shots,omitempty"`
}

// AckPayload reports barrier progress.
type AckPayload struct {
	Phase   phase.Phase `json:"phase"`
	Pending []string    `json:"pending"`
}

// VoteOptionsPayload lists whom a voter may vote for.
type VoteOptionsPayload struct {
	Options []string `json:"options"`
	Revote  bool     `json:"revote"`
}

// VoteStatusPayload reports vote progress.
type VoteStatusPayload struct {
	Voted    int `json:"voted"`
	Eligible int `json:"eligible"`
}

// VoteResultPayload is the outcome of a vote.
type VoteResultPayload struct {
	Eliminated *string    `json:"eliminated"`
	Role       game.Role  `json:"role,omitempty"`
	Tally      game.Tally `json:"tally"`
	Tied       []string   `json:"tied,omitempty"`
	Revote     bool       `json:"revote"`
}

// GameEndedPayload is the final reveal.
type GameEndedPayload struct {
	Winner game.Winner          `json:"winner"`
	Roles  map[string]game.Role `json:"roles"`
	Lovers []string             `json:"lovers,omitempty"`
}

// StateSyncPayload brings a reconnecting participant up to date.
type StateSyncPayload struct {
	View
	Role    game.Role        `json:"role"`
	Lover   string           `json:"lover,omitempty"`
	SeerLog []game.SeerProbe `json:"seerLog,omitempty"`
	Pack    []string         `json:"pack,omitempty"`
}

// NarrationPayload carries a generated story.
type NarrationPayload struct {
	Text string `json:"text"`
}

// PlayerView is the public state of one participant.
type PlayerView struct {
	ID        string `json:"id"`
	Connected bool   `json:"connected"`
	Ready     bool   `json:"ready"`
	Alive     bool   `json:"alive"`
}

// View is the public snapshot of a session.
type View struct {
	ID          string       `json:"id"`
	Phase       phase.Phase  `json:"phase"`
	Round       int          `json:"round"`
	Deadline    *time.Time   `json:"deadline,omitempty"`
	EyesClosing bool         `json:"eyesClosing"`
	Players     []PlayerView `json:"players"`
	Winner      game.Winner  `json:"winner,omitempty"`
}

func view(s *game.Session) View {
	v := View{
		ID:          s.ID,
		Phase:       s.Phase,
		Round:       s.Round,
		EyesClosing: s.EyesClosing,
		Winner:      s.Winner,
	}
	if !s.Deadline.IsZero() {
		d := s.Deadline
		v.Deadline = &d
	}
	for _, p := range s.Participants {
		v.Players = append(v.Players, PlayerView{
			ID:        p.ID,
			Connected: p.Connected,
			Ready:     p.Ready,
			Alive:     s.IsAlive(p.ID),
		})
	}
	return v
}

func presence(s *game.Session) []PlayerView {
	return view(s).Players
}

func describeDeath(d game.Death) string {
	switch d.Cause {
	case game.CauseWolves:
		return fmt.Sprintf("%s (%s) was devoured by the wolves", d.Victim, d.Role)
	case game.CausePoison:
		return fmt.Sprintf("%s (%s) was found poisoned", d.Victim, d.Role)
	case game.CauseHunter:
		return fmt.Sprintf("%s (%s) was shot by the hunter", d.Victim, d.Role)
	case game.CauseGrief:
		return fmt.Sprintf("%s (%s) died of grief", d.Victim, d.Role)
	case game.CauseVote:
		return fmt.Sprintf("%s (%s) was hanged by the village", d.Victim, d.Role)
	}
	return fmt.Sprintf("%s (%s) died", d.Victim, d.Role)
}

func publicHistory(s *game.Session) []string {
	var out []string
	for _, h := range s.History {
		if !h.Public {
			continue
		}
		switch h.Kind {
		case "death":
			out = append(out, fmt.Sprintf("Round %d: %s", h.Round, describeDeath(game.Death{
				Victim: h.Target, Cause: game.Cause(h.Detail), Role: s.Roles[h.Target],
			})))
		case "no_death":
			out = append(out, fmt.Sprintf("Round %d: nobody died during the %s", h.Round, h.Detail))
		}
	}
	return out
}
