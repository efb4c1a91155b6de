package death

import (
	"github.com/moonrise/moonrise/internal/domain/game"
)

// Guard can cancel a death before it is applied. Returning true cancels it.
type Guard func(s *game.Session, d game.Death) bool

// Reaction runs after a holder of some role has died.
type Reaction func(r *Resolution, d game.Death)

// Asker requests a hunter's retaliation target. reply must be called once,
// either before Ask returns or later from another handler.
type Asker interface {
	Ask(hunter string, targets []string, reply func(target string, auto bool))
}

// AskerFunc adapts a function to Asker.
type AskerFunc func(hunter string, targets []string, reply func(target string, auto bool))

// Ask calls f.
func (f AskerFunc) Ask(hunter string, targets []string, reply func(target string, auto bool)) {
	f(hunter, targets, reply)
}

// Engine holds cause guards and role reactions in registration order.
type Engine struct {
	guards    map[game.Cause][]Guard
	reactions map[game.Role][]Reaction
}

// NewEngine returns an engine with the standard rules: a heal cancels the
// matching wolf attack and a dying hunter gets one shot.
func NewEngine() *Engine {
	e := &Engine{
		guards:    make(map[game.Cause][]Guard),
		reactions: make(map[game.Role][]Reaction),
	}
	e.Guard(game.CauseWolves, healed)
	e.React(game.RoleHunter, hunterReaction)
	return e
}

// Guard registers g for deaths with cause c.
func (e *Engine) Guard(c game.Cause, g Guard) {
	e.guards[c] = append(e.guards[c], g)
}

// React registers fn to run after a holder of role dies.
func (e *Engine) React(role game.Role, fn Reaction) {
	e.reactions[role] = append(e.reactions[role], fn)
}

// NewResolution starts a resolution over s. done receives the outcome once
// the queue drains, which may happen inside Run or after a later hunter reply.
func (e *Engine) NewResolution(s *game.Session, opts Options, asker Asker, done func(Outcome)) *Resolution {
	return &Resolution{
		engine: e,
		s:      s,
		opts:   opts,
		asker:  asker,
		done:   done,
	}
}

func healed(s *game.Session, d game.Death) bool {
	return s.Night.Saved != "" && s.Night.Saved == d.Victim
}

func hunterReaction(r *Resolution, d game.Death) {
	if r.opts.DeferHunters {
		r.deferHunter(d.Victim)
		return
	}
	r.QueueShot(d.Victim)
}
