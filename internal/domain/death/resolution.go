package death

import (
	"github.com/moonrise/moonrise/internal/domain/game"
)

// Options tune how chain effects are handled.
type Options struct {
	// DeferGrief parks grief deaths on the session instead of resolving them now.
	DeferGrief bool
	// DeferHunters parks dead hunters on the session instead of asking them now.
	DeferHunters bool
}

// Outcome is what a drained resolution produced.
type Outcome struct {
	Deaths         []game.Death      `json:"deaths"`
	Shots          []game.HunterShot `json:"shots"`
	PendingHunters []string          `json:"pendingHunters,omitempty"`
	Cancelled      []game.Death      `json:"-"`
}

// Resolution drains the session's pending-death queue.
type Resolution struct {
	engine *Engine
	s      *game.Session
	opts   Options
	asker  Asker
	done   func(Outcome)

	shots    []string
	out      Outcome
	running  bool
	waiting  bool
	finished bool
}

// Enqueue appends a pending death.
func (r *Resolution) Enqueue(victim string, cause game.Cause) {
	r.s.PendingDeaths = append(r.s.PendingDeaths, game.Death{Victim: victim, Cause: cause})
}

// QueueShot schedules hunter's retaliation ahead of further deaths.
func (r *Resolution) QueueShot(hunter string) {
	r.shots = append(r.shots, hunter)
}

// Waiting reports whether the resolution is suspended on a hunter reply.
func (r *Resolution) Waiting() bool { return r.waiting }

// Finished reports whether done has been called.
func (r *Resolution) Finished() bool { return r.finished }

// Run drains until the queue is empty or a hunter reply is outstanding.
func (r *Resolution) Run() {
	if r.running || r.waiting || r.finished {
		return
	}
	r.running = true
	defer func() { r.running = false }()

	for !r.waiting {
		if len(r.shots) > 0 {
			h := r.shots[0]
			r.shots = r.shots[1:]
			r.shoot(h)
			continue
		}
		if len(r.s.PendingDeaths) > 0 {
			d := r.s.PendingDeaths[0]
			r.s.PendingDeaths = r.s.PendingDeaths[1:]
			r.process(d)
			continue
		}
		r.finished = true
		if r.done != nil {
			r.done(r.out)
		}
		return
	}
}

func (r *Resolution) process(d game.Death) {
	s := r.s
	if !s.IsAlive(d.Victim) {
		return
	}
	for _, g := range r.engine.guards[d.Cause] {
		if g(s, d) {
			r.out.Cancelled = append(r.out.Cancelled, d)
			return
		}
	}

	s.Kill(d.Victim)
	d.Role = s.RoleOf(d.Victim)
	r.out.Deaths = append(r.out.Deaths, d)

	for _, fn := range r.engine.reactions[d.Role] {
		fn(r, d)
	}

	if lover := s.LoverOf(d.Victim); lover != "" && s.IsAlive(lover) {
		if r.opts.DeferGrief {
			if !containsID(s.DeferredGrief, lover) {
				s.DeferredGrief = append(s.DeferredGrief, lover)
			}
		} else {
			r.Enqueue(lover, game.CauseGrief)
		}
	}
}

func (r *Resolution) deferHunter(id string) {
	if r.s.Inventory.HunterShot[id] || containsID(r.s.PendingHunters, id) {
		return
	}
	r.s.PendingHunters = append(r.s.PendingHunters, id)
	r.out.PendingHunters = append(r.out.PendingHunters, id)
}

func (r *Resolution) shoot(hunter string) {
	s := r.s
	if s.Inventory.HunterShot[hunter] {
		return
	}
	s.Inventory.HunterShot[hunter] = true

	if wolvesAlreadyWon(s) {
		return
	}
	targets := ShotTargets(s, hunter)
	if len(targets) == 0 || r.asker == nil {
		return
	}

	r.waiting = true
	answered := false
	r.asker.Ask(hunter, targets, func(target string, auto bool) {
		if answered {
			return
		}
		answered = true
		r.waiting = false
		if target != "" && containsID(targets, target) {
			r.out.Shots = append(r.out.Shots, game.HunterShot{Hunter: hunter, Target: target, Auto: auto})
			r.Enqueue(target, game.CauseHunter)
		}
		if !r.running {
			r.Run()
		}
	})
}

// ShotTargets lists who hunter may shoot: living players other than the
// hunter and the hunter's lover.
func ShotTargets(s *game.Session, hunter string) []string {
	lover := s.LoverOf(hunter)
	var out []string
	for _, id := range s.AliveIDs() {
		if id != hunter && id != lover {
			out = append(out, id)
		}
	}
	return out
}

// wolvesAlreadyWon reports that only wolves are alive and more than one
// remains, where no single shot can change the result.
func wolvesAlreadyWon(s *game.Session) bool {
	alive := s.AliveIDs()
	wolves := len(s.AliveWolves())
	return wolves > 1 && wolves == len(alive)
}

func containsID(list []string, id string) bool {
	for _, x := range list {
		if x == id {
			return true
		}
	}
	return false
}
