package orchestrator

import (
	"context"
	"time"

	"github.com/moonrise/moonrise/internal/domain/deck"
	"github.com/moonrise/moonrise/internal/domain/game"
	"github.com/moonrise/moonrise/internal/domain/phase"
)

// WitchDecision is the witch's choice for the night. Heal saves the
// attacked player; Poison names a victim or is empty.
type WitchDecision struct {
	Heal   bool   `json:"heal"`
	Poison string `json:"poison,omitempty"`
}

// completeNight closes the current night sub-phase and pauses before the next.
func (svc *Service) completeNight(s *game.Session) {
	svc.clearDeadline(s)
	s.EyesClosing = true
	svc.hub.ToSession(s.ID, game.Event{
		Type:    game.EventPhaseChanged,
		Payload: PhasePayload{Phase: s.Phase, Round: s.Round, EyesClosing: true},
	})
	svc.schedule(s, stepPacing, svc.pacing(), func(s *game.Session) {
		if !s.EyesClosing {
			return
		}
		svc.advance(s)
	})
}

// skipNight announces a sub-phase nobody acts in and moves on.
func (svc *Service) skipNight(s *game.Session, reason string) {
	svc.log(s).Debug().Str("reason", reason).Msg("night phase skipped")
	svc.announcePhase(s)
	svc.completeNight(s)
}

func (svc *Service) pacing() time.Duration {
	t := svc.rules.Current().Timing
	span := t.PacingMax - t.PacingMin
	if span <= 0 {
		return t.PacingMin
	}
	n, err := deck.Intn(int(span) + 1)
	if err != nil {
		return t.PacingMin
	}
	return t.PacingMin + time.Duration(n)
}

func (svc *Service) wake(s *game.Session, pid string, p WakePayload) {
	p.Phase = s.Phase
	svc.hub.ToPlayer(s.ID, pid, game.Event{Type: game.EventWake, Payload: p, Deadline: s.Deadline})
}

// nightActor validates that pid may act in the current night sub-phase as role.
func nightActor(s *game.Session, pid, action string, p phase.Phase, role game.Role) error {
	if _, err := participant(s, pid); err != nil {
		return err
	}
	if err := game.RequirePhase(s, action, p); err != nil {
		return err
	}
	if s.EyesClosing {
		return &game.StateError{From: s.Phase, Action: action}
	}
	if s.Roles[pid] != role {
		return game.Forbidden(pid, action, "requires "+string(role))
	}
	if !s.IsAlive(pid) {
		return game.Forbidden(pid, action, "dead")
	}
	return nil
}

// Thief

func (svc *Service) startThief(s *game.Session) {
	if s.Round != 1 || len(s.Center) == 0 || s.ThiefID == "" || s.Night.ThiefDone {
		svc.skipNight(s, "no thief")
		return
	}
	if !s.IsActive(s.ThiefID) {
		svc.thiefFallback(s)
		svc.skipNight(s, "thief absent")
		return
	}
	svc.setDeadline(s, svc.rules.Current().Timing.NightAction, func(s *game.Session) {
		svc.thiefFallback(s)
		svc.completeNight(s)
	})
	svc.announcePhase(s)
	svc.wake(s, s.ThiefID, WakePayload{Center: s.Center, MustSwap: mustSwap(s)})
}

func mustSwap(s *game.Session) bool {
	if len(s.Center) == 0 {
		return false
	}
	for _, c := range s.Center {
		if c != game.RoleWolf {
			return false
		}
	}
	return true
}

// thiefFallback forces the mandatory swap for a silent thief.
func (svc *Service) thiefFallback(s *game.Session) {
	if s.Night.ThiefDone || s.ThiefID == "" {
		return
	}
	s.Night.ThiefDone = true
	if mustSwap(s) {
		idx, err := deck.Intn(len(s.Center))
		if err != nil {
			idx = 0
		}
		svc.swapThief(s, idx)
	}
}

func (svc *Service) swapThief(s *game.Session, idx int) {
	pid := s.ThiefID
	old := s.Roles[pid]
	taken := s.Center[idx]
	s.Center[idx] = old
	s.AssignRole(pid, taken)
	svc.hub.LeaveGroup(s.ID, pid, old.Group())
	svc.hub.JoinGroup(s.ID, pid, taken.Group())

	payload := RolePayload{Role: taken}
	if taken == game.RoleWolf {
		payload.Pack = s.Holders(game.RoleWolf)
	}
	svc.hub.ToPlayer(s.ID, pid, game.Event{Type: game.EventThiefSwapped, Payload: payload})
	s.Record("thief_swap", pid, "", string(taken), false, svc.now())
	svc.log(s).Info().Str("player_id", pid).Msg("thief swapped role")
}

// ThiefSwap keeps the thief card (keep) or takes center card.
func (svc *Service) ThiefSwap(ctx context.Context, sessionID, pid string, keep bool, card int) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		if err := nightActor(s, pid, "thief_swap", phase.Thief, game.RoleThief); err != nil {
			return err
		}
		if pid != s.ThiefID || s.Night.ThiefDone {
			return game.Forbidden(pid, "thief_swap", "already chose")
		}
		if keep {
			if mustSwap(s) {
				return game.Invalid("both center cards are wolves, a swap is mandatory")
			}
		} else if card < 0 || card >= len(s.Center) {
			return game.Invalid("center card %d out of range", card)
		}
		s.Night.ThiefDone = true
		if !keep {
			svc.swapThief(s, card)
		}
		svc.completeNight(s)
		return nil
	})
}

// Cupid

func (svc *Service) startCupid(s *game.Session) {
	cupid, ok := s.ActiveHolder(game.RoleCupid)
	if s.Round != 1 || s.Inventory.CupidUsed || !ok {
		svc.skipNight(s, "no cupid")
		return
	}
	svc.setDeadline(s, svc.rules.Current().Timing.NightAction, func(s *game.Session) {
		svc.cupidFallback(s)
		svc.completeNight(s)
	})
	svc.announcePhase(s)
	svc.wake(s, cupid, WakePayload{Options: s.AliveIDs()})
}

func (svc *Service) cupidFallback(s *game.Session) {
	if s.Inventory.CupidUsed {
		return
	}
	alive := s.AliveIDs()
	if len(alive) < 2 {
		return
	}
	if err := deck.Shuffle(alive); err != nil {
		return
	}
	svc.bond(s, alive[0], alive[1])
}

func (svc *Service) bond(s *game.Session, a, b string) {
	s.Inventory.CupidUsed = true
	s.Bond(a, b)
	svc.hub.ToPlayer(s.ID, a, game.Event{Type: game.EventLoversBonded, Payload: map[string]string{"partner": b}})
	svc.hub.ToPlayer(s.ID, b, game.Event{Type: game.EventLoversBonded, Payload: map[string]string{"partner": a}})
	s.Record("lovers", "", a+","+b, string(s.LoverMode), false, svc.now())
	svc.log(s).Info().Str("mode", string(s.LoverMode)).Msg("lovers bonded")
}

// CupidPair bonds a and b.
func (svc *Service) CupidPair(ctx context.Context, sessionID, pid, a, b string) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		if err := nightActor(s, pid, "cupid_pair", phase.Cupid, game.RoleCupid); err != nil {
			return err
		}
		if s.Inventory.CupidUsed {
			return game.Forbidden(pid, "cupid_pair", "already chose")
		}
		if a == b {
			return game.Invalid("lovers must be two different players")
		}
		for _, id := range []string{a, b} {
			if s.Participant(id) == nil {
				return game.NotFound("participant", id)
			}
			if !s.IsAlive(id) {
				return game.Invalid("%s is dead", id)
			}
		}
		svc.bond(s, a, b)
		svc.completeNight(s)
		return nil
	})
}

// Lovers

func (svc *Service) startLovers(s *game.Session) {
	a, b, ok := s.Lovers()
	if !ok || s.Round != 1 || !s.IsActive(a) || !s.IsActive(b) {
		svc.skipNight(s, "no lovers to wake")
		return
	}
	s.OpenBarrier(phase.Lovers, a, b)
	svc.setDeadline(s, svc.rules.Current().Timing.LoversAck, svc.completeNight)
	svc.announcePhase(s)
	svc.wake(s, a, WakePayload{Options: []string{b}})
	svc.wake(s, b, WakePayload{Options: []string{a}})
}

// LoversAck confirms a lover has seen their partner.
func (svc *Service) LoversAck(ctx context.Context, sessionID, pid string) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		if _, err := participant(s, pid); err != nil {
			return err
		}
		if err := game.RequirePhase(s, "lovers_ack", phase.Lovers); err != nil {
			return err
		}
		b := s.Barrier(phase.Lovers)
		if s.EyesClosing || b == nil {
			return &game.StateError{From: s.Phase, Action: "lovers_ack"}
		}
		if !b.Expects(pid) {
			return game.Forbidden(pid, "lovers_ack", "not a lover")
		}
		if b.Acknowledge(pid) {
			svc.completeNight(s)
		}
		return nil
	})
}

// Seer

func (svc *Service) startSeer(s *game.Session) {
	seer, ok := s.ActiveHolder(game.RoleSeer)
	if !ok {
		svc.skipNight(s, "no seer")
		return
	}
	svc.setDeadline(s, svc.rules.Current().Timing.Seer, svc.completeNight)
	svc.announcePhase(s)
	var options []string
	for _, id := range s.AliveIDs() {
		if id != seer {
			options = append(options, id)
		}
	}
	svc.wake(s, seer, WakePayload{Options: options})
}

// SeerProbe reveals target's role to the seer.
func (svc *Service) SeerProbe(ctx context.Context, sessionID, pid, target string) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		if err := nightActor(s, pid, "seer_probe", phase.Seer, game.RoleSeer); err != nil {
			return err
		}
		if s.Night.SeerProbed != "" {
			return game.Invalid("already probed %s tonight", s.Night.SeerProbed)
		}
		if target == pid {
			return game.Invalid("cannot probe yourself")
		}
		if s.Participant(target) == nil {
			return game.NotFound("participant", target)
		}
		if !s.IsAlive(target) {
			return game.Invalid("%s is dead", target)
		}
		role := s.Roles[target]
		s.Night.SeerProbed = target
		s.SeerLog = append(s.SeerLog, game.SeerProbe{Round: s.Round, Target: target, Role: role})
		s.Record("seer_probe", pid, target, string(role), false, svc.now())
		svc.hub.ToPlayer(s.ID, pid, game.Event{Type: game.EventSeerResult, Payload: game.SeerProbe{Round: s.Round, Target: target, Role: role}})
		return nil
	})
}

// SeerAck ends the seer's turn.
func (svc *Service) SeerAck(ctx context.Context, sessionID, pid string) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		if err := nightActor(s, pid, "seer_ack", phase.Seer, game.RoleSeer); err != nil {
			return err
		}
		svc.completeNight(s)
		return nil
	})
}

// Wolves

func wolfTargets(s *game.Session, wolf string) []string {
	lover := s.LoverOf(wolf)
	var out []string
	for _, id := range s.AliveIDs() {
		if s.Roles[id] != game.RoleWolf && id != lover {
			out = append(out, id)
		}
	}
	return out
}

func (svc *Service) startWolves(s *game.Session) {
	active := s.ActiveWolves()
	if len(active) == 0 {
		svc.skipNight(s, "no active wolves")
		return
	}
	svc.setDeadline(s, svc.rules.Current().Timing.Wolves, svc.wolvesTimeout)
	svc.announcePhase(s)
	for _, w := range active {
		svc.wake(s, w, WakePayload{Options: wolfTargets(s, w)})
	}
}

// WolfTarget records a wolf's proposed victim.
func (svc *Service) WolfTarget(ctx context.Context, sessionID, pid, target string) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		if err := nightActor(s, pid, "wolf_target", phase.Wolves, game.RoleWolf); err != nil {
			return err
		}
		if !s.IsActive(pid) {
			return game.Forbidden(pid, "wolf_target", "disconnected")
		}
		if s.Participant(target) == nil {
			return game.NotFound("participant", target)
		}
		if !containsID(wolfTargets(s, pid), target) {
			return game.Invalid("%s is not a valid wolf target", target)
		}
		s.Night.WolfVotes[pid] = target
		svc.checkWolves(s)
		return nil
	})
}

// activeWolfVotes keeps only ballots of wolves that are alive and connected.
func activeWolfVotes(s *game.Session) (map[string]string, []string) {
	active := s.ActiveWolves()
	votes := make(map[string]string, len(active))
	for _, w := range active {
		if t, ok := s.Night.WolfVotes[w]; ok && s.IsAlive(t) {
			votes[w] = t
		}
	}
	return votes, active
}

// checkWolves re-evaluates consensus among active wolves.
func (svc *Service) checkWolves(s *game.Session) {
	if s.Phase != phase.Wolves || s.EyesClosing {
		return
	}
	votes, active := activeWolfVotes(s)
	if len(active) == 0 {
		svc.log(s).Info().Msg("no active wolves left, no attack")
		svc.completeNight(s)
		return
	}
	tally := game.CountBallots(votes)
	best := 0
	for _, n := range tally {
		if n > best {
			best = n
		}
	}
	status := WolfStatusPayload{Votes: votes, Tally: tally, Remaining: len(active) - best}
	svc.hub.ToGroup(s.ID, game.GroupWolves, game.Event{Type: game.EventWolfStatus, Payload: status, Deadline: s.Deadline})

	if best == len(active) {
		target, _ := tally.Plurality()
		svc.lockAttack(s, target)
		return
	}
	if len(votes) == len(active) {
		svc.hub.ToGroup(s.ID, game.GroupWolves, game.Event{Type: game.EventWolfTally, Payload: status, Deadline: s.Deadline})
	}
}

func (svc *Service) lockAttack(s *game.Session, target string) {
	s.Night.Attacked = target
	if target != "" {
		s.Record("wolf_attack", "", target, "", false, svc.now())
	}
	svc.hub.ToGroup(s.ID, game.GroupWolves, game.Event{Type: game.EventWolfLocked, Payload: WolfStatusPayload{Target: target}})
	svc.log(s).Info().Bool("attack", target != "").Msg("wolf target locked")
	svc.completeNight(s)
}

// wolvesTimeout takes the plurality of active votes, breaking ties at random.
func (svc *Service) wolvesTimeout(s *game.Session) {
	votes, _ := activeWolfVotes(s)
	leaders := game.CountBallots(votes).Leaders()
	target := ""
	if len(leaders) > 0 {
		target = deck.Pick(leaders)
	}
	svc.lockAttack(s, target)
}

// Witch

func poisonTargets(s *game.Session, witch string) []string {
	lover := s.LoverOf(witch)
	var out []string
	for _, id := range s.AliveIDs() {
		if id != witch && id != lover {
			out = append(out, id)
		}
	}
	return out
}

func (svc *Service) startWitch(s *game.Session) {
	witch, ok := s.ActiveHolder(game.RoleWitch)
	if !ok {
		svc.skipNight(s, "no witch")
		return
	}
	svc.setDeadline(s, svc.rules.Current().Timing.Witch, svc.completeNight)
	svc.announcePhase(s)
	p := WakePayload{
		Attacked:  s.Night.Attacked,
		CanHeal:   !s.Inventory.HealUsed && s.Night.Attacked != "",
		CanPoison: !s.Inventory.PoisonUsed,
	}
	if p.CanPoison {
		p.Options = poisonTargets(s, witch)
	}
	svc.wake(s, witch, p)
}

// WitchAct applies the witch's decision and ends her turn.
func (svc *Service) WitchAct(ctx context.Context, sessionID, pid string, d WitchDecision) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		if err := nightActor(s, pid, "witch_act", phase.Witch, game.RoleWitch); err != nil {
			return err
		}
		if s.Night.WitchDone {
			return game.Forbidden(pid, "witch_act", "already acted")
		}
		if d.Poison != "" {
			switch {
			case s.Inventory.PoisonUsed:
				return game.Invalid("poison already used")
			case d.Poison == pid:
				return game.Invalid("cannot poison yourself")
			case s.Participant(d.Poison) == nil:
				return game.NotFound("participant", d.Poison)
			case !s.IsAlive(d.Poison):
				return game.Invalid("%s is dead", d.Poison)
			case d.Poison == s.LoverOf(pid):
				return game.Invalid("cannot poison your lover")
			}
		}

		s.Night.WitchDone = true
		if d.Heal && !s.Inventory.HealUsed && s.Night.Attacked != "" {
			s.Inventory.HealUsed = true
			s.Night.Saved = s.Night.Attacked
			s.Record("witch_heal", pid, s.Night.Saved, "", false, svc.now())
		}
		if d.Poison != "" {
			s.Inventory.PoisonUsed = true
			s.Night.Poisoned = d.Poison
			s.Record("witch_poison", pid, d.Poison, "", false, svc.now())
		}
		svc.hub.ToPlayer(s.ID, pid, game.Event{Type: game.EventWitchStatus, Payload: map[string]bool{
			"healUsed":   s.Inventory.HealUsed,
			"poisonUsed": s.Inventory.PoisonUsed,
		}})
		svc.completeNight(s)
		return nil
	})
}

func containsID(list []string, id string) bool {
	for _, x := range list {
		if x == id {
			return true
		}
	}
	return false
}
