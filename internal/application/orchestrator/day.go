package orchestrator

import (
	"context"

	"github.com/moonrise/moonrise/internal/domain/death"
	"github.com/moonrise/moonrise/internal/domain/game"
	"github.com/moonrise/moonrise/internal/domain/phase"
)

// recordDeaths writes resolved deaths to history and logs them.
func (svc *Service) recordDeaths(s *game.Session, deaths []game.Death) []string {
	lines := make([]string, 0, len(deaths))
	for _, d := range deaths {
		s.Record("death", "", d.Victim, string(d.Cause), true, svc.now())
		svc.log(s).Info().Str("player_id", d.Victim).Str("cause", string(d.Cause)).Msg("player died")
		lines = append(lines, describeDeath(d))
	}
	return lines
}

func (svc *Service) broadcastRecap(s *game.Session) {
	svc.hub.ToSession(s.ID, game.Event{
		Type:     game.EventDayRecap,
		Payload:  RecapPayload{Round: s.Round, Deaths: s.Recap, Shots: s.Shots},
		Deadline: s.Deadline,
	})
}

// startMorning resolves the night. Grief and hunters wait for the first
// acknowledgment round so the village sees the night's victims first.
func (svc *Service) startMorning(s *game.Session) {
	s.Recap = nil
	s.Shots = nil
	res := svc.engine.NewResolution(s, death.Options{DeferGrief: true, DeferHunters: true}, svc.asker(s), func(out death.Outcome) {
		s.Recap = append(s.Recap, out.Deaths...)
		lines := svc.recordDeaths(s, out.Deaths)
		if len(out.Deaths) == 0 {
			s.Record("no_death", "", "", "night", true, svc.now())
		}
		svc.openMorningBarrier(s)
		svc.announcePhase(s)
		svc.broadcastRecap(s)
		svc.broadcastAcks(s, phase.Morning)
		svc.narrate(s, lines)
		if s.SyncBarrier(phase.Morning) {
			svc.morningAcked(s)
		}
	})
	if s.Night.Attacked != "" {
		res.Enqueue(s.Night.Attacked, game.CauseWolves)
	}
	if s.Night.Poisoned != "" {
		res.Enqueue(s.Night.Poisoned, game.CausePoison)
	}
	res.Run()
}

func (svc *Service) openMorningBarrier(s *game.Session) {
	s.OpenBarrier(phase.Morning, s.ActiveIDs()...)
	svc.setDeadline(s, svc.rules.Current().Timing.MorningAck, svc.morningAcked)
}

func (svc *Service) broadcastAcks(s *game.Session, p phase.Phase) {
	b := s.Barrier(p)
	if b == nil {
		return
	}
	svc.hub.ToSession(s.ID, game.Event{
		Type:     game.EventAckStatus,
		Payload:  AckPayload{Phase: p, Pending: b.Pending()},
		Deadline: s.Deadline,
	})
}

// DayAck acknowledges the morning recap.
func (svc *Service) DayAck(ctx context.Context, sessionID, pid string) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		return svc.acknowledge(s, pid, "day_ack", phase.Morning, svc.morningAcked)
	})
}

// acknowledge records pid on the open barrier for p and runs done once the
// barrier is satisfied.
func (svc *Service) acknowledge(s *game.Session, pid, action string, p phase.Phase, done func(*game.Session)) error {
	if _, err := participant(s, pid); err != nil {
		return err
	}
	if err := game.RequirePhase(s, action, p); err != nil {
		return err
	}
	b := s.Barrier(p)
	if b == nil {
		return &game.StateError{From: s.Phase, Action: action}
	}
	if !s.IsAlive(pid) {
		return game.Forbidden(pid, action, "dead")
	}
	if !b.Expects(pid) {
		return game.Forbidden(pid, action, "not awaited")
	}
	b.Acknowledge(pid)
	if s.SyncBarrier(p) {
		done(s)
		return nil
	}
	svc.broadcastAcks(s, p)
	return nil
}

// morningAcked runs once everyone has seen the recap or time ran out.
func (svc *Service) morningAcked(s *game.Session) {
	if s.Phase != phase.Morning || s.Barrier(phase.Morning) == nil {
		return
	}
	delete(s.Acks, phase.Morning)
	svc.clearDeadline(s)

	if len(s.PendingHunters) == 0 && len(s.DeferredGrief) == 0 {
		svc.finishMorning(s)
		return
	}

	hunters, grief := s.PendingHunters, s.DeferredGrief
	s.PendingHunters, s.DeferredGrief = nil, nil
	res := svc.engine.NewResolution(s, death.Options{DeferHunters: true}, svc.asker(s), func(out death.Outcome) {
		s.Recap = append(s.Recap, out.Deaths...)
		s.Shots = append(s.Shots, out.Shots...)
		lines := svc.recordDeaths(s, out.Deaths)
		if len(s.PendingHunters) > 0 {
			svc.openMorningBarrier(s)
			svc.broadcastRecap(s)
			svc.broadcastAcks(s, phase.Morning)
			svc.narrate(s, lines)
			if s.SyncBarrier(phase.Morning) {
				svc.morningAcked(s)
			}
			return
		}
		svc.broadcastRecap(s)
		svc.narrate(s, lines)
		svc.finishMorning(s)
	})
	for _, h := range hunters {
		res.QueueShot(h)
	}
	for _, g := range grief {
		res.Enqueue(g, game.CauseGrief)
	}
	res.Run()
}

func (svc *Service) finishMorning(s *game.Session) {
	if w := game.EvaluateWinner(s); w != game.WinnerNone {
		svc.endGame(s, w)
		return
	}
	svc.advance(s)
}
