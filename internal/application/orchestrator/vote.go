package orchestrator

import (
	"context"

	"github.com/moonrise/moonrise/internal/domain/barrier"
	"github.com/moonrise/moonrise/internal/domain/death"
	"github.com/moonrise/moonrise/internal/domain/game"
	"github.com/moonrise/moonrise/internal/domain/phase"
)

// voteOptions lists whom voter may vote for: living players other than
// themselves and their lover, limited to tied candidates during a revote.
func voteOptions(s *game.Session, voter string) []string {
	lover := s.LoverOf(voter)
	var out []string
	for _, id := range s.AliveIDs() {
		if id == voter || id == lover {
			continue
		}
		if len(s.Revote.Candidates) > 0 && !containsID(s.Revote.Candidates, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// eligibleVoters are living, connected players with at least one option.
func eligibleVoters(s *game.Session) []string {
	var out []string
	for _, id := range s.ActiveIDs() {
		if len(voteOptions(s, id)) > 0 {
			out = append(out, id)
		}
	}
	return out
}

func (svc *Service) startVote(s *game.Session) {
	if w := game.EvaluateWinner(s); w != game.WinnerNone {
		svc.endGame(s, w)
		return
	}
	s.Ballots = make(map[string]string)
	s.Revote = game.RevoteState{}
	s.VoteClosed = false
	svc.openVote(s)
}

func (svc *Service) openVote(s *game.Session) {
	s.VoteClosed = false
	s.NextEpoch()
	svc.setDeadline(s, svc.rules.Current().Timing.Vote, func(s *game.Session) {
		if !s.VoteClosed {
			svc.resolveVote(s)
		}
	})
	svc.announcePhase(s)
	revote := len(s.Revote.Candidates) > 0
	for _, id := range s.AliveIDs() {
		svc.hub.ToPlayer(s.ID, id, game.Event{
			Type:     game.EventVoteOptions,
			Payload:  VoteOptionsPayload{Options: voteOptions(s, id), Revote: revote},
			Deadline: s.Deadline,
		})
	}
	svc.broadcastVoteStatus(s)
}

func (svc *Service) broadcastVoteStatus(s *game.Session) {
	voted := 0
	for voter := range s.Ballots {
		if s.IsAlive(voter) {
			voted++
		}
	}
	svc.hub.ToSession(s.ID, game.Event{
		Type:     game.EventVoteStatus,
		Payload:  VoteStatusPayload{Voted: voted, Eligible: len(eligibleVoters(s))},
		Deadline: s.Deadline,
	})
}

func (svc *Service) voter(s *game.Session, pid, action string) error {
	if _, err := participant(s, pid); err != nil {
		return err
	}
	if err := game.RequirePhase(s, action, phase.Vote); err != nil {
		return err
	}
	if s.VoteClosed {
		return &game.StateError{From: s.Phase, Action: action}
	}
	if !s.IsAlive(pid) {
		return game.Forbidden(pid, action, "dead")
	}
	return nil
}

// CastVote records or replaces pid's ballot.
func (svc *Service) CastVote(ctx context.Context, sessionID, pid, target string) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		if err := svc.voter(s, pid, "vote"); err != nil {
			return err
		}
		if s.Participant(target) == nil {
			return game.NotFound("participant", target)
		}
		if !containsID(voteOptions(s, pid), target) {
			return game.Invalid("cannot vote for %s", target)
		}
		s.Ballots[pid] = target
		svc.broadcastVoteStatus(s)
		svc.checkVote(s)
		return nil
	})
}

// CancelVote withdraws pid's ballot.
func (svc *Service) CancelVote(ctx context.Context, sessionID, pid string) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		if err := svc.voter(s, pid, "cancel_vote"); err != nil {
			return err
		}
		delete(s.Ballots, pid)
		svc.broadcastVoteStatus(s)
		return nil
	})
}

// checkVote resolves as soon as every eligible voter has a ballot.
func (svc *Service) checkVote(s *game.Session) {
	if s.Phase != phase.Vote || s.VoteClosed {
		return
	}
	eligible := eligibleVoters(s)
	for _, id := range eligible {
		if _, ok := s.Ballots[id]; !ok {
			return
		}
	}
	svc.resolveVote(s)
}

// resolveVote tallies living voters' ballots and applies the outcome.
func (svc *Service) resolveVote(s *game.Session) {
	svc.clearDeadline(s)
	s.VoteClosed = true

	ballots := make(map[string]string, len(s.Ballots))
	for voter, target := range s.Ballots {
		if s.IsAlive(voter) && s.IsAlive(target) {
			ballots[voter] = target
		}
	}
	tally := game.CountBallots(ballots)
	winner, leaders := tally.Plurality()
	l := svc.log(s).Info().Int("ballots", len(ballots))

	switch {
	case winner != "":
		l.Str("eliminated", winner).Msg("vote resolved")
		svc.eliminate(s, winner, tally)
	case len(leaders) > 1 && s.Revote.Round == 0:
		l.Strs("tied", leaders).Msg("vote tied, revote scheduled")
		svc.hub.ToSession(s.ID, game.Event{Type: game.EventVoteResult, Payload: VoteResultPayload{
			Tally: tally, Tied: leaders, Revote: true,
		}})
		s.Revote = game.RevoteState{Candidates: leaders, Round: 1}
		s.Ballots = make(map[string]string)
		svc.schedule(s, stepRevote, svc.rules.Current().Timing.RevoteDelay, func(s *game.Session) {
			if s.VoteClosed {
				svc.openVote(s)
			}
		})
	default:
		l.Strs("tied", leaders).Msg("vote resolved without elimination")
		svc.hub.ToSession(s.ID, game.Event{Type: game.EventVoteResult, Payload: VoteResultPayload{
			Tally: tally, Tied: leaders,
		}})
		s.Record("no_death", "", "", "vote", true, svc.now())
		if err := svc.moveTo(s, phase.Resolve); err != nil {
			return
		}
		s.Recap = nil
		s.Shots = nil
		svc.openResolveBarrier(s, nil)
	}
}

// eliminate runs the condemned player through the death engine, hunters
// and grief included, then opens the end-of-day barrier.
func (svc *Service) eliminate(s *game.Session, target string, tally game.Tally) {
	if err := svc.moveTo(s, phase.Resolve); err != nil {
		return
	}
	s.Recap = nil
	s.Shots = nil
	svc.announcePhase(s)
	res := svc.engine.NewResolution(s, death.Options{}, svc.asker(s), func(out death.Outcome) {
		s.Recap = out.Deaths
		s.Shots = out.Shots
		eliminated := target
		svc.hub.ToSession(s.ID, game.Event{Type: game.EventVoteResult, Payload: VoteResultPayload{
			Eliminated: &eliminated,
			Role:       s.Roles[target],
			Tally:      tally,
		}})
		lines := svc.recordDeaths(s, out.Deaths)
		svc.openResolveBarrier(s, lines)
	})
	res.Enqueue(target, game.CauseVote)
	res.Run()
}

func (svc *Service) openResolveBarrier(s *game.Session, lines []string) {
	s.OpenBarrier(phase.Resolve, s.ActiveIDs()...)
	svc.setDeadline(s, svc.rules.Current().Timing.VoteAck, svc.resolveAcked)
	svc.announcePhase(s)
	svc.broadcastRecap(s)
	svc.broadcastAcks(s, phase.Resolve)
	svc.narrate(s, lines)
	if s.SyncBarrier(phase.Resolve) {
		svc.resolveAcked(s)
	}
}

// VoteAck acknowledges the vote outcome.
func (svc *Service) VoteAck(ctx context.Context, sessionID, pid string) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		return svc.acknowledge(s, pid, "vote_ack", phase.Resolve, svc.resolveAcked)
	})
}

func (svc *Service) resolveAcked(s *game.Session) {
	if s.Phase != phase.Resolve || s.Barrier(phase.Resolve) == nil {
		return
	}
	delete(s.Acks, phase.Resolve)
	svc.clearDeadline(s)
	svc.advance(s)
}

// checkEnd finishes the game or loops back into the night.
func (svc *Service) checkEnd(s *game.Session) {
	svc.announcePhase(s)
	if w := game.EvaluateWinner(s); w != game.WinnerNone {
		svc.endGame(s, w)
		return
	}
	s.Round++
	s.ResetNight()
	s.Ballots = make(map[string]string)
	s.Revote = game.RevoteState{}
	s.VoteClosed = false
	s.PendingDeaths = nil
	s.Acks = make(map[phase.Phase]*barrier.Barrier)
	svc.enter(s, phase.Thief)
}
