package orchestrator

import (
	"context"

	"github.com/moonrise/moonrise/internal/domain/game"
	"github.com/moonrise/moonrise/internal/domain/phase"
)

// Disconnect marks pid offline and unblocks anything waiting on them.
func (svc *Service) Disconnect(ctx context.Context, sessionID, pid string) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		p, err := participant(s, pid)
		if err != nil {
			return err
		}
		if !p.Connected {
			return nil
		}
		p.Connected = false
		p.LastSeen = svc.now()
		svc.log(s).Info().Str("player_id", pid).Msg("player disconnected")
		svc.hub.ToSession(s.ID, game.Event{Type: game.EventPlayerPresent, Payload: presence(s)})
		if s.IsOver() || s.Phase == phase.Lobby {
			return nil
		}

		if _, ok := svc.hunters.peek(s.ID, pid); ok {
			svc.resolveHunterAtRandom(s, pid)
		}
		svc.recheck(s, pid)
		return nil
	})
}

// recheck re-evaluates the completion predicate of the current phase after
// the eligible set shrank. gone is the participant who left, if any.
func (svc *Service) recheck(s *game.Session, gone string) {
	if s.IsOver() || s.EyesClosing {
		return
	}
	switch s.Phase {
	case phase.Thief:
		if gone == s.ThiefID && !s.Night.ThiefDone {
			svc.thiefFallback(s)
			svc.completeNight(s)
		}
	case phase.Cupid:
		if s.Roles[gone] == game.RoleCupid && !s.Inventory.CupidUsed {
			svc.cupidFallback(s)
			svc.completeNight(s)
		}
	case phase.Lovers:
		if s.Barrier(phase.Lovers) != nil && s.SyncBarrier(phase.Lovers) {
			svc.completeNight(s)
		}
	case phase.Seer:
		if _, ok := s.ActiveHolder(game.RoleSeer); !ok {
			svc.completeNight(s)
		}
	case phase.Wolves:
		svc.checkWolves(s)
	case phase.Witch:
		if _, ok := s.ActiveHolder(game.RoleWitch); !ok {
			svc.completeNight(s)
		}
	case phase.Morning:
		if s.Barrier(phase.Morning) != nil && s.SyncBarrier(phase.Morning) {
			svc.morningAcked(s)
		}
	case phase.Vote:
		svc.checkVote(s)
	case phase.Resolve:
		if s.Barrier(phase.Resolve) != nil && s.SyncBarrier(phase.Resolve) {
			svc.resolveAcked(s)
		}
	}
}

// Reconnect marks pid online and sends a private state sync.
func (svc *Service) Reconnect(ctx context.Context, sessionID, pid string) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		p, err := participant(s, pid)
		if err != nil {
			return err
		}
		p.Connected = true
		p.LastSeen = svc.now()
		svc.hub.ToSession(s.ID, game.Event{Type: game.EventPlayerPresent, Payload: presence(s)})

		state := StateSyncPayload{View: view(s), Role: s.Roles[pid], Lover: s.LoverOf(pid)}
		if s.Roles[pid] == game.RoleSeer {
			state.SeerLog = append([]game.SeerProbe(nil), s.SeerLog...)
		}
		if s.Roles[pid] == game.RoleWolf {
			state.Pack = s.Holders(game.RoleWolf)
		}
		svc.hub.ToPlayer(s.ID, pid, game.Event{Type: game.EventStateSync, Payload: state, Deadline: s.Deadline})
		svc.rejoinBarrier(s, pid)
		if req, ok := svc.hunters.peek(s.ID, pid); ok {
			svc.hub.ToPlayer(s.ID, pid, game.Event{Type: game.EventHunterAsk, Payload: HunterAskPayload{Targets: req.targets}})
		}
		svc.log(s).Info().Str("player_id", pid).Msg("player reconnected")
		return nil
	})
}

// rejoinBarrier expects a living participant again on the open day barrier
// they were pruned from while offline.
func (svc *Service) rejoinBarrier(s *game.Session, pid string) {
	if !s.IsAlive(pid) || (s.Phase != phase.Morning && s.Phase != phase.Resolve) {
		return
	}
	b := s.Barrier(s.Phase)
	if b == nil || b.Expects(pid) {
		return
	}
	b.Add(pid)
	svc.broadcastAcks(s, s.Phase)
}
