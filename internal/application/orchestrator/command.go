package orchestrator

import (
	"context"

	"github.com/moonrise/moonrise/internal/domain/game"
)

// Command types accepted from players.
const (
	CmdReady       = "ready"
	CmdThiefSwap   = "thief_swap"
	CmdThiefKeep   = "thief_keep"
	CmdCupidPair   = "cupid_pair"
	CmdLoversAck   = "lovers_ack"
	CmdSeerProbe   = "seer_probe"
	CmdSeerAck     = "seer_ack"
	CmdWolfTarget  = "wolf_target"
	CmdWitchAct    = "witch_act"
	CmdHunterShoot = "hunter_shoot"
	CmdDayAck      = "day_ack"
	CmdVote        = "vote"
	CmdCancelVote  = "cancel_vote"
	CmdVoteAck     = "vote_ack"
)

// Command is a typed player action, shared by every transport.
type Command struct {
	Type    string   `json:"type"`
	Target  string   `json:"target,omitempty"`
	Targets []string `json:"targets,omitempty"`
	Card    int      `json:"card,omitempty"`
	Heal    bool     `json:"heal,omitempty"`
	Poison  string   `json:"poison,omitempty"`
}

// Dispatch routes cmd from pid to the matching operation.
func (svc *Service) Dispatch(ctx context.Context, sessionID, pid string, cmd Command) error {
	switch cmd.Type {
	case CmdReady:
		return svc.Ready(ctx, sessionID, pid)
	case CmdThiefSwap:
		return svc.ThiefSwap(ctx, sessionID, pid, false, cmd.Card)
	case CmdThiefKeep:
		return svc.ThiefSwap(ctx, sessionID, pid, true, 0)
	case CmdCupidPair:
		if len(cmd.Targets) != 2 {
			return game.Invalid("cupid must name exactly two players")
		}
		return svc.CupidPair(ctx, sessionID, pid, cmd.Targets[0], cmd.Targets[1])
	case CmdLoversAck:
		return svc.LoversAck(ctx, sessionID, pid)
	case CmdSeerProbe:
		return svc.SeerProbe(ctx, sessionID, pid, cmd.Target)
	case CmdSeerAck:
		return svc.SeerAck(ctx, sessionID, pid)
	case CmdWolfTarget:
		return svc.WolfTarget(ctx, sessionID, pid, cmd.Target)
	case CmdWitchAct:
		return svc.WitchAct(ctx, sessionID, pid, WitchDecision{Heal: cmd.Heal, Poison: cmd.Poison})
	case CmdHunterShoot:
		return svc.HunterShoot(ctx, sessionID, pid, cmd.Target)
	case CmdDayAck:
		return svc.DayAck(ctx, sessionID, pid)
	case CmdVote:
		return svc.CastVote(ctx, sessionID, pid, cmd.Target)
	case CmdCancelVote:
		return svc.CancelVote(ctx, sessionID, pid)
	case CmdVoteAck:
		return svc.VoteAck(ctx, sessionID, pid)
	default:
		return game.Invalid("unknown command %q", cmd.Type)
	}
}
