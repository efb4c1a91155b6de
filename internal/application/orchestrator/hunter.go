package orchestrator

import (
	"context"
	"sync"

	"github.com/moonrise/moonrise/internal/domain/death"
	"github.com/moonrise/moonrise/internal/domain/deck"
	"github.com/moonrise/moonrise/internal/domain/game"
)

type hunterKey struct {
	session string
	hunter  string
}

type hunterRequest struct {
	targets []string
	reply   func(target string, auto bool)
}

// hunterTable holds outstanding hunter shot requests. Each entry is resolved
// exactly once, by the hunter, by a timeout, or by a disconnect.
type hunterTable struct {
	mu      sync.Mutex
	pending map[hunterKey]*hunterRequest
}

func newHunterTable() *hunterTable {
	return &hunterTable{pending: make(map[hunterKey]*hunterRequest)}
}

func (t *hunterTable) put(sessionID, hunter string, req *hunterRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[hunterKey{sessionID, hunter}] = req
}

func (t *hunterTable) take(sessionID, hunter string) (*hunterRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := hunterKey{sessionID, hunter}
	req, ok := t.pending[k]
	if ok {
		delete(t.pending, k)
	}
	return req, ok
}

func (t *hunterTable) peek(sessionID, hunter string) (*hunterRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.pending[hunterKey{sessionID, hunter}]
	return req, ok
}

func (t *hunterTable) dropSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.pending {
		if k.session == sessionID {
			delete(t.pending, k)
		}
	}
}

// asker builds the death engine's hunter prompt for s. The caller holds s.Mu.
func (svc *Service) asker(s *game.Session) death.Asker {
	return death.AskerFunc(func(hunter string, targets []string, reply func(string, bool)) {
		svc.hub.ToSession(s.ID, game.Event{Type: game.EventHunterAsk, Payload: map[string]string{"hunter": hunter}})
		if !s.Participant(hunter).Connected {
			target := deck.Pick(targets)
			svc.log(s).Info().Str("player_id", hunter).Msg("hunter absent, shooting at random")
			svc.announceShot(s, hunter, target, true)
			reply(target, true)
			return
		}

		svc.hunters.put(s.ID, hunter, &hunterRequest{targets: targets, reply: reply})
		timeout := svc.rules.Current().Timing.HunterShot
		svc.hub.ToPlayer(s.ID, hunter, game.Event{
			Type:     game.EventHunterAsk,
			Payload:  HunterAskPayload{Targets: targets},
			Deadline: svc.now().Add(timeout),
		})
		svc.schedule(s, hunterStep(hunter), timeout, func(s *game.Session) {
			svc.resolveHunterAtRandom(s, hunter)
		})
	})
}

// resolveHunterAtRandom fires a pending hunter's shot at a random valid target.
func (svc *Service) resolveHunterAtRandom(s *game.Session, hunter string) {
	req, ok := svc.hunters.take(s.ID, hunter)
	if !ok {
		return
	}
	svc.timers.Cancel(s.ID, hunterStep(hunter))
	target := deck.Pick(req.targets)
	svc.log(s).Info().Str("player_id", hunter).Msg("hunter shot chosen at random")
	svc.announceShot(s, hunter, target, true)
	req.reply(target, true)
}

func (svc *Service) announceShot(s *game.Session, hunter, target string, auto bool) {
	s.Record("hunter_shot", hunter, target, "", true, svc.now())
	svc.hub.ToSession(s.ID, game.Event{Type: game.EventHunterShot, Payload: game.HunterShot{Hunter: hunter, Target: target, Auto: auto}})
}

// HunterShoot answers a pending hunter request.
func (svc *Service) HunterShoot(ctx context.Context, sessionID, pid, target string) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		if _, err := participant(s, pid); err != nil {
			return err
		}
		req, ok := svc.hunters.peek(s.ID, pid)
		if !ok {
			return game.Forbidden(pid, "hunter_shoot", "no shot pending")
		}
		if !containsID(req.targets, target) {
			return game.Invalid("%s is not a valid hunter target", target)
		}
		svc.hunters.take(s.ID, pid)
		svc.timers.Cancel(s.ID, hunterStep(pid))
		svc.announceShot(s, pid, target, false)
		req.reply(target, false)
		return nil
	})
}
