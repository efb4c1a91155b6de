package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/moonrise/moonrise/internal/config"
	"github.com/moonrise/moonrise/internal/domain/archive"
	"github.com/moonrise/moonrise/internal/domain/death"
	"github.com/moonrise/moonrise/internal/domain/deck"
	"github.com/moonrise/moonrise/internal/domain/game"
	"github.com/moonrise/moonrise/internal/domain/phase"
)

// Timer steps.
const (
	stepDeadline = "deadline"
	stepPacing   = "pacing"
	stepRevote   = "revote"
)

func hunterStep(id string) string { return "hunter:" + id }

// Scheduler runs deferred callbacks keyed by (session, step).
type Scheduler interface {
	Schedule(sessionID, step string, d time.Duration, fn func())
	Cancel(sessionID, step string)
	CancelSession(sessionID string)
}

// RulesProvider yields the current rules snapshot.
type RulesProvider interface {
	Current() *config.Rules
}

// Narrator turns public game events into a short story.
type Narrator interface {
	Tell(ctx context.Context, history []string) (string, error)
}

// Service drives sessions through the game loop.
type Service struct {
	store    game.Store
	fsm      *phase.Machine
	engine   *death.Engine
	timers   Scheduler
	hub      game.Broadcaster
	rules    RulesProvider
	narrator Narrator
	archive  archive.Repository
	logger   zerolog.Logger

	hunters *hunterTable
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewService creates the orchestrator. narrator and archiveRepo may be nil.
func NewService(
	store game.Store,
	fsm *phase.Machine,
	engine *death.Engine,
	timers Scheduler,
	hub game.Broadcaster,
	rules RulesProvider,
	narrator Narrator,
	archiveRepo archive.Repository,
	logger zerolog.Logger,
) *Service {
	return &Service{
		store:    store,
		fsm:      fsm,
		engine:   engine,
		timers:   timers,
		hub:      hub,
		rules:    rules,
		narrator: narrator,
		archive:  archiveRepo,
		logger:   logger.With().Str("service", "orchestrator").Logger(),
		hunters:  newHunterTable(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Wait blocks until background archive and narration work finishes.
func (svc *Service) Wait() {
	svc.wg.Wait()
}

func (svc *Service) withSession(sessionID string, fn func(s *game.Session) error) error {
	s, ok := svc.store.Get(sessionID)
	if !ok {
		return game.NotFound("session", sessionID)
	}
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return fn(s)
}

func (svc *Service) log(s *game.Session) *zerolog.Logger {
	l := svc.logger.With().
		Str("session_id", s.ID).
		Str("phase", s.Phase.String()).
		Int("round", s.Round).
		Logger()
	return &l
}

// participant resolves pid or fails with a ResourceError.
func participant(s *game.Session, pid string) (*game.Participant, error) {
	p := s.Participant(pid)
	if p == nil {
		return nil, game.NotFound("participant", pid)
	}
	return p, nil
}

// schedule runs fn under the session lock after d, provided the session is
// still in the phase, round and epoch it was in when scheduled.
func (svc *Service) schedule(s *game.Session, step string, d time.Duration, fn func(s *game.Session)) {
	id, ph, round, epoch := s.ID, s.Phase, s.Round, s.Epoch
	svc.timers.Schedule(id, step, d, func() {
		cur, ok := svc.store.Get(id)
		if !ok {
			return
		}
		cur.Mu.Lock()
		defer cur.Mu.Unlock()
		if cur.Phase != ph || cur.Round != round || cur.Epoch != epoch {
			svc.log(cur).Debug().Str("step", step).Msg("stale timer ignored")
			return
		}
		fn(cur)
	})
}

// setDeadline arms the phase deadline. fn does not run once the phase has
// completed and is pausing.
func (svc *Service) setDeadline(s *game.Session, d time.Duration, fn func(s *game.Session)) {
	s.Deadline = svc.now().Add(d)
	svc.schedule(s, stepDeadline, d, func(s *game.Session) {
		if s.EyesClosing {
			return
		}
		svc.log(s).Info().Msg("phase deadline reached")
		fn(s)
	})
}

func (svc *Service) clearDeadline(s *game.Session) {
	s.Deadline = time.Time{}
	svc.timers.Cancel(s.ID, stepDeadline)
}

// moveTo applies a transition and announces the new phase.
func (svc *Service) moveTo(s *game.Session, to phase.Phase) error {
	from := s.Phase
	if err := svc.fsm.Apply(s, to, svc.now()); err != nil {
		svc.log(s).Error().Err(err).Msg("illegal transition")
		return err
	}
	s.EyesClosing = false
	s.Deadline = time.Time{}
	svc.log(s).Info().Str("from", from.String()).Msg("phase changed")
	return nil
}

func (svc *Service) announcePhase(s *game.Session) {
	svc.hub.ToSession(s.ID, game.Event{
		Type:     game.EventPhaseChanged,
		Payload:  PhasePayload{Phase: s.Phase, Round: s.Round},
		Deadline: s.Deadline,
	})
}

// advance moves to the linear successor of the current phase and starts it.
func (svc *Service) advance(s *game.Session) {
	next, ok := svc.fsm.Next(s.Phase)
	if !ok {
		return
	}
	svc.enter(s, next)
}

// enter transitions to p and runs its opening logic.
func (svc *Service) enter(s *game.Session, p phase.Phase) {
	if err := svc.moveTo(s, p); err != nil {
		return
	}
	switch p {
	case phase.Thief:
		svc.startThief(s)
	case phase.Cupid:
		svc.startCupid(s)
	case phase.Lovers:
		svc.startLovers(s)
	case phase.Seer:
		svc.startSeer(s)
	case phase.Wolves:
		svc.startWolves(s)
	case phase.Witch:
		svc.startWitch(s)
	case phase.Morning:
		svc.startMorning(s)
	case phase.Vote:
		svc.startVote(s)
	case phase.CheckEnd:
		svc.checkEnd(s)
	default:
		svc.announcePhase(s)
	}
}

// CreateSession registers a full lobby handed over by the lobby service.
func (svc *Service) CreateSession(ctx context.Context, ids []string) (*View, error) {
	_ = ctx
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, game.Invalid("empty participant id")
		}
		if seen[id] {
			return nil, game.Invalid("duplicate participant id %s", id)
		}
		seen[id] = true
	}
	if _, err := svc.rules.Current().Deck.Quantities(len(ids)); err != nil {
		return nil, game.Invalid("%v", err)
	}

	s := game.NewSession(uuid.NewString(), ids, svc.now())
	if err := svc.store.Put(s); err != nil {
		return nil, err
	}
	svc.log(s).Info().Int("players", len(ids)).Msg("session created")

	s.Mu.Lock()
	defer s.Mu.Unlock()
	v := view(s)
	return &v, nil
}

// Start deals roles and opens the first night.
func (svc *Service) Start(ctx context.Context, sessionID string) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		if err := game.RequirePhase(s, "start", phase.Lobby); err != nil {
			return err
		}
		return svc.deal(s)
	})
}

// Ready marks pid ready; the game starts once everyone is.
func (svc *Service) Ready(ctx context.Context, sessionID, pid string) error {
	_ = ctx
	return svc.withSession(sessionID, func(s *game.Session) error {
		p, err := participant(s, pid)
		if err != nil {
			return err
		}
		if err := game.RequirePhase(s, "ready", phase.Lobby); err != nil {
			return err
		}
		p.Ready = true
		svc.hub.ToSession(s.ID, game.Event{Type: game.EventPlayerPresent, Payload: presence(s)})
		for _, q := range s.Participants {
			if !q.Ready {
				return nil
			}
		}
		return svc.deal(s)
	})
}

func (svc *Service) deal(s *game.Session) error {
	ids := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		ids = append(ids, p.ID)
	}
	hand, err := deck.Deal(ids, svc.rules.Current().Deck)
	if err != nil {
		return game.Invalid("%v", err)
	}
	if err := svc.moveTo(s, phase.RoleAssignment); err != nil {
		return err
	}
	svc.announcePhase(s)

	s.Round = 1
	s.Center = hand.Center
	for _, id := range ids {
		role := hand.Assignments[id]
		s.AssignRole(id, role)
		svc.hub.JoinGroup(s.ID, id, role.Group())
		if role == game.RoleThief {
			s.ThiefID = id
		}
	}
	wolves := s.Holders(game.RoleWolf)
	for _, id := range ids {
		payload := RolePayload{Role: s.Roles[id]}
		if s.Roles[id] == game.RoleWolf {
			payload.Pack = wolves
		}
		svc.hub.ToPlayer(s.ID, id, game.Event{Type: game.EventRoleAssigned, Payload: payload})
	}
	svc.log(s).Info().Int("center", len(s.Center)).Msg("roles dealt")

	svc.advance(s)
	return nil
}

// Snapshot returns the public view of a session.
func (svc *Service) Snapshot(ctx context.Context, sessionID string) (*View, error) {
	_ = ctx
	var v View
	err := svc.withSession(sessionID, func(s *game.Session) error {
		v = view(s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// SessionCount reports the number of live sessions.
func (svc *Service) SessionCount() int {
	return svc.store.Len()
}

// endGame walks the machine to Ended, stops timers, reveals roles, and
// archives the result.
func (svc *Service) endGame(s *game.Session, winner game.Winner) {
	for s.Phase != phase.Ended {
		next, ok := svc.fsm.Next(s.Phase)
		if !ok {
			break
		}
		if err := svc.moveTo(s, next); err != nil {
			return
		}
	}
	s.Winner = winner
	s.EndedAt = svc.now()
	s.EyesClosing = false
	svc.timers.CancelSession(s.ID)
	svc.hunters.dropSession(s.ID)
	s.Record("game_ended", "", "", string(winner), true, s.EndedAt)

	payload := GameEndedPayload{Winner: winner, Roles: make(map[string]game.Role, len(s.Roles))}
	for id, r := range s.Roles {
		payload.Roles[id] = r
	}
	if a, b, ok := s.Lovers(); ok {
		payload.Lovers = []string{a, b}
	}
	svc.hub.ToSession(s.ID, game.Event{Type: game.EventGameEnded, Payload: payload})
	svc.log(s).Info().Str("winner", string(winner)).Msg("game ended")

	svc.persist(archive.FromSession(s))
}

func (svc *Service) persist(rec *archive.Record) {
	if svc.archive == nil {
		return
	}
	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := svc.archive.Save(ctx, rec); err != nil {
			svc.logger.Warn().Err(err).Str("session_id", rec.SessionID).Msg("failed to archive game")
		}
	}()
}

// narrate asks the narrator for a story about lines and broadcasts it.
func (svc *Service) narrate(s *game.Session, lines []string) {
	if svc.narrator == nil || len(lines) == 0 {
		return
	}
	history := publicHistory(s)
	history = append(history, lines...)
	sessionID := s.ID
	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		text, err := svc.narrator.Tell(ctx, history)
		if err != nil {
			svc.logger.Warn().Err(err).Str("session_id", sessionID).Msg("narration failed")
			return
		}
		if text == "" {
			return
		}
		svc.hub.ToSession(sessionID, game.Event{Type: game.EventNarration, Payload: NarrationPayload{Text: text}})
	}()
}
