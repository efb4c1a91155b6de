package orchestrator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonrise/moonrise/internal/domain/game"
	"github.com/moonrise/moonrise/internal/domain/phase"
)

func requireValidation(t *testing.T, err error) {
	t.Helper()
	var target *game.ValidationError
	require.Truef(t, errors.As(err, &target), "want ValidationError, got %v", err)
}

func requireForbidden(t *testing.T, err error) {
	t.Helper()
	var target *game.AuthorizationError
	require.Truef(t, errors.As(err, &target), "want AuthorizationError, got %v", err)
}

func requireState(t *testing.T, err error) {
	t.Helper()
	var target *game.StateError
	require.Truef(t, errors.As(err, &target), "want StateError, got %v", err)
}

func requireNotFound(t *testing.T, err error) {
	t.Helper()
	var target *game.ResourceError
	require.Truef(t, errors.As(err, &target), "want ResourceError, got %v", err)
}

func TestNightSkipsAbsentRoles(t *testing.T) {
	h := newGame(t, []seat{
		{"w", game.RoleWolf}, {"se", game.RoleSeer}, {"a", game.RoleVillager}, {"b", game.RoleVillager},
	})
	h.jump(phase.Thief)
	assert.True(t, h.eyesClosing())

	h.paceUntil(phase.Seer)
	wake := h.hub.last(t, "player", "se", game.EventWake).Payload.(WakePayload)
	assert.Equal(t, []string{"w", "a", "b"}, wake.Options)
	assert.True(t, h.timers.has(h.sid, stepDeadline))
}

func TestSeerProbeRevealsRole(t *testing.T) {
	h := newGame(t, []seat{
		{"w", game.RoleWolf}, {"se", game.RoleSeer}, {"a", game.RoleVillager}, {"b", game.RoleVillager},
	})
	h.jump(phase.Seer)

	requireForbidden(t, h.svc.SeerProbe(h.ctx(), h.sid, "a", "w"))
	requireValidation(t, h.svc.SeerProbe(h.ctx(), h.sid, "se", "se"))
	requireNotFound(t, h.svc.SeerProbe(h.ctx(), h.sid, "se", "nobody"))

	require.NoError(t, h.svc.SeerProbe(h.ctx(), h.sid, "se", "w"))
	result := h.hub.last(t, "player", "se", game.EventSeerResult).Payload.(game.SeerProbe)
	assert.Equal(t, game.SeerProbe{Round: 1, Target: "w", Role: game.RoleWolf}, result)
	requireValidation(t, h.svc.SeerProbe(h.ctx(), h.sid, "se", "a"))

	require.NoError(t, h.svc.SeerAck(h.ctx(), h.sid, "se"))
	assert.True(t, h.eyesClosing())
	requireState(t, h.svc.SeerAck(h.ctx(), h.sid, "se"))
	assert.False(t, h.timers.has(h.sid, stepDeadline))

	h.paceUntil(phase.Wolves)
	h.with(func(s *game.Session) {
		assert.Len(t, s.SeerLog, 1)
	})
}

func TestSeerDeadlineMovesOn(t *testing.T) {
	h := newGame(t, []seat{
		{"w", game.RoleWolf}, {"se", game.RoleSeer}, {"a", game.RoleVillager}, {"b", game.RoleVillager},
	})
	h.jump(phase.Seer)
	h.fire(stepDeadline)
	assert.True(t, h.eyesClosing())
	h.paceUntil(phase.Wolves)
}

func TestWolvesLockOnUnanimity(t *testing.T) {
	h := newGame(t, []seat{
		{"w1", game.RoleWolf}, {"w2", game.RoleWolf}, {"v1", game.RoleVillager},
		{"v2", game.RoleVillager}, {"v3", game.RoleVillager},
	})
	h.jump(phase.Wolves)

	requireForbidden(t, h.svc.WolfTarget(h.ctx(), h.sid, "v1", "v2"))
	requireValidation(t, h.svc.WolfTarget(h.ctx(), h.sid, "w1", "w2"))

	require.NoError(t, h.svc.WolfTarget(h.ctx(), h.sid, "w1", "v1"))
	require.NoError(t, h.svc.WolfTarget(h.ctx(), h.sid, "w2", "v2"))
	assert.False(t, h.eyesClosing())
	tally := h.hub.last(t, "group", game.GroupWolves, game.EventWolfTally).Payload.(WolfStatusPayload)
	assert.Equal(t, game.Tally{"v1": 1, "v2": 1}, tally.Tally)

	// A wolf may change its mind until the pack agrees.
	require.NoError(t, h.svc.WolfTarget(h.ctx(), h.sid, "w2", "v1"))
	assert.True(t, h.eyesClosing())
	h.with(func(s *game.Session) {
		assert.Equal(t, "v1", s.Night.Attacked)
	})
	requireState(t, h.svc.WolfTarget(h.ctx(), h.sid, "w1", "v2"))
}

func TestWolvesIgnoreDisconnectedWolf(t *testing.T) {
	h := newGame(t, []seat{
		{"w1", game.RoleWolf}, {"w2", game.RoleWolf}, {"w3", game.RoleWolf},
		{"v1", game.RoleVillager}, {"v2", game.RoleVillager}, {"v3", game.RoleVillager}, {"v4", game.RoleVillager},
	})
	h.jump(phase.Wolves)

	require.NoError(t, h.svc.WolfTarget(h.ctx(), h.sid, "w3", "v2"))
	require.NoError(t, h.svc.WolfTarget(h.ctx(), h.sid, "w1", "v1"))
	require.NoError(t, h.svc.Disconnect(h.ctx(), h.sid, "w3"))
	assert.False(t, h.eyesClosing())

	require.NoError(t, h.svc.WolfTarget(h.ctx(), h.sid, "w2", "v1"))
	h.with(func(s *game.Session) {
		assert.Equal(t, "v1", s.Night.Attacked)
		assert.True(t, s.EyesClosing)
	})
}

func TestWolvesTimeoutTakesPlurality(t *testing.T) {
	h := newGame(t, []seat{
		{"w1", game.RoleWolf}, {"w2", game.RoleWolf}, {"w3", game.RoleWolf},
		{"v1", game.RoleVillager}, {"v2", game.RoleVillager}, {"v3", game.RoleVillager}, {"v4", game.RoleVillager},
	})
	h.jump(phase.Wolves)
	require.NoError(t, h.svc.WolfTarget(h.ctx(), h.sid, "w1", "v1"))
	require.NoError(t, h.svc.WolfTarget(h.ctx(), h.sid, "w2", "v1"))
	require.NoError(t, h.svc.WolfTarget(h.ctx(), h.sid, "w3", "v2"))

	h.fire(stepDeadline)
	h.with(func(s *game.Session) {
		assert.Equal(t, "v1", s.Night.Attacked)
	})
	locked := h.hub.last(t, "group", game.GroupWolves, game.EventWolfLocked).Payload.(WolfStatusPayload)
	assert.Equal(t, "v1", locked.Target)
}

func TestWolvesTimeoutWithoutVotesAttacksNobody(t *testing.T) {
	h := newGame(t, []seat{
		{"w", game.RoleWolf}, {"a", game.RoleVillager}, {"b", game.RoleVillager}, {"c", game.RoleVillager},
	})
	h.jump(phase.Wolves)
	h.fire(stepDeadline)
	h.with(func(s *game.Session) {
		assert.Empty(t, s.Night.Attacked)
	})
	h.paceUntil(phase.Morning)
	recap := h.hub.last(t, "session", "", game.EventDayRecap).Payload.(RecapPayload)
	assert.Empty(t, recap.Deaths)
}

func TestWolvesCannotTargetOwnLover(t *testing.T) {
	h := newGame(t, []seat{
		{"w", game.RoleWolf}, {"a", game.RoleVillager}, {"b", game.RoleVillager}, {"c", game.RoleVillager},
	})
	h.with(func(s *game.Session) { s.Bond("w", "a") })
	h.jump(phase.Wolves)

	wake := h.hub.last(t, "player", "w", game.EventWake).Payload.(WakePayload)
	assert.Equal(t, []string{"b", "c"}, wake.Options)
	requireValidation(t, h.svc.WolfTarget(h.ctx(), h.sid, "w", "a"))
}

func TestWitchRules(t *testing.T) {
	h := newGame(t, []seat{
		{"wi", game.RoleWitch}, {"w", game.RoleWolf}, {"a", game.RoleVillager}, {"b", game.RoleVillager},
	})
	h.with(func(s *game.Session) {
		s.Bond("wi", "a")
		s.Night.Attacked = "b"
	})
	h.jump(phase.Witch)

	wake := h.hub.last(t, "player", "wi", game.EventWake).Payload.(WakePayload)
	assert.Equal(t, "b", wake.Attacked)
	assert.True(t, wake.CanHeal)
	assert.Equal(t, []string{"w", "b"}, wake.Options)

	requireForbidden(t, h.svc.WitchAct(h.ctx(), h.sid, "w", WitchDecision{}))
	requireValidation(t, h.svc.WitchAct(h.ctx(), h.sid, "wi", WitchDecision{Poison: "wi"}))
	requireValidation(t, h.svc.WitchAct(h.ctx(), h.sid, "wi", WitchDecision{Poison: "a"}))
	requireNotFound(t, h.svc.WitchAct(h.ctx(), h.sid, "wi", WitchDecision{Poison: "zz"}))

	require.NoError(t, h.svc.WitchAct(h.ctx(), h.sid, "wi", WitchDecision{Heal: true, Poison: "w"}))
	h.with(func(s *game.Session) {
		assert.Equal(t, "b", s.Night.Saved)
		assert.Equal(t, "w", s.Night.Poisoned)
		assert.True(t, s.Inventory.HealUsed)
		assert.True(t, s.Inventory.PoisonUsed)
	})

	h.paceUntil(phase.Morning)
	recap := h.hub.last(t, "session", "", game.EventDayRecap).Payload.(RecapPayload)
	assert.Equal(t, []game.Death{{Victim: "w", Cause: game.CausePoison, Role: game.RoleWolf}}, recap.Deaths)
	assert.True(t, h.alive("b"))
}

func TestWitchHealWithoutAttackIsNoop(t *testing.T) {
	h := newGame(t, []seat{
		{"wi", game.RoleWitch}, {"w", game.RoleWolf}, {"a", game.RoleVillager}, {"b", game.RoleVillager},
	})
	h.jump(phase.Witch)

	require.NoError(t, h.svc.WitchAct(h.ctx(), h.sid, "wi", WitchDecision{Heal: true}))
	h.with(func(s *game.Session) {
		assert.False(t, s.Inventory.HealUsed)
		assert.Empty(t, s.Night.Saved)
	})
}

func TestThiefMustSwapWhenCenterIsAllWolves(t *testing.T) {
	h := newGame(t, []seat{
		{"t", game.RoleThief}, {"a", game.RoleVillager}, {"b", game.RoleVillager},
		{"c", game.RoleVillager}, {"se", game.RoleSeer},
	})
	h.with(func(s *game.Session) { s.Center = []game.Role{game.RoleWolf, game.RoleWolf} })
	h.jump(phase.Thief)

	wake := h.hub.last(t, "player", "t", game.EventWake).Payload.(WakePayload)
	assert.True(t, wake.MustSwap)

	requireValidation(t, h.svc.ThiefSwap(h.ctx(), h.sid, "t", true, 0))
	requireForbidden(t, h.svc.ThiefSwap(h.ctx(), h.sid, "a", false, 0))
	requireValidation(t, h.svc.ThiefSwap(h.ctx(), h.sid, "t", false, 5))

	require.NoError(t, h.svc.ThiefSwap(h.ctx(), h.sid, "t", false, 1))
	h.with(func(s *game.Session) {
		assert.Equal(t, game.RoleWolf, s.Roles["t"])
		assert.Equal(t, []game.Role{game.RoleWolf, game.RoleThief}, s.Center)
		assert.True(t, s.EyesClosing)
	})
	assert.True(t, h.hub.inGroup("t", game.GroupWolves))
	assert.False(t, h.hub.inGroup("t", game.RoleThief.Group()))
}

func TestThiefTimeoutForcesMandatorySwap(t *testing.T) {
	h := newGame(t, []seat{
		{"t", game.RoleThief}, {"a", game.RoleVillager}, {"b", game.RoleVillager},
		{"c", game.RoleVillager}, {"se", game.RoleSeer},
	})
	h.with(func(s *game.Session) { s.Center = []game.Role{game.RoleWolf, game.RoleWolf} })
	h.jump(phase.Thief)
	h.fire(stepDeadline)

	h.with(func(s *game.Session) {
		assert.Equal(t, game.RoleWolf, s.Roles["t"])
		assert.ElementsMatch(t, []game.Role{game.RoleWolf, game.RoleThief}, s.Center)
	})
}

func TestThiefMayKeepCard(t *testing.T) {
	h := newGame(t, []seat{
		{"t", game.RoleThief}, {"w", game.RoleWolf}, {"b", game.RoleVillager},
		{"c", game.RoleVillager}, {"se", game.RoleSeer},
	})
	h.with(func(s *game.Session) { s.Center = []game.Role{game.RoleVillager, game.RoleWolf} })
	h.jump(phase.Thief)

	require.NoError(t, h.svc.Dispatch(h.ctx(), h.sid, "t", Command{Type: CmdThiefKeep}))
	h.with(func(s *game.Session) {
		assert.Equal(t, game.RoleThief, s.Roles["t"])
		assert.True(t, s.Night.ThiefDone)
	})
}

func TestCupidBondsAndLoversWake(t *testing.T) {
	h := newGame(t, []seat{
		{"c", game.RoleCupid}, {"w", game.RoleWolf}, {"a", game.RoleVillager}, {"b", game.RoleVillager},
	})
	h.jump(phase.Cupid)

	requireValidation(t, h.svc.CupidPair(h.ctx(), h.sid, "c", "a", "a"))
	requireNotFound(t, h.svc.CupidPair(h.ctx(), h.sid, "c", "a", "zz"))
	requireValidation(t, h.svc.Dispatch(h.ctx(), h.sid, "c", Command{Type: CmdCupidPair, Targets: []string{"a"}}))

	require.NoError(t, h.svc.Dispatch(h.ctx(), h.sid, "c", Command{Type: CmdCupidPair, Targets: []string{"w", "a"}}))
	h.with(func(s *game.Session) {
		assert.Equal(t, "a", s.LoverOf("w"))
		assert.Equal(t, "w", s.LoverOf("a"))
		assert.Equal(t, game.LoversMixedCamp, s.LoverMode)
	})
	assert.Len(t, h.hub.events("player", "w", game.EventLoversBonded), 1)
	assert.Len(t, h.hub.events("player", "a", game.EventLoversBonded), 1)

	h.paceUntil(phase.Lovers)
	requireForbidden(t, h.svc.LoversAck(h.ctx(), h.sid, "b"))
	require.NoError(t, h.svc.LoversAck(h.ctx(), h.sid, "w"))
	assert.False(t, h.eyesClosing())
	require.NoError(t, h.svc.LoversAck(h.ctx(), h.sid, "a"))
	assert.True(t, h.eyesClosing())
}

func TestCupidTimeoutBondsRandomPair(t *testing.T) {
	h := newGame(t, []seat{
		{"c", game.RoleCupid}, {"w", game.RoleWolf}, {"a", game.RoleVillager}, {"b", game.RoleVillager},
	})
	h.jump(phase.Cupid)
	h.fire(stepDeadline)

	h.with(func(s *game.Session) {
		a, b, ok := s.Lovers()
		require.True(t, ok)
		assert.NotEqual(t, a, b)
		assert.True(t, s.Inventory.CupidUsed)
	})
}

func TestLoversSkippedWhenOneIsOffline(t *testing.T) {
	h := newGame(t, []seat{
		{"c", game.RoleCupid}, {"w", game.RoleWolf}, {"a", game.RoleVillager}, {"b", game.RoleVillager},
	})
	h.with(func(s *game.Session) {
		s.Bond("a", "b")
		s.Inventory.CupidUsed = true
		s.Participant("b").Connected = false
	})
	h.jump(phase.Lovers)
	assert.True(t, h.eyesClosing())
	h.with(func(s *game.Session) {
		assert.Nil(t, s.Barrier(phase.Lovers))
	})
}

func TestPacingPauseRejectsActions(t *testing.T) {
	h := newGame(t, []seat{
		{"w", game.RoleWolf}, {"se", game.RoleSeer}, {"a", game.RoleVillager}, {"b", game.RoleVillager},
	})
	h.jump(phase.Seer)
	require.NoError(t, h.svc.SeerAck(h.ctx(), h.sid, "se"))
	requireState(t, h.svc.SeerProbe(h.ctx(), h.sid, "se", "a"))
	requireState(t, h.svc.WolfTarget(h.ctx(), h.sid, "w", "a"))

	// A stale deadline from the finished phase never fires into the next one.
	assert.False(t, h.timers.has(h.sid, stepDeadline))
}
