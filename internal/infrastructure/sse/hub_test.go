package sse

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonrise/moonrise/internal/domain/game"
)

func drain(c *Client) []*Message {
	var out []*Message
	for {
		select {
		case m := <-c.MessageChan:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestHubScopes(t *testing.T) {
	h := NewHub(zerolog.Nop())
	wolf := NewClient("s1", "w")
	villager := NewClient("s1", "v")
	other := NewClient("s2", "w")
	for _, c := range []*Client{wolf, villager, other} {
		h.Register(c)
	}
	h.JoinGroup("s1", "w", game.GroupWolves)

	h.ToSession("s1", game.Event{Type: game.EventPhaseChanged, Payload: map[string]int{"round": 1}})
	h.ToGroup("s1", game.GroupWolves, game.Event{Type: game.EventWolfStatus})
	h.ToPlayer("s1", "v", game.Event{Type: game.EventRoleAssigned})

	wolfMsgs := drain(wolf)
	require.Len(t, wolfMsgs, 2)
	assert.Equal(t, game.EventPhaseChanged, wolfMsgs[0].Event)
	assert.JSONEq(t, `{"round":1}`, string(wolfMsgs[0].Data))
	assert.Equal(t, game.EventWolfStatus, wolfMsgs[1].Event)

	villagerMsgs := drain(villager)
	require.Len(t, villagerMsgs, 2)
	assert.Equal(t, game.EventRoleAssigned, villagerMsgs[1].Event)

	assert.Empty(t, drain(other))
}

func TestHubGroupsSurviveReconnect(t *testing.T) {
	h := NewHub(zerolog.Nop())
	h.JoinGroup("s1", "w", game.GroupWolves)

	c := NewClient("s1", "w")
	h.Register(c)
	h.ToGroup("s1", game.GroupWolves, game.Event{Type: game.EventWolfTally})
	assert.Len(t, drain(c), 1)

	h.LeaveGroup("s1", "w", game.GroupWolves)
	h.ToGroup("s1", game.GroupWolves, game.Event{Type: game.EventWolfTally})
	assert.Empty(t, drain(c))
}

func TestHubDeadlineAndFullChannel(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := &Client{ClientID: "c1", SessionID: "s1", PlayerID: "p", MessageChan: make(chan *Message, 1)}
	h.Register(c)

	deadline := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h.ToPlayer("s1", "p", game.Event{Type: game.EventWake, Deadline: deadline})
	h.ToPlayer("s1", "p", game.Event{Type: game.EventWake})

	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Deadline)
	assert.True(t, deadline.Equal(*msgs[0].Deadline))

	assert.ErrorIs(t, h.SendToClient("missing", NewMessage("x", json.RawMessage(`{}`))), ErrClientNotFound)
	require.NoError(t, h.SendToClient("c1", NewMessage("x", json.RawMessage(`{}`))))
	assert.ErrorIs(t, h.SendToClient("c1", NewMessage("x", json.RawMessage(`{}`))), ErrChannelFull)
}

func TestHubUnregisterClosesChannel(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := NewClient("s1", "p")
	h.Register(c)
	assert.Equal(t, 1, h.GetClientCount())

	h.Unregister(c.ClientID)
	_, open := <-c.MessageChan
	assert.False(t, open)
	assert.Nil(t, h.GetClient(c.ClientID))
}

func TestHubUnregisterCountsRemainingConnections(t *testing.T) {
	h := NewHub(zerolog.Nop())
	first, second := NewClient("s1", "p"), NewClient("s1", "p")
	other := NewClient("s1", "q")
	h.Register(first)
	h.Register(second)
	h.Register(other)
	assert.Equal(t, 2, h.Connections("s1", "p"))

	assert.Equal(t, 1, h.Unregister(first.ClientID))
	assert.Equal(t, 0, h.Unregister(second.ClientID))
	assert.Equal(t, 0, h.Unregister(second.ClientID))
	assert.Equal(t, 1, h.Connections("s1", "q"))
}
