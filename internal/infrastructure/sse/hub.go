package sse

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/moonrise/moonrise/internal/domain/game"
)

// Hub fans game events out to connected clients. Group membership is kept
// per (session, player) so it survives reconnects.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	groups  map[string]map[string]map[string]bool
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]map[string]bool),
		logger:  logger.With().Str("service", "hub").Logger(),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

// Unregister closes and removes a client. It returns how many connections
// the client's player still has open in the same session.
func (h *Hub) Unregister(clientID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return 0
	}
	c.Close()
	delete(h.clients, clientID)
	return h.connections(c.SessionID, c.PlayerID)
}

// Connections counts the open connections of pid in sessionID.
func (h *Hub) Connections(sessionID, pid string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connections(sessionID, pid)
}

func (h *Hub) connections(sessionID, pid string) int {
	n := 0
	for _, c := range h.clients {
		if c.SessionID == sessionID && c.PlayerID == pid {
			n++
		}
	}
	return n
}

func (h *Hub) GetClient(clientID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[clientID]
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// JoinGroup adds pid to group within sessionID.
func (h *Hub) JoinGroup(sessionID, pid, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	players := h.groups[sessionID]
	if players == nil {
		players = make(map[string]map[string]bool)
		h.groups[sessionID] = players
	}
	if players[pid] == nil {
		players[pid] = make(map[string]bool)
	}
	players[pid][group] = true
}

// LeaveGroup removes pid from group within sessionID.
func (h *Hub) LeaveGroup(sessionID, pid, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.groups[sessionID][pid], group)
}

// DropSession forgets group memberships of a purged session.
func (h *Hub) DropSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.groups, sessionID)
}

// ToSession sends ev to every client of sessionID.
func (h *Hub) ToSession(sessionID string, ev game.Event) {
	h.broadcast(ev, func(c *Client) bool {
		return c.SessionID == sessionID
	})
}

// ToGroup sends ev to clients of sessionID whose player belongs to group.
func (h *Hub) ToGroup(sessionID, group string, ev game.Event) {
	h.broadcast(ev, func(c *Client) bool {
		return c.SessionID == sessionID && h.groups[sessionID][c.PlayerID][group]
	})
}

// ToPlayer sends ev to every connection of pid in sessionID.
func (h *Hub) ToPlayer(sessionID, pid string, ev game.Event) {
	h.broadcast(ev, func(c *Client) bool {
		return c.SessionID == sessionID && c.PlayerID == pid
	})
}

func (h *Hub) SendToClient(clientID string, message *Message) error {
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c == nil {
		return ErrClientNotFound
	}
	if !trySend(c, message) {
		return ErrChannelFull
	}
	return nil
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

func (h *Hub) broadcast(ev game.Event, match func(*Client) bool) {
	msg, err := encode(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("event", ev.Type).Msg("failed to encode event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !match(c) {
			continue
		}
		if !trySend(c, msg) {
			h.logger.Warn().
				Str("client_id", c.ClientID).
				Str("player_id", c.PlayerID).
				Str("event", ev.Type).
				Msg("client channel full, event dropped")
		}
	}
}

func encode(ev game.Event) (*Message, error) {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, err
	}
	msg := NewMessage(ev.Type, data)
	if !ev.Deadline.IsZero() {
		d := ev.Deadline.UTC()
		msg.Deadline = &d
	}
	return msg, nil
}

func trySend(c *Client, msg *Message) bool {
	select {
	case c.MessageChan <- msg:
		return true
	default:
		return false
	}
}
