package sse

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrChannelFull    = errors.New("client message channel full")
)

// Client is one live connection of a participant, over SSE or websocket.
type Client struct {
	ClientID    string
	SessionID   string
	PlayerID    string
	ConnectedAt time.Time
	MessageChan chan *Message
}

// NewClient creates a client with a buffered outbox.
func NewClient(sessionID, playerID string) *Client {
	return &Client{
		ClientID:    uuid.NewString(),
		SessionID:   sessionID,
		PlayerID:    playerID,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *Message, 100),
	}
}

// Close closes the client's message channel.
func (c *Client) Close() {
	close(c.MessageChan)
}

// Message is one event as written to the wire.
type Message struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Deadline  *time.Time      `json:"deadline,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(event string, data json.RawMessage) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
