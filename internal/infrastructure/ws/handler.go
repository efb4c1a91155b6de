package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/moonrise/moonrise/internal/application/orchestrator"
	"github.com/moonrise/moonrise/internal/domain/game"
	"github.com/moonrise/moonrise/internal/infrastructure/sse"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// EventActionError is sent privately when a command is rejected.
const EventActionError = "action_error"

// Game is the part of the orchestrator a connection talks to.
type Game interface {
	Dispatch(ctx context.Context, sessionID, pid string, cmd orchestrator.Command) error
	Reconnect(ctx context.Context, sessionID, pid string) error
	Disconnect(ctx context.Context, sessionID, pid string) error
}

// ActionError is the payload of action_error.
type ActionError struct {
	Command string `json:"command"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Handler runs player websocket connections.
type Handler struct {
	game     Game
	hub      *sse.Hub
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates a handler. An empty allowedOrigins accepts any origin.
func NewHandler(g Game, hub *sse.Hub, allowedOrigins []string, logger zerolog.Logger) *Handler {
	h := &Handler{
		game:   g,
		hub:    hub,
		logger: logger.With().Str("service", "ws").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowedOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Serve upgrades the request and blocks until the connection closes.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, sessionID, playerID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Str("player_id", playerID).Msg("websocket upgrade failed")
		return
	}
	log := h.logger.With().Str("session_id", sessionID).Str("player_id", playerID).Logger()

	client := sse.NewClient(sessionID, playerID)
	h.hub.Register(client)

	ctx := context.Background()
	if err := h.game.Reconnect(ctx, sessionID, playerID); err != nil {
		h.hub.Unregister(client.ClientID)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, game.Code(err))
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		log.Debug().Err(err).Msg("websocket rejected")
		return
	}
	log.Info().Msg("websocket connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(conn, client, log)
	}()

	h.readPump(ctx, conn, client, log)

	remaining := h.hub.Unregister(client.ClientID)
	<-done
	if remaining == 0 {
		if err := h.game.Disconnect(ctx, sessionID, playerID); err != nil {
			log.Debug().Err(err).Msg("disconnect after close")
		}
	}
	log.Info().Int("remaining", remaining).Msg("websocket closed")
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, client *sse.Client, log zerolog.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var cmd orchestrator.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.reject(client, "", game.CodeInvalidAction, "malformed command")
			continue
		}
		if err := h.game.Dispatch(ctx, client.SessionID, client.PlayerID, cmd); err != nil {
			log.Debug().Err(err).Str("command", cmd.Type).Msg("command rejected")
			h.reject(client, cmd.Type, game.Code(err), err.Error())
		}
	}
}

func (h *Handler) reject(client *sse.Client, command, code, message string) {
	data, err := json.Marshal(ActionError{Command: command, Error: code, Message: message})
	if err != nil {
		return
	}
	if err := h.hub.SendToClient(client.ClientID, sse.NewMessage(EventActionError, data)); err != nil {
		h.logger.Warn().Err(err).Str("client_id", client.ClientID).Msg("failed to send action error")
	}
}

func (h *Handler) writePump(conn *websocket.Conn, client *sse.Client, log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.MessageChan:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
