package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/moonrise/moonrise/internal/application/orchestrator"
	"github.com/moonrise/moonrise/internal/domain/archive"
	"github.com/moonrise/moonrise/internal/domain/game"
	"github.com/moonrise/moonrise/internal/infrastructure/sse"
	"github.com/moonrise/moonrise/internal/infrastructure/ws"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	game    *orchestrator.Service
	archive archive.Repository
	hub     *sse.Hub
	ws      *ws.Handler
	logger  zerolog.Logger
}

// NewServer wires the handlers. archiveRepo may be nil.
func NewServer(
	gameSvc *orchestrator.Service,
	archiveRepo archive.Repository,
	hub *sse.Hub,
	wsHandler *ws.Handler,
	logger zerolog.Logger,
) *Server {
	return &Server{
		game:    gameSvc,
		archive: archiveRepo,
		hub:     hub,
		ws:      wsHandler,
		logger:  logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Post("/sessions", s.createSession)
			r.Get("/sessions/{sessionId}", s.getSession)
			r.Post("/sessions/{sessionId}/start", s.startSession)
			r.Post("/sessions/{sessionId}/players/{playerId}/actions", s.submitAction)

			r.Get("/archive", s.listArchive)
			r.Get("/archive/{sessionId}", s.getArchive)
		})

		// Streams outlive the request timeout.
		r.Get("/sessions/{sessionId}/players/{playerId}/events", s.sseEndpoint)
		r.Get("/sessions/{sessionId}/players/{playerId}/ws", s.wsEndpoint)
	})

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondGameError maps a domain error to its HTTP status.
func respondGameError(w http.ResponseWriter, err error) {
	code := game.Code(err)
	status := http.StatusInternalServerError
	switch code {
	case game.CodeInvalidState:
		status = http.StatusConflict
	case game.CodeForbidden:
		status = http.StatusForbidden
	case game.CodeInvalidAction:
		status = http.StatusUnprocessableEntity
	case game.CodeNotFound:
		status = http.StatusNotFound
	}
	respondError(w, status, code, err.Error())
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.game.SessionCount(),
		"clients":  s.hub.GetClientCount(),
	})
}

// Session handlers

type createSessionRequest struct {
	Players []string `json:"players"`
	Start   bool     `json:"start"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	ctx := r.Context()
	view, err := s.game.CreateSession(ctx, req.Players)
	if err != nil {
		respondGameError(w, err)
		return
	}
	if req.Start {
		if err := s.game.Start(ctx, view.ID); err != nil {
			respondGameError(w, err)
			return
		}
		if view, err = s.game.Snapshot(ctx, view.ID); err != nil {
			respondGameError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.game.Snapshot(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		respondGameError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	if err := s.game.Start(r.Context(), id); err != nil {
		respondGameError(w, err)
		return
	}
	view, err := s.game.Snapshot(r.Context(), id)
	if err != nil {
		respondGameError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) submitAction(w http.ResponseWriter, r *http.Request) {
	var cmd orchestrator.Command
	if err := decodeBody(r, &cmd); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	sessionID, playerID := chi.URLParam(r, "sessionId"), chi.URLParam(r, "playerId")
	if err := s.game.Dispatch(r.Context(), sessionID, playerID, cmd); err != nil {
		s.logger.Debug().Err(err).
			Str("session_id", sessionID).
			Str("player_id", playerID).
			Str("command", cmd.Type).
			Msg("action rejected")
		respondGameError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{"status": "accepted", "command": cmd.Type})
}

// Archive handlers

func (s *Server) listArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		respondError(w, http.StatusServiceUnavailable, "ARCHIVE_DISABLED", "archive is not configured")
		return
	}
	records, err := s.archive.ListRecent(r.Context(), parseLimit(r, 20, 100))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"games": records})
}

func (s *Server) getArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		respondError(w, http.StatusServiceUnavailable, "ARCHIVE_DISABLED", "archive is not configured")
		return
	}
	rec, err := s.archive.Get(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, game.CodeNotFound, "game not archived")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Stream handlers

func (s *Server) wsEndpoint(w http.ResponseWriter, r *http.Request) {
	s.ws.Serve(w, r, chi.URLParam(r, "sessionId"), chi.URLParam(r, "playerId"))
}

// sseEndpoint streams a player's events. Opening the stream marks the player
// connected; closing it marks them disconnected.
func (s *Server) sseEndpoint(w http.ResponseWriter, r *http.Request) {
	sessionID, playerID := chi.URLParam(r, "sessionId"), chi.URLParam(r, "playerId")
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	client := sse.NewClient(sessionID, playerID)
	s.hub.Register(client)

	if err := s.game.Reconnect(r.Context(), sessionID, playerID); err != nil {
		s.hub.Unregister(client.ClientID)
		respondGameError(w, err)
		return
	}
	// The player goes offline only when their last connection closes.
	defer func() {
		if s.hub.Unregister(client.ClientID) > 0 {
			return
		}
		if err := s.game.Disconnect(context.Background(), sessionID, playerID); err != nil {
			s.logger.Debug().Err(err).Str("session_id", sessionID).Msg("disconnect after stream closed")
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	// Send an initial comment to flush headers and keep the connection alive.
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case msg := <-client.MessageChan:
			if msg == nil {
				return
			}
			payload, _ := json.Marshal(msg)
			_, _ = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", msg.ID, msg.Event, payload)
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
