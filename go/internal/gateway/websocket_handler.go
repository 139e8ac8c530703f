package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerleague/go/internal/auth"
)

// WebSocketHandler handles websocket upgrade requests for session viewers
type WebSocketHandler struct {
	hub *Hub
}

// NewWebSocketHandler creates a new websocket handler
func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleSessionConnection upgrades the request and joins the session_id room if one is given
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	var sessionID *uuid.UUID
	if raw := r.URL.Query().Get("session_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid session_id format", http.StatusBadRequest)
			return
		}
		sessionID = &id
	}

	userID := auth.FromContext(r.Context()).ID
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		userID = "anonymous"
	}

	if err := h.hub.Serve(w, r, userID, sessionID); err != nil {
		// the upgrader has already replied to the client
		log.Error().Err(err).Str("user_id", userID).Msg("failed to upgrade websocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.hub.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers websocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/sessions", h.HandleSessionConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

// Serve upgrades the connection and runs the client's pumps
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string, sessionID *uuid.UUID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := newClient(h, conn, userID)
	h.register(c)

	if sessionID != nil && h.Join(c, *sessionID) {
		h.requestState(c, *sessionID)
	}

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("client_id", c.ID).
		Str("user_id", userID).
		Msg("websocket connection established")
	return nil
}
