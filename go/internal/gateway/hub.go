// Package gateway fans session events out to websocket viewers.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerleague/go/internal/events"
)

// ErrBufferFull is returned by Publish when the delivery queue is saturated
var ErrBufferFull = errors.New("broadcast buffer full")

// Hub tracks which clients watch which session rooms and delivers events to them
type Hub struct {
	rooms   map[uuid.UUID]map[*Client]bool
	clients map[*Client]bool
	mu      sync.RWMutex

	upgrader websocket.Upgrader
	config   Config
	clock    clockwork.Clock
	state    StateProvider
	metrics  *Metrics

	broadcastCh chan broadcastMessage

	// last server_time stamped per room, owned by the delivery loop
	lastStamp map[uuid.UUID]time.Time
}

// broadcastMessage is one unit of work for the delivery loop. A message with
// a client is a join snapshot addressed to that client alone.
type broadcastMessage struct {
	event     *events.Event
	sessionID uuid.UUID
	client    *Client
}

const stateReadTimeout = 5 * time.Second

// Config holds configuration for websocket connections
type Config struct {
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	PingInterval    time.Duration `yaml:"ping_interval" split_words:"true"`
	MaxMessageSize  int64         `yaml:"max_message_size" split_words:"true"`
	ReadBufferSize  int           `yaml:"read_buffer_size" split_words:"true"`
	WriteBufferSize int           `yaml:"write_buffer_size" split_words:"true"`
	SendBuffer      int           `yaml:"send_buffer" split_words:"true"`
	BroadcastBuffer int           `yaml:"broadcast_buffer" split_words:"true"`
	AllowedOrigins  []string      `yaml:"allowed_origins" split_words:"true"`
}

// DefaultConfig returns default websocket configuration
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		BroadcastBuffer: 1000,
	}
}

// StateProvider builds the snapshot sent to a viewer when it joins a room
type StateProvider interface {
	SessionState(ctx context.Context, sessionID uuid.UUID) (any, error)
}

// StateProviderFunc adapts a function to StateProvider
type StateProviderFunc func(ctx context.Context, sessionID uuid.UUID) (any, error)

func (f StateProviderFunc) SessionState(ctx context.Context, sessionID uuid.UUID) (any, error) {
	return f(ctx, sessionID)
}

// NewHub creates a hub. state and metrics may be nil.
func NewHub(config Config, clock clockwork.Clock, state StateProvider, metrics *Metrics) *Hub {
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultConfig().SendBuffer
	}
	if config.BroadcastBuffer <= 0 {
		config.BroadcastBuffer = DefaultConfig().BroadcastBuffer
	}
	return &Hub{
		rooms:   make(map[uuid.UUID]map[*Client]bool),
		clients: make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     originChecker(config.AllowedOrigins),
		},
		config:      config,
		clock:       clock,
		state:       state,
		metrics:     metrics,
		broadcastCh: make(chan broadcastMessage, config.BroadcastBuffer),
		lastStamp:   make(map[uuid.UUID]time.Time),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Start runs the delivery loop until ctx is cancelled, then disconnects every client
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("broadcast hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcast hub shutting down")
			h.closeAll()
			return
		case msg := <-h.broadcastCh:
			h.process(ctx, msg)
		}
	}
}

// Publish implements events.Publisher by queueing the event for delivery
func (h *Hub) Publish(_ context.Context, sessionID uuid.UUID, typ events.Type, payload any) error {
	ev, err := events.New(sessionID, typ, payload)
	if err != nil {
		return err
	}
	return h.Enqueue(ev)
}

// Enqueue queues an already built event, as received from another instance
func (h *Hub) Enqueue(ev *events.Event) error {
	select {
	case h.broadcastCh <- broadcastMessage{event: ev}:
		return nil
	default:
		h.metrics.dropped("queue")
		log.Warn().Str("session_id", ev.SessionID).Str("event_type", string(ev.Type)).Msg("broadcast channel full, dropping message")
		return ErrBufferFull
	}
}

// register adds a freshly connected client
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.metrics.connected()
}

// Join subscribes c to a session room. Joining twice is a no-op.
func (h *Hub) Join(c *Client, sessionID uuid.UUID) bool {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return false
	}
	room := h.rooms[sessionID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[sessionID] = room
		h.metrics.roomOpened()
	}
	joined := !room[c]
	room[c] = true
	c.rooms[sessionID] = true
	size := len(room)
	h.mu.Unlock()

	if joined {
		log.Debug().
			Str("client_id", c.ID).
			Str("session_id", sessionID.String()).
			Int("room_size", size).
			Msg("client joined room")
	}
	return joined
}

// Leave unsubscribes c from a session room. Leaving a room never joined is a no-op.
func (h *Hub) Leave(c *Client, sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, sessionID)
}

func (h *Hub) leaveLocked(c *Client, sessionID uuid.UUID) {
	delete(c.rooms, sessionID)
	room, ok := h.rooms[sessionID]
	if !ok || !room[c] {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, sessionID)
		h.metrics.roomClosed()
	}
}

// Disconnect removes c from every room and closes its send queue. Safe to call repeatedly.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	for sessionID := range c.rooms {
		h.leaveLocked(c, sessionID)
	}
	delete(h.clients, c)
	c.closed = true
	close(c.send)
	h.mu.Unlock()

	h.metrics.disconnected()
	log.Info().Str("client_id", c.ID).Str("user_id", c.UserID).Msg("client disconnected")
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.Disconnect(c)
	}
}

// stamp returns the delivery time for a room, never earlier than the previous one
func (h *Hub) stamp(sessionID uuid.UUID) time.Time {
	now := h.clock.Now().UTC()
	if last, ok := h.lastStamp[sessionID]; ok && now.Before(last) {
		now = last
	}
	h.lastStamp[sessionID] = now
	return now
}

func (h *Hub) process(ctx context.Context, msg broadcastMessage) {
	if msg.client != nil {
		h.deliverState(ctx, msg.client, msg.sessionID)
		return
	}
	h.deliver(msg.event)
}

// deliver stamps ev and fans it out to the room
func (h *Hub) deliver(ev *events.Event) {
	sessionID, err := uuid.Parse(ev.SessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", ev.SessionID).Msg("event with invalid session id")
		return
	}

	h.mu.RLock()
	if _, ok := h.rooms[sessionID]; !ok {
		h.mu.RUnlock()
		delete(h.lastStamp, sessionID)
		return
	}
	h.mu.RUnlock()

	at := h.stamp(sessionID)
	stamped := *ev
	stamped.ServerTime = at
	stamped.ServerTimeMs = at.UnixMilli()
	data, err := json.Marshal(&stamped)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// sends happen under the read lock so no queue is closed mid-send
	var slow []*Client
	h.mu.RLock()
	room := h.rooms[sessionID]
	for c := range room {
		select {
		case c.send <- data:
			h.metrics.delivered(string(ev.Type))
		default:
			slow = append(slow, c)
		}
	}
	targets := len(room)
	h.mu.RUnlock()

	for _, c := range slow {
		h.dropSlow(c)
	}

	log.Debug().
		Str("event_type", string(ev.Type)).
		Str("session_id", ev.SessionID).
		Int("clients", targets).
		Msg("event broadcasted")
}

// sendTo queues a message for one client without blocking
func (h *Hub) sendTo(c *Client, ev *events.Event) bool {
	ev.ServerTime = h.clock.Now().UTC()
	ev.ServerTimeMs = ev.ServerTime.UnixMilli()
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal direct message")
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		h.metrics.delivered(string(ev.Type))
		return true
	default:
		h.metrics.dropped("slow_client")
		return false
	}
}

// SyncTime answers a viewer's clock reading with the server's, to that viewer only
func (h *Hub) SyncTime(c *Client, clientTimeMs int64) bool {
	ev, err := events.New(uuid.Nil, events.TypeSyncTime, events.SyncTimePayload{
		ServerTime: h.clock.Now().UnixMilli(),
		ClientTime: clientTimeMs,
	})
	if err != nil {
		return false
	}
	ev.SessionID = ""
	return h.sendTo(c, ev)
}

// requestState queues a join snapshot for c behind the room events already queued
func (h *Hub) requestState(c *Client, sessionID uuid.UUID) {
	if h.state == nil {
		return
	}
	select {
	case h.broadcastCh <- broadcastMessage{sessionID: sessionID, client: c}:
	default:
		h.metrics.dropped("queue")
		log.Warn().Str("session_id", sessionID.String()).Str("client_id", c.ID).Msg("broadcast channel full, dropping join snapshot")
	}
}

// deliverState reads the snapshot on the delivery loop, so it is never older
// than a room event already delivered to c, and stamps it in room order
func (h *Hub) deliverState(ctx context.Context, c *Client, sessionID uuid.UUID) {
	h.mu.RLock()
	member := !c.closed && h.rooms[sessionID][c]
	h.mu.RUnlock()
	if !member {
		return
	}

	readCtx, cancel := context.WithTimeout(ctx, stateReadTimeout)
	defer cancel()
	state, err := h.state.SessionState(readCtx, sessionID)
	if err != nil {
		log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("no state to send on join")
		return
	}
	ev, err := events.New(sessionID, events.TypeSnapshot, state)
	if err != nil {
		log.Error().Err(err).Msg("failed to build join snapshot")
		return
	}
	at := h.stamp(sessionID)
	ev.ServerTime = at
	ev.ServerTimeMs = at.UnixMilli()
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal join snapshot")
		return
	}

	h.mu.RLock()
	if c.closed {
		h.mu.RUnlock()
		return
	}
	select {
	case c.send <- data:
		h.mu.RUnlock()
		h.metrics.delivered(string(ev.Type))
	default:
		h.mu.RUnlock()
		h.dropSlow(c)
	}
}

func (h *Hub) dropSlow(c *Client) {
	log.Warn().
		Str("client_id", c.ID).
		Str("user_id", c.UserID).
		Msg("client send buffer full, closing connection")
	h.metrics.dropped("slow_client")
	h.Disconnect(c)
	c.closeConn()
}

// sendError reports a rejected client message to that client
func (h *Hub) sendError(c *Client, msg string) {
	ev, err := events.New(uuid.Nil, events.TypeError, events.ErrorPayload{Message: msg})
	if err != nil {
		return
	}
	ev.SessionID = ""
	h.sendTo(c, ev)
}

// Stats summarizes the hub for the stats endpoint
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveSessions   int            `json:"active_sessions"`
	Rooms            map[string]int `json:"rooms"`
}

// Stats returns statistics about active connections
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make(map[string]int, len(h.rooms))
	for id, members := range h.rooms {
		rooms[id.String()] = len(members)
	}
	return Stats{
		TotalConnections: len(h.clients),
		ActiveSessions:   len(h.rooms),
		Rooms:            rooms,
	}
}
