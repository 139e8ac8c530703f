package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Client is one websocket viewer
type Client struct {
	ID     string
	UserID string

	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// guarded by hub.mu
	rooms  map[uuid.UUID]bool
	closed bool

	ConnectedAt time.Time
}

func newClient(h *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		ID:          uuid.NewString(),
		UserID:      userID,
		conn:        conn,
		send:        make(chan []byte, h.config.SendBuffer),
		hub:         h,
		rooms:       make(map[uuid.UUID]bool),
		ConnectedAt: h.clock.Now(),
	}
}

func (c *Client) closeConn() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// clientMessage is what viewers may send
type clientMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	ClientTime int64  `json:"client_time,omitempty"`
}

const (
	clientJoin     = "join"
	clientLeave    = "leave"
	clientSyncTime = "sync-time"
)

// writePump drains the send queue to the websocket and keeps the connection alive
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.closeConn()
		c.hub.Disconnect(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("client_id", c.ID).Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("client_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles client messages until the connection drops
func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.closeConn()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("client_id", c.ID).Msg("unexpected websocket close error")
			}
			return
		}
		c.handleClientMessage(message)
		_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}

// handleClientMessage processes join, leave and sync-time requests
func (c *Client) handleClientMessage(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.hub.sendError(c, "malformed message")
		return
	}

	switch msg.Type {
	case clientSyncTime:
		c.hub.SyncTime(c, msg.ClientTime)
	case clientJoin, clientLeave:
		sessionID, err := uuid.Parse(msg.SessionID)
		if err != nil {
			c.hub.sendError(c, "invalid session_id")
			return
		}
		if msg.Type == clientLeave {
			c.hub.Leave(c, sessionID)
			return
		}
		if c.hub.Join(c, sessionID) {
			c.hub.requestState(c, sessionID)
		}
	default:
		log.Debug().Str("client_id", c.ID).Str("type", msg.Type).Msg("ignoring unknown client message")
		c.hub.sendError(c, "unknown message type: "+msg.Type)
	}
}
