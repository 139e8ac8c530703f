package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/pokerleague/go/internal/events"
)

type liveHub struct {
	hub    *Hub
	server *httptest.Server
}

func startLiveHub(t *testing.T) *liveHub {
	t.Helper()
	state := StateProviderFunc(func(_ context.Context, id uuid.UUID) (any, error) {
		return map[string]any{"session_id": id.String(), "current_level": 3}, nil
	})
	hub := NewHub(DefaultConfig(), clockwork.NewFakeClockAt(t0), state, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Start(ctx)
		close(done)
	}()

	mux := http.NewServeMux()
	NewWebSocketHandler(hub).RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		<-done
		server.Close()
		http.DefaultClient.CloseIdleConnections()
	})
	return &liveHub{hub: hub, server: server}
}

func (l *liveHub) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(l.server.URL, "http") + "/ws/sessions" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebSocketJoinOnConnectReceivesSnapshotAndEvents(t *testing.T) {
	live := startLiveHub(t)
	session := uuid.New()
	conn := live.dial(t, "?session_id="+session.String())

	snap := readEvent(t, conn)
	assert.Equal(t, events.TypeSnapshot, snap.Type)
	assert.Equal(t, session.String(), snap.SessionID)
	assert.JSONEq(t, `{"session_id":"`+session.String()+`","current_level":3}`, string(snap.Data))

	require.NoError(t, live.hub.Publish(context.Background(), session, events.TypeLevelChanged, events.LevelChangedPayload{FromLevel: 3, ToLevel: 4}))
	ev := readEvent(t, conn)
	assert.Equal(t, events.TypeLevelChanged, ev.Type)
	assert.Equal(t, t0.UnixMilli(), ev.ServerTimeMs)
}

func TestWebSocketSyncTimeAndLateJoin(t *testing.T) {
	live := startLiveHub(t)
	conn := live.dial(t, "")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "sync-time", "client_time": 42}))
	ev := readEvent(t, conn)
	assert.Equal(t, events.TypeSyncTime, ev.Type)
	var payload events.SyncTimePayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, int64(42), payload.ClientTime)
	assert.Equal(t, t0.UnixMilli(), payload.ServerTime)

	session := uuid.New()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "join", "session_id": session.String()}))
	assert.Equal(t, events.TypeSnapshot, readEvent(t, conn).Type)
}

func TestWebSocketRejectsBadSessionID(t *testing.T) {
	live := startLiveHub(t)
	resp, err := http.Get(live.server.URL + "/ws/sessions?session_id=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConnectionStats(t *testing.T) {
	live := startLiveHub(t)
	session := uuid.New()
	conn := live.dial(t, "?session_id="+session.String())
	readEvent(t, conn)

	resp, err := http.Get(live.server.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.Rooms[session.String()])
}
