package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mcdev12/pokerleague/go/internal/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC)

func newTestHub(t *testing.T, cfg Config) (*Hub, *clockwork.FakeClock, *Metrics) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewHub(cfg, clock, nil, metrics), clock, metrics
}

// offlineClient is a client without a websocket; tests read its queue directly
func offlineClient(h *Hub) *Client {
	c := newClient(h, nil, "viewer")
	h.register(c)
	return c
}

func receive(t *testing.T, c *Client) events.Event {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send queue closed")
		var ev events.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	default:
		t.Fatal("no message queued")
		return events.Event{}
	}
}

func TestJoinLeaveDisconnectAreIdempotent(t *testing.T) {
	h, _, metrics := newTestHub(t, DefaultConfig())
	c := offlineClient(h)
	session := uuid.New()

	assert.True(t, h.Join(c, session))
	assert.False(t, h.Join(c, session))
	assert.Equal(t, 1, h.Stats().ActiveSessions)
	assert.Equal(t, 1, h.Stats().Rooms[session.String()])

	h.Leave(c, session)
	h.Leave(c, session)
	h.Leave(c, uuid.New())
	assert.Equal(t, 0, h.Stats().ActiveSessions)
	assert.Equal(t, 1, h.Stats().TotalConnections)

	h.Join(c, session)
	h.Disconnect(c)
	h.Disconnect(c)
	assert.Equal(t, Stats{Rooms: map[string]int{}}, h.Stats())
	assert.False(t, h.Join(c, session), "closed clients cannot rejoin")

	assert.Equal(t, float64(0), metricValue(t, metrics.connections))
	assert.Equal(t, float64(0), metricValue(t, metrics.rooms))
}

func TestDeliverOnlyToRoom(t *testing.T) {
	h, _, _ := newTestHub(t, DefaultConfig())
	session, other := uuid.New(), uuid.New()
	a, b := offlineClient(h), offlineClient(h)
	h.Join(a, session)
	h.Join(b, other)

	require.NoError(t, h.Publish(context.Background(), session, events.TypePaused, events.TimerActionPayload{Action: "pause", Level: 2}))
	h.process(context.Background(), <-h.broadcastCh)

	ev := receive(t, a)
	assert.Equal(t, events.TypePaused, ev.Type)
	assert.Equal(t, session.String(), ev.SessionID)
	assert.True(t, t0.Equal(ev.ServerTime))
	assert.Equal(t, t0.UnixMilli(), ev.ServerTimeMs)
	assert.Empty(t, b.send)
}

func TestServerTimeNeverGoesBackwards(t *testing.T) {
	h, clock, _ := newTestHub(t, DefaultConfig())
	session := uuid.New()
	c := offlineClient(h)
	h.Join(c, session)

	publish := func() events.Event {
		require.NoError(t, h.Publish(context.Background(), session, events.TypeSnapshot, nil))
		h.process(context.Background(), <-h.broadcastCh)
		return receive(t, c)
	}

	first := publish()
	clock.Advance(1500 * time.Millisecond)
	second := publish()
	assert.Equal(t, first.ServerTimeMs+1500, second.ServerTimeMs)

	// a wall clock step backwards still yields a non-decreasing stamp
	h.lastStamp[session] = t0.Add(time.Hour)
	third := publish()
	assert.Equal(t, t0.Add(time.Hour).UnixMilli(), third.ServerTimeMs)
	clock.Advance(time.Second)
	fourth := publish()
	assert.GreaterOrEqual(t, fourth.ServerTimeMs, third.ServerTimeMs)
}

func TestSlowClientIsDisconnected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SendBuffer = 1
	h, _, metrics := newTestHub(t, cfg)
	session := uuid.New()
	slow, fast := offlineClient(h), offlineClient(h)
	h.Join(slow, session)
	h.Join(fast, session)

	require.NoError(t, h.Publish(context.Background(), session, events.TypeSnapshot, nil))
	h.process(context.Background(), <-h.broadcastCh)
	receive(t, fast)

	require.NoError(t, h.Publish(context.Background(), session, events.TypeSnapshot, nil))
	h.process(context.Background(), <-h.broadcastCh)

	assert.True(t, slow.closed)
	assert.False(t, fast.closed)
	assert.Equal(t, 1, h.Stats().Rooms[session.String()])
	assert.Equal(t, float64(1), metricValue(t, metrics.droppedTotal.WithLabelValues("slow_client")))
}

func TestPublishWhenQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BroadcastBuffer = 1
	h, _, _ := newTestHub(t, cfg)
	session := uuid.New()

	require.NoError(t, h.Publish(context.Background(), session, events.TypeSnapshot, nil))
	assert.ErrorIs(t, h.Publish(context.Background(), session, events.TypeSnapshot, nil), ErrBufferFull)
}

func TestDeliverToEmptyRoomForgetsStamp(t *testing.T) {
	h, _, _ := newTestHub(t, DefaultConfig())
	session := uuid.New()
	h.lastStamp[session] = t0

	require.NoError(t, h.Publish(context.Background(), session, events.TypeSnapshot, nil))
	h.process(context.Background(), <-h.broadcastCh)
	assert.NotContains(t, h.lastStamp, session)
}

func TestSyncTimeAnswersOnlyTheAsker(t *testing.T) {
	h, clock, _ := newTestHub(t, DefaultConfig())
	session := uuid.New()
	asker, other := offlineClient(h), offlineClient(h)
	h.Join(asker, session)
	h.Join(other, session)
	clock.Advance(250 * time.Millisecond)

	require.True(t, h.SyncTime(asker, 1234))
	ev := receive(t, asker)
	assert.Equal(t, events.TypeSyncTime, ev.Type)
	assert.JSONEq(t, `{"serverTime":`+jsonInt(t0.Add(250*time.Millisecond).UnixMilli())+`,"clientTime":1234}`, string(ev.Data))
	assert.Empty(t, other.send)
}

func TestClientMessages(t *testing.T) {
	h, _, _ := newTestHub(t, DefaultConfig())
	session := uuid.New()
	h.state = StateProviderFunc(func(_ context.Context, id uuid.UUID) (any, error) {
		return map[string]string{"session": id.String()}, nil
	})
	c := offlineClient(h)

	c.handleClientMessage([]byte(`{"type":"join","session_id":"`+session.String()+`"}`))
	assert.Empty(t, c.send, "snapshot waits for the delivery loop")
	h.process(context.Background(), <-h.broadcastCh)
	snap := receive(t, c)
	assert.Equal(t, events.TypeSnapshot, snap.Type)
	assert.JSONEq(t, `{"session":"`+session.String()+`"}`, string(snap.Data))

	// a second join neither duplicates membership nor resends state
	c.handleClientMessage([]byte(`{"type":"join","session_id":"`+session.String()+`"}`))
	assert.Empty(t, h.broadcastCh)
	assert.Empty(t, c.send)

	c.handleClientMessage([]byte(`{"type":"leave","session_id":"`+session.String()+`"}`))
	assert.Equal(t, 0, h.Stats().ActiveSessions)

	c.handleClientMessage([]byte(`{"type":"join","session_id":"nope"}`))
	assert.Equal(t, events.TypeError, receive(t, c).Type)
	c.handleClientMessage([]byte(`not json`))
	assert.Equal(t, events.TypeError, receive(t, c).Type)
	c.handleClientMessage([]byte(`{"type":"dance"}`))
	assert.Equal(t, events.TypeError, receive(t, c).Type)
}

// stateHolder serves whatever state a command last committed
type stateHolder struct {
	mu    sync.Mutex
	state string
	reads int
}

func (s *stateHolder) set(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *stateHolder) SessionState(_ context.Context, _ uuid.UUID) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return map[string]string{"state": s.state}, nil
}

func TestJoinSnapshotIsNeverOlderThanRoomEvents(t *testing.T) {
	h, clock, _ := newTestHub(t, DefaultConfig())
	holder := &stateHolder{state: "old"}
	h.state = holder
	session := uuid.New()
	watcher, late := offlineClient(h), offlineClient(h)
	h.Join(watcher, session)

	// the late viewer joins, then a command commits and broadcasts before the loop runs
	require.True(t, h.Join(late, session))
	h.requestState(late, session)
	assert.Zero(t, holder.reads, "state is read by the delivery loop, not the joining reader")

	holder.set("new")
	clock.Advance(time.Second)
	require.NoError(t, h.Publish(context.Background(), session, events.TypeSnapshot, map[string]string{"state": "new"}))

	h.process(context.Background(), <-h.broadcastCh)
	clock.Advance(time.Second)
	h.process(context.Background(), <-h.broadcastCh)

	joinSnap := receive(t, late)
	assert.Equal(t, events.TypeSnapshot, joinSnap.Type)
	assert.JSONEq(t, `{"state":"new"}`, string(joinSnap.Data))
	last := receive(t, late)
	assert.JSONEq(t, `{"state":"new"}`, string(last.Data))
	assert.GreaterOrEqual(t, last.ServerTimeMs, joinSnap.ServerTimeMs)
	assert.Empty(t, late.send)

	// the existing viewer only sees the room event
	assert.JSONEq(t, `{"state":"new"}`, string(receive(t, watcher).Data))
	assert.Empty(t, watcher.send)
}

func TestJoinSnapshotStampFollowsRoomOrder(t *testing.T) {
	h, _, _ := newTestHub(t, DefaultConfig())
	h.state = &stateHolder{state: "current"}
	session := uuid.New()
	c := offlineClient(h)
	h.Join(c, session)
	h.lastStamp[session] = t0.Add(time.Minute)

	h.requestState(c, session)
	h.process(context.Background(), <-h.broadcastCh)
	assert.Equal(t, t0.Add(time.Minute).UnixMilli(), receive(t, c).ServerTimeMs)
}

func TestJoinSnapshotSkippedAfterLeave(t *testing.T) {
	h, _, _ := newTestHub(t, DefaultConfig())
	holder := &stateHolder{state: "current"}
	h.state = holder
	session := uuid.New()
	c := offlineClient(h)
	h.Join(c, session)
	h.requestState(c, session)
	h.Leave(c, session)

	h.process(context.Background(), <-h.broadcastCh)
	assert.Empty(t, c.send)
	assert.Zero(t, holder.reads)
}

func TestStartStopsAndDisconnects(t *testing.T) {
	h, _, _ := newTestHub(t, DefaultConfig())
	c := offlineClient(h)
	h.Join(c, uuid.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	assert.True(t, c.closed)
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Gauge != nil {
		return out.GetGauge().GetValue()
	}
	return out.GetCounter().GetValue()
}
