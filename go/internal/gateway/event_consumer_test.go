package gateway

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/pokerleague/go/internal/events"
	"github.com/mcdev12/pokerleague/go/internal/natsbus"
)

func TestProcessMessageQueuesEvent(t *testing.T) {
	h, _, _ := newTestHub(t, DefaultConfig())
	cfg := natsbus.DefaultConfig()
	ec := NewEventConsumer(h, nil, cfg)
	session := uuid.New()

	ev, err := events.New(session, events.TypeEliminationRecorded, map[string]int{"position": 9})
	require.NoError(t, err)
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	require.NoError(t, ec.processMessage(cfg.Subject(session, events.TypeEliminationRecorded), data))
	queued := (<-h.broadcastCh).event
	assert.Equal(t, ev.ID, queued.ID)
	assert.JSONEq(t, `{"position":9}`, string(queued.Data))
}

func TestProcessMessageRejectsBadInput(t *testing.T) {
	h, _, _ := newTestHub(t, DefaultConfig())
	cfg := natsbus.DefaultConfig()
	ec := NewEventConsumer(h, nil, cfg)
	session := uuid.New()

	ev, err := events.New(session, events.TypePaused, nil)
	require.NoError(t, err)
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	assert.Error(t, ec.processMessage("elsewhere.x", data))
	assert.Error(t, ec.processMessage(cfg.Subject(session, events.TypePaused), []byte("{")))
	assert.Error(t, ec.processMessage(cfg.Subject(uuid.New(), events.TypePaused), data), "session mismatch")
	assert.Error(t, ec.processMessage(cfg.Subject(session, events.TypeResumed), data), "type mismatch")

	bogus, err := events.New(session, events.Type("confetti"), nil)
	require.NoError(t, err)
	data, err = json.Marshal(bogus)
	require.NoError(t, err)
	assert.Error(t, ec.processMessage(cfg.Subject(session, "confetti"), data))

	assert.Empty(t, h.broadcastCh)
}
