package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyPublisher struct {
	seen []Type
}

func (p *flakyPublisher) Publish(_ context.Context, _ uuid.UUID, typ Type, _ any) error {
	p.seen = append(p.seen, typ)
	if typ == TypeSnapshot {
		return errors.New("hub stopped")
	}
	return nil
}

func TestNew(t *testing.T) {
	sessionID := uuid.New()
	ev, err := New(sessionID, TypeSyncTime, SyncTimePayload{ServerTime: 20, ClientTime: 10})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, sessionID.String(), ev.SessionID)
	assert.JSONEq(t, `{"serverTime":20,"clientTime":10}`, string(ev.Data))
}

func TestPublishAllContinuesAfterFailure(t *testing.T) {
	p := &flakyPublisher{}
	PublishAll(context.Background(), p, uuid.New(),
		Message{Type: TypeSnapshot},
		Message{Type: TypePaused},
	)
	assert.Equal(t, []Type{TypeSnapshot, TypePaused}, p.seen)
}

func TestKnown(t *testing.T) {
	assert.True(t, TypeLevelChanged.Known())
	assert.False(t, Type("tick").Known())
}
