package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Type represents the type of a session event
type Type string

const (
	TypeSnapshot            Type = "snapshot"
	TypeStarted             Type = "started"
	TypePaused              Type = "paused"
	TypeResumed             Type = "resumed"
	TypeLevelChanged        Type = "level-changed"
	TypeEliminationRecorded Type = "elimination-recorded"
	TypeEliminationUpdated  Type = "elimination-updated"
	TypeEliminationDeleted  Type = "elimination-deleted"
	TypeSyncTime            Type = "sync-time"
	TypeError               Type = "error"
)

// Known reports whether t is a type viewers understand.
func (t Type) Known() bool {
	switch t {
	case TypeSnapshot, TypeStarted, TypePaused, TypeResumed, TypeLevelChanged,
		TypeEliminationRecorded, TypeEliminationUpdated, TypeEliminationDeleted,
		TypeSyncTime, TypeError:
		return true
	}
	return false
}

// Event is the envelope delivered to every viewer of a session
type Event struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	Type         Type            `json:"type"`
	ServerTime   time.Time       `json:"server_time"`
	ServerTimeMs int64           `json:"server_time_ms"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// New builds an envelope with a fresh ID. ServerTime is stamped at delivery.
func New(sessionID uuid.UUID, typ Type, payload any) (*Event, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return &Event{
		ID:        uuid.NewString(),
		SessionID: sessionID.String(),
		Type:      typ,
		Data:      data,
	}, nil
}

// Publisher pushes session events towards viewers
type Publisher interface {
	Publish(ctx context.Context, sessionID uuid.UUID, typ Type, payload any) error
}

// PublishAll publishes each event in order, logging failures.
// Delivery is fire-and-forget and never fails the caller.
func PublishAll(ctx context.Context, p Publisher, sessionID uuid.UUID, msgs ...Message) {
	if p == nil {
		return
	}
	for _, m := range msgs {
		if err := p.Publish(ctx, sessionID, m.Type, m.Payload); err != nil {
			log.Warn().
				Err(err).
				Str("session_id", sessionID.String()).
				Str("event_type", string(m.Type)).
				Msg("failed to publish session event")
		}
	}
}

// Message pairs an event type with its payload.
type Message struct {
	Type    Type
	Payload any
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, uuid.UUID, Type, any) error { return nil }
