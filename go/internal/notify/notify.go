package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Kind distinguishes the two elimination notifications
type Kind string

const (
	KindWinnerCrowned    Kind = "winner_crowned"
	KindPlayerEliminated Kind = "player_eliminated"
)

// Notification is sent after an elimination is recorded
type Notification struct {
	Kind           Kind      `json:"kind"`
	SessionID      uuid.UUID `json:"session_id"`
	Position       int       `json:"position"`
	Points         int       `json:"points"`
	PlayerID       uuid.UUID `json:"player_id"`
	PlayerName     string    `json:"player_name"`
	EliminatorName string    `json:"eliminator_name,omitempty"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	At             time.Time `json:"at"`
}

// Dispatcher delivers notifications. Callers log failures and move on.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Build fills Kind, Title and Body from the elimination details.
func Build(n Notification) Notification {
	if n.Position == 1 {
		n.Kind = KindWinnerCrowned
		n.Title = "We have a winner"
		n.Body = fmt.Sprintf("%s wins the session and takes %d points", n.PlayerName, n.Points)
		return n
	}

	n.Kind = KindPlayerEliminated
	n.Title = fmt.Sprintf("%s place", Ordinal(n.Position))
	if n.EliminatorName != "" {
		n.Body = fmt.Sprintf("%s finished %s, knocked out by %s (%d pts)",
			n.PlayerName, Ordinal(n.Position), n.EliminatorName, n.Points)
	} else {
		n.Body = fmt.Sprintf("%s finished %s (%d pts)", n.PlayerName, Ordinal(n.Position), n.Points)
	}
	return n
}

// Ordinal renders 1 as "1st", 12 as "12th", 22 as "22nd".
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// LogDispatcher writes notifications to the log only
type LogDispatcher struct{}

// Dispatch implements Dispatcher.
func (LogDispatcher) Dispatch(_ context.Context, n Notification) error {
	log.Info().
		Str("session_id", n.SessionID.String()).
		Str("kind", string(n.Kind)).
		Int("position", n.Position).
		Str("body", n.Body).
		Msg("notification")
	return nil
}

// NATSDispatcher publishes notifications on core NATS for delivery workers.
type NATSDispatcher struct {
	nc            *nats.Conn
	subjectPrefix string
}

// NewNATSDispatcher creates a dispatcher publishing under subjectPrefix.<kind>
func NewNATSDispatcher(nc *nats.Conn, subjectPrefix string) *NATSDispatcher {
	return &NATSDispatcher{nc: nc, subjectPrefix: subjectPrefix}
}

// Dispatch implements Dispatcher.
func (d *NATSDispatcher) Dispatch(_ context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", d.subjectPrefix, n.Kind)
	if err := d.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	log.Debug().Str("subject", subject).Str("session_id", n.SessionID.String()).Msg("notification published")
	return nil
}
