// Package natsbus carries session events between instances over NATS JetStream.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerleague/go/internal/events"
)

// Config holds connection and stream settings
type Config struct {
	URL           string        `yaml:"url" split_words:"true"`
	Name          string        `yaml:"name" split_words:"true"`
	Stream        string        `yaml:"stream" split_words:"true"`
	SubjectPrefix string        `yaml:"subject_prefix" split_words:"true"`
	MaxAge        time.Duration `yaml:"max_age" split_words:"true"`
	MaxReconnects int           `yaml:"max_reconnects" split_words:"true"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" split_words:"true"`
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "pokerleague",
		Stream:        "LEAGUE_SESSIONS",
		SubjectPrefix: "league.sessions",
		MaxAge:        time.Hour,
		MaxReconnects: -1, // infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Filter matches every session subject under the prefix
func (c Config) Filter() string {
	return c.SubjectPrefix + ".>"
}

// Subject is where one event type of one session is published
func (c Config) Subject(sessionID uuid.UUID, typ events.Type) string {
	return fmt.Sprintf("%s.%s.%s", c.SubjectPrefix, sessionID, typ)
}

// ParseSubject extracts the session and event type from a subject built by Subject
func (c Config) ParseSubject(subject string) (uuid.UUID, events.Type, error) {
	rest, ok := strings.CutPrefix(subject, c.SubjectPrefix+".")
	if !ok {
		return uuid.Nil, "", fmt.Errorf("subject %q outside prefix %q", subject, c.SubjectPrefix)
	}
	idPart, typPart, ok := strings.Cut(rest, ".")
	if !ok {
		return uuid.Nil, "", fmt.Errorf("subject %q has no event type", subject)
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("subject %q: %w", subject, err)
	}
	return id, events.Type(typPart), nil
}

// Connect dials NATS with reconnect handling and logging hooks
func Connect(cfg Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
	return nc, nil
}

// EnsureStream creates or updates the session stream
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg Config) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "Live session events",
		Subjects:    []string{cfg.Filter()},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Duplicates:  2 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}
	log.Info().Str("stream", cfg.Stream).Str("subjects", cfg.Filter()).Msg("JetStream stream ready")
	return stream, nil
}

type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamPublisher publishes session events to the stream so every instance can fan them out
type JetStreamPublisher struct {
	js  streamPublisher
	cfg Config
}

// NewJetStreamPublisher creates a publisher on js
func NewJetStreamPublisher(js jetstream.JetStream, cfg Config) *JetStreamPublisher {
	return &JetStreamPublisher{js: js, cfg: cfg}
}

// Publish implements events.Publisher. The event ID doubles as the dedup key.
func (p *JetStreamPublisher) Publish(ctx context.Context, sessionID uuid.UUID, typ events.Type, payload any) error {
	ev, err := events.New(sessionID, typ, payload)
	if err != nil {
		return fmt.Errorf("build %s event: %w", typ, err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", typ, err)
	}

	subject := p.cfg.Subject(sessionID, typ)
	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(ev.ID))
	if err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	log.Debug().
		Str("subject", subject).
		Uint64("seq", ack.Sequence).
		Str("event_id", ev.ID).
		Msg("published session event")
	return nil
}
