package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerleague/go/internal/events"
	"github.com/mcdev12/pokerleague/go/internal/natsbus"
)

// EventConsumer reads session events from JetStream and hands them to the local hub.
// Each instance runs its own ordered consumer so every instance sees every event.
type EventConsumer struct {
	hub    *Hub
	js     jetstream.JetStream
	config natsbus.Config
}

// NewEventConsumer creates a consumer feeding hub
func NewEventConsumer(hub *Hub, js jetstream.JetStream, config natsbus.Config) *EventConsumer {
	return &EventConsumer{hub: hub, js: js, config: config}
}

// Start consumes new events until ctx is cancelled
func (ec *EventConsumer) Start(ctx context.Context) error {
	consumer, err := ec.js.OrderedConsumer(ctx, ec.config.Stream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ec.config.Filter()},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create ordered consumer: %w", err)
	}

	log.Info().
		Str("stream", ec.config.Stream).
		Str("filter", ec.config.Filter()).
		Msg("starting JetStream event consumer")

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := ec.processMessage(msg.Subject(), msg.Data()); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process message")
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	log.Info().Msg("event consumer shutting down")
	return nil
}

// processMessage validates one stream message and queues it for local delivery
func (ec *EventConsumer) processMessage(subject string, data []byte) error {
	sessionID, typ, err := ec.config.ParseSubject(subject)
	if err != nil {
		return err
	}

	var ev events.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if ev.SessionID != sessionID.String() || ev.Type != typ {
		return fmt.Errorf("envelope %s/%s does not match subject", ev.SessionID, ev.Type)
	}
	if !ev.Type.Known() {
		return fmt.Errorf("unknown event type: %s", ev.Type)
	}

	log.Debug().
		Str("event_id", ev.ID).
		Str("session_id", ev.SessionID).
		Str("event_type", string(ev.Type)).
		Msg("processing JetStream event")

	return ec.hub.Enqueue(&ev)
}
