package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerleague/go/internal/auth"
	"github.com/mcdev12/pokerleague/go/internal/config"
	"github.com/mcdev12/pokerleague/go/internal/elimination"
	"github.com/mcdev12/pokerleague/go/internal/events"
	"github.com/mcdev12/pokerleague/go/internal/gateway"
	"github.com/mcdev12/pokerleague/go/internal/natsbus"
	"github.com/mcdev12/pokerleague/go/internal/notify"
	"github.com/mcdev12/pokerleague/go/internal/session"
	"github.com/mcdev12/pokerleague/go/internal/sweeper"
	"github.com/mcdev12/pokerleague/go/internal/timer"
)

// Services holds the wired application layer
type Services struct {
	Sessions *session.App
	Timer    *timer.App
	Ledger   *elimination.App
	Hub      *gateway.Hub
	Consumer *gateway.EventConsumer
	Sweeper  *sweeper.Sweeper

	nc *nats.Conn
}

// Close releases the NATS connection, if any
func (s *Services) Close() {
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			log.Warn().Err(err).Msg("failed to drain nats connection")
		}
	}
}

func setupServices(ctx context.Context, cfg *config.Config, store Store, reg prometheus.Registerer) (*Services, error) {
	// Wire up dependency injection chain
	// Store → Gate → Timer → Session lifecycle → Ledger
	clock := clockwork.NewRealClock()
	checker := auth.NewRoleChecker(cfg.MutationRoles)
	gate := session.NewGate(store)

	svc := &Services{}

	// the hub resolves late-join snapshots through the timer app
	var timerApp *timer.App
	state := gateway.StateProviderFunc(func(ctx context.Context, id uuid.UUID) (any, error) {
		view, err := timerApp.GetState(ctx, auth.Actor{}, id)
		if err != nil {
			return nil, err
		}
		return view, nil
	})
	svc.Hub = gateway.NewHub(cfg.Gateway, clock, state, gateway.NewMetrics(reg))

	var (
		publisher  events.Publisher  = svc.Hub
		dispatcher notify.Dispatcher = notify.LogDispatcher{}
	)
	if cfg.NATS.Enabled {
		nc, err := natsbus.Connect(cfg.NATS.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		svc.nc = nc

		js, err := jetstream.New(nc)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("failed to create jetstream context: %w", err)
		}
		if _, err := natsbus.EnsureStream(ctx, js, cfg.NATS.Config); err != nil {
			svc.Close()
			return nil, err
		}

		publisher = natsbus.NewJetStreamPublisher(js, cfg.NATS.Config)
		dispatcher = notify.NewNATSDispatcher(nc, cfg.Notify.SubjectPrefix)
		svc.Consumer = gateway.NewEventConsumer(svc.Hub, js, cfg.NATS.Config)
	}

	timerApp = timer.NewApp(store, gate, publisher, checker, clock)
	svc.Timer = timerApp
	svc.Sessions = session.NewApp(store, timerApp, checker, clock)
	svc.Ledger = elimination.NewApp(store, store, gate, publisher, dispatcher, checker, clock)
	svc.Sweeper = sweeper.New(store, timerApp, cfg.Sweeper.Interval, cfg.Sweeper.BatchSize, clock)

	log.Info().
		Bool("nats", cfg.NATS.Enabled).
		Str("store", cfg.Store.Driver).
		Msg("services wired")
	return svc, nil
}
