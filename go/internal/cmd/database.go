package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerleague/go/internal/config"
	"github.com/mcdev12/pokerleague/go/internal/elimination"
	"github.com/mcdev12/pokerleague/go/internal/session"
	"github.com/mcdev12/pokerleague/go/internal/store/postgres"
	"github.com/mcdev12/pokerleague/go/internal/store/sqlite"
	"github.com/mcdev12/pokerleague/go/internal/sweeper"
	"github.com/mcdev12/pokerleague/go/internal/timer"
)

// Store is everything the service needs from a persistence backend
type Store interface {
	session.Repository
	timer.Repository
	elimination.Repository
	elimination.PlayerDirectory
	sweeper.OrphanLister
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*postgres.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
)

func setupStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		log.Info().Str("dsn", cfg.Database.Redacted()).Msg("connected to database")
		return store, nil
	case config.DriverSQLite:
		store, err := sqlite.New(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		log.Info().Str("path", cfg.Store.Path).Msg("opened sqlite store")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
