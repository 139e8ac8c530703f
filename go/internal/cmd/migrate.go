package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/pokerleague/go/internal/config"
	"github.com/mcdev12/pokerleague/go/internal/store/postgres"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)

			// the sqlite store migrates itself when opened
			if cfg.Store.Driver != config.DriverPostgres {
				store, err := setupStore(ctx, cfg)
				if err != nil {
					return err
				}
				log.Info().Str("driver", cfg.Store.Driver).Msg("schema is up to date")
				return store.Close()
			}

			store, err := postgres.Open(ctx, cfg.Database.DSN())
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			log.Info().Str("dsn", cfg.Database.Redacted()).Msg("schema is up to date")
			return nil
		},
	}
}
