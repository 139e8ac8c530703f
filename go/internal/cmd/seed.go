package main

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/pokerleague/go/internal/config"
	"github.com/mcdev12/pokerleague/go/internal/seed"
)

func seedLevelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-levels FILE",
		Short: "Load players and a configured session with its blind structure into Postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)

			file, err := seed.Load(args[0])
			if err != nil {
				return err
			}

			pool, err := pgxpool.New(ctx, cfg.Database.DSN())
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer pool.Close()

			res, err := file.Apply(ctx, pool, time.Now().UTC())
			if err != nil {
				return err
			}
			log.Info().
				Str("session_id", res.SessionID.String()).
				Int("players_inserted", res.PlayersInserted).
				Int("players_skipped", res.PlayersSkipped).
				Int("levels", res.Levels).
				Msg("seed complete")
			return nil
		},
	}
}
