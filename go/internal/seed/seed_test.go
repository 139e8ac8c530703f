package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/pokerleague/go/internal/apperr"
	"github.com/mcdev12/pokerleague/go/internal/store/postgres"
)

const thursday = `
session:
  name: Thursday Night
  total_players: 3
players:
  - id: 0b6f4c1e-6a8e-4c71-9f55-0c0d9b1f0a01
    name: Ada
  - id: 0b6f4c1e-6a8e-4c71-9f55-0c0d9b1f0a02
    name: Grace
  - id: 0b6f4c1e-6a8e-4c71-9f55-0c0d9b1f0a03
    name: Linus
levels:
  - {level: 1, small_blind: 25, big_blind: 50, duration: 20}
  - {level: 2, small_blind: 50, big_blind: 100, duration: 20}
  - {level: 3, small_blind: 100, big_blind: 200, ante: 25, duration: 0}
`

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	f, err := Load(writeSeed(t, thursday))
	require.NoError(t, err)
	assert.Equal(t, "Thursday Night", f.Session.Name)
	assert.Len(t, f.Players, 3)
	require.Len(t, f.Levels, 3)
	assert.Equal(t, 25, f.Levels[2].Ante)
}

func TestValidateRejects(t *testing.T) {
	player := Player{ID: uuid.New(), Name: "Ada"}
	levels := func() File {
		f, err := Load(writeSeed(t, thursday))
		require.NoError(t, err)
		return *f
	}

	f := levels()
	f.Session.Name = "  "
	assert.ErrorIs(t, f.Validate(), apperr.ErrInvalidArgument)

	f = levels()
	f.Players = []Player{player, player}
	assert.ErrorContains(t, f.Validate(), "listed twice")

	f = levels()
	f.Players = append(f.Players, Player{Name: "nobody"})
	assert.ErrorIs(t, f.Validate(), apperr.ErrInvalidArgument)

	f = levels()
	f.Levels = f.Levels[1:]
	assert.ErrorIs(t, f.Validate(), apperr.ErrInvalidArgument)

	_, err := Load(writeSeed(t, "players: {nope"))
	assert.ErrorContains(t, err, "parse seed file")
}

func TestApply(t *testing.T) {
	dsn := os.Getenv("POKERLEAGUE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("POKERLEAGUE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	store, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	f, err := Load(writeSeed(t, thursday))
	require.NoError(t, err)
	now := time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC)

	res, err := f.Apply(ctx, pool, now)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Levels)

	levels, err := store.ListBlindLevels(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Len(t, levels, 3)

	// reapplying reconfigures the same session and skips known players
	f.Levels = f.Levels[:2]
	res, err = f.Apply(ctx, pool, now)
	require.NoError(t, err)
	assert.Equal(t, 0, res.PlayersInserted)
	assert.Equal(t, 3, res.PlayersSkipped)
	levels, err = store.ListBlindLevels(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Len(t, levels, 2)
}
