package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pokerleague.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "LEAGUE_SESSIONS", cfg.NATS.Stream)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestYAMLThenEnvironment(t *testing.T) {
	path := writeFile(t, `
http_addr: ":9000"
log_level: debug
mutation_roles: [director]
store:
  driver: postgres
database:
  host: db.internal
  database: league
nats:
  enabled: true
  url: nats://bus:4222
  stream: POKER
sweeper:
  interval: 30s
`)
	t.Setenv("POKERLEAGUE_HTTP_ADDR", ":9100")
	t.Setenv("POKERLEAGUE_DB_PASSWORD", "hunter2")
	t.Setenv("USER", "not-the-db-user")
	t.Setenv("POKERLEAGUE_NATS_SUBJECT_PREFIX", "poker.live")
	t.Setenv("POKERLEAGUE_SWEEPER_BATCH_SIZE", "7")
	t.Setenv("POKERLEAGUE_MUTATION_ROLES", "admin,floor")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.HTTPAddr)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, []string{"admin", "floor"}, cfg.MutationRoles)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "league", cfg.Database.Database)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User, "bare variables never leak into nested settings")
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://bus:4222", cfg.NATS.URL)
	assert.Equal(t, "POKER", cfg.NATS.Stream)
	assert.Equal(t, "poker.live", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, 7, cfg.Sweeper.BatchSize)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "mongo"
	cfg.LogLevel = "chatty"
	cfg.Sweeper.Interval = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store driver "mongo"`)
	assert.Contains(t, err.Error(), `invalid log level "chatty"`)
	assert.Contains(t, err.Error(), "sweeper interval")

	_, err = Load(writeFile(t, "store: [not, a, map]"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestContextRoundTrip(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := Default()
	assert.Same(t, &cfg, FromContext(WithContext(context.Background(), &cfg)))
}
