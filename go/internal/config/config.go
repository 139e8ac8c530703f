// Package config loads service settings from an optional YAML file overlaid
// by POKERLEAGUE_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/pokerleague/go/internal/dbconfig"
	"github.com/mcdev12/pokerleague/go/internal/gateway"
	"github.com/mcdev12/pokerleague/go/internal/natsbus"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "POKERLEAGUE"

// Store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type ctxKey struct{}

// Config is the full service configuration
type Config struct {
	HTTPAddr        string        `yaml:"http_addr" split_words:"true"`
	LogLevel        string        `yaml:"log_level" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
	// MutationRoles grant timer and ledger mutation capability
	MutationRoles []string `yaml:"mutation_roles" split_words:"true"`
	CORSOrigins   []string `yaml:"cors_origins" split_words:"true"`

	Store    StoreConfig     `yaml:"store" envconfig:"STORE"`
	Database dbconfig.Config `yaml:"database" envconfig:"DB"`
	NATS     NATSConfig      `yaml:"nats" envconfig:"NATS"`
	Gateway  gateway.Config  `yaml:"gateway" envconfig:"GATEWAY"`
	Sweeper  SweeperConfig   `yaml:"sweeper" envconfig:"SWEEPER"`
	Notify   NotifyConfig    `yaml:"notify" envconfig:"NOTIFY"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string `yaml:"driver" split_words:"true"`
	// Path is the SQLite database file; empty keeps everything in memory
	Path string `yaml:"path" split_words:"true"`
}

// NATSConfig enables cross-instance fan-out
type NATSConfig struct {
	Enabled        bool `yaml:"enabled" split_words:"true"`
	natsbus.Config `yaml:",inline"`
}

// SweeperConfig controls the orphaned checkpoint cleanup job
type SweeperConfig struct {
	Interval  time.Duration `yaml:"interval" split_words:"true"`
	BatchSize int           `yaml:"batch_size" split_words:"true"`
}

// NotifyConfig controls where elimination notifications go
type NotifyConfig struct {
	SubjectPrefix string `yaml:"subject_prefix" split_words:"true"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		LogLevel:        "info",
		ShutdownTimeout: 15 * time.Second,
		MutationRoles:   []string{"admin", "director"},
		CORSOrigins:     []string{"*"},
		Store:           StoreConfig{Driver: DriverSQLite, Path: "pokerleague.db"},
		Database:        dbconfig.Default(),
		NATS:            NATSConfig{Config: natsbus.DefaultConfig()},
		Gateway:         gateway.DefaultConfig(),
		Sweeper:         SweeperConfig{Interval: 5 * time.Minute, BatchSize: 100},
		Notify:          NotifyConfig{SubjectPrefix: "league.notifications"},
	}
}

// Load reads .env (if present), then the YAML file at path (if non-empty),
// then applies environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.LogLevel))
	}
	if c.Sweeper.Interval <= 0 {
		errs = append(errs, fmt.Errorf("sweeper interval must be positive"))
	}
	if c.Sweeper.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("sweeper batch size must be positive"))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, fmt.Errorf("nats url is required when nats is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Level returns the parsed log level, defaulting to info
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithContext stores cfg in ctx
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext returns the config stored by WithContext, or nil
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(ctxKey{}).(*Config)
	return cfg
}
