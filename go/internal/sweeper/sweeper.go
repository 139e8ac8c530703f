// Package sweeper removes timer checkpoints left behind by sessions that
// have already completed or been cancelled. It never touches live sessions.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// OrphanLister finds checkpoints whose session has ended
type OrphanLister interface {
	ListOrphanedCheckpoints(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// Discarder deletes a session's checkpoint under the timer's session lock
type Discarder interface {
	Discard(ctx context.Context, sessionID uuid.UUID) error
}

// Sweeper runs the cleanup on a fixed interval
type Sweeper struct {
	store     OrphanLister
	timer     Discarder
	interval  time.Duration
	batchSize int
	clock     clockwork.Clock
	scheduler gocron.Scheduler
}

// New creates a Sweeper. A nil clock uses the real clock.
func New(store OrphanLister, timer Discarder, interval time.Duration, batchSize int, clock clockwork.Clock) *Sweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sweeper{
		store:     store,
		timer:     timer,
		interval:  interval,
		batchSize: batchSize,
		clock:     clock,
	}
}

// Sweep discards up to one batch of orphaned checkpoints and returns how many went
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.store.ListOrphanedCheckpoints(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list orphaned checkpoints: %w", err)
	}

	removed := 0
	for _, id := range ids {
		if err := s.timer.Discard(ctx, id); err != nil {
			log.Warn().Err(err).Str("session_id", id.String()).Msg("failed to discard orphaned checkpoint")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("swept orphaned timer checkpoints")
	}
	return removed, nil
}

// Start schedules Sweep every interval, beginning immediately
func (s *Sweeper) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler(
		gocron.WithClock(s.clock),
		gocron.WithLogger(zerologAdapter{logger: log.With().Str("component", "sweeper").Logger()}),
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if _, err := s.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("checkpoint sweep failed")
			}
		}),
		gocron.WithName("sweep-orphaned-checkpoints"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.scheduler = scheduler
	scheduler.Start()
	log.Info().Dur("interval", s.interval).Int("batch_size", s.batchSize).Msg("checkpoint sweeper started")
	return nil
}

// Stop waits for a running sweep and stops the schedule
func (s *Sweeper) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}

// zerologAdapter satisfies gocron.Logger
type zerologAdapter struct {
	logger zerolog.Logger
}

func (z zerologAdapter) Debug(msg string, args ...any) { z.logger.Debug().Fields(args).Msg(msg) }
func (z zerologAdapter) Info(msg string, args ...any)  { z.logger.Info().Fields(args).Msg(msg) }
func (z zerologAdapter) Warn(msg string, args ...any)  { z.logger.Warn().Fields(args).Msg(msg) }
func (z zerologAdapter) Error(msg string, args ...any) { z.logger.Error().Fields(args).Msg(msg) }
