package worker

import (
	"context"
	"time"

	"zapisnik/internal/domain"
	"zapisnik/internal/schedule"

	"github.com/rs/zerolog"
)

// Sweeper periodically transitions elapsed confirmed bookings to
// completed. The sweep itself is idempotent, so a failed run is simply
// retried with backoff and a crashed run resumes on the next tick.
type Sweeper struct {
	engine      domain.BookingEngine
	clock       schedule.Clock
	interval    time.Duration
	retryPolicy RetryPolicy
	logger      *zerolog.Logger
}

func NewSweeper(engine domain.BookingEngine, clock schedule.Clock, interval time.Duration, retry RetryPolicy, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 3
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &Sweeper{
		engine:      engine,
		clock:       clock,
		interval:    interval,
		retryPolicy: retry,
		logger:      logger,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("sweeper started")

	// Первый проход сразу при старте, чтобы подобрать заявки,
	// истекшие пока процесс был остановлен
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single sweep with retries.
func (s *Sweeper) RunOnce(ctx context.Context) {
	for attempt := 1; attempt <= s.retryPolicy.MaxRetries; attempt++ {
		count, err := s.engine.SweepCompleted(ctx, s.clock.Now())
		if err == nil {
			if count > 0 {
				s.logger.Info().Int64("count", count).Msg("bookings swept to completed")
			}
			return
		}

		s.logger.Error().Err(err).Int("attempt", attempt).Msg("sweep failed")
		if attempt == s.retryPolicy.MaxRetries {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryPolicy.NextDelay(attempt)):
		}
	}
}
