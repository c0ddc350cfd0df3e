package repository

import (
	"context"
	"sync/atomic"
	"time"

	"zapisnik/internal/domain"
	"zapisnik/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStateRepository serves from the primary (Redis) repository and
// falls back to the in-memory one when the primary errors. Recovery is
// probed at most once a minute.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary state repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverStateRepository) shouldProbe() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() || r.shouldProbe() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.isDown.Store(false)
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}

func (r *FailoverStateRepository) GetCachedReport(ctx context.Context, weekKey string) (*models.WeeklyReport, error) {
	if !r.isDown.Load() || r.shouldProbe() {
		report, err := r.primary.GetCachedReport(ctx, weekKey)
		if err == nil {
			r.isDown.Store(false)
			return report, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetCachedReport(ctx, weekKey)
}

func (r *FailoverStateRepository) SetCachedReport(ctx context.Context, weekKey string, report *models.WeeklyReport) error {
	if !r.isDown.Load() || r.shouldProbe() {
		err := r.primary.SetCachedReport(ctx, weekKey, report)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetCachedReport(ctx, weekKey, report)
}

func (r *FailoverStateRepository) ClearCachedReport(ctx context.Context, weekKey string) error {
	if !r.isDown.Load() || r.shouldProbe() {
		err := r.primary.ClearCachedReport(ctx, weekKey)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.ClearCachedReport(ctx, weekKey)
}
