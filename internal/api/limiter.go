package api

import (
	"context"
	"sync"
	"time"

	"zapisnik/internal/config"
	"zapisnik/internal/domain"

	"golang.org/x/time/rate"
)

// rateLimiter combines a local token bucket per client with the shared
// redis-backed window so limits hold across instances. The shared check
// is advisory: a state repository error never blocks a request.
type rateLimiter struct {
	limiters sync.Map
	cfg      *config.APIConfig
	state    domain.StateRepository
}

func newRateLimiter(cfg *config.APIConfig, state domain.StateRepository) *rateLimiter {
	return &rateLimiter{
		cfg:   cfg,
		state: state,
	}
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	burst := l.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}
	rps := l.cfg.RateLimit.RPS
	if rps <= 0 {
		rps = 10
	}

	lim := rate.NewLimiter(rate.Limit(rps), burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}

func (l *rateLimiter) Allow(ctx context.Context, clientName string) bool {
	if !l.getLimiter(clientName).Allow() {
		return false
	}

	if l.state != nil {
		window := time.Duration(l.cfg.RateLimit.WindowSec) * time.Second
		allowed, err := l.state.CheckRateLimit(ctx, clientName, l.cfg.RateLimit.Requests, window)
		if err == nil && !allowed {
			return false
		}
	}
	return true
}
