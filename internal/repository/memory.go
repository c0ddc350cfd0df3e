package repository

import (
	"context"
	"sync"
	"time"

	"zapisnik/internal/models"
)

// MemoryStateRepository keeps rate-limit counters and cached reports in
// process memory. Used directly in tests and as the failover target when
// Redis is unavailable.
type MemoryStateRepository struct {
	mu         sync.Mutex
	reports    map[string]cachedReport
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
}

type cachedReport struct {
	report    *models.WeeklyReport
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		reports:    make(map[string]cachedReport),
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
	}
}

func (r *MemoryStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	} else {
		entry.count++
	}

	return entry.count <= limit, nil
}

func (r *MemoryStateRepository) GetCachedReport(ctx context.Context, weekKey string) (*models.WeeklyReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cached, ok := r.reports[weekKey]
	if !ok {
		return nil, nil
	}
	if time.Now().After(cached.expiresAt) {
		delete(r.reports, weekKey)
		return nil, nil
	}
	return cached.report, nil
}

func (r *MemoryStateRepository) SetCachedReport(ctx context.Context, weekKey string, report *models.WeeklyReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reports[weekKey] = cachedReport{report: report, expiresAt: time.Now().Add(r.ttl)}
	return nil
}

func (r *MemoryStateRepository) ClearCachedReport(ctx context.Context, weekKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.reports, weekKey)
	return nil
}
