package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"zapisnik/internal/models"
	"zapisnik/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// sweepRecorder implements domain.BookingEngine for sweep calls only.
type sweepRecorder struct {
	mu       sync.Mutex
	calls    []time.Time
	failures int
}

func (s *sweepRecorder) SweepCompleted(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, now)
	if s.failures > 0 {
		s.failures--
		return 0, errors.New("database is locked")
	}
	return 2, nil
}

func (s *sweepRecorder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *sweepRecorder) CreateBooking(ctx context.Context, actor models.Actor, req models.CreateBookingRequest) (*models.Booking, error) {
	return nil, nil
}

func (s *sweepRecorder) UpdateBooking(ctx context.Context, actor models.Actor, id string, patch models.BookingPatch) (*models.Booking, error) {
	return nil, nil
}

func (s *sweepRecorder) CancelBooking(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	return nil, nil
}

func (s *sweepRecorder) CancelAllBookings(ctx context.Context, actor models.Actor, targetUserID int64) (int64, error) {
	return 0, nil
}

func (s *sweepRecorder) GetBooking(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	return nil, nil
}

func (s *sweepRecorder) GetUserBookings(ctx context.Context, actor models.Actor, userID int64) ([]*models.Booking, error) {
	return nil, nil
}

func (s *sweepRecorder) WeeklyCount(ctx context.Context, userID int64, at time.Time) (int, error) {
	return 0, nil
}

func (s *sweepRecorder) UsersBelowWeeklyTarget(ctx context.Context, at time.Time) (*models.WeeklyReport, error) {
	return nil, nil
}

func TestSweeperRunOnce(t *testing.T) {
	logger := zerolog.Nop()
	recorder := &sweepRecorder{}
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	sweeper := NewSweeper(recorder, schedule.FixedClock{T: now}, time.Minute, RetryPolicy{}, &logger)
	sweeper.RunOnce(context.Background())

	assert.Equal(t, 1, recorder.callCount())
	assert.True(t, recorder.calls[0].Equal(now), "sweep uses the injected clock")
}

func TestSweeperRunOnce_RetriesOnFailure(t *testing.T) {
	logger := zerolog.Nop()
	recorder := &sweepRecorder{failures: 2}

	retry := RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
	sweeper := NewSweeper(recorder, schedule.RealClock{}, time.Minute, retry, &logger)
	sweeper.RunOnce(context.Background())

	// Two failures, then one success
	assert.Equal(t, 3, recorder.callCount())
}

func TestSweeperRunOnce_GivesUpAfterMaxRetries(t *testing.T) {
	logger := zerolog.Nop()
	recorder := &sweepRecorder{failures: 10}

	retry := RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
	sweeper := NewSweeper(recorder, schedule.RealClock{}, time.Minute, retry, &logger)
	sweeper.RunOnce(context.Background())

	assert.Equal(t, 2, recorder.callCount())
}

func TestSweeperStart_RunsImmediatelyAndStops(t *testing.T) {
	logger := zerolog.Nop()
	recorder := &sweepRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	sweeper := NewSweeper(recorder, schedule.RealClock{}, time.Hour, RetryPolicy{}, &logger)

	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	// The first sweep happens before the first tick
	assert.Eventually(t, func() bool { return recorder.callCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	// Clamped to MaxDelay
	assert.Equal(t, 5*time.Second, policy.NextDelay(4))
	// Attempt below 1 behaves like the first
	assert.Equal(t, time.Second, policy.NextDelay(0))
}
