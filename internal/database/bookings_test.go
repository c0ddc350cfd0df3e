package database

import (
	"context"
	"testing"
	"time"

	"zapisnik/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	return db
}

func testWeek() (time.Time, time.Time) {
	// Monday 2025-06-02
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 7)
}

func slot(day, hour int) (time.Time, time.Time) {
	start := time.Date(2025, 6, day, hour, 0, 0, 0, time.UTC)
	return start, start.Add(time.Hour)
}

func TestCreateBookingChecked(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	weekStart, weekEnd := testWeek()

	start, end := slot(2, 10)
	booking := &models.Booking{UserID: 1, StartTime: start, EndTime: end}
	err := db.CreateBookingChecked(ctx, booking, 3, weekStart, weekEnd)
	require.NoError(t, err)
	assert.NotEmpty(t, booking.ID)
	assert.Equal(t, models.StatusConfirmed, booking.Status)
	assert.Equal(t, int64(1), booking.Version)

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)
	assert.True(t, got.StartTime.Equal(start))
	assert.True(t, got.EndTime.Equal(end))
}

func TestCreateBookingChecked_Overlap(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	weekStart, weekEnd := testWeek()

	start, end := slot(2, 10)
	first := &models.Booking{UserID: 1, StartTime: start, EndTime: end}
	require.NoError(t, db.CreateBookingChecked(ctx, first, 3, weekStart, weekEnd))

	// Intersecting slot for the same user is rejected
	second := &models.Booking{UserID: 1, StartTime: start.Add(30 * time.Minute), EndTime: end.Add(30 * time.Minute)}
	err := db.CreateBookingChecked(ctx, second, 3, weekStart, weekEnd)
	assert.ErrorIs(t, err, ErrOverlapConflict)

	// Same slot for another user is fine
	other := &models.Booking{UserID: 2, StartTime: start, EndTime: end}
	assert.NoError(t, db.CreateBookingChecked(ctx, other, 3, weekStart, weekEnd))

	// Back-to-back slot for the same user is fine
	adjacent := &models.Booking{UserID: 1, StartTime: end, EndTime: end.Add(time.Hour)}
	assert.NoError(t, db.CreateBookingChecked(ctx, adjacent, 3, weekStart, weekEnd))
}

func TestCreateBookingChecked_Quota(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	weekStart, weekEnd := testWeek()

	for day := 2; day <= 3; day++ {
		start, end := slot(day, 10)
		b := &models.Booking{UserID: 1, StartTime: start, EndTime: end}
		require.NoError(t, db.CreateBookingChecked(ctx, b, 2, weekStart, weekEnd))
	}

	start, end := slot(4, 10)
	over := &models.Booking{UserID: 1, StartTime: start, EndTime: end}
	err := db.CreateBookingChecked(ctx, over, 2, weekStart, weekEnd)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestCreateBookingChecked_CancelledFreesQuota(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	weekStart, weekEnd := testWeek()

	start, end := slot(2, 10)
	b := &models.Booking{UserID: 1, StartTime: start, EndTime: end}
	require.NoError(t, db.CreateBookingChecked(ctx, b, 1, weekStart, weekEnd))

	require.NoError(t, db.UpdateStatusWithVersion(ctx, b.ID, b.Version, models.StatusCancelled))

	// The cancelled booking no longer counts toward quota or overlap
	again := &models.Booking{UserID: 1, StartTime: start, EndTime: end}
	assert.NoError(t, db.CreateBookingChecked(ctx, again, 1, weekStart, weekEnd))
}

func TestUpdateBookingChecked(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	weekStart, weekEnd := testWeek()

	start, end := slot(2, 10)
	b := &models.Booking{UserID: 1, StartTime: start, EndTime: end}
	require.NoError(t, db.CreateBookingChecked(ctx, b, 3, weekStart, weekEnd))

	updated := *b
	updated.StartTime, updated.EndTime = slot(3, 11)
	updated.Notes = "перенос"
	require.NoError(t, db.UpdateBookingChecked(ctx, &updated, b.Version, false, 0, weekStart, weekEnd))
	assert.Equal(t, int64(2), updated.Version)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.StartTime.Equal(updated.StartTime))
	assert.Equal(t, "перенос", got.Notes)
	assert.Equal(t, int64(2), got.Version)
}

func TestUpdateBookingChecked_StaleVersion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	weekStart, weekEnd := testWeek()

	start, end := slot(2, 10)
	b := &models.Booking{UserID: 1, StartTime: start, EndTime: end}
	require.NoError(t, db.CreateBookingChecked(ctx, b, 3, weekStart, weekEnd))

	first := *b
	first.Notes = "first"
	require.NoError(t, db.UpdateBookingChecked(ctx, &first, 1, false, 0, weekStart, weekEnd))

	// Second writer still holds version 1
	second := *b
	second.Notes = "second"
	err := db.UpdateBookingChecked(ctx, &second, 1, false, 0, weekStart, weekEnd)
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestUpdateBookingChecked_OverlapExcludesSelf(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	weekStart, weekEnd := testWeek()

	start, end := slot(2, 10)
	b := &models.Booking{UserID: 1, StartTime: start, EndTime: end}
	require.NoError(t, db.CreateBookingChecked(ctx, b, 3, weekStart, weekEnd))

	// Shifting within its own old slot must not self-conflict
	updated := *b
	updated.StartTime = start.Add(15 * time.Minute)
	updated.EndTime = end.Add(15 * time.Minute)
	assert.NoError(t, db.UpdateBookingChecked(ctx, &updated, b.Version, false, 0, weekStart, weekEnd))
}

func TestUpdateBookingChecked_CancelledSkipsOverlap(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	weekStart, weekEnd := testWeek()

	start, end := slot(2, 10)
	b := &models.Booking{UserID: 1, StartTime: start, EndTime: end}
	require.NoError(t, db.CreateBookingChecked(ctx, b, 3, weekStart, weekEnd))
	require.NoError(t, db.UpdateStatusWithVersion(ctx, b.ID, b.Version, models.StatusCancelled))

	// The freed slot is taken by a new active booking
	taken := &models.Booking{UserID: 1, StartTime: start, EndTime: end}
	require.NoError(t, db.CreateBookingChecked(ctx, taken, 3, weekStart, weekEnd))

	// Editing notes on the cancelled booking must not trip the overlap check
	cancelled, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	cancelled.Notes = "отменено клиентом"
	assert.NoError(t, db.UpdateBookingChecked(ctx, cancelled, cancelled.Version, false, 0, weekStart, weekEnd))
}

func TestGetBooking_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.GetBooking(context.Background(), "missing-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelAllForUser(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	weekStart, weekEnd := testWeek()

	for day := 2; day <= 4; day++ {
		start, end := slot(day, 10)
		b := &models.Booking{UserID: 1, StartTime: start, EndTime: end}
		require.NoError(t, db.CreateBookingChecked(ctx, b, 10, weekStart, weekEnd))
	}
	// One already completed booking must stay untouched
	start, end := slot(5, 10)
	done := &models.Booking{UserID: 1, StartTime: start, EndTime: end, Status: models.StatusCompleted}
	require.NoError(t, db.InsertBooking(ctx, done))

	count, err := db.CancelAllForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Second run is a no-op
	count, err = db.CancelAllForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	got, err := db.GetBooking(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestMarkCompletedEndedBefore(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	weekStart, weekEnd := testWeek()

	endedStart, endedEnd := slot(2, 9)
	ended := &models.Booking{UserID: 1, StartTime: endedStart, EndTime: endedEnd}
	require.NoError(t, db.CreateBookingChecked(ctx, ended, 10, weekStart, weekEnd))

	futureStart, futureEnd := slot(2, 14)
	future := &models.Booking{UserID: 1, StartTime: futureStart, EndTime: futureEnd}
	require.NoError(t, db.CreateBookingChecked(ctx, future, 10, weekStart, weekEnd))

	cancelledStart, cancelledEnd := slot(2, 11)
	cancelled := &models.Booking{UserID: 2, StartTime: cancelledStart, EndTime: cancelledEnd, Status: models.StatusCancelled}
	require.NoError(t, db.InsertBooking(ctx, cancelled))

	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	count, err := db.MarkCompletedEndedBefore(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, _ := db.GetBooking(ctx, ended.ID)
	assert.Equal(t, models.StatusCompleted, got.Status)
	got, _ = db.GetBooking(ctx, future.ID)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	got, _ = db.GetBooking(ctx, cancelled.ID)
	assert.Equal(t, models.StatusCancelled, got.Status)

	// Idempotent
	count, err = db.MarkCompletedEndedBefore(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestCountActiveInWeek(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	weekStart, weekEnd := testWeek()

	for day := 2; day <= 3; day++ {
		start, end := slot(day, 10)
		b := &models.Booking{UserID: 1, StartTime: start, EndTime: end}
		require.NoError(t, db.CreateBookingChecked(ctx, b, 10, weekStart, weekEnd))
	}
	start, end := slot(4, 10)
	b2 := &models.Booking{UserID: 2, StartTime: start, EndTime: end}
	require.NoError(t, db.CreateBookingChecked(ctx, b2, 10, weekStart, weekEnd))

	// Booking in the following week is outside the window
	nextStart := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	next := &models.Booking{UserID: 1, StartTime: nextStart, EndTime: nextStart.Add(time.Hour)}
	require.NoError(t, db.InsertBooking(ctx, next))

	counts, err := db.CountActiveInWeek(ctx, weekStart, weekEnd)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 2, 2: 1}, counts)

	single, err := db.CountActiveByUserInWeek(ctx, 1, weekStart, weekEnd)
	require.NoError(t, err)
	assert.Equal(t, 2, single)
}

func TestGetBookingsByTimeRange(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	weekStart, weekEnd := testWeek()

	start, end := slot(3, 10)
	b := &models.Booking{UserID: 1, StartTime: start, EndTime: end}
	require.NoError(t, db.CreateBookingChecked(ctx, b, 10, weekStart, weekEnd))

	got, err := db.GetBookingsByTimeRange(ctx, weekStart, weekEnd)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)

	got, err = db.GetBookingsByTimeRange(ctx, weekEnd, weekEnd.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetUserBookings_Order(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	weekStart, weekEnd := testWeek()

	early, earlyEnd := slot(2, 9)
	late, lateEnd := slot(4, 9)
	b1 := &models.Booking{UserID: 1, StartTime: early, EndTime: earlyEnd}
	b2 := &models.Booking{UserID: 1, StartTime: late, EndTime: lateEnd}
	require.NoError(t, db.CreateBookingChecked(ctx, b1, 10, weekStart, weekEnd))
	require.NoError(t, db.CreateBookingChecked(ctx, b2, 10, weekStart, weekEnd))

	got, err := db.GetUserBookings(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest slot first
	assert.Equal(t, b2.ID, got[0].ID)
	assert.Equal(t, b1.ID, got[1].ID)
}
