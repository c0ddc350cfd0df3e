package domain

import (
	"context"
	"time"

	"zapisnik/internal/models"
)

// BookingStore is the engine's only I/O dependency. The *Checked methods
// re-validate overlap and quota inside a storage transaction, which is
// the serialization point against racing writers.
type BookingStore interface {
	InsertBooking(ctx context.Context, booking *models.Booking) error
	CreateBookingChecked(ctx context.Context, booking *models.Booking, weeklyLimit int, weekStart, weekEnd time.Time) error
	UpdateBookingChecked(ctx context.Context, booking *models.Booking, fromVersion int64, enforceQuota bool, weeklyLimit int, weekStart, weekEnd time.Time) error
	UpdateStatusWithVersion(ctx context.Context, id string, fromVersion int64, status string) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetActiveOverlapping(ctx context.Context, userID int64, start, end time.Time, excludeID string) ([]*models.Booking, error)
	GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error)
	GetBookingsByTimeRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
	CancelAllForUser(ctx context.Context, userID int64) (int64, error)
	MarkCompletedEndedBefore(ctx context.Context, now time.Time) (int64, error)
	CountActiveByUserInWeek(ctx context.Context, userID int64, weekStart, weekEnd time.Time) (int, error)
	CountActiveInWeek(ctx context.Context, weekStart, weekEnd time.Time) (map[int64]int, error)
}

// UserDirectory resolves referenced users; the engine never owns them.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetAllUsers(ctx context.Context) ([]*models.User, error)
	CreateOrUpdateUser(ctx context.Context, user *models.User) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// StateRepository backs the API rate limiter and the weekly report cache.
// Implementations: redis, in-memory, and a failover wrapper over both.
type StateRepository interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	GetCachedReport(ctx context.Context, weekKey string) (*models.WeeklyReport, error)
	SetCachedReport(ctx context.Context, weekKey string, report *models.WeeklyReport) error
	ClearCachedReport(ctx context.Context, weekKey string) error
}

type BookingEngine interface {
	CreateBooking(ctx context.Context, actor models.Actor, req models.CreateBookingRequest) (*models.Booking, error)
	UpdateBooking(ctx context.Context, actor models.Actor, id string, patch models.BookingPatch) (*models.Booking, error)
	CancelBooking(ctx context.Context, actor models.Actor, id string) (*models.Booking, error)
	CancelAllBookings(ctx context.Context, actor models.Actor, targetUserID int64) (int64, error)
	GetBooking(ctx context.Context, actor models.Actor, id string) (*models.Booking, error)
	GetUserBookings(ctx context.Context, actor models.Actor, userID int64) ([]*models.Booking, error)
	SweepCompleted(ctx context.Context, now time.Time) (int64, error)
	WeeklyCount(ctx context.Context, userID int64, at time.Time) (int, error)
	UsersBelowWeeklyTarget(ctx context.Context, at time.Time) (*models.WeeklyReport, error)
}
