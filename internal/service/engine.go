package service

import (
	"context"
	"errors"
	"time"

	"zapisnik/internal/database"
	"zapisnik/internal/domain"
	"zapisnik/internal/events"
	"zapisnik/internal/models"
	"zapisnik/internal/schedule"

	"github.com/rs/zerolog"
)

// Engine decides whether bookings may be created or modified, enforces
// weekly quotas and the booking state machine, and owns owner-or-admin
// authorization. It keeps no mutable state of its own; one instance is
// shared by all callers.
type Engine struct {
	store              domain.BookingStore
	users              domain.UserDirectory
	eventBus           domain.EventPublisher
	clock              schedule.Clock
	hours              schedule.OpeningHours
	defaultWeeklyLimit int
	logger             *zerolog.Logger
}

func NewEngine(store domain.BookingStore, users domain.UserDirectory, eventBus domain.EventPublisher, clock schedule.Clock, hours schedule.OpeningHours, defaultWeeklyLimit int, logger *zerolog.Logger) *Engine {
	if defaultWeeklyLimit <= 0 {
		defaultWeeklyLimit = models.DefaultWeeklyLimit
	}
	if hours.Location == nil {
		hours.Location = time.UTC
	}
	if clock == nil {
		clock = schedule.RealClock{}
	}
	return &Engine{
		store:              store,
		users:              users,
		eventBus:           eventBus,
		clock:              clock,
		hours:              hours,
		defaultWeeklyLimit: defaultWeeklyLimit,
		logger:             logger,
	}
}

func (e *Engine) weeklyLimitFor(user *models.User) int {
	if user.WeeklyLimit > 0 {
		return user.WeeklyLimit
	}
	return e.defaultWeeklyLimit
}

// CreateBooking validates a candidate slot against the conflict and quota
// policies and persists a confirmed booking. The store transaction
// repeats both checks, so two racing creates for the last slot cannot
// both commit.
func (e *Engine) CreateBooking(ctx context.Context, actor models.Actor, req models.CreateBookingRequest) (*models.Booking, error) {
	if !actor.CanActFor(req.UserID) {
		return nil, database.ErrUnauthorized
	}
	if len(req.Notes) > models.NotesMaxLength {
		return nil, database.ErrNotesTooLong
	}

	user, err := e.users.GetUserByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	candidate := schedule.Range{Start: req.StartTime, End: req.EndTime}
	overlapping, err := e.store.GetActiveOverlapping(ctx, req.UserID, req.StartTime, req.EndTime, "")
	if err != nil {
		return nil, err
	}
	if err := schedule.CheckConflict(candidate, e.hours, overlapping, ""); err != nil {
		return nil, err
	}

	week := schedule.WeekOf(req.StartTime, e.hours.Location)
	limit := e.weeklyLimitFor(user)
	count, err := e.store.CountActiveByUserInWeek(ctx, req.UserID, week.Start, week.End)
	if err != nil {
		return nil, err
	}
	if !schedule.HasCapacity(limit, count) {
		return nil, database.ErrQuotaExceeded
	}

	booking := &models.Booking{
		UserID:    req.UserID,
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
		Status:    models.StatusConfirmed,
		Notes:     req.Notes,
	}
	if err := e.store.CreateBookingChecked(ctx, booking, limit, week.Start, week.End); err != nil {
		return nil, err
	}

	e.publish(events.EventBookingCreated, booking, actor)
	return booking, nil
}

// UpdateBooking applies a patch to times, notes or status. Time changes
// re-run the conflict policy (excluding the booking itself) and, when the
// start moves into a different week, the quota policy. A lost version
// race is retried once with a fresh read.
func (e *Engine) UpdateBooking(ctx context.Context, actor models.Actor, id string, patch models.BookingPatch) (*models.Booking, error) {
	if patch.IsEmpty() {
		return nil, database.ErrInvalidRange
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		booking, err := e.store.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		if !actor.CanActFor(booking.UserID) {
			return nil, database.ErrUnauthorized
		}

		updated := *booking
		if patch.StartTime != nil {
			updated.StartTime = patch.StartTime.UTC()
		}
		if patch.EndTime != nil {
			updated.EndTime = patch.EndTime.UTC()
		}
		if patch.Notes != nil {
			if len(*patch.Notes) > models.NotesMaxLength {
				return nil, database.ErrNotesTooLong
			}
			updated.Notes = *patch.Notes
		}
		if patch.Status != nil && *patch.Status != booking.Status {
			if err := checkTransition(booking.Status, *patch.Status); err != nil {
				return nil, err
			}
			updated.Status = *patch.Status
		}

		enforceQuota := false
		limit := 0
		week := schedule.WeekOf(updated.StartTime, e.hours.Location)
		if patch.ChangesTimes() {
			// Времена можно менять только у активной незавершённой заявки
			if booking.IsTerminal() {
				return nil, database.ErrInvalidTransition
			}

			candidate := schedule.Range{Start: updated.StartTime, End: updated.EndTime}
			overlapping, err := e.store.GetActiveOverlapping(ctx, booking.UserID, updated.StartTime, updated.EndTime, booking.ID)
			if err != nil {
				return nil, err
			}
			if err := schedule.CheckConflict(candidate, e.hours, overlapping, booking.ID); err != nil {
				return nil, err
			}

			oldWeek := schedule.WeekOf(booking.StartTime, e.hours.Location)
			if !week.Equal(oldWeek) {
				user, err := e.users.GetUserByID(ctx, booking.UserID)
				if err != nil {
					return nil, err
				}
				limit = e.weeklyLimitFor(user)
				count, err := e.store.CountActiveByUserInWeek(ctx, booking.UserID, week.Start, week.End)
				if err != nil {
					return nil, err
				}
				if !schedule.HasCapacity(limit, count) {
					return nil, database.ErrQuotaExceeded
				}
				enforceQuota = true
			}
		}

		err = e.store.UpdateBookingChecked(ctx, &updated, booking.Version, enforceQuota, limit, week.Start, week.End)
		if errors.Is(err, database.ErrConcurrentModification) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		switch {
		case updated.Status == models.StatusCancelled && booking.Status != models.StatusCancelled:
			e.publish(events.EventBookingCancelled, &updated, actor)
		case updated.Status == models.StatusCompleted && booking.Status != models.StatusCompleted:
			e.publish(events.EventBookingCompleted, &updated, actor)
		default:
			e.publish(events.EventBookingUpdated, &updated, actor)
		}
		return &updated, nil
	}
	return nil, lastErr
}

// CancelBooking moves a confirmed booking to cancelled. Cancelling an
// already cancelled booking is a no-op success so clients may retry after
// timeouts; cancelling a completed booking is an invalid transition. The
// row is never deleted.
func (e *Engine) CancelBooking(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		booking, err := e.store.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		if !actor.CanActFor(booking.UserID) {
			return nil, database.ErrUnauthorized
		}
		if booking.Status == models.StatusCancelled {
			return booking, nil
		}
		if booking.Status == models.StatusCompleted {
			return nil, database.ErrInvalidTransition
		}

		err = e.store.UpdateStatusWithVersion(ctx, booking.ID, booking.Version, models.StatusCancelled)
		if errors.Is(err, database.ErrConcurrentModification) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		booking.Status = models.StatusCancelled
		booking.Version++
		e.publish(events.EventBookingCancelled, booking, actor)
		return booking, nil
	}
	return nil, lastErr
}

// CancelAllBookings cancels every non-terminal booking of the target user
// and returns the count. A single conditional UPDATE keeps each row's
// transition independent; re-running after a partial failure is safe.
func (e *Engine) CancelAllBookings(ctx context.Context, actor models.Actor, targetUserID int64) (int64, error) {
	if !actor.CanActFor(targetUserID) {
		return 0, database.ErrUnauthorized
	}

	count, err := e.store.CancelAllForUser(ctx, targetUserID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		e.publishBulk(events.EventBookingsBulkCanceled, events.BulkEventPayload{UserID: targetUserID, Count: count})
	}
	return count, nil
}

// SweepCompleted transitions every confirmed booking that ended at or
// before now to completed. Idempotent; safe to run concurrently with
// creates and updates.
func (e *Engine) SweepCompleted(ctx context.Context, now time.Time) (int64, error) {
	count, err := e.store.MarkCompletedEndedBefore(ctx, now)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		e.publishBulk(events.EventBookingsSwept, events.BulkEventPayload{Count: count, Before: now})
	}
	return count, nil
}

// GetBooking returns a booking to its owner or an admin. A foreign
// booking yields ErrUnauthorized whether or not the payload would be
// valid, so nothing beyond existence leaks.
func (e *Engine) GetBooking(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	booking, err := e.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanActFor(booking.UserID) {
		return nil, database.ErrUnauthorized
	}
	return booking, nil
}

func (e *Engine) GetUserBookings(ctx context.Context, actor models.Actor, userID int64) ([]*models.Booking, error) {
	if !actor.CanActFor(userID) {
		return nil, database.ErrUnauthorized
	}
	return e.store.GetUserBookings(ctx, userID)
}

// checkTransition enforces the booking state machine: confirmed is the
// only non-terminal state.
func checkTransition(from, to string) error {
	if from != models.StatusConfirmed {
		return database.ErrInvalidTransition
	}
	switch to {
	case models.StatusCancelled, models.StatusCompleted:
		return nil
	default:
		return database.ErrInvalidTransition
	}
}

func (e *Engine) publish(eventType string, booking *models.Booking, actor models.Actor) {
	if e.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		Status:    booking.Status,
		StartTime: booking.StartTime,
		EndTime:   booking.EndTime,
		Notes:     booking.Notes,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
	}

	if err := e.eventBus.PublishJSON(eventType, payload); err != nil {
		e.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func (e *Engine) publishBulk(eventType string, payload events.BulkEventPayload) {
	if e.eventBus == nil {
		return
	}
	if err := e.eventBus.PublishJSON(eventType, payload); err != nil {
		e.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
