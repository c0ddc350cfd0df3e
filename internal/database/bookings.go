package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"zapisnik/internal/models"

	"github.com/google/uuid"
)

const bookingColumns = `id, user_id, start_time, end_time, status, notes, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	b := &models.Booking{}
	var startUnix, endUnix int64
	err := row.Scan(
		&b.ID, &b.UserID, &startUnix, &endUnix, &b.Status, &b.Notes,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.StartTime = time.Unix(startUnix, 0).UTC()
	b.EndTime = time.Unix(endUnix, 0).UTC()
	return b, nil
}

// InsertBooking writes a booking without availability checks. Used for
// seeding and tests; production creates go through CreateBookingChecked.
func (db *DB) InsertBooking(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.Status == "" {
		booking.Status = models.StatusConfirmed
	}
	now := time.Now().UTC()
	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		booking.ID, booking.UserID,
		booking.StartTime.Unix(), booking.EndTime.Unix(),
		booking.Status, booking.Notes, now, now, 1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

// CreateBookingChecked inserts a confirmed booking after re-validating
// overlap and weekly quota inside one transaction. The transaction is the
// serialization point: two racing creates for the last slot cannot both
// pass the counts.
func (db *DB) CreateBookingChecked(ctx context.Context, booking *models.Booking, weeklyLimit int, weekStart, weekEnd time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Re-check overlap inside the transaction
	var overlapping int
	queryOverlap := `SELECT COUNT(*) FROM bookings
	                 WHERE user_id = ? AND status IN (?, ?)
	                 AND start_time < ? AND end_time > ?`
	err = tx.QueryRowContext(ctx, queryOverlap, booking.UserID,
		models.StatusConfirmed, models.StatusCompleted,
		booking.EndTime.Unix(), booking.StartTime.Unix()).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("failed to check overlap in tx: %w", err)
	}
	if overlapping > 0 {
		return ErrOverlapConflict
	}

	// 2. Re-check weekly quota inside the transaction
	var inWeek int
	queryWeek := `SELECT COUNT(*) FROM bookings
	              WHERE user_id = ? AND status IN (?, ?)
	              AND start_time >= ? AND start_time < ?`
	err = tx.QueryRowContext(ctx, queryWeek, booking.UserID,
		models.StatusConfirmed, models.StatusCompleted,
		weekStart.Unix(), weekEnd.Unix()).Scan(&inWeek)
	if err != nil {
		return fmt.Errorf("failed to check quota in tx: %w", err)
	}
	if inWeek >= weeklyLimit {
		return ErrQuotaExceeded
	}

	// 3. Insert
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	booking.Status = models.StatusConfirmed
	now := time.Now().UTC()
	queryInsert := `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, queryInsert,
		booking.ID, booking.UserID,
		booking.StartTime.Unix(), booking.EndTime.Unix(),
		booking.Status, booking.Notes, now, now, 1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	return tx.Commit()
}

// UpdateBookingChecked applies new times/notes/status under a version
// guard, re-validating overlap (excluding the booking itself) and, when
// enforceQuota is set, the weekly quota for the target week.
func (db *DB) UpdateBookingChecked(ctx context.Context, booking *models.Booking, fromVersion int64, enforceQuota bool, weeklyLimit int, weekStart, weekEnd time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Отменённая заявка слот не занимает, проверка пересечений не нужна
	if booking.IsActive() || booking.Status == models.StatusCompleted {
		var overlapping int
		queryOverlap := `SELECT COUNT(*) FROM bookings
		                 WHERE user_id = ? AND id != ? AND status IN (?, ?)
		                 AND start_time < ? AND end_time > ?`
		err = tx.QueryRowContext(ctx, queryOverlap, booking.UserID, booking.ID,
			models.StatusConfirmed, models.StatusCompleted,
			booking.EndTime.Unix(), booking.StartTime.Unix()).Scan(&overlapping)
		if err != nil {
			return fmt.Errorf("failed to check overlap in tx: %w", err)
		}
		if overlapping > 0 {
			return ErrOverlapConflict
		}
	}

	if enforceQuota {
		var inWeek int
		queryWeek := `SELECT COUNT(*) FROM bookings
		              WHERE user_id = ? AND id != ? AND status IN (?, ?)
		              AND start_time >= ? AND start_time < ?`
		err = tx.QueryRowContext(ctx, queryWeek, booking.UserID, booking.ID,
			models.StatusConfirmed, models.StatusCompleted,
			weekStart.Unix(), weekEnd.Unix()).Scan(&inWeek)
		if err != nil {
			return fmt.Errorf("failed to check quota in tx: %w", err)
		}
		if inWeek >= weeklyLimit {
			return ErrQuotaExceeded
		}
	}

	queryUpdate := `UPDATE bookings
	                SET start_time = ?, end_time = ?, notes = ?, status = ?,
	                    version = version + 1, updated_at = ?
	                WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, queryUpdate,
		booking.StartTime.Unix(), booking.EndTime.Unix(),
		booking.Notes, booking.Status, time.Now().UTC(),
		booking.ID, fromVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking in tx: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	booking.Version = fromVersion + 1

	return tx.Commit()
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// GetActiveOverlapping returns the user's active bookings intersecting
// [start, end), excluding excludeID when non-empty.
func (db *DB) GetActiveOverlapping(ctx context.Context, userID int64, start, end time.Time, excludeID string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	          WHERE user_id = ? AND id != ? AND status IN (?, ?)
	          AND start_time < ? AND end_time > ?
	          ORDER BY start_time ASC`
	return db.queryBookings(ctx, query, userID, excludeID,
		models.StatusConfirmed, models.StatusCompleted,
		end.Unix(), start.Unix())
}

func (db *DB) GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	          WHERE user_id = ? ORDER BY start_time DESC`
	return db.queryBookings(ctx, query, userID)
}

func (db *DB) UpdateStatusWithVersion(ctx context.Context, id string, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// CancelAllForUser cancels every non-terminal booking of the user in one
// conditional UPDATE. Idempotent and order-independent.
func (db *DB) CancelAllForUser(ctx context.Context, userID int64) (int64, error) {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
	          WHERE user_id = ? AND status = ?`
	result, err := db.ExecContext(ctx, query,
		models.StatusCancelled, time.Now().UTC(), userID, models.StatusConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel user bookings: %w", err)
	}
	return result.RowsAffected()
}

// MarkCompletedEndedBefore transitions elapsed confirmed bookings to
// completed. Cancelled rows are never touched; running twice is a no-op.
func (db *DB) MarkCompletedEndedBefore(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
	          WHERE status = ? AND end_time <= ?`
	result, err := db.ExecContext(ctx, query,
		models.StatusCompleted, time.Now().UTC(), models.StatusConfirmed, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep completed bookings: %w", err)
	}
	return result.RowsAffected()
}

func (db *DB) CountActiveByUserInWeek(ctx context.Context, userID int64, weekStart, weekEnd time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM bookings
	          WHERE user_id = ? AND status IN (?, ?)
	          AND start_time >= ? AND start_time < ?`
	var count int
	err := db.QueryRowContext(ctx, query, userID,
		models.StatusConfirmed, models.StatusCompleted,
		weekStart.Unix(), weekEnd.Unix()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count weekly bookings: %w", err)
	}
	return count, nil
}

// CountActiveInWeek returns active booking counts per user for the week
// in a single GROUP BY query; users without bookings are absent.
func (db *DB) CountActiveInWeek(ctx context.Context, weekStart, weekEnd time.Time) (map[int64]int, error) {
	query := `SELECT user_id, COUNT(*) FROM bookings
	          WHERE status IN (?, ?) AND start_time >= ? AND start_time < ?
	          GROUP BY user_id`
	rows, err := db.QueryContext(ctx, query,
		models.StatusConfirmed, models.StatusCompleted,
		weekStart.Unix(), weekEnd.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to count weekly bookings: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var userID int64
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan weekly count: %w", err)
		}
		counts[userID] = count
	}
	return counts, rows.Err()
}

// GetBookingsByTimeRange returns all bookings starting in [start, end),
// any status, ordered by start time. Used by reports and exports.
func (db *DB) GetBookingsByTimeRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	          WHERE start_time >= ? AND start_time < ?
	          ORDER BY start_time ASC`
	return db.queryBookings(ctx, query, start.Unix(), end.Unix())
}
