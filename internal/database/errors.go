package database

import "errors"

// Sentinel errors for booking operations. The engine and the API layer
// branch on these with errors.Is; messages are safe to show to callers.
var (
	ErrInvalidRange      = errors.New("end time must be after start time")
	ErrOutsideHours      = errors.New("start time is outside opening hours")
	ErrNotesTooLong      = errors.New("notes exceed maximum length")
	ErrOverlapConflict   = errors.New("booking overlaps another active booking")
	ErrQuotaExceeded     = errors.New("weekly booking limit reached")
	ErrUnauthorized      = errors.New("operation not permitted for this actor")
	ErrNotFound          = errors.New("booking not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidTransition = errors.New("status transition not allowed")

	// ErrConcurrentModification означает проигранную гонку версий;
	// движок повторяет операцию один раз со свежим чтением.
	ErrConcurrentModification = errors.New("booking was modified concurrently")
)
