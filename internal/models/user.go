package models

import "time"

type User struct {
	ID          int64     `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Role        string    `json:"role" yaml:"role"` // user, admin
	WeeklyLimit int       `json:"weekly_limit" yaml:"weekly_limit"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// Actor is the authenticated identity performing an engine operation.
type Actor struct {
	ID   int64  `json:"id"`
	Role string `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanActFor reports whether the actor may operate on bookings of userID.
func (a Actor) CanActFor(userID int64) bool {
	return a.ID == userID || a.IsAdmin()
}
