package models

import "time"

// CreateBookingRequest is the validated input for a create operation.
// Shape validation (parsing, required fields) happens at the boundary;
// the engine only applies business rules to it.
type CreateBookingRequest struct {
	UserID    int64     `json:"user_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Notes     string    `json:"notes,omitempty"`
}

// BookingPatch carries the fields an update may change. Nil means "leave
// as is".
type BookingPatch struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
	Status    *string    `json:"status,omitempty"`
}

func (p BookingPatch) ChangesTimes() bool {
	return p.StartTime != nil || p.EndTime != nil
}

func (p BookingPatch) IsEmpty() bool {
	return p.StartTime == nil && p.EndTime == nil && p.Notes == nil && p.Status == nil
}
