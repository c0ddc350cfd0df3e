package schedule

import (
	"time"

	"zapisnik/internal/database"
	"zapisnik/internal/models"
)

// OpeningHours bounds the start hour of a booking in facility local time.
// Only the start is constrained: a slot starting at 19:30 may run past
// closing, matching how the facility operates today.
type OpeningHours struct {
	Open     int
	Close    int
	Location *time.Location
}

func (h OpeningHours) AllowsStart(t time.Time) bool {
	hour := t.In(h.Location).Hour()
	return hour >= h.Open && hour < h.Close
}

// Range is a candidate [Start, End) slot.
type Range struct {
	Start time.Time
	End   time.Time
}

// CheckConflict validates a candidate slot against the time-range rule,
// opening hours and the user's other active bookings, in that order; the
// first failed check wins. Pure function, no I/O.
//
// excludeID removes the booking being updated from its own overlap set.
func CheckConflict(candidate Range, hours OpeningHours, existing []*models.Booking, excludeID string) error {
	if !candidate.End.After(candidate.Start) {
		return database.ErrInvalidRange
	}
	if !hours.AllowsStart(candidate.Start) {
		return database.ErrOutsideHours
	}
	for _, b := range existing {
		if b.ID == excludeID || !b.IsActive() {
			continue
		}
		if b.Overlaps(candidate.Start, candidate.End) {
			return database.ErrOverlapConflict
		}
	}
	return nil
}
