package schedule

import "time"

// Clock supplies the current time. Injected into the engine so tests can
// pin "now" to a fixed instant.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// Week is the half-open interval [Start, End) from Monday 00:00 inclusive
// to the following Monday 00:00 exclusive, in the facility location.
type Week struct {
	Start time.Time
	End   time.Time
}

// WeekOf returns the week containing t, computed in loc.
func WeekOf(t time.Time, loc *time.Location) Week {
	local := t.In(loc)
	// Weekday() считает от воскресенья, неделя начинается с понедельника
	offset := (int(local.Weekday()) + 6) % 7
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	start := day.AddDate(0, 0, -offset)
	return Week{Start: start, End: start.AddDate(0, 0, 7)}
}

func (w Week) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Week) Equal(other Week) bool {
	return w.Start.Equal(other.Start)
}

// Key returns a stable identifier for cache keys and logs.
func (w Week) Key() string {
	return w.Start.Format("2006-01-02")
}
