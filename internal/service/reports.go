package service

import (
	"context"
	"sort"
	"time"

	"zapisnik/internal/models"
	"zapisnik/internal/schedule"
)

// WeeklyCount returns the number of the user's active bookings whose
// start time falls in the week containing at. Pure read.
func (e *Engine) WeeklyCount(ctx context.Context, userID int64, at time.Time) (int, error) {
	if at.IsZero() {
		at = e.clock.Now()
	}
	week := schedule.WeekOf(at, e.hours.Location)
	return e.store.CountActiveByUserInWeek(ctx, userID, week.Start, week.End)
}

// UsersBelowWeeklyTarget reports members with no bookings in the week
// containing at, and separately members with some bookings but fewer
// than their weekly limit. Admin accounts are not expected to book and
// are left out of both lists.
func (e *Engine) UsersBelowWeeklyTarget(ctx context.Context, at time.Time) (*models.WeeklyReport, error) {
	if at.IsZero() {
		at = e.clock.Now()
	}
	week := schedule.WeekOf(at, e.hours.Location)

	users, err := e.users.GetAllUsers(ctx)
	if err != nil {
		return nil, err
	}

	counts, err := e.store.CountActiveInWeek(ctx, week.Start, week.End)
	if err != nil {
		return nil, err
	}

	report := &models.WeeklyReport{WeekStart: week.Start}
	for _, user := range users {
		if user.Role == models.RoleAdmin {
			continue
		}
		limit := e.weeklyLimitFor(user)
		row := models.UserWeekly{
			UserID:      user.ID,
			Name:        user.Name,
			Count:       counts[user.ID],
			WeeklyLimit: limit,
		}
		switch {
		case row.Count == 0:
			report.Missing = append(report.Missing, row)
		case row.Count < limit:
			report.Incomplete = append(report.Incomplete, row)
		}
	}

	sort.Slice(report.Missing, func(i, j int) bool { return report.Missing[i].UserID < report.Missing[j].UserID })
	sort.Slice(report.Incomplete, func(i, j int) bool { return report.Incomplete[i].UserID < report.Incomplete[j].UserID })

	return report, nil
}
