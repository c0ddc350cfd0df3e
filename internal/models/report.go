package models

import "time"

// UserWeekly is one row of a weekly activity report.
type UserWeekly struct {
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	Count       int    `json:"count"`
	WeeklyLimit int    `json:"weekly_limit"`
}

// WeeklyReport splits users that booked nothing from users that booked
// less than their limit. The two lists never overlap.
type WeeklyReport struct {
	WeekStart  time.Time    `json:"week_start"`
	Missing    []UserWeekly `json:"missing"`
	Incomplete []UserWeekly `json:"incomplete"`
}
