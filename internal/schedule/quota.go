package schedule

// HasCapacity reports whether a user with the given weekly limit may add
// one more active booking to a week that already holds activeCountInWeek.
// Evaluated at write time only: lowering a limit never retroactively
// invalidates bookings already committed to that week.
func HasCapacity(weeklyLimit, activeCountInWeek int) bool {
	if weeklyLimit <= 0 {
		return false
	}
	return activeCountInWeek < weeklyLimit
}
