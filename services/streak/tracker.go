package streak

import "time"

// CalendarDate keeps the year, month and day of t as seen in t's location and
// returns that day at midnight UTC.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayDiff is the number of calendar days from a to b; negative when b is earlier.
func DayDiff(a, b time.Time) int {
	return int(CalendarDate(b).Sub(CalendarDate(a)).Hours() / 24)
}

// Advance applies a login on eventDate to prior, which is nil for an account's first login.
// advanced is false for a same-day re-entry, in which case prior is returned unchanged.
func Advance(prior *LoginStreak, accountID string, eventDate time.Time) (next LoginStreak, advanced bool) {
	day := CalendarDate(eventDate)

	if prior == nil {
		return LoginStreak{
			AccountID:      accountID,
			CurrentStreak:  1,
			LongestStreak:  1,
			TotalLoginDays: 1,
			LastLoginDate:  day,
		}, true
	}

	next = *prior
	diff := DayDiff(prior.LastLoginDate.UTC(), day)
	switch {
	case diff == 0:
		return next, false
	case diff == 1:
		next.CurrentStreak = prior.CurrentStreak + 1
	default:
		// a gap, or a backdated event that cannot continue the run
		next.CurrentStreak = 1
	}

	next.TotalLoginDays = prior.TotalLoginDays + 1
	next.LongestStreak = max(prior.LongestStreak, next.CurrentStreak)
	next.LastLoginDate = day
	return next, true
}
