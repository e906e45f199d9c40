package streak

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n-1)
}

func TestAdvanceFirstLogin(t *testing.T) {
	next, advanced := Advance(nil, "acc-1", day(1).Add(15*time.Hour))

	require.True(t, advanced)
	require.Equal(t, "acc-1", next.AccountID)
	require.Equal(t, 1, next.CurrentStreak)
	require.Equal(t, 1, next.LongestStreak)
	require.Equal(t, 1, next.TotalLoginDays)
	require.Equal(t, day(1), next.LastLoginDate)
}

func TestAdvance(t *testing.T) {
	prior := &LoginStreak{
		AccountID:      "acc-1",
		CurrentStreak:  4,
		LongestStreak:  6,
		TotalLoginDays: 10,
		LastLoginDate:  day(10),
	}

	tests := []struct {
		name     string
		event    time.Time
		advanced bool
		current  int
		longest  int
		total    int
	}{
		{name: "same day", event: day(10).Add(23 * time.Hour), advanced: false, current: 4, longest: 6, total: 10},
		{name: "next day", event: day(11), advanced: true, current: 5, longest: 6, total: 11},
		{name: "gap resets", event: day(13), advanced: true, current: 1, longest: 6, total: 11},
		{name: "backdated resets", event: day(8), advanced: true, current: 1, longest: 6, total: 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, advanced := Advance(prior, "acc-1", tt.event)
			require.Equal(t, tt.advanced, advanced)
			require.Equal(t, tt.current, next.CurrentStreak)
			require.Equal(t, tt.longest, next.LongestStreak)
			require.Equal(t, tt.total, next.TotalLoginDays)
		})
	}

	require.Equal(t, 4, prior.CurrentStreak, "prior must not be mutated")
}

func TestAdvanceRaisesLongest(t *testing.T) {
	prior := &LoginStreak{CurrentStreak: 6, LongestStreak: 6, TotalLoginDays: 6, LastLoginDate: day(6)}

	next, advanced := Advance(prior, "acc-1", day(7))
	require.True(t, advanced)
	require.Equal(t, 7, next.CurrentStreak)
	require.Equal(t, 7, next.LongestStreak)
}

func TestAdvanceNormalizesStoredDate(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	prior := &LoginStreak{CurrentStreak: 1, LongestStreak: 1, TotalLoginDays: 1, LastLoginDate: day(1).In(jakarta)}

	_, advanced := Advance(prior, "acc-1", day(1))
	require.False(t, advanced)
}

func TestDayDiff(t *testing.T) {
	require.Equal(t, 0, DayDiff(day(3), day(3).Add(20*time.Hour)))
	require.Equal(t, 1, DayDiff(day(3), day(4)))
	require.Equal(t, -2, DayDiff(day(5), day(3)))
	require.Equal(t, 366, DayDiff(day(1), day(367)))
}

func TestAdvanceProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		var s *LoginStreak
		d := 1
		prevLongest := 0

		for i := 0; i < 60; i++ {
			step := rng.Intn(4)
			d += step
			prevCurrent := 0
			if s != nil {
				prevCurrent = s.CurrentStreak
			}

			next, advanced := Advance(s, "acc", day(d))

			require.GreaterOrEqual(t, next.LongestStreak, prevLongest)
			require.GreaterOrEqual(t, next.LongestStreak, next.CurrentStreak)

			switch {
			case s == nil:
				require.Equal(t, 1, next.CurrentStreak)
			case step == 0:
				require.False(t, advanced)
				require.Equal(t, *s, next)
			case step == 1:
				require.Equal(t, prevCurrent+1, next.CurrentStreak)
			default:
				require.Equal(t, 1, next.CurrentStreak)
			}

			prevLongest = next.LongestStreak
			s = &next
		}
	}
}
