package award

import (
	"fmt"
	"testing"
	"time"

	"smallbiznis-rewards/services/catalog"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("award-%d", n)
	}
}

var (
	loginDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	issuedAt = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
)

func setting(id string, days int, amount int64) *catalog.AwardSetting {
	return &catalog.AwardSetting{ID: id, Code: id, Name: id, LoginDaysRequired: days, TokenAmount: amount, Active: true}
}

func TestEvaluate(t *testing.T) {
	daily := setting("daily", 1, 10)
	week := setting("week", 7, 100)
	three := setting("three", 3, 30)

	tests := []struct {
		name     string
		current  int
		catalog  []*catalog.AwardSetting
		existing []*Award
		want     []string
	}{
		{name: "daily on first login", current: 1, catalog: []*catalog.AwardSetting{daily, week}, want: []string{"daily"}},
		{name: "milestone at exact streak", current: 7, catalog: []*catalog.AwardSetting{daily, week}, want: []string{"daily", "week"}},
		{name: "milestone not past requirement", current: 8, catalog: []*catalog.AwardSetting{week}, want: nil},
		{name: "milestone not before requirement", current: 6, catalog: []*catalog.AwardSetting{week}, want: nil},
		{name: "daily once per day", current: 4, catalog: []*catalog.AwardSetting{daily},
			existing: []*Award{{AwardSettingID: "daily", IssuanceDay: "2026-03-02"}}, want: nil},
		{name: "daily from another day does not block", current: 4, catalog: []*catalog.AwardSetting{daily},
			existing: []*Award{{AwardSettingID: "daily", IssuanceDay: "2026-03-01"}}, want: []string{"daily"}},
		{name: "milestone once ever", current: 3, catalog: []*catalog.AwardSetting{three},
			existing: []*Award{{AwardSettingID: "three", IssuanceDay: "", Status: StatusClaimed}}, want: nil},
		{name: "inactive settings skipped", current: 1, catalog: []*catalog.AwardSetting{{ID: "off", LoginDaysRequired: 1, TokenAmount: 1}}, want: nil},
		{name: "empty catalog", current: 5, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(EvaluateInput{
				AccountID: "acc-1",
				Streak:    Streak{Current: tt.current, Longest: tt.current, TotalLoginDays: tt.current},
				EventDate: loginDay,
				Catalog:   tt.catalog,
				Existing:  tt.existing,
				Now:       issuedAt,
			}, sequentialIDs())

			var ids []string
			for _, a := range got {
				ids = append(ids, a.AwardSettingID)
			}
			require.Equal(t, tt.want, ids)
		})
	}
}

func TestEvaluateBuildsPendingAward(t *testing.T) {
	week := setting("week", 7, 100)
	week.ExpiresAfterDays = 14

	got := Evaluate(EvaluateInput{
		AccountID: "acc-1",
		Streak:    Streak{Current: 7, Longest: 9, TotalLoginDays: 20},
		EventDate: loginDay,
		Catalog:   []*catalog.AwardSetting{week},
		Now:       issuedAt,
	}, sequentialIDs())

	require.Len(t, got, 1)
	a := got[0]
	require.Equal(t, "award-1", a.ID)
	require.Equal(t, "acc-1", a.AccountID)
	require.Equal(t, "", a.IssuanceDay)
	require.Equal(t, int64(100), a.TokenAmount)
	require.Equal(t, 7, a.StreakDayAtIssuance)
	require.Equal(t, StatusPending, a.Status)
	require.Equal(t, ClaimReferenceFor("award-1"), a.ClaimReference)
	require.NotNil(t, a.ExpiresAt)
	require.Equal(t, issuedAt.AddDate(0, 0, 14), *a.ExpiresAt)
	require.Nil(t, a.ClaimedAt)
}

func TestEvaluateCondition(t *testing.T) {
	weekend := setting("weekend", 1, 5)
	weekend.Condition = "weekday == 0 || weekday == 6"

	veteran := setting("veteran", 1, 50)
	veteran.Condition = "total_login_days >= 100"

	broken := setting("broken", 1, 5)
	broken.Condition = "current_streak / 0 > 1"

	in := EvaluateInput{
		AccountID: "acc-1",
		Streak:    Streak{Current: 1, Longest: 4, TotalLoginDays: 120},
		EventDate: time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC), // Saturday
		Catalog:   []*catalog.AwardSetting{weekend, veteran, broken},
		Now:       issuedAt,
	}

	got := Evaluate(in, sequentialIDs())
	require.Len(t, got, 2)
	require.Equal(t, "weekend", got[0].AwardSettingID)
	require.Equal(t, "veteran", got[1].AwardSettingID)

	in.EventDate = loginDay // Monday
	in.Streak.TotalLoginDays = 3
	require.Empty(t, Evaluate(in, sequentialIDs()))
}

func TestClaimReferenceIsStable(t *testing.T) {
	require.Equal(t, ClaimReferenceFor("123"), ClaimReferenceFor("123"))
	require.NotEqual(t, ClaimReferenceFor("123"), ClaimReferenceFor("124"))
}

func TestExpiredAt(t *testing.T) {
	a := &Award{}
	require.False(t, a.ExpiredAt(issuedAt))

	deadline := issuedAt.Add(time.Hour)
	a.ExpiresAt = &deadline
	require.False(t, a.ExpiredAt(issuedAt))
	require.True(t, a.ExpiredAt(deadline))
	require.True(t, a.ExpiredAt(deadline.Add(time.Second)))
}
