package award

import (
	"time"

	"smallbiznis-rewards/services/catalog"

	"go.uber.org/zap"
)

const dayLayout = time.DateOnly

// Streak is the post-update streak state eligibility is decided on.
type Streak struct {
	Current        int
	Longest        int
	TotalLoginDays int
}

type EvaluateInput struct {
	AccountID string
	Streak    Streak
	EventDate time.Time
	Catalog   []*catalog.AwardSetting
	// Existing holds the account's awards that could collide with a new issuance:
	// every milestone award and the daily awards of EventDate.
	Existing []*Award
	Now      time.Time
}

// IssuanceDay is the uniqueness slot of an award: the login day for daily settings,
// empty for milestone settings.
func IssuanceDay(setting *catalog.AwardSetting, eventDate time.Time) string {
	if setting.IsDaily() {
		return eventDate.Format(dayLayout)
	}
	return ""
}

// Evaluate returns the pending awards newly earned by the streak. It performs no I/O;
// newID supplies award ids.
func Evaluate(in EvaluateInput, newID func() string) []*Award {
	held := make(map[string]bool, len(in.Existing))
	for _, a := range in.Existing {
		held[a.AwardSettingID+"|"+a.IssuanceDay] = true
	}

	var out []*Award
	for _, setting := range in.Catalog {
		if !setting.Active || setting.LoginDaysRequired < 1 {
			continue
		}
		if setting.LoginDaysRequired > in.Streak.Current {
			continue
		}
		// Milestones fire only on the exact day the streak reaches the requirement.
		if !setting.IsDaily() && in.Streak.Current != setting.LoginDaysRequired {
			continue
		}

		day := IssuanceDay(setting, in.EventDate)
		if held[setting.ID+"|"+day] {
			continue
		}

		ok, err := setting.ConditionHolds(catalog.ConditionInput{
			CurrentStreak:  in.Streak.Current,
			LongestStreak:  in.Streak.Longest,
			TotalLoginDays: in.Streak.TotalLoginDays,
			EventDate:      in.EventDate,
		})
		if err != nil {
			zap.L().Error("award condition evaluation failed, skipping setting",
				zap.String("setting_id", setting.ID),
				zap.String("account_id", in.AccountID),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}

		id := newID()
		out = append(out, &Award{
			ID:                  id,
			AccountID:           in.AccountID,
			AwardSettingID:      setting.ID,
			IssuanceDay:         day,
			TokenAmount:         setting.TokenAmount,
			StreakDayAtIssuance: in.Streak.Current,
			Status:              StatusPending,
			ClaimReference:      ClaimReferenceFor(id),
			ExpiresAt:           setting.ExpiresAt(in.Now),
			CreatedAt:           in.Now,
			UpdatedAt:           in.Now,
		})
		held[setting.ID+"|"+day] = true
	}
	return out
}
