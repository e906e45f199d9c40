package award

import (
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusClaimed Status = "claimed"
	StatusExpired Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusClaimed, StatusExpired:
		return true
	}
	return false
}

// Award is one issued instance of an AwardSetting for one account.
//
// ux_awards_issuance makes issuance structural: milestone awards carry an empty
// IssuanceDay so an account holds at most one per setting, daily awards carry the
// login day so an account holds at most one per setting per day.
type Award struct {
	ID                     string     `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	AccountID              string     `gorm:"column:account_id;type:varchar(64);not null;uniqueIndex:ux_awards_issuance,priority:1" json:"account_id"`
	AwardSettingID         string     `gorm:"column:award_setting_id;type:varchar(32);not null;uniqueIndex:ux_awards_issuance,priority:2;index" json:"award_setting_id"`
	IssuanceDay            string     `gorm:"column:issuance_day;type:varchar(10);not null;uniqueIndex:ux_awards_issuance,priority:3" json:"issuance_day,omitempty"`
	TokenAmount            int64      `gorm:"column:token_amount;not null" json:"token_amount"`
	StreakDayAtIssuance    int        `gorm:"column:streak_day_at_issuance;not null" json:"streak_day_at_issuance"`
	Status                 Status     `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	ClaimReference         string     `gorm:"column:claim_reference;type:varchar(80);not null" json:"-"`
	ClaimDispatchedAt      *time.Time `gorm:"column:claim_dispatched_at;index" json:"-"`
	ExternalConfirmationID string     `gorm:"column:external_confirmation_id;type:varchar(128)" json:"external_confirmation_id,omitempty"`
	ClaimedAt              *time.Time `gorm:"column:claimed_at" json:"claimed_at"`
	ExpiresAt              *time.Time `gorm:"column:expires_at;index" json:"expires_at"`
	CreatedAt              time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Award) TableName() string {
	return "awards"
}

func (a *Award) IsPending() bool {
	return a.Status == StatusPending
}

// ExpiredAt reports whether the claim window has closed at now.
func (a *Award) ExpiredAt(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// ClaimReferenceFor returns the idempotency reference sent to the crediting service for an award.
// It only depends on the award id so every retry of the same claim reuses it.
func ClaimReferenceFor(awardID string) string {
	return "award-claim-" + awardID
}

type ListParams struct {
	Status Status `form:"status" validate:"omitempty,oneof=pending claimed expired"`
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit" validate:"omitempty,gte=1,lte=250"`
}
