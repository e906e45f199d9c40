package catalog

import (
	"time"
)

// AwardSetting is an award rule: reaching LoginDaysRequired consecutive days earns TokenAmount.
// A rule with LoginDaysRequired == 1 is a daily award, anything above is a milestone.
type AwardSetting struct {
	ID                string    `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Code              string    `gorm:"column:code;uniqueIndex;type:varchar(140);not null" json:"code"`
	Name              string    `gorm:"column:name;type:varchar(120);not null" json:"name"`
	Description       string    `gorm:"column:description;type:text" json:"description"`
	LoginDaysRequired int       `gorm:"column:login_days_required;not null" json:"login_days_required"`
	TokenAmount       int64     `gorm:"column:token_amount;not null" json:"token_amount"`
	Active            bool      `gorm:"column:active;not null;index" json:"active"`
	ExpiresAfterDays  int       `gorm:"column:expires_after_days;not null" json:"expires_after_days"`
	Condition         string    `gorm:"column:condition_expr;type:text" json:"condition,omitempty"`
	CreatedAt         time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (AwardSetting) TableName() string {
	return "award_settings"
}

func (s *AwardSetting) IsDaily() bool {
	return s.LoginDaysRequired == 1
}

// ExpiresAt returns when an award issued at issuedAt stops being claimable, or nil if it never expires.
func (s *AwardSetting) ExpiresAt(issuedAt time.Time) *time.Time {
	if s.ExpiresAfterDays <= 0 {
		return nil
	}
	t := issuedAt.AddDate(0, 0, s.ExpiresAfterDays)
	return &t
}

type CreateSettingRequest struct {
	Code              string `json:"code" validate:"omitempty,max=140"`
	Name              string `json:"name" validate:"required,max=120"`
	Description       string `json:"description" validate:"max=2000"`
	LoginDaysRequired int    `json:"login_days_required" validate:"gte=1,lte=3650"`
	TokenAmount       *int64 `json:"token_amount" validate:"required,gte=0"`
	Active            *bool  `json:"active"`
	ExpiresAfterDays  int    `json:"expires_after_days" validate:"gte=0,lte=3650"`
	Condition         string `json:"condition" validate:"max=1000"`
}

// UpdateSettingRequest carries only the fields to change.
type UpdateSettingRequest struct {
	Name              *string `json:"name" validate:"omitempty,max=120"`
	Description       *string `json:"description" validate:"omitempty,max=2000"`
	LoginDaysRequired *int    `json:"login_days_required" validate:"omitempty,gte=1,lte=3650"`
	TokenAmount       *int64  `json:"token_amount" validate:"omitempty,gte=0"`
	Active            *bool   `json:"active"`
	ExpiresAfterDays  *int    `json:"expires_after_days" validate:"omitempty,gte=0,lte=3650"`
	Condition         *string `json:"condition" validate:"omitempty,max=1000"`
}

type ListParams struct {
	Active *bool `form:"active"`
}
