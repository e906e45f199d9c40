package streak

import "time"

// LoginStreak is the per-account consecutive-login bookkeeping.
// LastLoginDate is a calendar day stored as midnight UTC.
type LoginStreak struct {
	AccountID      string    `gorm:"column:account_id;primaryKey;type:varchar(64)"`
	CurrentStreak  int       `gorm:"column:current_streak;not null"`
	LongestStreak  int       `gorm:"column:longest_streak;not null"`
	TotalLoginDays int       `gorm:"column:total_login_days;not null"`
	LastLoginDate  time.Time `gorm:"column:last_login_date;not null"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (LoginStreak) TableName() string {
	return "login_streaks"
}

type RecordLoginRequest struct {
	EventDate string `json:"event_date" validate:"omitempty,datetime=2006-01-02"`
}
