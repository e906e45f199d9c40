package account

import "time"

// Account links a rewards account to the external value-holding account credits land in.
type Account struct {
	ID                string     `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	ExternalAccountID *string    `gorm:"column:external_account_id;type:varchar(128)" json:"external_account_id"`
	LinkedAt          *time.Time `gorm:"column:linked_at" json:"linked_at"`
	CreatedAt         time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) Linked() bool {
	return a != nil && a.ExternalAccountID != nil && *a.ExternalAccountID != ""
}

type LinkRequest struct {
	ExternalAccountID string `json:"external_account_id" validate:"required,max=128"`
}
