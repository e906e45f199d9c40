package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	EntryTypeAwardClaim = "award_claim"

	genesisHash = "GENESIS"
)

// Balance is the running total of tokens credited to an account through claims.
// Its row doubles as the per-account lock for appending to the chain.
type Balance struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(32)" json:"-"`
	AccountID string    `gorm:"column:account_id;type:varchar(64);not null;uniqueIndex" json:"account_id"`
	Balance   int64     `gorm:"column:balance;not null" json:"balance"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Balance) TableName() string {
	return "ledger_balances"
}

type LedgerEntry struct {
	ID                     string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CreatedAt              time.Time      `gorm:"column:created_at" json:"created_at"`
	AccountID              string         `gorm:"column:account_id;type:varchar(64);not null;index" json:"account_id"`
	Type                   string         `gorm:"column:type;type:varchar(32);not null" json:"type"`
	Amount                 int64          `gorm:"column:amount;not null" json:"amount"`
	TransactionID          string         `gorm:"column:transaction_id;type:varchar(64);not null" json:"transaction_id"`
	ReferenceID            string         `gorm:"column:reference_id;type:varchar(64);not null;uniqueIndex" json:"reference_id"`
	ExternalConfirmationID string         `gorm:"column:external_confirmation_id;type:varchar(128)" json:"external_confirmation_id"`
	Description            string         `gorm:"column:description" json:"description"`
	PreviousHash           string         `gorm:"column:previous_hash;type:varchar(64)" json:"previous_hash"`
	Hash                   string         `gorm:"column:hash;type:varchar(64)" json:"hash"`
	Metadata               datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// AppendParams describes a completed credit to record.
type AppendParams struct {
	AccountID              string
	Amount                 int64
	Kind                   string
	ExternalConfirmationID string
	// AwardID is the entry's reference; an award is recorded at most once.
	AwardID     string
	Description string
	Metadata    map[string]any
}

type LedgerParams struct {
	LedgerID               string
	AccountID              string
	Type                   string
	Amount                 int64
	ReferenceID            string
	TransactionID          string
	ExternalConfirmationID string
	Description            string
	PreviousHash           string
	Metadata               datatypes.JSON
	CreatedAt              time.Time
}

func NewLedgerEntry(p LedgerParams) *LedgerEntry {
	return &LedgerEntry{
		ID:                     p.LedgerID,
		AccountID:              p.AccountID,
		Type:                   p.Type,
		Amount:                 p.Amount,
		TransactionID:          p.TransactionID,
		ReferenceID:            p.ReferenceID,
		ExternalConfirmationID: p.ExternalConfirmationID,
		Description:            p.Description,
		PreviousHash:           p.PreviousHash,
		Metadata:               p.Metadata,
		CreatedAt:              p.CreatedAt,
	}
}

func (m *LedgerEntry) HashFields() map[string]string {
	return map[string]string{
		"id":                       m.ID,
		"account_id":               m.AccountID,
		"type":                     m.Type,
		"amount":                   fmt.Sprintf("%d", m.Amount),
		"transaction_id":           m.TransactionID,
		"reference_id":             m.ReferenceID,
		"external_confirmation_id": m.ExternalConfirmationID,
		"description":              m.Description,
		"created_at":               m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":            m.PreviousHash,
	}
}

func (l *LedgerEntry) GenerateHash() string {
	fields := l.HashFields()
	var keys []string
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	joined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}

// GenerateTransactionID is the fallback transaction code used when no sequence generator is wired.
func GenerateTransactionID(now time.Time) (string, error) {
	datePart := now.Format("20060102")

	r := make([]byte, 3)
	_, err := rand.Read(r)
	if err != nil {
		return "", err
	}
	randomPart := strings.ToUpper(fmt.Sprintf("%x", r))

	return fmt.Sprintf("TXN-%s-%s", datePart, randomPart), nil
}

// VerifyResult reports whether an account's chain recomputes cleanly.
// BrokenAt is the id of the first entry that does not.
type VerifyResult struct {
	AccountID string `json:"account_id"`
	Valid     bool   `json:"valid"`
	Entries   int    `json:"entries"`
	BrokenAt  string `json:"broken_at,omitempty"`
}
