package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WithdrawalLedgerEntry is the append-only record written when a withdrawal
// reaches completed. Rows are never updated or deleted; the unique index on
// WithdrawalID makes duplicate completion notifications harmless.
type WithdrawalLedgerEntry struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	WithdrawalID uint `gorm:"uniqueIndex;not null" json:"withdrawal_id"`
	UserID       uint `gorm:"not null;index" json:"user_id"`

	Amount   decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	Address  string          `gorm:"type:varchar(255);not null" json:"address"`
	Currency string          `gorm:"type:varchar(16);not null" json:"currency"`
	Network  string          `gorm:"type:varchar(16);not null" json:"network"`
	BatchID  string          `gorm:"type:varchar(64);index" json:"batch_id"`
	PayoutID string          `gorm:"type:varchar(255)" json:"payout_id"`

	// TxHash is the on-chain transaction hash reported by the processor at
	// settlement; empty when settlement was recorded by an operator override.
	TxHash string `gorm:"type:varchar(255)" json:"tx_hash"`

	RecordedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"recorded_at"`
}

func (WithdrawalLedgerEntry) TableName() string { return "withdrawal_ledger" }

// WithdrawalLedgerFilter represents filter criteria for ledger queries
type WithdrawalLedgerFilter struct {
	ID             *uint      `json:"id,omitempty"`
	WithdrawalID   *uint      `json:"withdrawal_id,omitempty"`
	UserID         *uint      `json:"user_id,omitempty"`
	BatchID        *string    `json:"batch_id,omitempty"`
	RecordedAfter  *time.Time `json:"recorded_after,omitempty"`
	RecordedBefore *time.Time `json:"recorded_before,omitempty"`
}
