package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WithdrawalStatus represents the internal status of a withdrawal
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"    // Requested, not yet dispatched
	WithdrawalStatusDelayed    WithdrawalStatus = "delayed"    // Held back by an operator, excluded from sweeps
	WithdrawalStatusProcessing WithdrawalStatus = "processing" // Accepted by the processor, payout in flight
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"  // Settled on-chain
	WithdrawalStatusFailed     WithdrawalStatus = "failed"     // Rejected, refunded or expired upstream
	WithdrawalStatusCancelled  WithdrawalStatus = "cancelled"  // Cancelled by an operator before settlement
)

// Valid checks if the status is valid.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalStatusPending,
		WithdrawalStatusDelayed,
		WithdrawalStatusProcessing,
		WithdrawalStatusCompleted,
		WithdrawalStatusFailed,
		WithdrawalStatusCancelled:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for WithdrawalStatus.
func (s *WithdrawalStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = WithdrawalStatus(v)
	case []byte:
		*s = WithdrawalStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into WithdrawalStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for WithdrawalStatus.
func (s WithdrawalStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid WithdrawalStatus: %s", s)
	}
	return string(s), nil
}

// Withdrawal represents an outbound crypto payout requested by a user
type Withdrawal struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	UserID uint `gorm:"not null;index" json:"user_id"`

	// Payout details
	Amount   decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	Address  string          `gorm:"type:varchar(255);not null" json:"address"`
	Currency string          `gorm:"type:varchar(16);not null;default:'usdt'" json:"currency"`
	Network  string          `gorm:"type:varchar(16);not null;default:'trx'" json:"network"`

	// PayoutID is the processor-side identifier assigned when the payout is
	// accepted into a batch.
	PayoutID string `gorm:"type:varchar(255);index" json:"payout_id"`

	// BatchID records which dispatch batch carried this withdrawal.
	BatchID string `gorm:"type:varchar(64);index" json:"batch_id"`

	// Status tracking
	Status         WithdrawalStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	StatusReason   string           `gorm:"type:text" json:"status_reason"`
	ExternalStatus string           `gorm:"type:varchar(50)" json:"external_status"`

	DispatchedAt  *time.Time `gorm:"index" json:"dispatched_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	LastCheckedAt *time.Time `gorm:"index" json:"last_checked_at"` // Last successful status poll

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

func (Withdrawal) TableName() string { return "withdrawals" }

// BeforeCreate ensures UUID and CorrelationID are set
func (w *Withdrawal) BeforeCreate(tx *gorm.DB) error {
	if w.UUID == uuid.Nil {
		w.UUID = uuid.New()
	}
	if w.CorrelationID == uuid.Nil {
		w.CorrelationID = uuid.New()
	}
	return nil
}

// IsFinal returns true if the withdrawal is in a final state
func (w *Withdrawal) IsFinal() bool {
	return w.Status == WithdrawalStatusCompleted ||
		w.Status == WithdrawalStatusFailed ||
		w.Status == WithdrawalStatusCancelled
}

// IsStale reports whether a processing withdrawal has gone without a status
// update for longer than the given threshold.
func (w *Withdrawal) IsStale(threshold time.Duration, now time.Time) bool {
	if w.Status != WithdrawalStatusProcessing {
		return false
	}
	last := w.CreatedAt
	if w.LastCheckedAt != nil {
		last = *w.LastCheckedAt
	}
	return now.Sub(last) >= threshold
}

// WithdrawalFilter represents filter criteria for withdrawal queries
type WithdrawalFilter struct {
	ID             *uint             `json:"id,omitempty"`
	UUID           *uuid.UUID        `json:"uuid,omitempty"`
	CorrelationID  *uuid.UUID        `json:"correlation_id,omitempty"`
	UserID         *uint             `json:"user_id,omitempty"`
	PayoutID       *string           `json:"payout_id,omitempty"`
	BatchID        *string           `json:"batch_id,omitempty"`
	Status         *WithdrawalStatus `json:"status,omitempty"`
	CheckedBefore  *time.Time        `json:"checked_before,omitempty"`
	CreatedAfter   *time.Time        `json:"created_after,omitempty"`
	CreatedBefore  *time.Time        `json:"created_before,omitempty"`
	Limit          int               `json:"limit,omitempty"`
	OrderByOldest  bool              `json:"order_by_oldest,omitempty"`
}
