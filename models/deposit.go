package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DepositStatus represents the internal status of a deposit
type DepositStatus string

const (
	DepositStatusPending       DepositStatus = "pending"        // Created, waiting for funds to arrive
	DepositStatusProcessing    DepositStatus = "processing"     // Funds seen on-chain, confirmations in progress
	DepositStatusPartiallyPaid DepositStatus = "partially_paid" // Less than the invoiced amount arrived
	DepositStatusCompleted     DepositStatus = "completed"      // Fully paid and credited
	DepositStatusFailed        DepositStatus = "failed"         // Failed, refunded or expired upstream
)

// Deposit represents an inbound crypto payment tracked against a processor invoice
type Deposit struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"` // Links related records

	UserID uint `gorm:"not null;index" json:"user_id"`

	// OrderID is the merchant-side identifier sent to the processor at
	// invoice creation (DEP-<user>-<millis>). The processor echoes it back
	// in every notification, so it is the primary reconciliation key.
	OrderID string `gorm:"type:varchar(255);uniqueIndex;not null" json:"order_id"`

	// PaymentID is the processor-side identifier, learned from the first
	// notification or poll response.
	PaymentID string `gorm:"type:varchar(255);index" json:"payment_id"`

	// Payment details
	Amount      decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"` // Invoiced amount in USD
	PayCurrency string          `gorm:"type:varchar(16);not null" json:"pay_currency"`
	PayAddress  string          `gorm:"type:varchar(255)" json:"pay_address"`

	// Profit is the bonus computed at credit time and added to the user's
	// profit balance together with the principal.
	Profit decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"profit"`

	// Status tracking
	Status         DepositStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	StatusReason   string        `gorm:"type:text" json:"status_reason"`
	ExternalStatus string        `gorm:"type:varchar(50)" json:"external_status"` // Last raw processor status

	// CreditedAt is set exactly once, when the balance credit lands.
	CreditedAt *time.Time `gorm:"index" json:"credited_at"`

	// Metadata and audit
	Metadata  json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

func (Deposit) TableName() string { return "deposits" }

// NewDepositOrderID builds the merchant order identifier for a deposit.
func NewDepositOrderID(userID uint, at time.Time) string {
	return fmt.Sprintf("DEP-%d-%d", userID, at.UnixMilli())
}

// BeforeCreate ensures UUID and CorrelationID are set
func (d *Deposit) BeforeCreate(tx *gorm.DB) error {
	if d.UUID == uuid.Nil {
		d.UUID = uuid.New()
	}
	if d.CorrelationID == uuid.Nil {
		d.CorrelationID = uuid.New()
	}
	return nil
}

// IsFinal returns true if the deposit is in a final state
func (d *Deposit) IsFinal() bool {
	return d.Status == DepositStatusCompleted ||
		d.Status == DepositStatusFailed
}

// IsCredited returns true if the balance credit has already landed
func (d *Deposit) IsCredited() bool {
	return d.CreditedAt != nil
}

// DepositFilter represents filter criteria for deposit queries
type DepositFilter struct {
	ID            *uint          `json:"id,omitempty"`
	UUID          *uuid.UUID     `json:"uuid,omitempty"`
	CorrelationID *uuid.UUID     `json:"correlation_id,omitempty"`
	UserID        *uint          `json:"user_id,omitempty"`
	OrderID       *string        `json:"order_id,omitempty"`
	PaymentID     *string        `json:"payment_id,omitempty"`
	Status        *DepositStatus `json:"status,omitempty"`
	Credited      *bool          `json:"credited,omitempty"`
	CreatedAfter  *time.Time     `json:"created_after,omitempty"`
	CreatedBefore *time.Time     `json:"created_before,omitempty"`
}
