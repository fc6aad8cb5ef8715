// Package models contains domain entities and business models for the payment reconciliation system
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User represents an account holding the balances deposits credit and
// withdrawals debit.
type User struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	Email string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`

	// Balances are stored as exact decimals. Balance is the deposited
	// principal, ProfitBalance the bonus credited alongside deposits.
	Balance        decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"balance"`
	ProfitBalance  decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"profit_balance"`
	TotalWithdrawn decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"total_withdrawn"`

	// PayoutAddress is the default on-chain destination for withdrawals
	PayoutAddress string `gorm:"type:varchar(255)" json:"payout_address"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "users" }

// BeforeCreate ensures UUID is set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UUID == uuid.Nil {
		u.UUID = uuid.New()
	}
	return nil
}

// UserFilter represents filter criteria for user queries
type UserFilter struct {
	ID            *uint      `json:"id,omitempty"`
	UUID          *uuid.UUID `json:"uuid,omitempty"`
	Email         *string    `json:"email,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}
