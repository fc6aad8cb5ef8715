package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VerificationRequest tracks a payout approval challenge. Withdrawals at or
// above the configured threshold are only dispatched after one of these has
// been verified with a TOTP code.
type VerificationRequest struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	UserID       uint  `gorm:"not null;index" json:"user_id"`
	WithdrawalID *uint `gorm:"index" json:"withdrawal_id,omitempty"`

	Amount decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`

	// VerificationString is the random challenge handed to the operator;
	// Code is the short confirmation derived from it.
	VerificationString string `gorm:"type:varchar(255);not null" json:"verification_string"`
	Code               string `gorm:"type:varchar(12);not null;index" json:"code"`

	Verified   bool       `gorm:"not null;default:false;index" json:"verified"`
	VerifiedAt *time.Time `json:"verified_at"`
	ExpiresAt  *time.Time `gorm:"index" json:"expires_at"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (VerificationRequest) TableName() string { return "verification_requests" }

// BeforeCreate ensures UUID is set
func (v *VerificationRequest) BeforeCreate(tx *gorm.DB) error {
	if v.UUID == uuid.Nil {
		v.UUID = uuid.New()
	}
	return nil
}

// IsUsable returns true if the request can still be verified
func (v *VerificationRequest) IsUsable(now time.Time) bool {
	if v.Verified {
		return false
	}
	if v.ExpiresAt != nil && now.After(*v.ExpiresAt) {
		return false
	}
	return true
}

// VerificationRequestFilter represents filter criteria for verification queries
type VerificationRequestFilter struct {
	ID            *uint      `json:"id,omitempty"`
	UUID          *uuid.UUID `json:"uuid,omitempty"`
	UserID        *uint      `json:"user_id,omitempty"`
	WithdrawalID  *uint      `json:"withdrawal_id,omitempty"`
	Code          *string    `json:"code,omitempty"`
	Verified      *bool      `json:"verified,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}
