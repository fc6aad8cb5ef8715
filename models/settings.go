package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settings is the single operational configuration row read by the cron
// dispatcher at the start of every sweep.
type Settings struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	// AutomaticWithdrawals gates the whole dispatcher; when false the sweep
	// exits before selecting any work.
	AutomaticWithdrawals bool `gorm:"not null;default:false" json:"automatic_withdrawals"`

	// VerificationThreshold is the amount at or above which a withdrawal
	// needs a verified approval before dispatch.
	VerificationThreshold decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"verification_threshold"`

	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Settings) TableName() string { return "settings" }
