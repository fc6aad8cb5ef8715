package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CreateDepositRequest starts a deposit: an invoice is created at the
// processor and tracked locally.
type CreateDepositRequest struct {
	UserID      uint            `json:"user_id" validate:"required,min=1"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	PayCurrency string          `json:"pay_currency" validate:"required,min=2,max=16"`
}

// CreateDepositResponse returns the invoice details the user pays against
type CreateDepositResponse struct {
	OrderID    string          `json:"order_id"`
	PaymentID  string          `json:"payment_id"`
	PayAddress string          `json:"pay_address"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DepositStatusResponse is the reconciled view of one deposit
type DepositStatusResponse struct {
	OrderID        string          `json:"order_id"`
	PaymentID      string          `json:"payment_id"`
	Amount         decimal.Decimal `json:"amount"`
	Profit         decimal.Decimal `json:"profit"`
	Status         string          `json:"status"`
	ExternalStatus string          `json:"external_status"`
	Credited       bool            `json:"credited"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateWithdrawalRequest queues a payout for the dispatcher
type CreateWithdrawalRequest struct {
	UserID  uint            `json:"user_id" validate:"required,min=1"`
	Amount  decimal.Decimal `json:"amount" validate:"required"`
	Address string          `json:"address" validate:"required,min=10,max=255"`
}

// WithdrawalResponse is the reconciled view of one withdrawal
type WithdrawalResponse struct {
	ID             uint            `json:"id"`
	UUID           string          `json:"uuid"`
	Amount         decimal.Decimal `json:"amount"`
	Address        string          `json:"address"`
	Currency       string          `json:"currency"`
	Network        string          `json:"network"`
	Status         string          `json:"status"`
	StatusReason   string          `json:"status_reason,omitempty"`
	BatchID        string          `json:"batch_id,omitempty"`
	PayoutID       string          `json:"payout_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// UpdateWithdrawalRequest is the admin override for a withdrawal's status
type UpdateWithdrawalRequest struct {
	WithdrawalID uint   `json:"withdrawal_id" validate:"required,min=1"`
	Status       string `json:"status" validate:"required,oneof=pending delayed processing completed failed cancelled"`
	Reason       string `json:"reason" validate:"omitempty,max=500"`
}

// LedgerEntryResponse is one settled withdrawal in the ledger
type LedgerEntryResponse struct {
	WithdrawalID uint            `json:"withdrawal_id"`
	Amount       decimal.Decimal `json:"amount"`
	Address      string          `json:"address"`
	Currency     string          `json:"currency"`
	Network      string          `json:"network"`
	BatchID      string          `json:"batch_id,omitempty"`
	TxHash       string          `json:"tx_hash,omitempty"`
	RecordedAt   time.Time       `json:"recorded_at"`
}

// DepositNotification is the processor's IPN payload for an inbound payment
type DepositNotification struct {
	PaymentID     json.Number     `json:"payment_id"`
	PaymentStatus string          `json:"payment_status"`
	OrderID       string          `json:"order_id"`
	PayAddress    string          `json:"pay_address"`
	PriceAmount   decimal.Decimal `json:"price_amount"`
	PriceCurrency string          `json:"price_currency"`
	PayAmount     decimal.Decimal `json:"pay_amount"`
	ActuallyPaid  decimal.Decimal `json:"actually_paid"`
	PayCurrency   string          `json:"pay_currency"`
}

// WithdrawalNotification is the processor's IPN payload for a payout
type WithdrawalNotification struct {
	ID                string          `json:"id"`
	BatchWithdrawalID string          `json:"batch_withdrawal_id"`
	Status            string          `json:"status"`
	Error             string          `json:"error,omitempty"`
	Hash              string          `json:"hash,omitempty"`
	Currency          string          `json:"currency"`
	Amount            decimal.Decimal `json:"amount"`
	Address           string          `json:"address"`
	ExtraID           string          `json:"extra_id,omitempty"`
}

// webhookProbe sniffs which side of the notification union a raw body is
type webhookProbe struct {
	PaymentID         json.Number `json:"payment_id"`
	BatchWithdrawalID string      `json:"batch_withdrawal_id"`
	ID                string      `json:"id"`
}

// Webhook notification kinds
const (
	WebhookKindDeposit    = "deposit"
	WebhookKindWithdrawal = "withdrawal"
	WebhookKindUnknown    = ""
)

// SniffWebhookKind inspects a raw IPN body and reports which entity it
// describes. Payout notifications carry batch_withdrawal_id (or a bare id
// without payment_id); everything carrying payment_id is a deposit.
func SniffWebhookKind(raw []byte) string {
	var probe webhookProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return WebhookKindUnknown
	}
	if probe.BatchWithdrawalID != "" {
		return WebhookKindWithdrawal
	}
	if probe.PaymentID.String() != "" {
		return WebhookKindDeposit
	}
	if probe.ID != "" {
		return WebhookKindWithdrawal
	}
	return WebhookKindUnknown
}

// CreateVerificationRequest opens a payout approval challenge for one
// specific withdrawal
type CreateVerificationRequest struct {
	UserID       uint            `json:"user_id" validate:"required,min=1"`
	WithdrawalID uint            `json:"withdrawal_id" validate:"required,min=1"`
	Amount       decimal.Decimal `json:"amount" validate:"required"`
}

// CreateVerificationResponse returns the challenge to confirm out-of-band
type CreateVerificationResponse struct {
	UUID               string          `json:"uuid"`
	Code               string          `json:"code"`
	VerificationString string          `json:"verification_string"`
	Amount             decimal.Decimal `json:"amount"`
	ExpiresAt          *time.Time      `json:"expires_at,omitempty"`
}

// VerifyPayoutRequest confirms a challenge with a TOTP code
type VerifyPayoutRequest struct {
	UUID     string `json:"uuid" validate:"required,uuid"`
	TOTPCode string `json:"totp_code" validate:"required,len=6,numeric"`
}

// VerifyPayoutResponse reports the verification outcome
type VerifyPayoutResponse struct {
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// TOTPStatusResponse mirrors the operator's authenticator display
type TOTPStatusResponse struct {
	Current          string `json:"current"`
	Next             string `json:"next"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

// SweepResponse summarizes one dispatcher run
type SweepResponse struct {
	Enabled        bool     `json:"enabled"`
	Selected       int      `json:"selected"`
	Dispatched     int      `json:"dispatched"`
	Failed         int      `json:"failed"`
	Skipped        int      `json:"skipped"`
	BatchIDs       []string `json:"batch_ids,omitempty"`
	StatusChecked  int      `json:"status_checked"`
	StatusUpdated  int      `json:"status_updated"`
}
