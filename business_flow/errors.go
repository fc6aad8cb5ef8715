// Package businessflow contains the core business logic and use cases for payment reconciliation workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// User-related errors
	ErrUserNotFound      = errors.New("user not found")
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Deposit-related errors
	ErrDepositNotFound = errors.New("deposit not found")
	ErrAmountTooLow    = errors.New("amount is too low")
	ErrTerminalStatus  = errors.New("record already reached a final status")
	ErrOrderIDRequired = errors.New("order ID is required")

	// Withdrawal-related errors
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrAddressRequired    = errors.New("payout address is required")

	// Webhook-related errors
	ErrMissingSignature   = errors.New("missing webhook signature")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrUnknownWebhookType = errors.New("unknown webhook notification type")
	ErrMalformedPayload   = errors.New("malformed webhook payload")

	// Verification-related errors
	ErrVerificationNotFound = errors.New("verification request not found")
	ErrVerificationExpired  = errors.New("verification request expired")
	ErrVerificationRequired = errors.New("withdrawal requires a verified approval")
	ErrInvalidTOTPCode      = errors.New("invalid TOTP code")
	ErrAlreadyVerified      = errors.New("already verified")

	// Processor-related errors
	ErrAuthenticationFailed = errors.New("processor authentication failed")
)

// BusinessError represents a business logic error with context
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error predicates used by handlers to map flow errors to HTTP statuses

func IsUserNotFound(err error) bool        { return errors.Is(err, ErrUserNotFound) }
func IsDepositNotFound(err error) bool     { return errors.Is(err, ErrDepositNotFound) }
func IsWithdrawalNotFound(err error) bool  { return errors.Is(err, ErrWithdrawalNotFound) }
func IsAmountTooLow(err error) bool        { return errors.Is(err, ErrAmountTooLow) }
func IsInsufficientFunds(err error) bool   { return errors.Is(err, ErrInsufficientFunds) }
func IsAddressRequired(err error) bool     { return errors.Is(err, ErrAddressRequired) }
func IsMissingSignature(err error) bool    { return errors.Is(err, ErrMissingSignature) }
func IsInvalidSignature(err error) bool    { return errors.Is(err, ErrInvalidSignature) }
func IsUnknownWebhookType(err error) bool  { return errors.Is(err, ErrUnknownWebhookType) }
func IsMalformedPayload(err error) bool    { return errors.Is(err, ErrMalformedPayload) }
func IsTerminalStatus(err error) bool      { return errors.Is(err, ErrTerminalStatus) }
func IsVerificationNotFound(err error) bool { return errors.Is(err, ErrVerificationNotFound) }
func IsVerificationExpired(err error) bool  { return errors.Is(err, ErrVerificationExpired) }
func IsInvalidTOTPCode(err error) bool     { return errors.Is(err, ErrInvalidTOTPCode) }
func IsAlreadyVerified(err error) bool     { return errors.Is(err, ErrAlreadyVerified) }
func IsOrderIDRequired(err error) bool     { return errors.Is(err, ErrOrderIDRequired) }
