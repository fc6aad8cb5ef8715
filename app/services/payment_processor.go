// Package services contains external service integrations and connectivity helpers
package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceInput is a request to open a payment at the processor
type InvoiceInput struct {
	Amount        decimal.Decimal
	PriceCurrency string // fiat pricing currency, e.g. "usd"
	PayCurrency   string // crypto the user pays with
	OrderID       string // merchant-side identifier, echoed back in IPNs
	CallbackURL   string
	Description   string
}

// InvoiceResult is the processor's view of a freshly created payment
type InvoiceResult struct {
	PaymentID  string
	PayAddress string
	PayAmount  decimal.Decimal
	Status     string
}

// PaymentStatusResult is the processor's current view of a payment
type PaymentStatusResult struct {
	PaymentID    string
	Status       string
	ActuallyPaid decimal.Decimal
	UpdatedAt    *time.Time
}

// AuthResult carries a bearer token and its advertised lifetime
type AuthResult struct {
	Token     string
	ExpiresIn time.Duration
}

// PayoutItem is one withdrawal submitted to the processor
type PayoutItem struct {
	Address     string
	Currency    string
	Network     string
	Amount      decimal.Decimal
	ExtraID     string // merchant-side withdrawal identifier
	CallbackURL string
}

// PayoutResult is the processor's acknowledgement of a submitted payout
type PayoutResult struct {
	PayoutID string
	Status   string
}

// PayoutStatusResult is the processor's current view of a payout
type PayoutStatusResult struct {
	PayoutID  string
	Status    string
	Error     string
	Hash      string // on-chain transaction hash, set once the payout settles
	UpdatedAt *time.Time
}

// PaymentProcessor is the outbound contract with the crypto payment
// processor. One implementation exists per upstream provider.
type PaymentProcessor interface {
	Name() string

	// CreateInvoice opens a payment the user can pay against.
	CreateInvoice(ctx context.Context, in InvoiceInput) (*InvoiceResult, error)

	// PaymentStatus polls the processor for a payment's current state.
	PaymentStatus(ctx context.Context, paymentID string) (*PaymentStatusResult, error)

	// Authenticate exchanges credentials for a short-lived bearer token
	// required by payout endpoints.
	Authenticate(ctx context.Context) (*AuthResult, error)

	// SubmitPayout sends one withdrawal for settlement under the given token.
	SubmitPayout(ctx context.Context, token string, item PayoutItem) (*PayoutResult, error)

	// PayoutStatus polls the processor for a payout's current state.
	PayoutStatus(ctx context.Context, token, payoutID string) (*PayoutStatusResult, error)
}
