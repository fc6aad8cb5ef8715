// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Misty-clouds/eurobankv2/models"
	"github.com/shopspring/decimal"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
}

// TxManager runs a unit of work inside a single database transaction. The
// transaction travels in the context, so repository calls made inside fn
// share it.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
}

// UserRepository defines operations for users and their balances
type UserRepository interface {
	Repository[models.User, models.UserFilter]
	ByEmail(ctx context.Context, email string) (*models.User, error)
	// LockByID loads the user row under FOR UPDATE; callers must hold a transaction.
	LockByID(ctx context.Context, id uint) (*models.User, error)
	// CreditBalances adds amount to the balance and profit to the profit balance.
	CreditBalances(ctx context.Context, userID uint, amount, profit decimal.Decimal) error
	// DebitProfit subtracts a withdrawal's amount from the profit balance;
	// fails without changing anything when the balance would go negative.
	DebitProfit(ctx context.Context, userID uint, amount decimal.Decimal) error
	// RefundProfit returns a cancelled withdrawal's amount to the profit balance.
	RefundProfit(ctx context.Context, userID uint, amount decimal.Decimal) error
	// AddTotalWithdrawn bumps the lifetime withdrawn counter on settlement.
	AddTotalWithdrawn(ctx context.Context, userID uint, amount decimal.Decimal) error
}

// DepositRepository defines operations for deposits
type DepositRepository interface {
	Repository[models.Deposit, models.DepositFilter]
	ByOrderID(ctx context.Context, orderID string) (*models.Deposit, error)
	ByPaymentID(ctx context.Context, paymentID string) (*models.Deposit, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Deposit, error)
	Update(ctx context.Context, deposit *models.Deposit) error
	// UpdateStatus moves the deposit to status unless it already reached a
	// terminal state; returns true when a row changed. A non-empty payload
	// replaces the stored opaque processor payload alongside the status.
	UpdateStatus(ctx context.Context, id uint, status models.DepositStatus, externalStatus, reason string, payload json.RawMessage) (bool, error)
	// ClaimCredit atomically marks the deposit credited. It returns true for
	// exactly one caller; concurrent duplicates get false, and deposits that
	// already reached a terminal state can never be claimed.
	ClaimCredit(ctx context.Context, id uint, profit decimal.Decimal, at time.Time) (bool, error)
}

// WithdrawalRepository defines operations for withdrawals
type WithdrawalRepository interface {
	Repository[models.Withdrawal, models.WithdrawalFilter]
	ByPayoutID(ctx context.Context, payoutID string) (*models.Withdrawal, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Withdrawal, error)
	// ListDispatchable returns pending withdrawals created before staleBefore
	// plus processing ones whose last check is older than staleBefore, oldest
	// first, capped at limit.
	ListDispatchable(ctx context.Context, staleBefore time.Time, limit int) ([]*models.Withdrawal, error)
	Update(ctx context.Context, withdrawal *models.Withdrawal) error
	// MarkDispatched stamps batch and payout identifiers and moves the row to
	// processing; a no-op when the row already left pending.
	MarkDispatched(ctx context.Context, id uint, batchID, payoutID string, at time.Time) (bool, error)
	// UpdateStatus moves the withdrawal to status unless it is already
	// terminal; returns true when a row changed.
	UpdateStatus(ctx context.Context, id uint, status models.WithdrawalStatus, externalStatus, reason string) (bool, error)
	// TouchChecked records a successful status poll.
	TouchChecked(ctx context.Context, id uint, at time.Time) error
	// MarkFailedPending returns a dispatched-but-rejected withdrawal to the
	// pending pool with the rejection reason, so the next sweep retries it.
	MarkFailedPending(ctx context.Context, id uint, reason string) error
}

// WithdrawalLedgerRepository defines operations on the append-only settlement ledger
type WithdrawalLedgerRepository interface {
	// Append inserts the entry unless one already exists for the withdrawal;
	// returns true when this call inserted the row.
	Append(ctx context.Context, entry *models.WithdrawalLedgerEntry) (bool, error)
	ByWithdrawalID(ctx context.Context, withdrawalID uint) (*models.WithdrawalLedgerEntry, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.WithdrawalLedgerEntry, error)
}

// VerificationRequestRepository defines operations for payout approvals
type VerificationRequestRepository interface {
	Repository[models.VerificationRequest, models.VerificationRequestFilter]
	ByUUID(ctx context.Context, uuid string) (*models.VerificationRequest, error)
	LatestUsableForUser(ctx context.Context, userID uint, now time.Time) (*models.VerificationRequest, error)
	// MarkVerified flips the request to verified once; returns true for the
	// call that performed the flip.
	MarkVerified(ctx context.Context, id uint, at time.Time) (bool, error)
	// HasVerifiedApproval reports whether the user holds a verified approval
	// referencing exactly this withdrawal. Keying on the withdrawal keeps one
	// approval from unlocking unrelated future payouts.
	HasVerifiedApproval(ctx context.Context, userID, withdrawalID uint) (bool, error)
}

// PayoutBatchRepository defines operations for dispatch bookkeeping
type PayoutBatchRepository interface {
	Repository[models.PayoutBatch, models.PayoutBatchFilter]
	ByBatchID(ctx context.Context, batchID string) (*models.PayoutBatch, error)
	// Finalize records the batch outcome counters after dispatch.
	Finalize(ctx context.Context, id uint, submitted, failed int, status models.PayoutBatchStatus, at time.Time) error
}

// SettingsRepository defines operations for the operational settings row
type SettingsRepository interface {
	Get(ctx context.Context) (*models.Settings, error)
	SetAutomaticWithdrawals(ctx context.Context, enabled bool) error
}

// AuditLogRepository defines operations for audit log entries
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.AuditLog, error)
}
