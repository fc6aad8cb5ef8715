package businessflow

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/Misty-clouds/eurobankv2/app/dto"
	"github.com/Misty-clouds/eurobankv2/app/services"
	"github.com/Misty-clouds/eurobankv2/models"
	"github.com/Misty-clouds/eurobankv2/repository"
	"github.com/Misty-clouds/eurobankv2/utils"
	"github.com/shopspring/decimal"
)

// WithdrawalFlow defines withdrawal reconciliation operations
type WithdrawalFlow interface {
	RequestWithdrawal(ctx context.Context, req *dto.CreateWithdrawalRequest, metadata *ClientMetadata) (*dto.WithdrawalResponse, error)
	GetWithdrawal(ctx context.Context, id uint) (*dto.WithdrawalResponse, error)
	HandleNotification(ctx context.Context, n *dto.WithdrawalNotification, metadata *ClientMetadata) error
	PollStatus(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.WithdrawalResponse, error)
	AdminUpdate(ctx context.Context, req *dto.UpdateWithdrawalRequest, metadata *ClientMetadata) (*dto.WithdrawalResponse, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*dto.WithdrawalResponse, error)
	ListLedgerByUser(ctx context.Context, userID uint, limit, offset int) ([]*dto.LedgerEntryResponse, error)
}

// WithdrawalFlowImpl implements WithdrawalFlow
type WithdrawalFlowImpl struct {
	withdrawalRepo repository.WithdrawalRepository
	ledgerRepo     repository.WithdrawalLedgerRepository
	userRepo       repository.UserRepository
	auditRepo      repository.AuditLogRepository
	processor      services.PaymentProcessor
	tokens         *services.TokenCache
	tx             repository.TxManager
}

// NewWithdrawalFlow creates a new withdrawal flow
func NewWithdrawalFlow(
	withdrawalRepo repository.WithdrawalRepository,
	ledgerRepo repository.WithdrawalLedgerRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditLogRepository,
	processor services.PaymentProcessor,
	tokens *services.TokenCache,
	tx repository.TxManager,
) WithdrawalFlow {
	return &WithdrawalFlowImpl{
		withdrawalRepo: withdrawalRepo,
		ledgerRepo:     ledgerRepo,
		userRepo:       userRepo,
		auditRepo:      auditRepo,
		processor:      processor,
		tokens:         tokens,
		tx:             tx,
	}
}

// RequestWithdrawal debits the user's profit balance and queues the payout
// for the dispatcher. The debit and the queue row commit together.
func (f *WithdrawalFlowImpl) RequestWithdrawal(ctx context.Context, req *dto.CreateWithdrawalRequest, metadata *ClientMetadata) (*dto.WithdrawalResponse, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrAmountTooLow
	}
	if strings.TrimSpace(req.Address) == "" {
		return nil, ErrAddressRequired
	}

	withdrawal := &models.Withdrawal{
		UserID:   req.UserID,
		Amount:   req.Amount,
		Address:  req.Address,
		Currency: utils.PayoutCurrency,
		Network:  utils.PayoutNetwork,
		Status:   models.WithdrawalStatusPending,
	}

	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		user, err := f.userRepo.LockByID(txCtx, req.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		if user.ProfitBalance.LessThan(req.Amount) {
			return ErrInsufficientFunds
		}
		if err := f.userRepo.DebitProfit(txCtx, user.ID, req.Amount); err != nil {
			return err
		}
		return f.withdrawalRepo.Save(txCtx, withdrawal)
	})
	if err != nil {
		if err == ErrUserNotFound || err == ErrInsufficientFunds {
			return nil, err
		}
		return nil, NewBusinessError("WITHDRAWAL_REQUEST_FAILED", "failed to create withdrawal", err)
	}

	f.createAuditLog(ctx, &req.UserID, models.AuditActionWithdrawalRequested,
		fmt.Sprintf("withdrawal %d requested: %s %s to %s", withdrawal.ID, req.Amount.String(), utils.PayoutCurrency, req.Address),
		true, nil, metadata)

	return withdrawalToResponse(withdrawal), nil
}

func (f *WithdrawalFlowImpl) GetWithdrawal(ctx context.Context, id uint) (*dto.WithdrawalResponse, error) {
	w, err := f.withdrawalRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("WITHDRAWAL_LOOKUP_FAILED", "failed to look up withdrawal", err)
	}
	if w == nil {
		return nil, ErrWithdrawalNotFound
	}
	return withdrawalToResponse(w), nil
}

// HandleNotification applies one processor payout IPN. Lookup prefers the
// processor's payout ID and falls back to extra_id, which carries the
// internal withdrawal ID.
func (f *WithdrawalFlowImpl) HandleNotification(ctx context.Context, n *dto.WithdrawalNotification, metadata *ClientMetadata) error {
	w, err := f.findWithdrawal(ctx, n.ID, n.ExtraID)
	if err != nil {
		return err
	}
	return f.applyExternalStatus(ctx, w, n.Status, n.Error, n.Hash, metadata)
}

// PollStatus asks the processor for the payout's current state and
// reconciles it through the same path webhooks use. A processor failure
// degrades to the stored view.
func (f *WithdrawalFlowImpl) PollStatus(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.WithdrawalResponse, error) {
	w, err := f.withdrawalRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("WITHDRAWAL_LOOKUP_FAILED", "failed to look up withdrawal", err)
	}
	if w == nil {
		return nil, ErrWithdrawalNotFound
	}
	if w.PayoutID == "" || w.IsFinal() {
		return withdrawalToResponse(w), nil
	}

	token, err := f.tokens.Token(ctx)
	if err != nil {
		log.Printf("withdrawal poll: authentication failed: %v", err)
		return withdrawalToResponse(w), nil
	}

	status, err := f.processor.PayoutStatus(ctx, token, w.PayoutID)
	if err != nil {
		log.Printf("withdrawal poll failed for payout %s: %v", w.PayoutID, err)
		return withdrawalToResponse(w), nil
	}

	if err := f.withdrawalRepo.TouchChecked(ctx, w.ID, utils.UTCNow()); err != nil {
		log.Printf("failed to record poll time for withdrawal %d: %v", w.ID, err)
	}
	if err := f.applyExternalStatus(ctx, w, status.Status, status.Error, status.Hash, metadata); err != nil {
		return nil, err
	}

	refreshed, err := f.withdrawalRepo.ByID(ctx, w.ID)
	if err != nil || refreshed == nil {
		return withdrawalToResponse(w), nil
	}
	return withdrawalToResponse(refreshed), nil
}

// AdminUpdate is the operator override. Cancelling refunds the debited
// amount; completing writes the ledger like a processor notification would.
func (f *WithdrawalFlowImpl) AdminUpdate(ctx context.Context, req *dto.UpdateWithdrawalRequest, metadata *ClientMetadata) (*dto.WithdrawalResponse, error) {
	w, err := f.withdrawalRepo.ByID(ctx, req.WithdrawalID)
	if err != nil {
		return nil, NewBusinessError("WITHDRAWAL_LOOKUP_FAILED", "failed to look up withdrawal", err)
	}
	if w == nil {
		return nil, ErrWithdrawalNotFound
	}

	target := models.WithdrawalStatus(req.Status)

	switch target {
	case models.WithdrawalStatusCancelled:
		err = f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
			changed, err := f.withdrawalRepo.UpdateStatus(txCtx, w.ID, target, w.ExternalStatus, req.Reason)
			if err != nil {
				return err
			}
			if !changed {
				return ErrTerminalStatus
			}
			// Give the debited funds back.
			if err := f.userRepo.RefundProfit(txCtx, w.UserID, w.Amount); err != nil {
				return err
			}
			f.createAuditLog(txCtx, &w.UserID, models.AuditActionWithdrawalCancelled,
				fmt.Sprintf("withdrawal %d cancelled, %s refunded: %s", w.ID, w.Amount.String(), req.Reason),
				true, nil, metadata)
			return nil
		})
	case models.WithdrawalStatusCompleted:
		err = f.settle(ctx, w, string(models.WithdrawalStatusCompleted), req.Reason, "", metadata)
	default:
		var changed bool
		changed, err = f.withdrawalRepo.UpdateStatus(ctx, w.ID, target, w.ExternalStatus, req.Reason)
		if err == nil && !changed {
			err = ErrTerminalStatus
		}
	}
	if err != nil {
		if err == ErrTerminalStatus {
			return nil, err
		}
		return nil, NewBusinessError("WITHDRAWAL_UPDATE_FAILED", "failed to update withdrawal", err)
	}

	refreshed, err := f.withdrawalRepo.ByID(ctx, w.ID)
	if err != nil || refreshed == nil {
		return withdrawalToResponse(w), nil
	}
	return withdrawalToResponse(refreshed), nil
}

func (f *WithdrawalFlowImpl) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*dto.WithdrawalResponse, error) {
	ws, err := f.withdrawalRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, NewBusinessError("WITHDRAWAL_LIST_FAILED", "failed to list withdrawals", err)
	}
	out := make([]*dto.WithdrawalResponse, 0, len(ws))
	for _, w := range ws {
		out = append(out, withdrawalToResponse(w))
	}
	return out, nil
}

func (f *WithdrawalFlowImpl) ListLedgerByUser(ctx context.Context, userID uint, limit, offset int) ([]*dto.LedgerEntryResponse, error) {
	entries, err := f.ledgerRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, NewBusinessError("LEDGER_LIST_FAILED", "failed to list ledger entries", err)
	}
	out := make([]*dto.LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, &dto.LedgerEntryResponse{
			WithdrawalID: e.WithdrawalID,
			Amount:       e.Amount,
			Address:      e.Address,
			Currency:     e.Currency,
			Network:      e.Network,
			BatchID:      e.BatchID,
			TxHash:       e.TxHash,
			RecordedAt:   e.RecordedAt,
		})
	}
	return out, nil
}

func (f *WithdrawalFlowImpl) findWithdrawal(ctx context.Context, payoutID, extraID string) (*models.Withdrawal, error) {
	if payoutID != "" {
		w, err := f.withdrawalRepo.ByPayoutID(ctx, payoutID)
		if err != nil {
			return nil, NewBusinessError("WITHDRAWAL_LOOKUP_FAILED", "failed to look up withdrawal", err)
		}
		if w != nil {
			return w, nil
		}
	}
	if extraID != "" {
		if id, err := strconv.ParseUint(extraID, 10, 64); err == nil {
			w, err := f.withdrawalRepo.ByID(ctx, uint(id))
			if err != nil {
				return nil, NewBusinessError("WITHDRAWAL_LOOKUP_FAILED", "failed to look up withdrawal", err)
			}
			if w != nil {
				return w, nil
			}
		}
	}
	return nil, ErrWithdrawalNotFound
}

// applyExternalStatus is the single reconciliation path for webhook, poll
// and cron staleness checks.
func (f *WithdrawalFlowImpl) applyExternalStatus(ctx context.Context, w *models.Withdrawal, external, reason, hash string, metadata *ClientMetadata) error {
	mapped, normalized := mapWithdrawalStatus(external)

	switch mapped {
	case models.WithdrawalStatusCompleted:
		return f.settle(ctx, w, normalized, reason, hash, metadata)

	case models.WithdrawalStatusFailed:
		err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
			changed, err := f.withdrawalRepo.UpdateStatus(txCtx, w.ID, mapped, normalized, reason)
			if err != nil {
				return err
			}
			if !changed {
				// Already terminal; a replayed failure changes nothing.
				return nil
			}
			// The request debited the profit balance; a failed payout gives
			// it back. The terminal-status guard above makes this run once.
			if err := f.userRepo.RefundProfit(txCtx, w.UserID, w.Amount); err != nil {
				return err
			}
			f.createAuditLog(txCtx, &w.UserID, models.AuditActionWithdrawalFailed,
				fmt.Sprintf("withdrawal %d failed upstream (%s), %s refunded: %s", w.ID, normalized, w.Amount.String(), reason),
				false, nil, metadata)
			return nil
		})
		if err != nil {
			return NewBusinessError("WITHDRAWAL_FAIL_UPDATE_FAILED", "failed to record withdrawal failure", err)
		}
		return nil

	default:
		if _, err := f.withdrawalRepo.UpdateStatus(ctx, w.ID, mapped, normalized, reason); err != nil {
			return NewBusinessError("WITHDRAWAL_STATUS_UPDATE_FAILED", "failed to update withdrawal status", err)
		}
		return nil
	}
}

// settle moves a withdrawal to completed and appends the ledger row. The
// ledger's unique withdrawal_id plus DO NOTHING is the exactly-once guard:
// only the call that inserted the row bumps the lifetime withdrawn counter.
func (f *WithdrawalFlowImpl) settle(ctx context.Context, w *models.Withdrawal, normalized, reason, hash string, metadata *ClientMetadata) error {
	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := f.withdrawalRepo.UpdateStatus(txCtx, w.ID, models.WithdrawalStatusCompleted, normalized, reason); err != nil {
			return err
		}

		inserted, err := f.ledgerRepo.Append(txCtx, &models.WithdrawalLedgerEntry{
			WithdrawalID: w.ID,
			UserID:       w.UserID,
			Amount:       w.Amount,
			Address:      w.Address,
			Currency:     w.Currency,
			Network:      w.Network,
			BatchID:      w.BatchID,
			PayoutID:     w.PayoutID,
			TxHash:       hash,
			RecordedAt:   utils.UTCNow(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		if err := f.userRepo.AddTotalWithdrawn(txCtx, w.UserID, w.Amount); err != nil {
			return err
		}

		f.createAuditLog(txCtx, &w.UserID, models.AuditActionWithdrawalCompleted,
			fmt.Sprintf("withdrawal %d settled: %s %s to %s", w.ID, w.Amount.String(), w.Currency, w.Address),
			true, nil, metadata)
		return nil
	})
	if err != nil {
		return NewBusinessError("WITHDRAWAL_SETTLE_FAILED", "failed to settle withdrawal", err)
	}
	return nil
}

func (f *WithdrawalFlowImpl) createAuditLog(ctx context.Context, userID *uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) {
	ipAddress := ""
	userAgent := ""
	requestID := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
		requestID = metadata.RequestID
	}

	audit := &models.AuditLog{
		UserID:       userID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errorMsg,
	}
	if requestID != "" {
		audit.RequestID = &requestID
	}

	if err := f.auditRepo.Save(ctx, audit); err != nil {
		log.Printf("failed to save audit log (%s): %v", action, err)
	}
}

func withdrawalToResponse(w *models.Withdrawal) *dto.WithdrawalResponse {
	return &dto.WithdrawalResponse{
		ID:           w.ID,
		UUID:         w.UUID.String(),
		Amount:       w.Amount,
		Address:      w.Address,
		Currency:     w.Currency,
		Network:      w.Network,
		Status:       string(w.Status),
		StatusReason: w.StatusReason,
		BatchID:      w.BatchID,
		PayoutID:     w.PayoutID,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
}
