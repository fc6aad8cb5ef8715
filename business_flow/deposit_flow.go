// Package businessflow contains the core business logic and use cases for payment reconciliation workflows
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Misty-clouds/eurobankv2/app/dto"
	"github.com/Misty-clouds/eurobankv2/app/services"
	"github.com/Misty-clouds/eurobankv2/models"
	"github.com/Misty-clouds/eurobankv2/repository"
	"github.com/Misty-clouds/eurobankv2/utils"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// ProfitPolicy computes the bonus credited alongside a completed deposit
type ProfitPolicy func(amount decimal.Decimal) decimal.Decimal

// DefaultProfitPolicy pays a flat 2 on the 80 promotion tier and 30%
// everywhere else.
func DefaultProfitPolicy(amount decimal.Decimal) decimal.Decimal {
	if amount.Equal(decimal.NewFromInt(80)) {
		return decimal.NewFromInt(2)
	}
	return utils.RoundMoney(amount.Mul(decimal.NewFromFloat(0.3)))
}

// DepositFlow defines deposit reconciliation operations
type DepositFlow interface {
	InitiateDeposit(ctx context.Context, req *dto.CreateDepositRequest, metadata *ClientMetadata) (*dto.CreateDepositResponse, error)
	GetStatus(ctx context.Context, orderID string) (*dto.DepositStatusResponse, error)
	HandleNotification(ctx context.Context, n *dto.DepositNotification, metadata *ClientMetadata) error
	PollStatus(ctx context.Context, orderID string, metadata *ClientMetadata) (*dto.DepositStatusResponse, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*dto.DepositStatusResponse, error)
}

// DepositFlowImpl implements DepositFlow
type DepositFlowImpl struct {
	depositRepo  repository.DepositRepository
	userRepo     repository.UserRepository
	auditRepo    repository.AuditLogRepository
	processor    services.PaymentProcessor
	tx           repository.TxManager
	cache        *redis.Client
	profitPolicy ProfitPolicy
}

// NewDepositFlow creates a new deposit flow. cache may be nil; polls then
// always reach the processor.
func NewDepositFlow(
	depositRepo repository.DepositRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditLogRepository,
	processor services.PaymentProcessor,
	tx repository.TxManager,
	cache *redis.Client,
	profitPolicy ProfitPolicy,
) DepositFlow {
	if profitPolicy == nil {
		profitPolicy = DefaultProfitPolicy
	}
	return &DepositFlowImpl{
		depositRepo:  depositRepo,
		userRepo:     userRepo,
		auditRepo:    auditRepo,
		processor:    processor,
		tx:           tx,
		cache:        cache,
		profitPolicy: profitPolicy,
	}
}

func (f *DepositFlowImpl) InitiateDeposit(ctx context.Context, req *dto.CreateDepositRequest, metadata *ClientMetadata) (*dto.CreateDepositResponse, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrAmountTooLow
	}

	user, err := f.userRepo.ByID(ctx, req.UserID)
	if err != nil {
		return nil, NewBusinessError("DEPOSIT_USER_LOOKUP_FAILED", "failed to look up user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	orderID := models.NewDepositOrderID(user.ID, utils.UTCNow())

	invoice, err := f.processor.CreateInvoice(ctx, services.InvoiceInput{
		Amount:        req.Amount,
		PriceCurrency: utils.USDCurrency,
		PayCurrency:   req.PayCurrency,
		OrderID:       orderID,
		Description:   fmt.Sprintf("deposit for user %d", user.ID),
	})
	if err != nil {
		return nil, NewBusinessError("DEPOSIT_INVOICE_FAILED", "failed to create invoice at processor", err)
	}

	deposit := &models.Deposit{
		UserID:         user.ID,
		OrderID:        orderID,
		PaymentID:      invoice.PaymentID,
		Amount:         req.Amount,
		PayCurrency:    req.PayCurrency,
		PayAddress:     invoice.PayAddress,
		Status:         models.DepositStatusPending,
		ExternalStatus: invoice.Status,
	}
	if err := f.depositRepo.Save(ctx, deposit); err != nil {
		return nil, NewBusinessError("DEPOSIT_SAVE_FAILED", "failed to save deposit", err)
	}

	f.createAuditLog(ctx, &user.ID, models.AuditActionDepositCreated,
		fmt.Sprintf("deposit %s created for %s %s", orderID, req.Amount.String(), utils.USDCurrency),
		true, nil, metadata)

	return &dto.CreateDepositResponse{
		OrderID:    deposit.OrderID,
		PaymentID:  deposit.PaymentID,
		PayAddress: deposit.PayAddress,
		Amount:     deposit.Amount,
		Status:     string(deposit.Status),
		CreatedAt:  deposit.CreatedAt,
	}, nil
}

func (f *DepositFlowImpl) GetStatus(ctx context.Context, orderID string) (*dto.DepositStatusResponse, error) {
	if orderID == "" {
		return nil, ErrOrderIDRequired
	}
	deposit, err := f.depositRepo.ByOrderID(ctx, orderID)
	if err != nil {
		return nil, NewBusinessError("DEPOSIT_LOOKUP_FAILED", "failed to look up deposit", err)
	}
	if deposit == nil {
		return nil, ErrDepositNotFound
	}
	return depositToResponse(deposit), nil
}

// HandleNotification applies one processor IPN to the matching deposit. The
// caller has already verified the body signature. Replays and out-of-order
// deliveries are harmless: status writes skip terminal rows and the credit
// is claimed at most once.
func (f *DepositFlowImpl) HandleNotification(ctx context.Context, n *dto.DepositNotification, metadata *ClientMetadata) error {
	deposit, err := f.findDeposit(ctx, n.OrderID, n.PaymentID.String())
	if err != nil {
		return err
	}

	// Adopt the processor's payment ID the first time it shows up.
	if deposit.PaymentID == "" && n.PaymentID.String() != "" {
		deposit.PaymentID = n.PaymentID.String()
		if err := f.depositRepo.Update(ctx, deposit); err != nil {
			return NewBusinessError("DEPOSIT_UPDATE_FAILED", "failed to record payment ID", err)
		}
	}

	payload, _ := json.Marshal(n)
	return f.applyExternalStatus(ctx, deposit, n.PaymentStatus, payload, metadata)
}

// PollStatus asks the processor for the payment's current state and
// reconciles it, sharing the credit path with webhook delivery. Responses
// are cached briefly so an impatient client cannot hammer the processor.
func (f *DepositFlowImpl) PollStatus(ctx context.Context, orderID string, metadata *ClientMetadata) (*dto.DepositStatusResponse, error) {
	deposit, err := f.depositRepo.ByOrderID(ctx, orderID)
	if err != nil {
		return nil, NewBusinessError("DEPOSIT_LOOKUP_FAILED", "failed to look up deposit", err)
	}
	if deposit == nil {
		return nil, ErrDepositNotFound
	}
	if deposit.PaymentID == "" {
		return depositToResponse(deposit), nil
	}
	if deposit.IsFinal() {
		return depositToResponse(deposit), nil
	}

	var payload json.RawMessage
	external, ok := f.cachedPollStatus(ctx, deposit.PaymentID)
	if !ok {
		status, err := f.processor.PaymentStatus(ctx, deposit.PaymentID)
		if err != nil {
			// Poll failure degrades to the stored view instead of surfacing
			// a processor outage to the caller.
			log.Printf("deposit poll failed for payment %s: %v", deposit.PaymentID, err)
			return depositToResponse(deposit), nil
		}
		external = status.Status
		payload, _ = json.Marshal(status)
		f.storePollStatus(ctx, deposit.PaymentID, external)
	}

	if err := f.applyExternalStatus(ctx, deposit, external, payload, metadata); err != nil {
		return nil, err
	}

	refreshed, err := f.depositRepo.ByID(ctx, deposit.ID)
	if err != nil || refreshed == nil {
		return depositToResponse(deposit), nil
	}
	return depositToResponse(refreshed), nil
}

func (f *DepositFlowImpl) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*dto.DepositStatusResponse, error) {
	deposits, err := f.depositRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, NewBusinessError("DEPOSIT_LIST_FAILED", "failed to list deposits", err)
	}
	out := make([]*dto.DepositStatusResponse, 0, len(deposits))
	for _, d := range deposits {
		out = append(out, depositToResponse(d))
	}
	return out, nil
}

func (f *DepositFlowImpl) findDeposit(ctx context.Context, orderID, paymentID string) (*models.Deposit, error) {
	if orderID != "" {
		deposit, err := f.depositRepo.ByOrderID(ctx, orderID)
		if err != nil {
			return nil, NewBusinessError("DEPOSIT_LOOKUP_FAILED", "failed to look up deposit", err)
		}
		if deposit != nil {
			return deposit, nil
		}
	}
	if paymentID != "" {
		deposit, err := f.depositRepo.ByPaymentID(ctx, paymentID)
		if err != nil {
			return nil, NewBusinessError("DEPOSIT_LOOKUP_FAILED", "failed to look up deposit", err)
		}
		if deposit != nil {
			return deposit, nil
		}
	}
	return nil, ErrDepositNotFound
}

// applyExternalStatus is the single reconciliation path for webhook, poll
// and cron: the mapped status and the full opaque processor payload persist
// together. Completion runs in one transaction: the credit claim is a
// compare-and-swap on credited_at guarded against terminal rows, so however
// many duplicates race (and however late a "finished" arrives after a
// failure), the user's balance moves exactly once and only on the transition
// into completed.
func (f *DepositFlowImpl) applyExternalStatus(ctx context.Context, deposit *models.Deposit, external string, payload json.RawMessage, metadata *ClientMetadata) error {
	mapped, normalized := mapDepositStatus(external)

	if mapped != models.DepositStatusCompleted {
		changed, err := f.depositRepo.UpdateStatus(ctx, deposit.ID, mapped, normalized, "", payload)
		if err != nil {
			return NewBusinessError("DEPOSIT_STATUS_UPDATE_FAILED", "failed to update deposit status", err)
		}
		if changed && mapped != deposit.Status {
			f.createAuditLog(ctx, &deposit.UserID, models.AuditActionDepositStatusChanged,
				fmt.Sprintf("deposit %s: %s -> %s", deposit.OrderID, deposit.Status, mapped),
				true, nil, metadata)
		}
		return nil
	}

	profit := f.profitPolicy(deposit.Amount)

	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		claimed, err := f.depositRepo.ClaimCredit(txCtx, deposit.ID, profit, utils.UTCNow())
		if err != nil {
			return err
		}
		if !claimed {
			// A concurrent notification got here first, or the deposit
			// already reached a terminal state; just make sure a completed
			// row reads completed. The terminal guard keeps a failed one
			// failed.
			_, err := f.depositRepo.UpdateStatus(txCtx, deposit.ID, models.DepositStatusCompleted, normalized, "", payload)
			return err
		}

		user, err := f.userRepo.LockByID(txCtx, deposit.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}

		if err := f.userRepo.CreditBalances(txCtx, user.ID, deposit.Amount, profit); err != nil {
			return err
		}

		if _, err := f.depositRepo.UpdateStatus(txCtx, deposit.ID, models.DepositStatusCompleted, normalized, "", payload); err != nil {
			return err
		}

		f.createAuditLog(txCtx, &deposit.UserID, models.AuditActionDepositCredited,
			fmt.Sprintf("deposit %s credited: amount %s profit %s", deposit.OrderID, deposit.Amount.String(), profit.String()),
			true, nil, metadata)
		return nil
	})
	if err != nil {
		return NewBusinessError("DEPOSIT_CREDIT_FAILED", "failed to credit deposit", err)
	}
	return nil
}

const pollCacheTTL = 30 * time.Second

func (f *DepositFlowImpl) cachedPollStatus(ctx context.Context, paymentID string) (string, bool) {
	if f.cache == nil {
		return "", false
	}
	v, err := f.cache.Get(ctx, "deposit:poll:"+paymentID).Result()
	if err != nil {
		return "", false
	}
	return v, v != ""
}

func (f *DepositFlowImpl) storePollStatus(ctx context.Context, paymentID, status string) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Set(ctx, "deposit:poll:"+paymentID, status, pollCacheTTL).Err(); err != nil {
		log.Printf("failed to cache poll status for payment %s: %v", paymentID, err)
	}
}

func (f *DepositFlowImpl) createAuditLog(ctx context.Context, userID *uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) {
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

func depositToResponse(d *models.Deposit) *dto.DepositStatusResponse {
	return &dto.DepositStatusResponse{
		OrderID:        d.OrderID,
		PaymentID:      d.PaymentID,
		Amount:         d.Amount,
		Profit:         d.Profit,
		Status:         string(d.Status),
		ExternalStatus: d.ExternalStatus,
		Credited:       d.IsCredited(),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
