package businessflow

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/Misty-clouds/eurobankv2/app/dto"
	"github.com/Misty-clouds/eurobankv2/app/services"
	"github.com/Misty-clouds/eurobankv2/models"
	"github.com/Misty-clouds/eurobankv2/repository"
	"github.com/Misty-clouds/eurobankv2/utils"
)

// PayoutDispatcher drains the withdrawal queue: one Sweep selects pending
// work, dispatches it to the processor in small batches, and re-checks
// processing withdrawals that have gone stale.
type PayoutDispatcher interface {
	Sweep(ctx context.Context) (*dto.SweepResponse, error)
}

// PayoutDispatcherImpl implements PayoutDispatcher
type PayoutDispatcherImpl struct {
	withdrawalRepo   repository.WithdrawalRepository
	batchRepo        repository.PayoutBatchRepository
	settingsRepo     repository.SettingsRepository
	verificationRepo repository.VerificationRequestRepository
	auditRepo        repository.AuditLogRepository
	withdrawalFlow   WithdrawalFlow
	processor        services.PaymentProcessor
	tokens           *services.TokenCache
	backoff          services.BackoffPolicy

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	interItemDelay  time.Duration
	interBatchDelay time.Duration
}

// NewPayoutDispatcher creates a new payout dispatcher
func NewPayoutDispatcher(
	withdrawalRepo repository.WithdrawalRepository,
	batchRepo repository.PayoutBatchRepository,
	settingsRepo repository.SettingsRepository,
	verificationRepo repository.VerificationRequestRepository,
	auditRepo repository.AuditLogRepository,
	withdrawalFlow WithdrawalFlow,
	processor services.PaymentProcessor,
	tokens *services.TokenCache,
	backoff services.BackoffPolicy,
) *PayoutDispatcherImpl {
	return &PayoutDispatcherImpl{
		withdrawalRepo:   withdrawalRepo,
		batchRepo:        batchRepo,
		settingsRepo:     settingsRepo,
		verificationRepo: verificationRepo,
		auditRepo:        auditRepo,
		withdrawalFlow:   withdrawalFlow,
		processor:        processor,
		tokens:           tokens,
		backoff:          backoff,
		now:              utils.UTCNow,
		sleep:            services.SleepContext,
		interItemDelay:   utils.InterItemDelay,
		interBatchDelay:  utils.InterBatchDelay,
	}
}

// Sweep runs one dispatcher round. The automatic-withdrawals toggle is read
// fresh at the start of every round, so flipping it off stops the next sweep
// without a restart.
func (d *PayoutDispatcherImpl) Sweep(ctx context.Context) (*dto.SweepResponse, error) {
	settings, err := d.settingsRepo.Get(ctx)
	if err != nil {
		return nil, NewBusinessError("SWEEP_SETTINGS_FAILED", "failed to read settings", err)
	}
	if !settings.AutomaticWithdrawals {
		return &dto.SweepResponse{Enabled: false}, nil
	}

	now := d.now()
	staleBefore := now.Add(-utils.StalenessThreshold)

	items, err := d.withdrawalRepo.ListDispatchable(ctx, staleBefore, utils.SweepLimit)
	if err != nil {
		return nil, NewBusinessError("SWEEP_SELECT_FAILED", "failed to select withdrawals", err)
	}

	resp := &dto.SweepResponse{Enabled: true, Selected: len(items)}

	var dispatchable []*models.Withdrawal
	for _, w := range items {
		switch w.Status {
		case models.WithdrawalStatusPending:
			ok, err := d.passesVerificationGate(ctx, settings, w)
			if err != nil {
				log.Printf("sweep: verification check failed for withdrawal %d: %v", w.ID, err)
				resp.Skipped++
				continue
			}
			if !ok {
				resp.Skipped++
				if merr := d.withdrawalRepo.MarkFailedPending(ctx, w.ID, ErrVerificationRequired.Error()); merr != nil {
					log.Printf("sweep: failed to record skip reason for withdrawal %d: %v", w.ID, merr)
				}
				continue
			}
			dispatchable = append(dispatchable, w)

		case models.WithdrawalStatusProcessing:
			// Stale in-flight payout: ask the processor where it stands.
			resp.StatusChecked++
			before := w.Status
			polled, err := d.withdrawalFlow.PollStatus(ctx, w.ID, nil)
			if err != nil {
				log.Printf("sweep: staleness check failed for withdrawal %d: %v", w.ID, err)
				continue
			}
			if polled.Status != string(before) {
				resp.StatusUpdated++
			}
		}
	}

	for start := 0; start < len(dispatchable); start += utils.DispatchBatchSize {
		end := start + utils.DispatchBatchSize
		if end > len(dispatchable) {
			end = len(dispatchable)
		}
		batchItems := dispatchable[start:end]

		submitted, failed, batchID := d.dispatchBatch(ctx, batchItems)
		resp.Dispatched += submitted
		resp.Failed += failed
		if batchID != "" {
			resp.BatchIDs = append(resp.BatchIDs, batchID)
		}

		if end < len(dispatchable) {
			if err := d.sleep(ctx, d.interBatchDelay); err != nil {
				return resp, err
			}
		}
	}

	return resp, nil
}

// passesVerificationGate holds back above-threshold withdrawals until a
// verified approval references this exact withdrawal. An approval for one
// payout cannot unlock another.
func (d *PayoutDispatcherImpl) passesVerificationGate(ctx context.Context, settings *models.Settings, w *models.Withdrawal) (bool, error) {
	if settings.VerificationThreshold.IsZero() || w.Amount.LessThan(settings.VerificationThreshold) {
		return true, nil
	}
	return d.verificationRepo.HasVerifiedApproval(ctx, w.UserID, w.ID)
}

// dispatchBatch submits one sub-batch under a single bearer token. An item
// failure never aborts the batch: the item goes back to pending with its
// rejection reason and the rest proceed.
func (d *PayoutDispatcherImpl) dispatchBatch(ctx context.Context, items []*models.Withdrawal) (submitted, failed int, batchID string) {
	batchID = models.NewBatchID(d.now())

	ids := make([]int64, 0, len(items))
	for _, w := range items {
		ids = append(ids, int64(w.ID))
	}
	batch := &models.PayoutBatch{
		BatchID:       batchID,
		WithdrawalIDs: ids,
		Status:        models.PayoutBatchStatusCreated,
	}
	if err := d.batchRepo.Save(ctx, batch); err != nil {
		log.Printf("sweep: failed to record batch %s: %v", batchID, err)
		return 0, len(items), ""
	}

	token, err := d.tokens.Token(ctx)
	if err != nil {
		log.Printf("sweep: %v for batch %s: %v", ErrAuthenticationFailed, batchID, err)
		for _, w := range items {
			if merr := d.withdrawalRepo.MarkFailedPending(ctx, w.ID, ErrAuthenticationFailed.Error()); merr != nil {
				log.Printf("sweep: failed to mark withdrawal %d: %v", w.ID, merr)
			}
		}
		d.finalizeBatch(ctx, batch, 0, len(items))
		return 0, len(items), batchID
	}

	for i, w := range items {
		if i > 0 {
			if err := d.sleep(ctx, d.interItemDelay); err != nil {
				d.finalizeBatch(ctx, batch, submitted, failed+len(items)-i)
				return submitted, failed + len(items) - i, batchID
			}
		}

		item := services.PayoutItem{
			Address:  w.Address,
			Currency: utils.PayoutCurrency,
			Network:  utils.PayoutNetwork,
			Amount:   w.Amount,
			ExtraID:  strconv.FormatUint(uint64(w.ID), 10),
		}

		var result *services.PayoutResult
		err := d.backoff.Retry(ctx, func(ctx context.Context) error {
			var serr error
			result, serr = d.processor.SubmitPayout(ctx, token, item)
			return serr
		})
		if err != nil {
			failed++
			log.Printf("sweep: payout rejected for withdrawal %d: %v", w.ID, err)
			if merr := d.withdrawalRepo.MarkFailedPending(ctx, w.ID, err.Error()); merr != nil {
				log.Printf("sweep: failed to mark withdrawal %d: %v", w.ID, merr)
			}
			continue
		}

		moved, err := d.withdrawalRepo.MarkDispatched(ctx, w.ID, batchID, result.PayoutID, d.now())
		if err != nil {
			failed++
			log.Printf("sweep: failed to mark withdrawal %d dispatched: %v", w.ID, err)
			continue
		}
		if !moved {
			// Another sweep won the race after selection; the payout stands,
			// reconciliation will converge on the processor's view.
			log.Printf("sweep: withdrawal %d already dispatched elsewhere", w.ID)
		}
		submitted++

		d.auditDispatch(ctx, w, batchID, result.PayoutID)
	}

	d.finalizeBatch(ctx, batch, submitted, failed)
	return submitted, failed, batchID
}

func (d *PayoutDispatcherImpl) finalizeBatch(ctx context.Context, batch *models.PayoutBatch, submitted, failed int) {
	batch.SubmittedCount = submitted
	batch.FailedCount = failed
	if err := d.batchRepo.Finalize(ctx, batch.ID, submitted, failed, batch.Outcome(), d.now()); err != nil {
		log.Printf("sweep: failed to finalize batch %s: %v", batch.BatchID, err)
		return
	}

	description := fmt.Sprintf("batch %s dispatched: %d submitted, %d failed", batch.BatchID, submitted, failed)
	audit := &models.AuditLog{
		Action:      models.AuditActionBatchDispatched,
		Description: &description,
		Success:     utils.ToPtr(failed == 0),
	}
	if err := d.auditRepo.Save(ctx, audit); err != nil {
		log.Printf("failed to save audit log (%s): %v", models.AuditActionBatchDispatched, err)
	}
}

func (d *PayoutDispatcherImpl) auditDispatch(ctx context.Context, w *models.Withdrawal, batchID, payoutID string) {
	description := fmt.Sprintf("withdrawal %d dispatched in %s as payout %s", w.ID, batchID, payoutID)
	audit := &models.AuditLog{
		UserID:      &w.UserID,
		Action:      models.AuditActionWithdrawalDispatched,
		Description: &description,
		Success:     utils.ToPtr(true),
	}
	if err := d.auditRepo.Save(ctx, audit); err != nil {
		log.Printf("failed to save audit log (%s): %v", models.AuditActionWithdrawalDispatched, err)
	}
}
