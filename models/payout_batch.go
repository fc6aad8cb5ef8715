package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// PayoutBatchStatus represents the outcome of one dispatched batch
type PayoutBatchStatus string

const (
	PayoutBatchStatusCreated   PayoutBatchStatus = "created"   // Allocated, items not yet sent
	PayoutBatchStatusSubmitted PayoutBatchStatus = "submitted" // Every item accepted by the processor
	PayoutBatchStatusPartial   PayoutBatchStatus = "partial"   // Some items failed, the rest were accepted
	PayoutBatchStatusFailed    PayoutBatchStatus = "failed"    // No item was accepted
)

// PayoutBatch is the bookkeeping record for one processor batch produced by
// the withdrawal dispatcher.
type PayoutBatch struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	// BatchID is the merchant-side batch identifier (BATCH-<millis>).
	BatchID string `gorm:"type:varchar(64);uniqueIndex;not null" json:"batch_id"`

	WithdrawalIDs pq.Int64Array `gorm:"type:bigint[];not null" json:"withdrawal_ids"`

	SubmittedCount int `gorm:"not null;default:0" json:"submitted_count"`
	FailedCount    int `gorm:"not null;default:0" json:"failed_count"`

	Status PayoutBatchStatus `gorm:"type:varchar(20);not null;default:'created';index" json:"status"`

	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

func (PayoutBatch) TableName() string { return "payout_batches" }

// NewBatchID builds the merchant batch identifier for a dispatch round.
func NewBatchID(at time.Time) string {
	return fmt.Sprintf("BATCH-%d", at.UnixMilli())
}

// BeforeCreate validates the batch carries at least one withdrawal
func (b *PayoutBatch) BeforeCreate(tx *gorm.DB) error {
	if len(b.WithdrawalIDs) == 0 {
		return fmt.Errorf("payout batch %s has no withdrawals", b.BatchID)
	}
	return nil
}

// Outcome derives the final batch status from its counters.
func (b *PayoutBatch) Outcome() PayoutBatchStatus {
	switch {
	case b.SubmittedCount == 0:
		return PayoutBatchStatusFailed
	case b.FailedCount > 0:
		return PayoutBatchStatusPartial
	default:
		return PayoutBatchStatusSubmitted
	}
}

// PayoutBatchFilter represents filter criteria for payout batch queries
type PayoutBatchFilter struct {
	ID            *uint              `json:"id,omitempty"`
	BatchID       *string            `json:"batch_id,omitempty"`
	Status        *PayoutBatchStatus `json:"status,omitempty"`
	CreatedAfter  *time.Time         `json:"created_after,omitempty"`
	CreatedBefore *time.Time         `json:"created_before,omitempty"`
}
