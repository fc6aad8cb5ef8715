package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Misty-clouds/eurobankv2/models"
	"gorm.io/gorm"
)

// PayoutBatchRepositoryImpl implements PayoutBatchRepository
type PayoutBatchRepositoryImpl struct {
	*BaseRepository[models.PayoutBatch, models.PayoutBatchFilter]
}

// NewPayoutBatchRepository creates a new payout batch repository
func NewPayoutBatchRepository(db *gorm.DB) PayoutBatchRepository {
	return &PayoutBatchRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PayoutBatch, models.PayoutBatchFilter](db),
	}
}

func (r *PayoutBatchRepositoryImpl) ByBatchID(ctx context.Context, batchID string) (*models.PayoutBatch, error) {
	db := r.getDB(ctx)
	var batch models.PayoutBatch
	if err := db.Where("batch_id = ?", batchID).Last(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

func (r *PayoutBatchRepositoryImpl) Finalize(ctx context.Context, id uint, submitted, failed int, status models.PayoutBatchStatus, at time.Time) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	result := db.Model(&models.PayoutBatch{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"submitted_count": submitted,
			"failed_count":    failed,
			"status":          status,
			"completed_at":    at,
		})
	if result.Error != nil {
		err = result.Error
		return err
	}
	if result.RowsAffected == 0 {
		err = fmt.Errorf("payout batch not found with ID: %d", id)
		return err
	}
	return nil
}
