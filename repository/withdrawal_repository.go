package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Misty-clouds/eurobankv2/models"
	"gorm.io/gorm"
)

// WithdrawalRepositoryImpl implements WithdrawalRepository
type WithdrawalRepositoryImpl struct {
	*BaseRepository[models.Withdrawal, models.WithdrawalFilter]
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *gorm.DB) WithdrawalRepository {
	return &WithdrawalRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Withdrawal, models.WithdrawalFilter](db),
	}
}

func (r *WithdrawalRepositoryImpl) ByPayoutID(ctx context.Context, payoutID string) (*models.Withdrawal, error) {
	db := r.getDB(ctx)
	var w models.Withdrawal
	if err := db.Where("payout_id = ?", payoutID).Last(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

func (r *WithdrawalRepositoryImpl) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Withdrawal, error) {
	db := r.getDB(ctx)
	var ws []*models.Withdrawal
	q := db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&ws).Error; err != nil {
		return nil, err
	}
	return ws, nil
}

// ListDispatchable selects the sweep's working set: pending withdrawals that
// have aged past staleBefore, plus processing ones that have gone unchecked
// since then. Oldest first, so long-waiting requests leave the queue ahead of
// fresh ones. Fresh pending rows are deliberately left alone; they get their
// turn once they cross the staleness threshold.
func (r *WithdrawalRepositoryImpl) ListDispatchable(ctx context.Context, staleBefore time.Time, limit int) ([]*models.Withdrawal, error) {
	db := r.getDB(ctx)
	var ws []*models.Withdrawal
	q := db.Where(
		"(status = ? AND created_at < ?) OR (status = ? AND COALESCE(last_checked_at, created_at) < ?)",
		models.WithdrawalStatusPending,
		staleBefore,
		models.WithdrawalStatusProcessing,
		staleBefore,
	).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&ws).Error; err != nil {
		return nil, err
	}
	return ws, nil
}

func (r *WithdrawalRepositoryImpl) Update(ctx context.Context, w *models.Withdrawal) error {
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
	err = db.Save(w).Error
	if err != nil {
		return err
	}
	return nil
}

// MarkDispatched stamps batch and payout identifiers on a pending row. The
// status guard keeps a second concurrent sweep from re-dispatching the same
// withdrawal.
func (r *WithdrawalRepositoryImpl) MarkDispatched(ctx context.Context, id uint, batchID, payoutID string, at time.Time) (bool, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
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

	result := db.Model(&models.Withdrawal{}).
		Where("id = ?", id).
		Where("status = ?", models.WithdrawalStatusPending).
		Updates(map[string]any{
			"status":        models.WithdrawalStatusProcessing,
			"batch_id":      batchID,
			"payout_id":     payoutID,
			"dispatched_at": at,
			"updated_at":    gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if result.Error != nil {
		err = result.Error
		return false, err
	}
	return result.RowsAffected > 0, nil
}

// UpdateStatus moves the withdrawal to status unless it is already terminal.
func (r *WithdrawalRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status models.WithdrawalStatus, externalStatus, reason string) (bool, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
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

	updates := map[string]any{
		"status":          status,
		"external_status": externalStatus,
		"status_reason":   reason,
		"updated_at":      gorm.Expr("CURRENT_TIMESTAMP"),
	}
	if status == models.WithdrawalStatusCompleted {
		updates["completed_at"] = gorm.Expr("CURRENT_TIMESTAMP")
	}

	result := db.Model(&models.Withdrawal{}).
		Where("id = ?", id).
		Where("status NOT IN ?", []models.WithdrawalStatus{
			models.WithdrawalStatusCompleted,
			models.WithdrawalStatusFailed,
			models.WithdrawalStatusCancelled,
		}).
		Updates(updates)
	if result.Error != nil {
		err = result.Error
		return false, err
	}
	return result.RowsAffected > 0, nil
}

func (r *WithdrawalRepositoryImpl) TouchChecked(ctx context.Context, id uint, at time.Time) error {
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

	result := db.Model(&models.Withdrawal{}).
		Where("id = ?", id).
		Update("last_checked_at", at)
	if result.Error != nil {
		err = result.Error
		return err
	}
	if result.RowsAffected == 0 {
		err = fmt.Errorf("withdrawal not found with ID: %d", id)
		return err
	}
	return nil
}

// MarkFailedPending returns a rejected item to the pending pool so the next
// sweep retries it. Only processing rows qualify; terminal rows stay put.
func (r *WithdrawalRepositoryImpl) MarkFailedPending(ctx context.Context, id uint, reason string) error {
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

	result := db.Model(&models.Withdrawal{}).
		Where("id = ?", id).
		Where("status IN ?", []models.WithdrawalStatus{
			models.WithdrawalStatusPending,
			models.WithdrawalStatusProcessing,
		}).
		Updates(map[string]any{
			"status":        models.WithdrawalStatusPending,
			"status_reason": reason,
			"batch_id":      "",
			"payout_id":     "",
			"updated_at":    gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if result.Error != nil {
		err = result.Error
		return err
	}
	return nil
}
