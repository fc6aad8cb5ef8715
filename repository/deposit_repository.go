package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Misty-clouds/eurobankv2/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DepositRepositoryImpl implements DepositRepository
type DepositRepositoryImpl struct {
	*BaseRepository[models.Deposit, models.DepositFilter]
}

// NewDepositRepository creates a new deposit repository
func NewDepositRepository(db *gorm.DB) DepositRepository {
	return &DepositRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Deposit, models.DepositFilter](db),
	}
}

func (r *DepositRepositoryImpl) ByOrderID(ctx context.Context, orderID string) (*models.Deposit, error) {
	db := r.getDB(ctx)
	var dep models.Deposit
	if err := db.Where("order_id = ?", orderID).Last(&dep).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dep, nil
}

func (r *DepositRepositoryImpl) ByPaymentID(ctx context.Context, paymentID string) (*models.Deposit, error) {
	db := r.getDB(ctx)
	var dep models.Deposit
	if err := db.Where("payment_id = ?", paymentID).Last(&dep).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dep, nil
}

func (r *DepositRepositoryImpl) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Deposit, error) {
	db := r.getDB(ctx)
	var deps []*models.Deposit
	q := db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&deps).Error; err != nil {
		return nil, err
	}
	return deps, nil
}

func (r *DepositRepositoryImpl) Update(ctx context.Context, dep *models.Deposit) error {
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
	err = db.Save(dep).Error
	if err != nil {
		return err
	}
	return nil
}

// UpdateStatus moves the deposit to status unless it already reached a
// terminal state. Terminal rows are left untouched so a late or replayed
// notification can never regress a settled deposit. The raw processor payload
// is stored alongside the status for the audit trail.
func (r *DepositRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status models.DepositStatus, externalStatus, reason string, payload json.RawMessage) (bool, error) {
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
	if len(payload) > 0 {
		updates["metadata"] = payload
	}

	result := db.Model(&models.Deposit{}).
		Where("id = ?", id).
		Where("status NOT IN ?", []models.DepositStatus{
			models.DepositStatusCompleted,
			models.DepositStatusFailed,
		}).
		Updates(updates)
	if result.Error != nil {
		err = result.Error
		return false, err
	}
	return result.RowsAffected > 0, nil
}

// ClaimCredit atomically stamps credited_at and the computed profit. The
// WHERE credited_at IS NULL guard makes it a compare-and-swap: exactly one of
// any number of concurrent callers observes RowsAffected == 1. The status
// guard keeps a late "finished" from crediting a deposit that already failed
// or expired; the claim only succeeds on the transition into completed.
func (r *DepositRepositoryImpl) ClaimCredit(ctx context.Context, id uint, profit decimal.Decimal, at time.Time) (bool, error) {
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

	result := db.Model(&models.Deposit{}).
		Where("id = ?", id).
		Where("credited_at IS NULL").
		Where("status NOT IN ?", []models.DepositStatus{
			models.DepositStatusCompleted,
			models.DepositStatusFailed,
		}).
		Updates(map[string]any{
			"credited_at": at,
			"profit":      profit,
			"updated_at":  gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if result.Error != nil {
		err = result.Error
		return false, err
	}
	return result.RowsAffected > 0, nil
}
