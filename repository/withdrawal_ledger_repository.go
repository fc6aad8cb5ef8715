package repository

import (
	"context"
	"errors"

	"github.com/Misty-clouds/eurobankv2/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WithdrawalLedgerRepositoryImpl implements WithdrawalLedgerRepository
type WithdrawalLedgerRepositoryImpl struct {
	*BaseRepository[models.WithdrawalLedgerEntry, models.WithdrawalLedgerFilter]
}

// NewWithdrawalLedgerRepository creates a new ledger repository
func NewWithdrawalLedgerRepository(db *gorm.DB) WithdrawalLedgerRepository {
	return &WithdrawalLedgerRepositoryImpl{
		BaseRepository: NewBaseRepository[models.WithdrawalLedgerEntry, models.WithdrawalLedgerFilter](db),
	}
}

// Append inserts the entry unless one already exists for the withdrawal. The
// unique index on withdrawal_id plus DO NOTHING makes replayed completion
// notifications produce exactly one ledger row.
func (r *WithdrawalLedgerRepositoryImpl) Append(ctx context.Context, entry *models.WithdrawalLedgerEntry) (bool, error) {
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

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "withdrawal_id"}},
		DoNothing: true,
	}).Create(entry)
	if result.Error != nil {
		err = result.Error
		return false, err
	}
	return result.RowsAffected > 0, nil
}

func (r *WithdrawalLedgerRepositoryImpl) ByWithdrawalID(ctx context.Context, withdrawalID uint) (*models.WithdrawalLedgerEntry, error) {
	db := r.getDB(ctx)
	var entry models.WithdrawalLedgerEntry
	if err := db.Where("withdrawal_id = ?", withdrawalID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *WithdrawalLedgerRepositoryImpl) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.WithdrawalLedgerEntry, error) {
	db := r.getDB(ctx)
	var entries []*models.WithdrawalLedgerEntry
	q := db.Where("user_id = ?", userID).Order("recorded_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
