package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Misty-clouds/eurobankv2/models"
	"gorm.io/gorm"
)

// VerificationRequestRepositoryImpl implements VerificationRequestRepository
type VerificationRequestRepositoryImpl struct {
	*BaseRepository[models.VerificationRequest, models.VerificationRequestFilter]
}

// NewVerificationRequestRepository creates a new verification request repository
func NewVerificationRequestRepository(db *gorm.DB) VerificationRequestRepository {
	return &VerificationRequestRepositoryImpl{
		BaseRepository: NewBaseRepository[models.VerificationRequest, models.VerificationRequestFilter](db),
	}
}

func (r *VerificationRequestRepositoryImpl) ByUUID(ctx context.Context, u string) (*models.VerificationRequest, error) {
	db := r.getDB(ctx)
	var vr models.VerificationRequest
	if err := db.Where("uuid = ?", u).Last(&vr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vr, nil
}

func (r *VerificationRequestRepositoryImpl) LatestUsableForUser(ctx context.Context, userID uint, now time.Time) (*models.VerificationRequest, error) {
	db := r.getDB(ctx)
	var vr models.VerificationRequest
	err := db.Where("user_id = ?", userID).
		Where("verified = ?", false).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at DESC").
		First(&vr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vr, nil
}

// MarkVerified flips the request to verified once; the guard keeps a replayed
// code from re-verifying.
func (r *VerificationRequestRepositoryImpl) MarkVerified(ctx context.Context, id uint, at time.Time) (bool, error) {
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

	result := db.Model(&models.VerificationRequest{}).
		Where("id = ?", id).
		Where("verified = ?", false).
		Updates(map[string]any{
			"verified":    true,
			"verified_at": at,
			"updated_at":  gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if result.Error != nil {
		err = result.Error
		return false, err
	}
	return result.RowsAffected > 0, nil
}

func (r *VerificationRequestRepositoryImpl) HasVerifiedApproval(ctx context.Context, userID, withdrawalID uint) (bool, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.VerificationRequest{}).
		Where("user_id = ?", userID).
		Where("withdrawal_id = ?", withdrawalID).
		Where("verified = ?", true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
