package repository

import (
	"context"
	"errors"

	"github.com/Misty-clouds/eurobankv2/models"
	"gorm.io/gorm"
)

// SettingsRepositoryImpl implements SettingsRepository
type SettingsRepositoryImpl struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &SettingsRepositoryImpl{db: db}
}

func (r *SettingsRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

// Get returns the settings row. A missing row reads as every feature
// disabled rather than an error, so a fresh database fails closed.
func (r *SettingsRepositoryImpl) Get(ctx context.Context) (*models.Settings, error) {
	db := r.getDB(ctx)
	var s models.Settings
	if err := db.Order("id ASC").First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.Settings{}, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SettingsRepositoryImpl) SetAutomaticWithdrawals(ctx context.Context, enabled bool) error {
	db := r.getDB(ctx)

	var s models.Settings
	err := db.Order("id ASC").First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s = models.Settings{AutomaticWithdrawals: enabled}
		return db.Create(&s).Error
	}
	if err != nil {
		return err
	}

	return db.Model(&models.Settings{}).
		Where("id = ?", s.ID).
		Update("automatic_withdrawals", enabled).Error
}
