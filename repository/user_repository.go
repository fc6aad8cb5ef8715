package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Misty-clouds/eurobankv2/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepositoryImpl implements UserRepository
type UserRepositoryImpl struct {
	*BaseRepository[models.User, models.UserFilter]
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &UserRepositoryImpl{
		BaseRepository: NewBaseRepository[models.User, models.UserFilter](db),
	}
}

func (r *UserRepositoryImpl) ByEmail(ctx context.Context, email string) (*models.User, error) {
	db := r.getDB(ctx)
	var user models.User
	if err := db.Where("email = ?", email).Last(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// LockByID loads the user row under FOR UPDATE. The caller must already hold
// a transaction in the context; locking on the bare connection would be a
// silent no-op, so that is rejected.
func (r *UserRepositoryImpl) LockByID(ctx context.Context, id uint) (*models.User, error) {
	tx, ok := ctx.Value(TxContextKey).(*gorm.DB)
	if !ok || tx == nil {
		return nil, errors.New("LockByID requires a transaction in context")
	}

	var user models.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepositoryImpl) CreditBalances(ctx context.Context, userID uint, amount, profit decimal.Decimal) error {
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

	result := db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"balance":        gorm.Expr("balance + ?", amount),
			"profit_balance": gorm.Expr("profit_balance + ?", profit),
		})
	if result.Error != nil {
		err = result.Error
		return err
	}
	if result.RowsAffected == 0 {
		err = fmt.Errorf("user not found with ID: %d", userID)
		return err
	}
	return nil
}

// DebitProfit subtracts from the profit balance. The balance guard in the
// WHERE clause makes an overdraft read as zero rows affected.
func (r *UserRepositoryImpl) DebitProfit(ctx context.Context, userID uint, amount decimal.Decimal) error {
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

	result := db.Model(&models.User{}).
		Where("id = ?", userID).
		Where("profit_balance >= ?", amount).
		Update("profit_balance", gorm.Expr("profit_balance - ?", amount))
	if result.Error != nil {
		err = result.Error
		return err
	}
	if result.RowsAffected == 0 {
		err = fmt.Errorf("insufficient profit balance for user %d", userID)
		return err
	}
	return nil
}

func (r *UserRepositoryImpl) RefundProfit(ctx context.Context, userID uint, amount decimal.Decimal) error {
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

	result := db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("profit_balance", gorm.Expr("profit_balance + ?", amount))
	if result.Error != nil {
		err = result.Error
		return err
	}
	if result.RowsAffected == 0 {
		err = fmt.Errorf("user not found with ID: %d", userID)
		return err
	}
	return nil
}

func (r *UserRepositoryImpl) AddTotalWithdrawn(ctx context.Context, userID uint, amount decimal.Decimal) error {
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

	result := db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("total_withdrawn", gorm.Expr("total_withdrawn + ?", amount))
	if result.Error != nil {
		err = result.Error
		return err
	}
	if result.RowsAffected == 0 {
		err = fmt.Errorf("user not found with ID: %d", userID)
		return err
	}
	return nil
}
