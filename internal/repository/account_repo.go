package repository

import (
	"context"
	"errors"

	"walletledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound = errors.New("账户不存在")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *AccountRepository) GetByOwner(ctx context.Context, tx *gorm.DB, owner model.Owner) (*model.Account, error) {
	var account model.Account
	err := r.conn(tx).WithContext(ctx).Scopes(ByOwner(owner)).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetOrCreate 获取账户，不存在则创建
// 依赖 (owner_kind, owner_id) 唯一索引，并发创建时不会产生重复账户
func (r *AccountRepository) GetOrCreate(ctx context.Context, tx *gorm.DB, owner model.Owner) (*model.Account, error) {
	account, err := r.GetByOwner(ctx, tx, owner)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.Account{
		OwnerKind: owner.Kind,
		OwnerID:   owner.ID,
		Balance:   decimal.Zero,
	}
	err = r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_kind"}, {Name: "owner_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error
	if err != nil {
		return nil, err
	}

	return r.GetByOwner(ctx, tx, owner)
}

// GetForUpdate 对账户加行锁，锁持有到外层事务结束
// isCreate 为 false 且账户不存在时返回 ErrAccountNotFound
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, owner model.Owner, isCreate bool) (*model.Account, error) {
	if isCreate {
		if _, err := r.GetOrCreate(ctx, tx, owner); err != nil {
			return nil, err
		}
	}

	var account model.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(ByOwner(owner)).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// UpdateBalance 写入新余额，调用方必须已通过 GetForUpdate 持有行锁
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, accountID int64, balance decimal.Decimal) error {
	return tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", accountID).
		Update("balance", balance.Round(2)).Error
}
