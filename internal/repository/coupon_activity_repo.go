package repository

import (
	"context"
	"errors"

	"walletledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrActivityNotFound = errors.New("券活动不存在")
)

type CouponActivityRepository struct {
	db *gorm.DB
}

func NewCouponActivityRepository(db *gorm.DB) *CouponActivityRepository {
	return &CouponActivityRepository{db: db}
}

func (r *CouponActivityRepository) Create(ctx context.Context, tx *gorm.DB, activity *model.CouponActivity) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(activity).Error
}

func (r *CouponActivityRepository) GetByID(ctx context.Context, id string) (*model.CouponActivity, error) {
	var activity model.CouponActivity
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&activity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}
	return &activity, nil
}

func (r *CouponActivityRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.CouponActivity, error) {
	var activity model.CouponActivity
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&activity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}
	return &activity, nil
}

// AddGranted 增加已生成数量；granted_count 只增不减
func (r *CouponActivityRepository) AddGranted(ctx context.Context, tx *gorm.DB, id string, count int, grantStatus string) error {
	return tx.WithContext(ctx).
		Model(&model.CouponActivity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"granted_count": gorm.Expr("granted_count + ?", count),
			"grant_status":  grantStatus,
		}).Error
}
