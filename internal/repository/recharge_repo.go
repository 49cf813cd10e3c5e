package repository

import (
	"context"
	"errors"
	"time"

	"walletledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRechargeNotFound      = errors.New("充值单不存在")
	ErrRechargeStatusInvalid = errors.New("充值单状态不合法")
)

type RechargeRepository struct {
	db *gorm.DB
}

func NewRechargeRepository(db *gorm.DB) *RechargeRepository {
	return &RechargeRepository{db: db}
}

func (r *RechargeRepository) Create(ctx context.Context, tx *gorm.DB, recharge *model.Recharge) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(recharge).Error
}

func (r *RechargeRepository) GetByID(ctx context.Context, id string) (*model.Recharge, error) {
	var recharge model.Recharge
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&recharge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRechargeNotFound
		}
		return nil, err
	}
	return &recharge, nil
}

func (r *RechargeRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.Recharge, error) {
	var recharge model.Recharge
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&recharge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRechargeNotFound
		}
		return nil, err
	}
	return &recharge, nil
}

// UpdateStatus 状态机迁移，附带其他字段更新
func (r *RechargeRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id string, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanRechargeTransitionTo(fromStatus, toStatus) {
		return ErrRechargeStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.WithContext(ctx).
		Model(&model.Recharge{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRechargeStatusInvalid
	}
	return nil
}

// ListByStatusBefore 创建时间早于 before 的指定状态充值单，补偿/超时任务使用
func (r *RechargeRepository) ListByStatusBefore(ctx context.Context, status string, before time.Time, limit int) ([]*model.Recharge, error) {
	var recharges []*model.Recharge
	err := r.db.WithContext(ctx).
		Where("status = ? AND creation_time < ?", status, before).
		Order("creation_time ASC").
		Limit(limit).
		Find(&recharges).Error
	return recharges, err
}

func (r *RechargeRepository) ListByOwner(ctx context.Context, owner model.Owner, page, pageSize int) ([]*model.Recharge, int64, error) {
	var recharges []*model.Recharge
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Recharge{}).Scopes(ByOwner(owner))
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("creation_time DESC").Scopes(Paginate(page, pageSize)).Find(&recharges).Error
	return recharges, total, err
}
