package repository

import (
	"context"
	"errors"

	"walletledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrRefundNotFound = errors.New("退款记录不存在")
)

type RefundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, tx *gorm.DB, refund *model.RefundRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(refund).Error
}

func (r *RefundRepository) GetByID(ctx context.Context, id string) (*model.RefundRecord, error) {
	var refund model.RefundRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&refund).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, err
	}
	return &refund, nil
}

// GetByOutRefundID 按 (trade_id, out_refund_id) 查询，不存在返回 nil, nil
func (r *RefundRepository) GetByOutRefundID(ctx context.Context, tx *gorm.DB, tradeID, outRefundID string) (*model.RefundRecord, error) {
	if tx == nil {
		tx = r.db
	}
	var refund model.RefundRecord
	err := tx.WithContext(ctx).
		Where("trade_id = ? AND out_refund_id = ?", tradeID, outRefundID).
		First(&refund).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

func (r *RefundRepository) ListByTrade(ctx context.Context, tradeID string) ([]*model.RefundRecord, error) {
	var refunds []*model.RefundRecord
	err := r.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		Order("creation_time ASC").
		Find(&refunds).Error
	return refunds, err
}
