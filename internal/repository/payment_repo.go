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
	ErrPaymentNotFound = errors.New("支付记录不存在")
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *PaymentRepository) Create(ctx context.Context, tx *gorm.DB, payment *model.PaymentHistory) error {
	return r.conn(tx).WithContext(ctx).Create(payment).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.PaymentHistory, error) {
	var payment model.PaymentHistory
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.PaymentHistory, error) {
	var payment model.PaymentHistory
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// GetByAppOrder 按 (app_id, order_id) 查询，不存在返回 nil, nil
func (r *PaymentRepository) GetByAppOrder(ctx context.Context, tx *gorm.DB, appID, orderID string) (*model.PaymentHistory, error) {
	var payment model.PaymentHistory
	err := r.conn(tx).WithContext(ctx).
		Where("app_id = ? AND order_id = ?", appID, orderID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// SetRefunded 更新累计退款金额，调用方持有支付记录行锁
func (r *PaymentRepository) SetRefunded(ctx context.Context, tx *gorm.DB, id string, refunded decimal.Decimal) error {
	return tx.WithContext(ctx).
		Model(&model.PaymentHistory{}).
		Where("id = ?", id).
		Update("refunded_amounts", refunded.Round(2)).Error
}

func (r *PaymentRepository) ListByPayer(ctx context.Context, payer model.Owner, page, pageSize int) ([]*model.PaymentHistory, int64, error) {
	var payments []*model.PaymentHistory
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PaymentHistory{}).Scopes(ByOwner(payer, "payer_kind", "payer_id"))
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("creation_time DESC").Scopes(Paginate(page, pageSize)).Find(&payments).Error
	return payments, total, err
}
