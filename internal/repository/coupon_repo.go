package repository

import (
	"context"
	"errors"
	"time"

	"walletledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrCouponNotFound      = errors.New("代金券不存在")
	ErrCouponStatusInvalid = errors.New("代金券状态不合法")
)

type CouponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

func (r *CouponRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *CouponRepository) Create(ctx context.Context, tx *gorm.DB, coupons ...*model.CashCoupon) error {
	if len(coupons) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(coupons).Error
}

func (r *CouponRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.CashCoupon, error) {
	var coupon model.CashCoupon
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

func (r *CouponRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.CashCoupon, error) {
	var coupon model.CashCoupon
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

// ListByIDs 按 id 升序返回存在的券；forUpdate 时按同样顺序加行锁
func (r *CouponRepository) ListByIDs(ctx context.Context, tx *gorm.DB, ids []string, forUpdate bool) ([]*model.CashCoupon, error) {
	if len(ids) == 0 {
		return []*model.CashCoupon{}, nil
	}
	query := r.conn(tx).WithContext(ctx).Where("id IN ?", ids).Order("id ASC")
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var coupons []*model.CashCoupon
	err := query.Find(&coupons).Error
	return coupons, err
}

// ListOwnerAvailable 所有者名下状态可用、余额大于0的券，按 id 升序
// 有效期在内存中判断（见 service.GetOwnerCoupons）
func (r *CouponRepository) ListOwnerAvailable(ctx context.Context, tx *gorm.DB, owner model.Owner, forUpdate bool) ([]*model.CashCoupon, error) {
	query := r.conn(tx).WithContext(ctx).
		Scopes(ByOwner(owner)).
		Where("status = ? AND balance > ?", model.CouponStatusAvailable, 0).
		Order("id ASC")
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var coupons []*model.CashCoupon
	err := query.Find(&coupons).Error
	return coupons, err
}

// UpdateBalance 写入券余额，调用方必须持有该券行锁
func (r *CouponRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, id string, balance decimal.Decimal) error {
	return tx.WithContext(ctx).
		Model(&model.CashCoupon{}).
		Where("id = ?", id).
		Update("balance", balance.Round(2)).Error
}

// Grant 把待领取的券发放给 owner
func (r *CouponRepository) Grant(ctx context.Context, tx *gorm.DB, id string, owner model.Owner, grantedAt time.Time) error {
	result := tx.WithContext(ctx).
		Model(&model.CashCoupon{}).
		Where("id = ? AND status = ?", id, model.CouponStatusWait).
		Updates(map[string]interface{}{
			"status":       model.CouponStatusAvailable,
			"owner_kind":   owner.Kind,
			"owner_id":     owner.ID,
			"granted_time": grantedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCouponStatusInvalid
	}
	return nil
}

// UpdateStatus 仅当当前状态属于 fromStatuses 时才更新
func (r *CouponRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id string, fromStatuses []string, toStatus string) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.CashCoupon{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Update("status", toStatus)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCouponStatusInvalid
	}
	return nil
}

// CouponFilter 券列表查询条件
type CouponFilter struct {
	AppServiceID string
	Status       string
	Valid        *bool // true 只看有效期内，false 只看已过期
}

func (r *CouponRepository) ListByOwner(ctx context.Context, owner model.Owner, filter CouponFilter, page, pageSize int) ([]*model.CashCoupon, int64, error) {
	var coupons []*model.CashCoupon
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CashCoupon{}).Scopes(ByOwner(owner))
	if filter.AppServiceID != "" {
		query = query.Where("app_service_id = ?", filter.AppServiceID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	} else {
		query = query.Where("status <> ?", model.CouponStatusDeleted)
	}
	if filter.Valid != nil {
		now := time.Now()
		if *filter.Valid {
			query = query.Where("expiration_time > ?", now)
		} else {
			query = query.Where("expiration_time <= ?", now)
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("expiration_time ASC").
		Scopes(Paginate(page, pageSize)).
		Find(&coupons).Error
	return coupons, total, err
}

// ============================================================================
// 券扣费/退还明细
// ============================================================================

func (r *CouponRepository) CreatePaymentRecords(ctx context.Context, tx *gorm.DB, records []*model.CashCouponPaymentHistory) error {
	if len(records) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(records).Error
}

// ListPaymentRecords 某笔支付的全部券明细（含退款退回的行），按写入顺序
func (r *CouponRepository) ListPaymentRecords(ctx context.Context, tx *gorm.DB, paymentID string) ([]*model.CashCouponPaymentHistory, error) {
	var records []*model.CashCouponPaymentHistory
	err := r.conn(tx).WithContext(ctx).
		Where("payment_history_id = ?", paymentID).
		Order("id ASC").
		Find(&records).Error
	return records, err
}

func (r *CouponRepository) ListCouponRecords(ctx context.Context, couponID string, page, pageSize int) ([]*model.CashCouponPaymentHistory, int64, error) {
	var records []*model.CashCouponPaymentHistory
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CashCouponPaymentHistory{}).Where("cash_coupon_id = ?", couponID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("id DESC").Scopes(Paginate(page, pageSize)).Find(&records).Error
	return records, total, err
}
