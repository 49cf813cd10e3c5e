package repository

import (
	"context"
	"errors"
	"time"

	"walletledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrBillNotFound = errors.New("流水不存在")
)

// BillRepository 交易流水仓储
// 流水只追加：只提供 Create 和查询，不提供更新和删除
type BillRepository struct {
	db *gorm.DB
}

func NewBillRepository(db *gorm.DB) *BillRepository {
	return &BillRepository{db: db}
}

func (r *BillRepository) Create(ctx context.Context, tx *gorm.DB, bill *model.TransactionBill) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(bill).Error
}

func (r *BillRepository) GetByID(ctx context.Context, id string) (*model.TransactionBill, error) {
	var bill model.TransactionBill
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&bill).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBillNotFound
		}
		return nil, err
	}
	return &bill, nil
}

func (r *BillRepository) ListByTrade(ctx context.Context, tradeID string) ([]*model.TransactionBill, error) {
	var bills []*model.TransactionBill
	err := r.db.WithContext(ctx).Where("trade_id = ?", tradeID).Order("creation_time ASC").Find(&bills).Error
	return bills, err
}

// BillFilter 流水查询条件
type BillFilter struct {
	TradeType    string
	AppServiceID string
	Start        time.Time
	End          time.Time
}

func (r *BillRepository) ListByOwner(ctx context.Context, owner model.Owner, filter BillFilter, page, pageSize int) ([]*model.TransactionBill, int64, error) {
	var bills []*model.TransactionBill
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.TransactionBill{}).
		Scopes(ByOwner(owner), TimeRange("creation_time", filter.Start, filter.End))
	if filter.TradeType != "" {
		query = query.Where("trade_type = ?", filter.TradeType)
	}
	if filter.AppServiceID != "" {
		query = query.Where("app_service_id = ?", filter.AppServiceID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("creation_time DESC").
		Scopes(Paginate(page, pageSize)).
		Find(&bills).Error
	return bills, total, err
}
