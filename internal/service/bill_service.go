package service

import (
	"context"
	"errors"

	"walletledger/internal/errcode"
	"walletledger/internal/model"
	"walletledger/internal/repository"

	"gorm.io/gorm"
)

// BillService 交易流水查询，只读
type BillService struct {
	billRepo *repository.BillRepository
}

func NewBillService(db *gorm.DB) *BillService {
	return &BillService{
		billRepo: repository.NewBillRepository(db),
	}
}

func (s *BillService) ListBills(ctx context.Context, owner model.Owner, filter repository.BillFilter, page, pageSize int) ([]*model.TransactionBill, int64, error) {
	return s.billRepo.ListByOwner(ctx, owner, filter, page, pageSize)
}

func (s *BillService) GetBill(ctx context.Context, billID string) (*model.TransactionBill, error) {
	bill, err := s.billRepo.GetByID(ctx, billID)
	if err != nil {
		if errors.Is(err, repository.ErrBillNotFound) {
			return nil, errcode.NotFound("bill %s not found", billID)
		}
		return nil, err
	}
	return bill, nil
}

// ListTradeBills 某笔支付/退款/充值对应的流水
func (s *BillService) ListTradeBills(ctx context.Context, tradeID string) ([]*model.TransactionBill, error) {
	return s.billRepo.ListByTrade(ctx, tradeID)
}
