package service

import (
	"context"
	"errors"

	"walletledger/internal/model"
	"walletledger/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AccountService struct {
	accountRepo *repository.AccountRepository
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{
		accountRepo: repository.NewAccountRepository(db),
	}
}

// GetBalance 查询余额，账户不存在时视为 0，不创建账户
func (s *AccountService) GetBalance(ctx context.Context, owner model.Owner) (decimal.Decimal, error) {
	account, err := s.accountRepo.GetByOwner(ctx, nil, owner)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// OpenAccount 开户，已存在时直接返回
func (s *AccountService) OpenAccount(ctx context.Context, owner model.Owner) (*model.Account, error) {
	return s.accountRepo.GetOrCreate(ctx, nil, owner)
}
