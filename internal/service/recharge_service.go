package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"walletledger/internal/config"
	"walletledger/internal/errcode"
	"walletledger/internal/infrastructure/lock"
	"walletledger/internal/metrics"
	"walletledger/internal/model"
	"walletledger/internal/repository"
	"walletledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type RechargeService struct {
	db           *gorm.DB
	locker       lock.OwnerLocker
	cfg          *config.Config
	log          *zap.Logger
	rechargeRepo *repository.RechargeRepository
	accountRepo  *repository.AccountRepository
	billRepo     *repository.BillRepository
	outboxRepo   *repository.OutboxRepository
}

func NewRechargeService(db *gorm.DB, locker lock.OwnerLocker, cfg *config.Config, log *zap.Logger) *RechargeService {
	if locker == nil {
		locker = lock.NoopOwnerLocker{}
	}
	return &RechargeService{
		db:           db,
		locker:       locker,
		cfg:          cfg,
		log:          log,
		rechargeRepo: repository.NewRechargeRepository(db),
		accountRepo:  repository.NewAccountRepository(db),
		billRepo:     repository.NewBillRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
	}
}

type CreateRechargeRequest struct {
	Owner        model.Owner     `json:"-"`
	OwnerName    string          `json:"owner_name"`
	TradeChannel string          `json:"trade_channel" binding:"required"`
	OutTradeNo   string          `json:"out_trade_no"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Remark       string          `json:"remark"`
}

// CreateWaitRecharge 创建待支付的充值单
func (s *RechargeService) CreateWaitRecharge(ctx context.Context, req *CreateRechargeRequest) (*model.Recharge, error) {
	if req.Owner.ID == "" {
		return nil, errcode.InvalidArgument("recharge owner is required")
	}
	if !req.TotalAmount.Round(2).IsPositive() {
		return nil, errcode.InvalidArgument("total_amount must be positive, got %s", req.TotalAmount)
	}

	recharge := &model.Recharge{
		ID:           idgen.GenerateRechargeID(),
		TradeChannel: req.TradeChannel,
		OutTradeNo:   req.OutTradeNo,
		TotalAmount:  req.TotalAmount.Round(2),
		Status:       model.RechargeStatusWait,
		OwnerKind:    req.Owner.Kind,
		OwnerID:      req.Owner.ID,
		OwnerName:    req.OwnerName,
		Remark:       req.Remark,
		CreationTime: time.Now(),
	}
	if err := s.rechargeRepo.Create(ctx, nil, recharge); err != nil {
		return nil, fmt.Errorf("创建充值单失败: %w", err)
	}

	s.log.Info("创建充值单",
		zap.String("recharge_id", recharge.ID),
		zap.Stringer("owner", req.Owner),
		zap.String("total_amount", recharge.TotalAmount.StringFixed(2)),
	)
	return recharge, nil
}

// PaySuccessRequest 渠道支付成功通知
type PaySuccessRequest struct {
	RechargeID     string          `json:"recharge_id" binding:"required"`
	ChannelAccount string          `json:"channel_account"`
	ChannelTradeNo string          `json:"channel_trade_no" binding:"required"`
	ReceiptAmount  decimal.Decimal `json:"receipt_amount"`
	ChannelFee     decimal.Decimal `json:"channel_fee"`
	SuccessTime    time.Time       `json:"success_time"`
}

// SetRechargePaySuccess wait -> success，只记录渠道信息，不动余额
func (s *RechargeService) SetRechargePaySuccess(ctx context.Context, req *PaySuccessRequest) (*model.Recharge, error) {
	successTime := req.SuccessTime
	if successTime.IsZero() {
		successTime = time.Now()
	}

	var recharge *model.Recharge
	err := s.db.Transaction(func(tx *gorm.DB) error {
		r, err := s.lockRecharge(ctx, tx, req.RechargeID)
		if err != nil {
			return err
		}
		if r.Status != model.RechargeStatusWait {
			return errcode.Conflict("recharge %s is %s, can not be marked success", r.ID, r.Status)
		}

		err = s.rechargeRepo.UpdateStatus(ctx, tx, r.ID, model.RechargeStatusWait, model.RechargeStatusSuccess, map[string]interface{}{
			"channel_account":  req.ChannelAccount,
			"channel_trade_no": req.ChannelTradeNo,
			"receipt_amount":   req.ReceiptAmount.Round(2),
			"channel_fee":      req.ChannelFee.Round(2),
			"success_time":     successTime,
		})
		if err != nil {
			return fmt.Errorf("更新充值单状态失败: %w", err)
		}
		r.Status = model.RechargeStatusSuccess
		r.ChannelAccount = req.ChannelAccount
		r.ChannelTradeNo = req.ChannelTradeNo
		r.ReceiptAmount = req.ReceiptAmount.Round(2)
		r.ChannelFee = req.ChannelFee.Round(2)
		r.SuccessTime = &successTime
		recharge = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recharge, nil
}

// DoRechargeToBalance success -> complete，把 total_amount 记入账户余额
//
// 已完成的充值单再次入账返回冲突，不会重复加款
func (s *RechargeService) DoRechargeToBalance(ctx context.Context, rechargeID string) (recharge *model.Recharge, err error) {
	defer func() {
		metrics.RechargesTotal.WithLabelValues(metrics.Result(err)).Inc()
	}()

	r, err := s.rechargeRepo.GetByID(ctx, rechargeID)
	if err != nil {
		if errors.Is(err, repository.ErrRechargeNotFound) {
			return nil, errcode.NotFound("recharge %s not found", rechargeID)
		}
		return nil, err
	}

	err = s.locker.WithOwnerLock(ctx, r.Owner().String(), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			locked, err := s.lockRecharge(ctx, tx, rechargeID)
			if err != nil {
				return err
			}
			if locked.Status != model.RechargeStatusSuccess {
				return errcode.Conflict("recharge %s is %s, only success recharges can be applied", locked.ID, locked.Status)
			}
			if err := s.applyInTx(ctx, tx, locked); err != nil {
				return err
			}
			recharge = locked
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("充值入账",
		zap.String("recharge_id", recharge.ID),
		zap.Stringer("owner", recharge.Owner()),
		zap.String("total_amount", recharge.TotalAmount.StringFixed(2)),
	)
	return recharge, nil
}

type ManualRechargeRequest struct {
	Owner     model.Owner     `json:"-"`
	OwnerName string          `json:"owner_name"`
	Amount    decimal.Decimal `json:"amount"`
	Executor  string          `json:"executor" binding:"required"`
	Remark    string          `json:"remark"`
}

// ManualRecharge 人工充值，创建、确认、入账在同一个事务内完成
func (s *RechargeService) ManualRecharge(ctx context.Context, req *ManualRechargeRequest) (recharge *model.Recharge, err error) {
	defer func() {
		metrics.RechargesTotal.WithLabelValues(metrics.Result(err)).Inc()
	}()

	if req.Owner.ID == "" {
		return nil, errcode.InvalidArgument("recharge owner is required")
	}
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, errcode.InvalidArgument("amount must be positive, got %s", req.Amount)
	}

	now := time.Now()
	recharge = &model.Recharge{
		ID:            idgen.GenerateRechargeID(),
		TradeChannel:  model.TradeChannelManual,
		TotalAmount:   amount,
		ReceiptAmount: amount,
		ChannelFee:    decimal.Zero,
		Status:        model.RechargeStatusSuccess,
		OwnerKind:     req.Owner.Kind,
		OwnerID:       req.Owner.ID,
		OwnerName:     req.OwnerName,
		Executor:      req.Executor,
		Remark:        req.Remark,
		CreationTime:  now,
		SuccessTime:   &now,
	}

	err = s.locker.WithOwnerLock(ctx, req.Owner.String(), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.rechargeRepo.Create(ctx, tx, recharge); err != nil {
				return fmt.Errorf("创建充值单失败: %w", err)
			}
			return s.applyInTx(ctx, tx, recharge)
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("人工充值",
		zap.String("recharge_id", recharge.ID),
		zap.Stringer("owner", req.Owner),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("executor", req.Executor),
	)
	return recharge, nil
}

// applyInTx 调用方已锁定 success 状态的充值单
func (s *RechargeService) applyInTx(ctx context.Context, tx *gorm.DB, recharge *model.Recharge) error {
	owner := recharge.Owner()
	account, err := s.accountRepo.GetForUpdate(ctx, tx, owner, true)
	if err != nil {
		return fmt.Errorf("锁定账户失败: %w", err)
	}
	balance := account.Balance.Add(recharge.TotalAmount)
	if err := s.accountRepo.UpdateBalance(ctx, tx, account.ID, balance); err != nil {
		return fmt.Errorf("增加余额失败: %w", err)
	}

	now := time.Now()
	err = s.rechargeRepo.UpdateStatus(ctx, tx, recharge.ID, model.RechargeStatusSuccess, model.RechargeStatusComplete, map[string]interface{}{
		"complete_time": now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrRechargeStatusInvalid) {
			return errcode.Conflict("recharge %s has already been applied", recharge.ID)
		}
		return fmt.Errorf("更新充值单状态失败: %w", err)
	}
	recharge.Status = model.RechargeStatusComplete
	recharge.CompleteTime = &now

	bill := &model.TransactionBill{
		ID:           idgen.GenerateBillID(),
		TradeType:    model.TradeTypeRecharge,
		TradeID:      recharge.ID,
		TradeAmounts: recharge.TotalAmount,
		Amounts:      recharge.TotalAmount,
		CouponAmount: decimal.Zero,
		AfterBalance: balance,
		OwnerKind:    owner.Kind,
		OwnerID:      owner.ID,
		OwnerName:    recharge.OwnerName,
		Remark:       recharge.Remark,
		CreationTime: now,
	}
	if err := s.billRepo.Create(ctx, tx, bill); err != nil {
		return fmt.Errorf("记录流水失败: %w", err)
	}

	event := LedgerEvent{
		EventType:    EventRechargeCompleted,
		TradeID:      recharge.ID,
		OwnerKind:    string(owner.Kind),
		OwnerID:      owner.ID,
		Amounts:      recharge.TotalAmount,
		CouponAmount: decimal.Zero,
		AfterBalance: balance,
		OccurredAt:   now,
	}
	if err := s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.Recharge, recharge.ID, event); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}

// CloseWaitRecharge wait -> closed，不涉及账户
func (s *RechargeService) CloseWaitRecharge(ctx context.Context, rechargeID string) error {
	err := s.rechargeRepo.UpdateStatus(ctx, nil, rechargeID, model.RechargeStatusWait, model.RechargeStatusClosed, nil)
	if err != nil {
		if errors.Is(err, repository.ErrRechargeStatusInvalid) {
			return errcode.Conflict("recharge %s is not waiting for payment", rechargeID)
		}
		return fmt.Errorf("关闭充值单失败: %w", err)
	}
	return nil
}

func (s *RechargeService) GetRecharge(ctx context.Context, rechargeID string) (*model.Recharge, error) {
	r, err := s.rechargeRepo.GetByID(ctx, rechargeID)
	if err != nil {
		if errors.Is(err, repository.ErrRechargeNotFound) {
			return nil, errcode.NotFound("recharge %s not found", rechargeID)
		}
		return nil, err
	}
	return r, nil
}

func (s *RechargeService) ListRecharges(ctx context.Context, owner model.Owner, page, pageSize int) ([]*model.Recharge, int64, error) {
	return s.rechargeRepo.ListByOwner(ctx, owner, page, pageSize)
}

// ListStale 供后台任务使用：创建时间早于 before 的 status 状态充值单
func (s *RechargeService) ListStale(ctx context.Context, status string, before time.Time, limit int) ([]*model.Recharge, error) {
	return s.rechargeRepo.ListByStatusBefore(ctx, status, before, limit)
}

func (s *RechargeService) lockRecharge(ctx context.Context, tx *gorm.DB, rechargeID string) (*model.Recharge, error) {
	r, err := s.rechargeRepo.GetForUpdate(ctx, tx, rechargeID)
	if err != nil {
		if errors.Is(err, repository.ErrRechargeNotFound) {
			return nil, errcode.NotFound("recharge %s not found", rechargeID)
		}
		return nil, fmt.Errorf("锁定充值单失败: %w", err)
	}
	return r, nil
}
