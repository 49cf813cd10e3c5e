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

type PayService struct {
	db          *gorm.DB
	locker      lock.OwnerLocker
	cfg         *config.Config
	log         *zap.Logger
	coupons     *CouponService
	accountRepo *repository.AccountRepository
	couponRepo  *repository.CouponRepository
	paymentRepo *repository.PaymentRepository
	billRepo    *repository.BillRepository
	outboxRepo  *repository.OutboxRepository
}

func NewPayService(db *gorm.DB, locker lock.OwnerLocker, cfg *config.Config, log *zap.Logger) *PayService {
	if locker == nil {
		locker = lock.NoopOwnerLocker{}
	}
	return &PayService{
		db:          db,
		locker:      locker,
		cfg:         cfg,
		log:         log,
		coupons:     NewCouponService(db, cfg, log),
		accountRepo: repository.NewAccountRepository(db),
		couponRepo:  repository.NewCouponRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
		billRepo:    repository.NewBillRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// PayRequest 支付请求
//
// CouponIDs 为 nil 时自动选券；为空切片时不使用券；否则按给定顺序使用
type PayRequest struct {
	Owner                 model.Owner     `json:"-"`
	PayerName             string          `json:"payer_name"`
	AppID                 string          `json:"app_id" binding:"required"`
	Subject               string          `json:"subject" binding:"required"`
	Amounts               decimal.Decimal `json:"amounts"`
	OrderID               string          `json:"order_id" binding:"required"`
	AppServiceID          string          `json:"app_service_id"`
	InstanceID            string          `json:"instance_id"`
	CouponIDs             []string        `json:"coupon_ids"`
	OnlyCoupon            bool            `json:"only_coupon"`
	RequiredEnoughBalance bool            `json:"required_enough_balance"`
	Remark                string          `json:"remark"`
}

func (r *PayRequest) validate() error {
	if r.Owner.ID == "" {
		return errcode.InvalidArgument("payer is required")
	}
	if r.AppID == "" || r.OrderID == "" {
		return errcode.InvalidArgument("app_id and order_id are required")
	}
	if !r.Amounts.Round(2).IsPositive() {
		return errcode.InvalidArgument("amounts must be positive, got %s", r.Amounts)
	}
	return nil
}

// PayByUser 用户余额/券支付
func (s *PayService) PayByUser(ctx context.Context, userID string, req *PayRequest) (*model.PaymentHistory, error) {
	req.Owner = model.UserOwner(userID)
	return s.Pay(ctx, req)
}

// PayByVo VO 组余额/券支付
func (s *PayService) PayByVo(ctx context.Context, voID string, req *PayRequest) (*model.PaymentHistory, error) {
	req.Owner = model.VoOwner(voID)
	return s.Pay(ctx, req)
}

// Pay 支付
//
// 在一个事务内完成：幂等校验 -> 选券并加锁 -> 逐张扣券 -> 锁账户扣余额
// -> 写支付记录、券明细、流水、outbox。任何一步失败整体回滚。
func (s *PayService) Pay(ctx context.Context, req *PayRequest) (payment *model.PaymentHistory, err error) {
	defer func() {
		metrics.PaymentsTotal.WithLabelValues(metrics.Result(err)).Inc()
	}()

	if err := req.validate(); err != nil {
		return nil, err
	}
	payable := req.Amounts.Round(2)

	var alloc Allocation
	err = s.locker.WithOwnerLock(ctx, req.Owner.String(), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			payment, alloc, txErr = s.payInTx(ctx, tx, req, payable)
			return txErr
		})
	})
	if err != nil {
		if errors.Is(err, lock.ErrLockFailed) {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		s.log.Info("支付失败",
			zap.Stringer("payer", req.Owner),
			zap.String("app_id", req.AppID),
			zap.String("order_id", req.OrderID),
			zap.String("amounts", payable.StringFixed(2)),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.AddCouponConsumed(alloc.CouponTotal)
	s.log.Info("支付成功",
		zap.String("payment_id", payment.ID),
		zap.Stringer("payer", req.Owner),
		zap.String("order_id", req.OrderID),
		zap.String("amounts", payment.Amounts.StringFixed(2)),
		zap.String("coupon_amount", payment.CouponAmount.StringFixed(2)),
	)
	return payment, nil
}

func (s *PayService) payInTx(ctx context.Context, tx *gorm.DB, req *PayRequest, payable decimal.Decimal) (*model.PaymentHistory, Allocation, error) {
	// 1. 幂等
	existing, err := s.paymentRepo.GetByAppOrder(ctx, tx, req.AppID, req.OrderID)
	if err != nil {
		return nil, Allocation{}, fmt.Errorf("查询支付记录失败: %w", err)
	}
	if existing != nil {
		return nil, Allocation{}, errcode.OrderIDExist(req.AppID, req.OrderID)
	}

	// 2. 选券（按 id 升序加锁）
	coupons, err := s.coupons.GetOwnerCoupons(ctx, tx, req.Owner, req.CouponIDs, true)
	if err != nil {
		return nil, Allocation{}, err
	}
	usable, unusable := SortingUsableCoupons(coupons, req.AppServiceID, req.OrderID)
	// 显式指定的券必须全部可用于本次支付
	if req.CouponIDs != nil && len(unusable) > 0 {
		return nil, Allocation{}, errcode.NotUsable(unusable[0].ID, req.AppServiceID)
	}

	// 3. 扣券
	alloc := Allocate(usable, payable)
	if alloc.Remaining.IsPositive() && req.OnlyCoupon {
		return nil, Allocation{}, errcode.BalanceNotEnough(
			"coupons cover %s of %s for order %s, only_coupon payment refused",
			alloc.CouponTotal.StringFixed(2), payable.StringFixed(2), req.OrderID)
	}

	now := time.Now()
	paymentID := idgen.GeneratePaymentID()

	records := make([]*model.CashCouponPaymentHistory, 0, len(alloc.Deductions))
	for _, d := range alloc.Deductions {
		if err := s.couponRepo.UpdateBalance(ctx, tx, d.Coupon.ID, d.After); err != nil {
			return nil, Allocation{}, fmt.Errorf("扣减券余额失败: %w", err)
		}
		records = append(records, &model.CashCouponPaymentHistory{
			CashCouponID:     d.Coupon.ID,
			PaymentHistoryID: paymentID,
			Amounts:          d.Amount.Neg(),
			BeforePayment:    d.Before,
			AfterPayment:     d.After,
			CreationTime:     now,
		})
	}

	// 4. 余额（券之后加锁）
	account, err := s.accountRepo.GetForUpdate(ctx, tx, req.Owner, true)
	if err != nil {
		return nil, Allocation{}, fmt.Errorf("锁定账户失败: %w", err)
	}
	balance := account.Balance
	if alloc.Remaining.IsPositive() {
		if req.RequiredEnoughBalance && balance.LessThan(alloc.Remaining) {
			return nil, Allocation{}, errcode.BalanceNotEnough(
				"balance %s is less than %s required by order %s",
				balance.StringFixed(2), alloc.Remaining.StringFixed(2), req.OrderID)
		}
		balance = balance.Sub(alloc.Remaining)
		if err := s.accountRepo.UpdateBalance(ctx, tx, account.ID, balance); err != nil {
			return nil, Allocation{}, fmt.Errorf("扣减余额失败: %w", err)
		}
	}

	// 5. 支付记录
	payment := &model.PaymentHistory{
		ID:             paymentID,
		Subject:        req.Subject,
		PayerKind:      req.Owner.Kind,
		PayerID:        req.Owner.ID,
		PayerName:      req.PayerName,
		PayableAmounts: payable,
		Amounts:        alloc.Remaining.Neg(),
		CouponAmount:   alloc.CouponTotal.Neg(),
		PaymentMethod:  paymentMethod(alloc),
		AppID:          req.AppID,
		OrderID:        req.OrderID,
		AppServiceID:   req.AppServiceID,
		InstanceID:     req.InstanceID,
		Status:         model.PaymentStatusSuccess,
		Remark:         req.Remark,
		CreationTime:   now,
		PaymentTime:    now,
	}
	if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, Allocation{}, errcode.OrderIDExist(req.AppID, req.OrderID)
		}
		return nil, Allocation{}, fmt.Errorf("写入支付记录失败: %w", err)
	}
	if err := s.couponRepo.CreatePaymentRecords(ctx, tx, records); err != nil {
		return nil, Allocation{}, fmt.Errorf("写入券扣费明细失败: %w", err)
	}

	// 6. 流水
	bill := &model.TransactionBill{
		ID:           idgen.GenerateBillID(),
		TradeType:    model.TradeTypePayment,
		TradeID:      payment.ID,
		TradeAmounts: payable.Neg(),
		Amounts:      payment.Amounts,
		CouponAmount: payment.CouponAmount,
		AfterBalance: balance,
		OwnerKind:    req.Owner.Kind,
		OwnerID:      req.Owner.ID,
		OwnerName:    req.PayerName,
		AppServiceID: req.AppServiceID,
		AppID:        req.AppID,
		Remark:       req.Subject,
		CreationTime: now,
	}
	if err := s.billRepo.Create(ctx, tx, bill); err != nil {
		return nil, Allocation{}, fmt.Errorf("记录流水失败: %w", err)
	}

	event := LedgerEvent{
		EventType:    EventPaymentSucceeded,
		TradeID:      payment.ID,
		OwnerKind:    string(req.Owner.Kind),
		OwnerID:      req.Owner.ID,
		AppID:        req.AppID,
		OrderID:      req.OrderID,
		Amounts:      payment.Amounts,
		CouponAmount: payment.CouponAmount,
		AfterBalance: balance,
		OccurredAt:   now,
	}
	if err := s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.Payment, payment.ID, event); err != nil {
		return nil, Allocation{}, fmt.Errorf("写入消息失败: %w", err)
	}

	return payment, alloc, nil
}

func paymentMethod(alloc Allocation) string {
	switch {
	case !alloc.CouponTotal.IsPositive():
		return model.PaymentMethodBalance
	case !alloc.Remaining.IsPositive():
		return model.PaymentMethodCoupon
	default:
		return model.PaymentMethodBalanceCoupon
	}
}

// GetPayment 查询支付记录
func (s *PayService) GetPayment(ctx context.Context, paymentID string) (*model.PaymentHistory, error) {
	payment, err := s.paymentRepo.GetByID(ctx, nil, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, errcode.NotFound("payment %s not found", paymentID)
		}
		return nil, err
	}
	return payment, nil
}

// GetPaymentByOrder 按 (app_id, order_id) 查询支付记录，调用方收到 OrderIdExist 后用它取回原支付
func (s *PayService) GetPaymentByOrder(ctx context.Context, appID, orderID string) (*model.PaymentHistory, error) {
	payment, err := s.paymentRepo.GetByAppOrder(ctx, nil, appID, orderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, errcode.NotFound("app %s order %s has no payment", appID, orderID)
	}
	return payment, nil
}

// ListPaymentCoupons 某笔支付的券明细
func (s *PayService) ListPaymentCoupons(ctx context.Context, paymentID string) ([]*model.CashCouponPaymentHistory, error) {
	return s.couponRepo.ListPaymentRecords(ctx, nil, paymentID)
}

func (s *PayService) ListPayments(ctx context.Context, payer model.Owner, page, pageSize int) ([]*model.PaymentHistory, int64, error) {
	return s.paymentRepo.ListByPayer(ctx, payer, page, pageSize)
}
