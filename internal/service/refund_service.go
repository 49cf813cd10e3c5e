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

type RefundService struct {
	db          *gorm.DB
	locker      lock.OwnerLocker
	cfg         *config.Config
	log         *zap.Logger
	accountRepo *repository.AccountRepository
	couponRepo  *repository.CouponRepository
	paymentRepo *repository.PaymentRepository
	refundRepo  *repository.RefundRepository
	billRepo    *repository.BillRepository
	outboxRepo  *repository.OutboxRepository
}

func NewRefundService(db *gorm.DB, locker lock.OwnerLocker, cfg *config.Config, log *zap.Logger) *RefundService {
	if locker == nil {
		locker = lock.NoopOwnerLocker{}
	}
	return &RefundService{
		db:          db,
		locker:      locker,
		cfg:         cfg,
		log:         log,
		accountRepo: repository.NewAccountRepository(db),
		couponRepo:  repository.NewCouponRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
		refundRepo:  repository.NewRefundRepository(db),
		billRepo:    repository.NewBillRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// RefundRequest 退款请求
type RefundRequest struct {
	AppID          string          `json:"app_id" binding:"required"`
	TradeID        string          `json:"trade_id" binding:"required"` // 支付记录 id
	OutRefundID    string          `json:"out_refund_id" binding:"required"`
	RefundReason   string          `json:"refund_reason"`
	RefundAmounts  decimal.Decimal `json:"refund_amounts"`
	Remark         string          `json:"remark"`
	IsRefundCoupon bool            `json:"is_refund_coupon"`
}

func (r *RefundRequest) validate() error {
	if r.TradeID == "" || r.OutRefundID == "" {
		return errcode.InvalidArgument("trade_id and out_refund_id are required")
	}
	if !r.RefundAmounts.Round(2).IsPositive() {
		return errcode.InvalidArgument("refund_amounts must be positive, got %s", r.RefundAmounts)
	}
	return nil
}

// couponRestore 退还到单张券的金额
type couponRestore struct {
	coupon *model.CashCoupon
	amount decimal.Decimal
	before decimal.Decimal
}

// Refund 对一笔支付退款
//
// is_refund_coupon 时先按原扣券顺序退回到券（每张不超过原扣减额、不超过面值），
// 剩余部分退回余额。锁顺序：支付记录 -> 券（id 升序）-> 账户。
func (s *RefundService) Refund(ctx context.Context, req *RefundRequest) (refund *model.RefundRecord, err error) {
	defer func() {
		metrics.RefundsTotal.WithLabelValues(metrics.Result(err)).Inc()
	}()

	if err := req.validate(); err != nil {
		return nil, err
	}
	refundAmounts := req.RefundAmounts.Round(2)

	payment, err := s.paymentRepo.GetByID(ctx, nil, req.TradeID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, errcode.NotFound("payment %s not found", req.TradeID)
		}
		return nil, fmt.Errorf("查询支付记录失败: %w", err)
	}

	err = s.locker.WithOwnerLock(ctx, payment.Payer().String(), func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			refund, txErr = s.refundInTx(ctx, tx, req, refundAmounts)
			return txErr
		})
	})
	if err != nil {
		if errors.Is(err, lock.ErrLockFailed) {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		s.log.Info("退款失败",
			zap.String("trade_id", req.TradeID),
			zap.String("out_refund_id", req.OutRefundID),
			zap.String("refund_amounts", refundAmounts.StringFixed(2)),
			zap.Error(err),
		)
		return nil, err
	}

	s.log.Info("退款成功",
		zap.String("refund_id", refund.ID),
		zap.String("trade_id", refund.TradeID),
		zap.String("real_refund", refund.RealRefund.StringFixed(2)),
		zap.String("coupon_refund", refund.CouponRefund.StringFixed(2)),
	)
	return refund, nil
}

func (s *RefundService) refundInTx(ctx context.Context, tx *gorm.DB, req *RefundRequest, refundAmounts decimal.Decimal) (*model.RefundRecord, error) {
	payment, err := s.paymentRepo.GetByIDForUpdate(ctx, tx, req.TradeID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, errcode.NotFound("payment %s not found", req.TradeID)
		}
		return nil, fmt.Errorf("锁定支付记录失败: %w", err)
	}
	if payment.Status != model.PaymentStatusSuccess {
		return nil, errcode.Conflict("payment %s is %s, only success payments can be refunded", payment.ID, payment.Status)
	}
	if req.AppID != payment.AppID {
		return nil, errcode.AccessDenied("payment %s does not belong to app %s", payment.ID, req.AppID)
	}

	dup, err := s.refundRepo.GetByOutRefundID(ctx, tx, payment.ID, req.OutRefundID)
	if err != nil {
		return nil, fmt.Errorf("查询退款记录失败: %w", err)
	}
	if dup != nil {
		return nil, errcode.Conflict("refund %s of payment %s already exists", req.OutRefundID, payment.ID)
	}

	total := payment.TotalDeducted()
	if payment.RefundedAmounts.Add(refundAmounts).GreaterThan(total) {
		return nil, errcode.Conflict("refund %s exceeds refundable amount of payment %s (total %s, refunded %s)",
			refundAmounts.StringFixed(2), payment.ID, total.StringFixed(2), payment.RefundedAmounts.StringFixed(2))
	}

	now := time.Now()
	refundID := idgen.GenerateRefundID()

	couponRefund := decimal.Zero
	var restoreRecords []*model.CashCouponPaymentHistory
	if req.IsRefundCoupon {
		restores, err := s.planCouponRestore(ctx, tx, payment.ID, refundAmounts)
		if err != nil {
			return nil, err
		}
		for _, r := range restores {
			after := r.before.Add(r.amount)
			if err := s.couponRepo.UpdateBalance(ctx, tx, r.coupon.ID, after); err != nil {
				return nil, fmt.Errorf("退还券余额失败: %w", err)
			}
			rid := refundID
			restoreRecords = append(restoreRecords, &model.CashCouponPaymentHistory{
				CashCouponID:     r.coupon.ID,
				PaymentHistoryID: payment.ID,
				RefundID:         &rid,
				Amounts:          r.amount,
				BeforePayment:    r.before,
				AfterPayment:     after,
				CreationTime:     now,
			})
			couponRefund = couponRefund.Add(r.amount)
		}
	}
	realRefund := refundAmounts.Sub(couponRefund)

	payer := payment.Payer()
	account, err := s.accountRepo.GetForUpdate(ctx, tx, payer, true)
	if err != nil {
		return nil, fmt.Errorf("锁定账户失败: %w", err)
	}
	balance := account.Balance
	if realRefund.IsPositive() {
		balance = balance.Add(realRefund)
		if err := s.accountRepo.UpdateBalance(ctx, tx, account.ID, balance); err != nil {
			return nil, fmt.Errorf("退还余额失败: %w", err)
		}
	}

	refund := &model.RefundRecord{
		ID:            refundID,
		TradeID:       payment.ID,
		OutRefundID:   req.OutRefundID,
		OutOrderID:    payment.OrderID,
		AppID:         payment.AppID,
		AppServiceID:  payment.AppServiceID,
		RefundReason:  req.RefundReason,
		TotalAmounts:  total,
		RefundAmounts: refundAmounts,
		RealRefund:    realRefund,
		CouponRefund:  couponRefund,
		Status:        model.RefundStatusSuccess,
		OwnerKind:     payer.Kind,
		OwnerID:       payer.ID,
		OwnerName:     payment.PayerName,
		Remark:        req.Remark,
		CreationTime:  now,
		SuccessTime:   &now,
	}
	if err := s.refundRepo.Create(ctx, tx, refund); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errcode.Conflict("refund %s of payment %s already exists", req.OutRefundID, payment.ID)
		}
		return nil, fmt.Errorf("写入退款记录失败: %w", err)
	}
	if err := s.couponRepo.CreatePaymentRecords(ctx, tx, restoreRecords); err != nil {
		return nil, fmt.Errorf("写入券退还明细失败: %w", err)
	}
	if err := s.paymentRepo.SetRefunded(ctx, tx, payment.ID, payment.RefundedAmounts.Add(refundAmounts)); err != nil {
		return nil, fmt.Errorf("更新已退款金额失败: %w", err)
	}

	bill := &model.TransactionBill{
		ID:           idgen.GenerateBillID(),
		TradeType:    model.TradeTypeRefund,
		TradeID:      refund.ID,
		TradeAmounts: refundAmounts,
		Amounts:      realRefund,
		CouponAmount: couponRefund,
		AfterBalance: balance,
		OwnerKind:    payer.Kind,
		OwnerID:      payer.ID,
		OwnerName:    payment.PayerName,
		AppServiceID: payment.AppServiceID,
		AppID:        payment.AppID,
		Remark:       req.RefundReason,
		CreationTime: now,
	}
	if err := s.billRepo.Create(ctx, tx, bill); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}

	event := LedgerEvent{
		EventType:    EventRefundSucceeded,
		TradeID:      refund.ID,
		OwnerKind:    string(payer.Kind),
		OwnerID:      payer.ID,
		AppID:        payment.AppID,
		OrderID:      payment.OrderID,
		Amounts:      realRefund,
		CouponAmount: couponRefund,
		AfterBalance: balance,
		OccurredAt:   now,
	}
	if err := s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.Refund, refund.ID, event); err != nil {
		return nil, fmt.Errorf("写入消息失败: %w", err)
	}

	return refund, nil
}

// planCouponRestore 计算每张券应退还的金额
//
// 按原扣券明细的 id 顺序（即扣券顺序）退还；每张券最多退还
// 原扣减额减去之前退款已退还的部分，且退还后不超过面值。
// 已作废/删除的券跳过，其份额退回余额。
func (s *RefundService) planCouponRestore(ctx context.Context, tx *gorm.DB, paymentID string, refundAmounts decimal.Decimal) ([]couponRestore, error) {
	records, err := s.couponRepo.ListPaymentRecords(ctx, tx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("查询券扣费明细失败: %w", err)
	}

	order := make([]string, 0, len(records))
	refundable := make(map[string]decimal.Decimal, len(records))
	for _, r := range records {
		if _, ok := refundable[r.CashCouponID]; !ok {
			order = append(order, r.CashCouponID)
			refundable[r.CashCouponID] = decimal.Zero
		}
		// 扣券行为负数，退还行为正数，相减得到尚可退还额
		refundable[r.CashCouponID] = refundable[r.CashCouponID].Sub(r.Amounts)
	}
	if len(order) == 0 {
		return nil, nil
	}

	coupons, err := s.couponRepo.ListByIDs(ctx, tx, order, true)
	if err != nil {
		return nil, fmt.Errorf("锁定券失败: %w", err)
	}
	byID := make(map[string]*model.CashCoupon, len(coupons))
	for _, c := range coupons {
		byID[c.ID] = c
	}

	remaining := refundAmounts
	restores := make([]couponRestore, 0, len(order))
	for _, id := range order {
		if !remaining.IsPositive() {
			break
		}
		c, ok := byID[id]
		if !ok || c.IsTerminal() {
			continue
		}
		capacity := decimal.Min(refundable[id], c.FaceValue.Sub(c.Balance))
		if !capacity.IsPositive() {
			continue
		}
		amount := decimal.Min(capacity, remaining)
		restores = append(restores, couponRestore{coupon: c, amount: amount, before: c.Balance})
		remaining = remaining.Sub(amount)
	}
	return restores, nil
}

func (s *RefundService) GetRefund(ctx context.Context, refundID string) (*model.RefundRecord, error) {
	refund, err := s.refundRepo.GetByID(ctx, refundID)
	if err != nil {
		if errors.Is(err, repository.ErrRefundNotFound) {
			return nil, errcode.NotFound("refund %s not found", refundID)
		}
		return nil, err
	}
	return refund, nil
}

func (s *RefundService) ListRefunds(ctx context.Context, tradeID string) ([]*model.RefundRecord, error) {
	return s.refundRepo.ListByTrade(ctx, tradeID)
}
