package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"walletledger/internal/errcode"
	"walletledger/internal/model"
	"walletledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayCouponThenBalanceScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := model.UserOwner("u-1")

	env.fund(t, user, "88.80")
	env.seedCoupon(t, user, "c-1", "88.80")

	// 第一笔：券足额支付，余额不动
	p1, err := env.pay.PayByUser(ctx, user.ID, payReq("123", "66.66"))
	require.NoError(t, err)
	testutil.RequireDecimal(t, "-66.66", p1.CouponAmount)
	testutil.RequireDecimal(t, "0", p1.Amounts)
	assert.Equal(t, model.PaymentMethodCoupon, p1.PaymentMethod)
	testutil.RequireDecimal(t, "22.14", env.couponBalance(t, "c-1"))
	testutil.RequireDecimal(t, "88.80", env.balance(t, user))

	// 第二笔：券用尽，剩余从余额扣
	p2, err := env.pay.PayByUser(ctx, user.ID, payReq("456", "66.00"))
	require.NoError(t, err)
	testutil.RequireDecimal(t, "-22.14", p2.CouponAmount)
	testutil.RequireDecimal(t, "-43.86", p2.Amounts)
	assert.Equal(t, model.PaymentMethodBalanceCoupon, p2.PaymentMethod)
	testutil.RequireDecimal(t, "0", env.couponBalance(t, "c-1"))
	testutil.RequireDecimal(t, "44.94", env.balance(t, user))

	bills, err := env.bills.ListTradeBills(ctx, p2.ID)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, model.TradeTypePayment, bills[0].TradeType)
	testutil.RequireDecimal(t, "-66.00", bills[0].TradeAmounts)
	testutil.RequireDecimal(t, "44.94", bills[0].AfterBalance)

	records, err := env.pay.ListPaymentCoupons(ctx, p2.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	testutil.RequireDecimal(t, "-22.14", records[0].Amounts)
	testutil.RequireDecimal(t, "22.14", records[0].BeforePayment)
	testutil.RequireDecimal(t, "0", records[0].AfterPayment)
}

func TestPayConservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vo := model.VoOwner("vo-1")

	env.fund(t, vo, "50")
	env.seedCoupon(t, vo, "c-1", "7.77")
	env.seedCoupon(t, vo, "c-2", "3.03", withExpiry(48*time.Hour))

	amounts := []string{"1.01", "5.55", "9.99", "0.01", "20.00", "33.33"}
	for i, amount := range amounts {
		p, err := env.pay.PayByVo(ctx, vo.ID, payReq(fmt.Sprintf("o-%d", i), amount))
		require.NoError(t, err)
		assert.True(t, p.Amounts.Add(p.CouponAmount).Equal(p.PayableAmounts.Neg()),
			"amounts %s + coupon %s != -%s", p.Amounts, p.CouponAmount, p.PayableAmounts)
		assert.Equal(t, model.OwnerKindVo, p.PayerKind)
	}

	// 券共 10.80，支付共 69.89，余额 50 - 59.09
	testutil.RequireDecimal(t, "-9.09", env.balance(t, vo))
	testutil.RequireDecimal(t, "0", env.couponBalance(t, "c-1"))
	testutil.RequireDecimal(t, "0", env.couponBalance(t, "c-2"))
}

func TestPayIdempotency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := model.UserOwner("u-1")

	env.fund(t, user, "100")
	env.seedCoupon(t, user, "c-1", "10")

	first, err := env.pay.PayByUser(ctx, user.ID, payReq("order-1", "30"))
	require.NoError(t, err)

	_, err = env.pay.PayByUser(ctx, user.ID, payReq("order-1", "30"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.ErrIdempotencyConflict))
	assert.True(t, errcode.IsRetrySafe(err))

	assert.EqualValues(t, 1, env.count(t, &model.PaymentHistory{}, "order_id = ?", "order-1"))
	assert.EqualValues(t, 1, env.count(t, &model.TransactionBill{}, "trade_id = ?", first.ID))
	testutil.RequireDecimal(t, "80", env.balance(t, user))
	testutil.RequireDecimal(t, "0", env.couponBalance(t, "c-1"))

	// 同一 order_id 在另一个 app 下是另一笔订单
	other := payReq("order-1", "5")
	other.AppID = "app-2"
	_, err = env.pay.PayByUser(ctx, user.ID, other)
	require.NoError(t, err)

	got, err := env.pay.GetPaymentByOrder(ctx, "app-1", "order-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestPayConsumesSoonestExpiringCoupon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := model.UserOwner("u-1")

	env.seedCoupon(t, user, "c-30", "50", withExpiry(30*24*time.Hour))
	env.seedCoupon(t, user, "c-01", "50", withExpiry(24*time.Hour))
	env.seedCoupon(t, user, "c-10", "50", withExpiry(10*24*time.Hour))

	p, err := env.pay.PayByUser(ctx, user.ID, payReq("o-1", "20"))
	require.NoError(t, err)
	testutil.RequireDecimal(t, "-20", p.CouponAmount)

	testutil.RequireDecimal(t, "30", env.couponBalance(t, "c-01"))
	testutil.RequireDecimal(t, "50", env.couponBalance(t, "c-10"))
	testutil.RequireDecimal(t, "50", env.couponBalance(t, "c-30"))
}

func TestPayExplicitCouponOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := model.UserOwner("u-1")

	env.seedCoupon(t, user, "c-a", "10", withExpiry(24*time.Hour))
	env.seedCoupon(t, user, "c-b", "10", withExpiry(72*time.Hour))

	req := payReq("o-1", "15")
	req.CouponIDs = []string{"c-b", "c-a"}
	_, err := env.pay.PayByUser(ctx, user.ID, req)
	require.NoError(t, err)

	testutil.RequireDecimal(t, "0", env.couponBalance(t, "c-b"))
	testutil.RequireDecimal(t, "5", env.couponBalance(t, "c-a"))
}

func TestPayEmptyCouponListUsesBalanceOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := model.UserOwner("u-1")

	env.fund(t, user, "20")
	env.seedCoupon(t, user, "c-1", "10")

	req := payReq("o-1", "15")
	req.CouponIDs = []string{}
	p, err := env.pay.PayByUser(ctx, user.ID, req)
	require.NoError(t, err)

	testutil.RequireDecimal(t, "-15", p.Amounts)
	testutil.RequireDecimal(t, "0", p.CouponAmount)
	assert.Equal(t, model.PaymentMethodBalance, p.PaymentMethod)
	testutil.RequireDecimal(t, "10", env.couponBalance(t, "c-1"))
	testutil.RequireDecimal(t, "5", env.balance(t, user))
}

func TestPayExplicitCouponErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := model.UserOwner("u-1")

	env.fund(t, user, "100")
	env.seedCoupon(t, user, "c-ok", "10")
	env.seedCoupon(t, user, "c-cancelled", "10", withStatus(model.CouponStatusCancelled))
	env.seedCoupon(t, user, "c-future", "10", withEffective(time.Hour), withExpiry(48*time.Hour))
	env.seedCoupon(t, user, "c-expired", "10", withEffective(-48*time.Hour), withExpiry(-time.Hour))
	env.seedCoupon(t, model.UserOwner("u-2"), "c-other", "10")
	env.seedCoupon(t, user, "c-storage", "10", withApp("s-storage"))
	env.seedCoupon(t, user, "c-order", "10", withOrder("o-other"))

	tests := []struct {
		name    string
		ids     []string
		kind    error
		errCode string
	}{
		{"missing coupon", []string{"c-ok", "c-missing"}, errcode.ErrCouponNotFound, "NoSuchCoupon"},
		{"cancelled coupon", []string{"c-ok", "c-cancelled"}, errcode.ErrCouponUnavailable, "NotAvailable"},
		{"not yet effective", []string{"c-future"}, errcode.ErrCouponUnavailable, "NotEffective"},
		{"expired", []string{"c-expired"}, errcode.ErrCouponUnavailable, "ExpiredCoupon"},
		{"owned by someone else", []string{"c-other"}, errcode.ErrAccessDenied, "AccessDenied"},
		{"duplicated id", []string{"c-ok", "c-ok"}, errcode.ErrInvalidArgument, "InvalidArgument"},
		{"other app service", []string{"c-ok", "c-storage"}, errcode.ErrCouponScopeMismatch, "NotUsable"},
		{"bound to another order", []string{"c-order"}, errcode.ErrCouponScopeMismatch, "NotUsable"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := payReq(fmt.Sprintf("o-%d", i), "5")
			req.CouponIDs = tt.ids
			_, err := env.pay.PayByUser(ctx, user.ID, req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "unexpected error %v", err)
			e, ok := errcode.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.errCode, e.Code)
		})
	}

	// 失败不留下任何痕迹
	testutil.RequireDecimal(t, "10", env.couponBalance(t, "c-ok"))
	testutil.RequireDecimal(t, "100", env.balance(t, user))
	assert.EqualValues(t, 0, env.count(t, &model.PaymentHistory{}, "payer_id = ?", user.ID))
}

func TestPayExplicitOutOfScopeCouponIsNotChargedToBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := model.UserOwner("u-1")

	env.fund(t, user, "100")
	env.seedCoupon(t, user, "c-storage", "10", withApp("s-storage"))

	req := payReq("o-1", "10")
	req.CouponIDs = []string{"c-storage"}
	_, err := env.pay.PayByUser(ctx, user.ID, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.ErrCouponScopeMismatch), "unexpected error %v", err)

	req = payReq("o-2", "10")
	req.CouponIDs = []string{"c-storage"}
	req.OnlyCoupon = true
	_, err = env.pay.PayByUser(ctx, user.ID, req)
	assert.True(t, errors.Is(err, errcode.ErrCouponScopeMismatch), "unexpected error %v", err)

	testutil.RequireDecimal(t, "100", env.balance(t, user))
	testutil.RequireDecimal(t, "10", env.couponBalance(t, "c-storage"))
	assert.EqualValues(t, 0, env.count(t, &model.PaymentHistory{}, "payer_id = ?", user.ID))
}

func TestPaySkipsCouponsOutOfScope(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := model.UserOwner("u-1")

	env.fund(t, user, "100")
	env.seedCoupon(t, user, "c-storage", "10", withApp("s-storage"))
	env.seedCoupon(t, user, "c-order", "10", withOrder("o-2"))

	p, err := env.pay.PayByUser(ctx, user.ID, payReq("o-1", "10"))
	require.NoError(t, err)
	testutil.RequireDecimal(t, "-10", p.Amounts)
	testutil.RequireDecimal(t, "10", env.couponBalance(t, "c-storage"))
	testutil.RequireDecimal(t, "10", env.couponBalance(t, "c-order"))

	// 订单券只用于指定订单
	p, err = env.pay.PayByUser(ctx, user.ID, payReq("o-2", "4"))
	require.NoError(t, err)
	testutil.RequireDecimal(t, "-4", p.CouponAmount)
	testutil.RequireDecimal(t, "6", env.couponBalance(t, "c-order"))
}

func TestPayOnlyCouponRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := model.UserOwner("u-1")

	env.fund(t, user, "100")
	env.seedCoupon(t, user, "c-1", "10")

	req := payReq("o-1", "20")
	req.OnlyCoupon = true
	_, err := env.pay.PayByUser(ctx, user.ID, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.ErrInsufficientBalance))

	testutil.RequireDecimal(t, "10", env.couponBalance(t, "c-1"))
	testutil.RequireDecimal(t, "100", env.balance(t, user))
	assert.EqualValues(t, 0, env.count(t, &model.CashCouponPaymentHistory{}, "cash_coupon_id = ?", "c-1"))
}

func TestPayArrearsPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := model.UserOwner("u-1")

	env.fund(t, user, "10")

	strict := payReq("o-1", "30")
	strict.RequiredEnoughBalance = true
	_, err := env.pay.PayByUser(ctx, user.ID, strict)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.ErrInsufficientBalance))
	testutil.RequireDecimal(t, "10", env.balance(t, user))

	p, err := env.pay.PayByUser(ctx, user.ID, payReq("o-2", "30"))
	require.NoError(t, err)
	testutil.RequireDecimal(t, "-30", p.Amounts)
	testutil.RequireDecimal(t, "-20", env.balance(t, user))
}

func TestPayCreatesAccountLazily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := model.UserOwner("new-user")

	env.seedCoupon(t, user, "c-1", "5")

	_, err := env.pay.PayByUser(ctx, user.ID, payReq("o-1", "5"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, env.count(t, &model.Account{}, "owner_id = ?", user.ID))
	testutil.RequireDecimal(t, "0", env.balance(t, user))
}

func TestPayRejectsInvalidRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.pay.PayByUser(ctx, "u-1", payReq("o-1", "0"))
	assert.True(t, errors.Is(err, errcode.ErrInvalidArgument))

	_, err = env.pay.PayByUser(ctx, "u-1", payReq("o-1", "-3"))
	assert.True(t, errors.Is(err, errcode.ErrInvalidArgument))

	_, err = env.pay.PayByUser(ctx, "u-1", payReq("", "3"))
	assert.True(t, errors.Is(err, errcode.ErrInvalidArgument))
}

func TestPayWritesOutboxMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := model.UserOwner("u-1")

	p, err := env.pay.PayByUser(ctx, user.ID, payReq("o-1", "1"))
	require.NoError(t, err)

	var msg model.OutboxMessage
	require.NoError(t, env.db.Where("message_key = ?", p.ID).First(&msg).Error)
	assert.Equal(t, "ledger.payment", msg.Topic)
	assert.Equal(t, model.OutboxStatusPending, msg.Status)
	assert.Contains(t, string(msg.Payload), EventPaymentSucceeded)
}

func TestPayConcurrentCouponNeverOverspent(t *testing.T) {
	runConcurrentCouponNeverOverspent(t, newTestEnv(t))
}

func runConcurrentCouponNeverOverspent(t *testing.T, env *testEnv) {
	ctx := context.Background()
	user := model.UserOwner("u-1")

	env.seedCoupon(t, user, "c-1", "100")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := payReq(fmt.Sprintf("o-%d", i), "10")
			req.OnlyCoupon = true
			if _, err := env.pay.PayByUser(ctx, user.ID, req); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, success)
	testutil.RequireDecimal(t, "0", env.couponBalance(t, "c-1"))
}

func TestPayConcurrentSameOrder(t *testing.T) {
	runConcurrentSameOrder(t, newTestEnv(t))
}

func runConcurrentSameOrder(t *testing.T, env *testEnv) {
	ctx := context.Background()
	user := model.UserOwner("u-1")

	env.fund(t, user, "100")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		success   int
		conflicts int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.pay.PayByUser(ctx, user.ID, payReq("same-order", "10"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
			} else if errors.Is(err, errcode.ErrIdempotencyConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, 9, conflicts)
	testutil.RequireDecimal(t, "90", env.balance(t, user))
}
