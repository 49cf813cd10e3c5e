package service

import (
	"context"
	"testing"
	"time"

	"walletledger/internal/config"
	"walletledger/internal/model"
	"walletledger/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	cfg      *config.Config
	accounts *AccountService
	coupons  *CouponService
	pay      *PayService
	refund   *RefundService
	recharge *RechargeService
	bills    *BillService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithDB(t, testutil.NewDB(t))
}

func newTestEnvWithDB(t *testing.T, db *gorm.DB) *testEnv {
	t.Helper()
	cfg := testutil.NewConfig()
	log := zaptest.NewLogger(t)
	return &testEnv{
		db:       db,
		cfg:      cfg,
		accounts: NewAccountService(db),
		coupons:  NewCouponService(db, cfg, log),
		pay:      NewPayService(db, nil, cfg, log),
		refund:   NewRefundService(db, nil, cfg, log),
		recharge: NewRechargeService(db, nil, cfg, log),
		bills:    NewBillService(db),
	}
}

// fund 通过人工充值给账户加款
func (e *testEnv) fund(t *testing.T, owner model.Owner, amount string) {
	t.Helper()
	_, err := e.recharge.ManualRecharge(context.Background(), &ManualRechargeRequest{
		Owner:    owner,
		Amount:   testutil.D(amount),
		Executor: "tester",
	})
	require.NoError(t, err)
}

type couponOpt func(*model.CashCoupon)

func withApp(appServiceID string) couponOpt {
	return func(c *model.CashCoupon) { c.AppServiceID = appServiceID }
}

func withExpiry(d time.Duration) couponOpt {
	return func(c *model.CashCoupon) { c.ExpirationTime = time.Now().Add(d) }
}

func withEffective(d time.Duration) couponOpt {
	return func(c *model.CashCoupon) { c.EffectiveTime = time.Now().Add(d) }
}

func withStatus(status string) couponOpt {
	return func(c *model.CashCoupon) { c.Status = status }
}

func withOrder(orderID string) couponOpt {
	return func(c *model.CashCoupon) {
		c.UseScope = model.UseScopeOrder
		c.OrderID = orderID
	}
}

func withFace(face string) couponOpt {
	return func(c *model.CashCoupon) { c.FaceValue = testutil.D(face) }
}

// seedCoupon 直接写入一张已发放给 owner 的券
func (e *testEnv) seedCoupon(t *testing.T, owner model.Owner, id, balance string, opts ...couponOpt) *model.CashCoupon {
	t.Helper()
	now := time.Now()
	c := &model.CashCoupon{
		ID:             id,
		CouponCode:     "CODE" + id,
		FaceValue:      testutil.D(balance),
		Balance:        testutil.D(balance),
		Status:         model.CouponStatusAvailable,
		OwnerKind:      owner.Kind,
		OwnerID:        owner.ID,
		AppServiceID:   "s-server",
		UseScope:       model.UseScopeServiceUnit,
		EffectiveTime:  now.Add(-time.Hour),
		ExpirationTime: now.Add(24 * time.Hour),
		GrantedTime:    &now,
	}
	for _, opt := range opts {
		opt(c)
	}
	require.NoError(t, e.db.Create(c).Error)
	return c
}

func (e *testEnv) couponBalance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	var c model.CashCoupon
	require.NoError(t, e.db.Where("id = ?", id).First(&c).Error)
	return c.Balance
}

func (e *testEnv) balance(t *testing.T, owner model.Owner) decimal.Decimal {
	t.Helper()
	b, err := e.accounts.GetBalance(context.Background(), owner)
	require.NoError(t, err)
	return b
}

func (e *testEnv) count(t *testing.T, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(m).Where(query, args...).Count(&n).Error)
	return n
}

func payReq(orderID, amount string) *PayRequest {
	return &PayRequest{
		AppID:        "app-1",
		Subject:      "云主机按量计费",
		Amounts:      testutil.D(amount),
		OrderID:      orderID,
		AppServiceID: "s-server",
		InstanceID:   "vm-1",
	}
}
