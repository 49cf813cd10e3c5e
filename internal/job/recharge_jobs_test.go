package job

import (
	"context"
	"testing"
	"time"

	"walletledger/internal/model"
	"walletledger/internal/service"
	"walletledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRechargeService(t *testing.T) (*service.RechargeService, *service.AccountService) {
	t.Helper()
	db := testutil.NewDB(t)
	return service.NewRechargeService(db, nil, testutil.NewConfig(), zaptest.NewLogger(t)), service.NewAccountService(db)
}

func createWaitRecharge(t *testing.T, svc *service.RechargeService, owner model.Owner, amount string) *model.Recharge {
	t.Helper()
	r, err := svc.CreateWaitRecharge(context.Background(), &service.CreateRechargeRequest{
		Owner:        owner,
		TradeChannel: model.TradeChannelWechat,
		TotalAmount:  testutil.D(amount),
	})
	require.NoError(t, err)
	return r
}

func TestRechargeTimeoutJobClosesExpired(t *testing.T) {
	svc, _ := newRechargeService(t)
	job := NewRechargeTimeoutJob(svc, testutil.NewConfig(), zaptest.NewLogger(t))
	ctx := context.Background()
	user := model.UserOwner("u-1")

	waiting := createWaitRecharge(t, svc, user, "10")
	paid := createWaitRecharge(t, svc, user, "20")
	_, err := svc.SetRechargePaySuccess(ctx, &service.PaySuccessRequest{RechargeID: paid.ID, ChannelTradeNo: "wx-1"})
	require.NoError(t, err)

	// 未到超时时间
	assert.Equal(t, 0, job.CloseExpired(ctx, time.Now()))

	assert.Equal(t, 1, job.CloseExpired(ctx, time.Now().Add(time.Hour)))

	got, err := svc.GetRecharge(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RechargeStatusClosed, got.Status)

	got, err = svc.GetRecharge(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RechargeStatusSuccess, got.Status)
}

func TestRechargeCompensateJob(t *testing.T) {
	svc, accounts := newRechargeService(t)
	job := NewRechargeCompensateJob(svc, zaptest.NewLogger(t))
	ctx := context.Background()
	user := model.UserOwner("u-1")

	r := createWaitRecharge(t, svc, user, "66.66")
	_, err := svc.SetRechargePaySuccess(ctx, &service.PaySuccessRequest{RechargeID: r.ID, ChannelTradeNo: "wx-2"})
	require.NoError(t, err)
	createWaitRecharge(t, svc, user, "1")

	assert.Equal(t, 0, job.Compensate(ctx, time.Now()), "recently paid recharges are left to the notify path")
	assert.Equal(t, 1, job.Compensate(ctx, time.Now().Add(2*time.Minute)))

	got, err := svc.GetRecharge(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RechargeStatusComplete, got.Status)

	// 重复执行不会重复入账
	assert.Equal(t, 0, job.Compensate(ctx, time.Now().Add(2*time.Minute)))
	balance, err := accounts.GetBalance(ctx, user)
	require.NoError(t, err)
	testutil.RequireDecimal(t, "66.66", balance)

	list, total, err := svc.ListRecharges(ctx, user, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)
}
