package job

import (
	"context"
	"time"

	"walletledger/internal/config"
	"walletledger/internal/model"
	"walletledger/internal/service"

	"go.uber.org/zap"
)

// RechargeTimeoutJob 关闭超时未支付的充值单
//
// 只做 wait -> closed 的状态迁移，不会触碰账户和券
type RechargeTimeoutJob struct {
	rechargeService *service.RechargeService
	cfg             *config.Config
	log             *zap.Logger
	stopCh          chan struct{}
	interval        time.Duration
	batchSize       int
}

func NewRechargeTimeoutJob(rechargeService *service.RechargeService, cfg *config.Config, log *zap.Logger) *RechargeTimeoutJob {
	return &RechargeTimeoutJob{
		rechargeService: rechargeService,
		cfg:             cfg,
		log:             log,
		stopCh:          make(chan struct{}),
		interval:        time.Minute,
		batchSize:       100,
	}
}

func (j *RechargeTimeoutJob) Start(ctx context.Context) {
	j.log.Info("[RechargeTimeoutJob] 充值单超时任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("[RechargeTimeoutJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("[RechargeTimeoutJob] 任务停止")
			return
		case <-ticker.C:
			j.CloseExpired(ctx, time.Now())
		}
	}
}

func (j *RechargeTimeoutJob) Stop() {
	close(j.stopCh)
}

// CloseExpired 关闭 now 之前超时的充值单，返回关闭数量
func (j *RechargeTimeoutJob) CloseExpired(ctx context.Context, now time.Time) int {
	timeout := time.Duration(j.cfg.Business.RechargeWaitTimeoutMinutes) * time.Minute
	recharges, err := j.rechargeService.ListStale(ctx, model.RechargeStatusWait, now.Add(-timeout), j.batchSize)
	if err != nil {
		j.log.Error("[RechargeTimeoutJob] 查询超时充值单失败", zap.Error(err))
		return 0
	}

	closed := 0
	for _, r := range recharges {
		if err := j.rechargeService.CloseWaitRecharge(ctx, r.ID); err != nil {
			// 并发下可能已被渠道回调置为 success
			j.log.Warn("[RechargeTimeoutJob] 关闭充值单失败", zap.String("recharge_id", r.ID), zap.Error(err))
			continue
		}
		closed++
	}
	if closed > 0 {
		j.log.Info("[RechargeTimeoutJob] 本次关闭超时充值单", zap.Int("count", closed))
	}
	return closed
}

// RechargeCompensateJob 补偿已支付但未入账的充值单
//
// DoRechargeToBalance 对已完成的充值单返回冲突，重复执行不会重复加款
type RechargeCompensateJob struct {
	rechargeService *service.RechargeService
	log             *zap.Logger
	stopCh          chan struct{}
	interval        time.Duration
	delay           time.Duration
	batchSize       int
}

func NewRechargeCompensateJob(rechargeService *service.RechargeService, log *zap.Logger) *RechargeCompensateJob {
	return &RechargeCompensateJob{
		rechargeService: rechargeService,
		log:             log,
		stopCh:          make(chan struct{}),
		interval:        30 * time.Second,
		delay:           time.Minute,
		batchSize:       50,
	}
}

func (j *RechargeCompensateJob) Start(ctx context.Context) {
	j.log.Info("[RechargeCompensateJob] 补偿任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("[RechargeCompensateJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("[RechargeCompensateJob] 任务停止")
			return
		case <-ticker.C:
			j.Compensate(ctx, time.Now())
		}
	}
}

func (j *RechargeCompensateJob) Stop() {
	close(j.stopCh)
}

// Compensate 对创建时间早于 now-delay 仍停在 success 的充值单重新入账
func (j *RechargeCompensateJob) Compensate(ctx context.Context, now time.Time) int {
	recharges, err := j.rechargeService.ListStale(ctx, model.RechargeStatusSuccess, now.Add(-j.delay), j.batchSize)
	if err != nil {
		j.log.Error("[RechargeCompensateJob] 查询充值单失败", zap.Error(err))
		return 0
	}

	applied := 0
	for _, r := range recharges {
		if _, err := j.rechargeService.DoRechargeToBalance(ctx, r.ID); err != nil {
			j.log.Warn("[RechargeCompensateJob] 补偿入账失败", zap.String("recharge_id", r.ID), zap.Error(err))
			continue
		}
		applied++
		j.log.Info("[RechargeCompensateJob] 补偿入账成功", zap.String("recharge_id", r.ID))
	}
	return applied
}
