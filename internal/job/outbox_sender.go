package job

import (
	"context"
	"time"

	"walletledger/internal/config"
	"walletledger/internal/model"
	"walletledger/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Publisher 消息投递，由 mq.Producer 实现
type Publisher interface {
	SendMessage(topic, key string, value []byte) error
}

// OutboxSender 把账本事务里写入的 outbox 消息投递到 Kafka
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  Publisher
	cfg        *config.Config
	log        *zap.Logger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, publisher Publisher, cfg *config.Config, log *zap.Logger) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
		stopCh:     make(chan struct{}),
		interval:   500 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessPending 投递一批待发送消息，返回成功数量
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.outboxRepo.GetByStatus(ctx, model.OutboxStatusPending, s.batchSize)
	if err != nil {
		s.log.Error("[OutboxSender] 查询消息失败", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.MarkSent(ctx, msg.ID); updateErr != nil {
			s.log.Error("[OutboxSender] 更新消息状态失败", zap.Int64("id", msg.ID), zap.Error(updateErr))
			return false
		}
		s.log.Debug("[OutboxSender] 消息发送成功",
			zap.Int64("id", msg.ID),
			zap.String("topic", msg.Topic),
			zap.String("key", msg.MessageKey),
		)
		return true
	}

	exhausted := msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount
	s.log.Warn("[OutboxSender] 消息发送失败",
		zap.Int64("id", msg.ID),
		zap.Int("retry_count", msg.RetryCount+1),
		zap.Bool("exhausted", exhausted),
		zap.Error(err),
	)
	if err := s.outboxRepo.MarkRetry(ctx, msg.ID, exhausted); err != nil {
		s.log.Error("[OutboxSender] 记录重试失败", zap.Int64("id", msg.ID), zap.Error(err))
	}
	return false
}
