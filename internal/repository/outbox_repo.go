package repository

import (
	"context"
	"encoding/json"

	"walletledger/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue 在账本事务内写入一条待投递消息，tx 为空时直接写入
func (r *OutboxRepository) Enqueue(ctx context.Context, tx *gorm.DB, topic, key string, payload interface{}) error {
	if tx == nil {
		tx = r.db
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		Payload:    datatypes.JSON(data),
		Status:     model.OutboxStatusPending,
	}
	return tx.WithContext(ctx).Create(msg).Error
}

func (r *OutboxRepository) GetByStatus(ctx context.Context, status string, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", model.OutboxStatusSent).Error
}

// MarkRetry 记录一次投递失败；exhausted 为 true 时标记为 FAILED 不再投递
func (r *OutboxRepository) MarkRetry(ctx context.Context, id int64, exhausted bool) error {
	updates := map[string]interface{}{
		"retry_count": gorm.Expr("retry_count + 1"),
	}
	if exhausted {
		updates["status"] = model.OutboxStatusFailed
	}
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Updates(updates).Error
}
