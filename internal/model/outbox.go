package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 事务消息表
// 与账本变更写在同一个事务里，由 OutboxSender 异步投递到 Kafka
type OutboxMessage struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string         `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string         `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    datatypes.JSON `gorm:"type:json;not null" json:"payload"`
	Status     string         `gorm:"type:varchar(20);index;not null;default:'PENDING'" json:"status"`
	RetryCount int            `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// AllModels 需要自动迁移的全部表
func AllModels() []interface{} {
	return []interface{}{
		&Account{},
		&CashCoupon{},
		&CouponActivity{},
		&PaymentHistory{},
		&CashCouponPaymentHistory{},
		&RefundRecord{},
		&TransactionBill{},
		&Recharge{},
		&LedgerSequence{},
		&OutboxMessage{},
	}
}
