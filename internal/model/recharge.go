package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RechargeStatusWait     = "wait"     // 已创建，等待渠道支付
	RechargeStatusSuccess  = "success"  // 渠道已确认支付
	RechargeStatusComplete = "complete" // 已入账
	RechargeStatusClosed   = "closed"   // 超时未支付，已关闭
)

var ValidRechargeTransitions = map[string][]string{
	RechargeStatusWait:    {RechargeStatusSuccess, RechargeStatusClosed},
	RechargeStatusSuccess: {RechargeStatusComplete},
}

func CanRechargeTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidRechargeTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

const (
	TradeChannelManual = "manual"
	TradeChannelAlipay = "alipay"
	TradeChannelWechat = "wechat"
)

// Recharge 充值单
type Recharge struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TradeChannel   string          `gorm:"type:varchar(16);not null" json:"trade_channel"`
	OutTradeNo     string          `gorm:"type:varchar(64);index" json:"out_trade_no"`
	ChannelAccount string          `gorm:"type:varchar(64)" json:"channel_account"`
	ChannelTradeNo string          `gorm:"type:varchar(64)" json:"channel_trade_no"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	ReceiptAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"receipt_amount"`
	ChannelFee     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"channel_fee"`
	Status         string          `gorm:"type:varchar(16);index;not null" json:"status"`
	OwnerKind      OwnerKind       `gorm:"type:varchar(16);index:idx_recharge_owner,priority:1;not null" json:"owner_kind"`
	OwnerID        string          `gorm:"type:varchar(64);index:idx_recharge_owner,priority:2;not null" json:"owner_id"`
	OwnerName      string          `gorm:"type:varchar(255)" json:"owner_name"`
	Executor       string          `gorm:"type:varchar(64)" json:"executor"`
	Remark         string          `gorm:"type:varchar(255)" json:"remark"`
	CreationTime   time.Time       `gorm:"index;not null" json:"creation_time"`
	SuccessTime    *time.Time      `json:"success_time"`
	CompleteTime   *time.Time      `json:"complete_time"`
}

func (Recharge) TableName() string {
	return "recharge"
}

func (r *Recharge) Owner() Owner {
	return Owner{Kind: r.OwnerKind, ID: r.OwnerID}
}
