package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TradeTypeRecharge = "recharge" // 充值
	TradeTypePayment  = "payment"  // 支付（扣款）
	TradeTypeRefund   = "refund"   // 退款
)

// ============================================================================
// 交易流水实体
// ============================================================================

// TransactionBill 交易流水表
// 记录每一笔影响余额或券的事件，是审计和对账的依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除
// 2. 每笔流水关联 trade_id（支付记录 / 退款记录 / 充值单）
// 3. after_balance 记录事件发生后的账户余额快照；当前余额只以 Account 为准
type TransactionBill struct {
	ID           string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TradeType    string          `gorm:"type:varchar(16);index;not null" json:"trade_type"`
	TradeID      string          `gorm:"type:varchar(36);index;not null" json:"trade_id"`
	TradeAmounts decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"trade_amounts"`
	Amounts      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amounts"`       // 余额变动
	CouponAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"coupon_amount"` // 券变动
	AfterBalance decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"after_balance"`
	OwnerKind    OwnerKind       `gorm:"type:varchar(16);index:idx_bill_owner,priority:1;not null" json:"owner_kind"`
	OwnerID      string          `gorm:"type:varchar(64);index:idx_bill_owner,priority:2;not null" json:"owner_id"`
	OwnerName    string          `gorm:"type:varchar(255)" json:"owner_name"`
	AppServiceID string          `gorm:"type:varchar(64)" json:"app_service_id"`
	AppID        string          `gorm:"type:varchar(64)" json:"app_id"`
	Remark       string          `gorm:"type:varchar(255)" json:"remark"`
	CreationTime time.Time       `gorm:"index;not null" json:"creation_time"`
}

func (TransactionBill) TableName() string {
	return "transaction_bill"
}
