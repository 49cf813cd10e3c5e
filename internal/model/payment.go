package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
)

const (
	PaymentMethodBalance       = "balance"
	PaymentMethodCoupon        = "coupon"
	PaymentMethodBalanceCoupon = "balance+coupon"
)

// PaymentHistory 支付记录
//
// 符号约定：扣款为负数，amounts + coupon_amount == -payable_amounts
// (app_id, order_id) 唯一，是支付幂等的依据
type PaymentHistory struct {
	ID              string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Subject         string          `gorm:"type:varchar(256);not null" json:"subject"`
	PayerKind       OwnerKind       `gorm:"type:varchar(16);index:idx_payment_payer,priority:1;not null" json:"payer_kind"`
	PayerID         string          `gorm:"type:varchar(64);index:idx_payment_payer,priority:2;not null" json:"payer_id"`
	PayerName       string          `gorm:"type:varchar(255)" json:"payer_name"`
	PayableAmounts  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"payable_amounts"`
	Amounts         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amounts"`
	CouponAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"coupon_amount"`
	RefundedAmounts decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"refunded_amounts"`
	PaymentMethod   string          `gorm:"type:varchar(32);not null" json:"payment_method"`
	AppID           string          `gorm:"type:varchar(64);uniqueIndex:uk_payment_app_order,priority:1;not null" json:"app_id"`
	OrderID         string          `gorm:"type:varchar(64);uniqueIndex:uk_payment_app_order,priority:2;not null" json:"order_id"`
	AppServiceID    string          `gorm:"type:varchar(64)" json:"app_service_id"`
	InstanceID      string          `gorm:"type:varchar(64)" json:"instance_id"`
	Status          string          `gorm:"type:varchar(16);not null" json:"status"`
	Remark          string          `gorm:"type:varchar(255)" json:"remark"`
	CreationTime    time.Time       `gorm:"index;not null" json:"creation_time"`
	PaymentTime     time.Time       `gorm:"not null" json:"payment_time"`
}

func (PaymentHistory) TableName() string {
	return "payment_history"
}

func (p *PaymentHistory) Payer() Owner {
	return Owner{Kind: p.PayerKind, ID: p.PayerID}
}

// TotalDeducted 原支付实际扣除的总额（余额部分 + 券部分），为正数
func (p *PaymentHistory) TotalDeducted() decimal.Decimal {
	return p.Amounts.Abs().Add(p.CouponAmount.Abs())
}

// CashCouponPaymentHistory 券扣费/退还明细
//
// 支付扣券时 amounts 为负且 refund_id 为空；退款退回到券时 amounts 为正并记录 refund_id。
// 每行都满足 before_payment + amounts == after_payment
type CashCouponPaymentHistory struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CashCouponID     string          `gorm:"type:varchar(32);index;not null" json:"cash_coupon_id"`
	PaymentHistoryID string          `gorm:"type:varchar(36);index;not null" json:"payment_history_id"`
	RefundID         *string         `gorm:"type:varchar(36);index" json:"refund_id"`
	Amounts          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amounts"`
	BeforePayment    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"before_payment"`
	AfterPayment     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"after_payment"`
	CreationTime     time.Time       `gorm:"not null" json:"creation_time"`
}

func (CashCouponPaymentHistory) TableName() string {
	return "cash_coupon_payment_history"
}
