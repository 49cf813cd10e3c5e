package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RefundStatusSuccess = "success"
)

// RefundRecord 退款记录
// real_refund + coupon_refund == refund_amounts <= total_amounts
type RefundRecord struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TradeID       string          `gorm:"type:varchar(36);uniqueIndex:uk_refund_trade_out,priority:1;not null" json:"trade_id"`
	OutRefundID   string          `gorm:"type:varchar(64);uniqueIndex:uk_refund_trade_out,priority:2;not null" json:"out_refund_id"`
	OutOrderID    string          `gorm:"type:varchar(64);not null" json:"out_order_id"`
	AppID         string          `gorm:"type:varchar(64);index;not null" json:"app_id"`
	AppServiceID  string          `gorm:"type:varchar(64)" json:"app_service_id"`
	RefundReason  string          `gorm:"type:varchar(255)" json:"refund_reason"`
	TotalAmounts  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amounts"`
	RefundAmounts decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"refund_amounts"`
	RealRefund    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"real_refund"`
	CouponRefund  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"coupon_refund"`
	Status        string          `gorm:"type:varchar(16);not null" json:"status"`
	OwnerKind     OwnerKind       `gorm:"type:varchar(16);index:idx_refund_owner,priority:1;not null" json:"owner_kind"`
	OwnerID       string          `gorm:"type:varchar(64);index:idx_refund_owner,priority:2;not null" json:"owner_id"`
	OwnerName     string          `gorm:"type:varchar(255)" json:"owner_name"`
	Remark        string          `gorm:"type:varchar(255)" json:"remark"`
	CreationTime  time.Time       `gorm:"not null" json:"creation_time"`
	SuccessTime   *time.Time      `json:"success_time"`
}

func (RefundRecord) TableName() string {
	return "refund_record"
}
