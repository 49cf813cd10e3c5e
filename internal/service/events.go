package service

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEvent 写入 outbox 的账本事件
type LedgerEvent struct {
	EventType    string          `json:"event_type"`
	TradeID      string          `json:"trade_id"`
	OwnerKind    string          `json:"owner_kind"`
	OwnerID      string          `json:"owner_id"`
	AppID        string          `json:"app_id,omitempty"`
	OrderID      string          `json:"order_id,omitempty"`
	Amounts      decimal.Decimal `json:"amounts"`
	CouponAmount decimal.Decimal `json:"coupon_amount"`
	AfterBalance decimal.Decimal `json:"after_balance"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

const (
	EventPaymentSucceeded  = "payment.succeeded"
	EventRefundSucceeded   = "refund.succeeded"
	EventRechargeCompleted = "recharge.completed"
)
