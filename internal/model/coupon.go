package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CouponStatusWait      = "wait"
	CouponStatusAvailable = "available"
	CouponStatusCancelled = "cancelled"
	CouponStatusDeleted   = "deleted"
)

const (
	UseScopeServiceUnit = "service_unit" // 服务单元内任意订单可用
	UseScopeOrder       = "order"        // 仅限指定订单
)

// CashCoupon 代金券
//
// 生命周期：wait（待领取）-> available（已发放）-> 支付逐步扣减 balance
// -> cancelled / deleted（终态，不再可用）
type CashCoupon struct {
	ID             string          `gorm:"primaryKey;type:varchar(32)" json:"id"`
	CouponCode     string          `gorm:"type:varchar(32);not null" json:"-"` // 兑换码，领取时校验
	FaceValue      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"face_value"`
	Balance        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balance"`
	Status         string          `gorm:"type:varchar(16);index;not null" json:"status"`
	OwnerKind      OwnerKind       `gorm:"type:varchar(16);index:idx_coupon_owner,priority:1" json:"owner_kind"`
	OwnerID        string          `gorm:"type:varchar(64);index:idx_coupon_owner,priority:2" json:"owner_id"`
	AppServiceID   string          `gorm:"type:varchar(64);index" json:"app_service_id"`
	UseScope       string          `gorm:"type:varchar(16);not null" json:"use_scope"`
	OrderID        string          `gorm:"type:varchar(64)" json:"order_id"` // 仅 use_scope=order 时有值
	EffectiveTime  time.Time       `gorm:"not null" json:"effective_time"`
	ExpirationTime time.Time       `gorm:"index;not null" json:"expiration_time"`
	Issuer         string          `gorm:"type:varchar(64)" json:"issuer"`
	ActivityID     string          `gorm:"type:varchar(32);index" json:"activity_id"`
	GrantedTime    *time.Time      `json:"granted_time"`
	Remark         string          `gorm:"type:varchar(255)" json:"remark"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CashCoupon) TableName() string {
	return "cash_coupon"
}

func (c *CashCoupon) Owner() Owner {
	return Owner{Kind: c.OwnerKind, ID: c.OwnerID}
}

func (c *CashCoupon) IsOwnedBy(owner Owner) bool {
	return c.OwnerKind == owner.Kind && c.OwnerID == owner.ID
}

// IsTerminal 已作废或已删除的券
func (c *CashCoupon) IsTerminal() bool {
	return c.Status == CouponStatusCancelled || c.Status == CouponStatusDeleted
}

// InValidityWindow 是否处于 [effective_time, expiration_time) 有效期内
func (c *CashCoupon) InValidityWindow(now time.Time) bool {
	return !now.Before(c.EffectiveTime) && now.Before(c.ExpirationTime)
}

const (
	GrantStatusPending   = "pending"
	GrantStatusGrant     = "grant"
	GrantStatusCompleted = "completed"
)

// CouponActivity 券模板（活动）
// granted_count 只增不减，达到 grant_total 后不再生成券
type CouponActivity struct {
	ID             string          `gorm:"primaryKey;type:varchar(32)" json:"id"`
	Name           string          `gorm:"type:varchar(255);not null" json:"name"`
	FaceValue      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"face_value"`
	EffectiveTime  time.Time       `gorm:"not null" json:"effective_time"`
	ExpirationTime time.Time       `gorm:"not null" json:"expiration_time"`
	AppServiceID   string          `gorm:"type:varchar(64);not null" json:"app_service_id"`
	UseScope       string          `gorm:"type:varchar(16);not null" json:"use_scope"`
	GrantTotal     int             `gorm:"not null" json:"grant_total"`
	GrantedCount   int             `gorm:"not null;default:0" json:"granted_count"`
	GrantStatus    string          `gorm:"type:varchar(16);not null" json:"grant_status"`
	Creator        string          `gorm:"type:varchar(64)" json:"creator"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CouponActivity) TableName() string {
	return "coupon_activity"
}
