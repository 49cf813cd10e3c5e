package service

import (
	"sort"

	"walletledger/internal/model"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 券分配算法（纯函数，不访问数据库）
// ============================================================================

// IsUsableCoupon 券是否可用于 app_service_id 下的 order_id
//
// app_service_id 必须完全一致；use_scope=order 的券只能用于指定订单
func IsUsableCoupon(coupon *model.CashCoupon, appServiceID, orderID string) bool {
	if coupon.AppServiceID != appServiceID {
		return false
	}
	switch coupon.UseScope {
	case model.UseScopeServiceUnit:
		return true
	case model.UseScopeOrder:
		return orderID != "" && coupon.OrderID == orderID
	default:
		return false
	}
}

// SortingUsableCoupons 把券分成可用、不可用两组，保持原有顺序
func SortingUsableCoupons(coupons []*model.CashCoupon, appServiceID, orderID string) (usable, unusable []*model.CashCoupon) {
	usable = make([]*model.CashCoupon, 0, len(coupons))
	unusable = make([]*model.CashCoupon, 0)
	for _, c := range coupons {
		if IsUsableCoupon(c, appServiceID, orderID) {
			usable = append(usable, c)
		} else {
			unusable = append(unusable, c)
		}
	}
	return usable, unusable
}

// SortByExpiration 按过期时间升序排序，过期时间相同按 id 升序
func SortByExpiration(coupons []*model.CashCoupon) {
	sort.SliceStable(coupons, func(i, j int) bool {
		a, b := coupons[i], coupons[j]
		if !a.ExpirationTime.Equal(b.ExpirationTime) {
			return a.ExpirationTime.Before(b.ExpirationTime)
		}
		return a.ID < b.ID
	})
}

// CouponDeduction 单张券的扣减
type CouponDeduction struct {
	Coupon *model.CashCoupon
	Amount decimal.Decimal // 正数
	Before decimal.Decimal
	After  decimal.Decimal
}

// Allocation 券分配结果
type Allocation struct {
	Deductions  []CouponDeduction
	CouponTotal decimal.Decimal // 券抵扣合计
	Remaining   decimal.Decimal // 仍需余额支付的部分
}

// Allocate 按顺序逐张扣减 min(券余额, 剩余应付)，剩余为 0 时停止
//
// 只计算，不修改 coupons
func Allocate(coupons []*model.CashCoupon, payable decimal.Decimal) Allocation {
	remaining := payable.Round(2)
	result := Allocation{
		Deductions:  make([]CouponDeduction, 0, len(coupons)),
		CouponTotal: decimal.Zero,
	}

	for _, c := range coupons {
		if !remaining.IsPositive() {
			break
		}
		if !c.Balance.IsPositive() {
			continue
		}
		amount := decimal.Min(c.Balance, remaining)
		result.Deductions = append(result.Deductions, CouponDeduction{
			Coupon: c,
			Amount: amount,
			Before: c.Balance,
			After:  c.Balance.Sub(amount),
		})
		result.CouponTotal = result.CouponTotal.Add(amount)
		remaining = remaining.Sub(amount)
	}

	result.Remaining = remaining
	return result
}
