package errcode

import (
	"errors"
	"fmt"
)

// Kind 业务错误类别
//
// 同一类别下可以有多个具体错误（例如 NotAvailable / NotEffective / ExpiredCoupon
// 都属于 CouponUnavailable），调用方用 errors.Is 按类别判断，
// 用 Code 区分具体原因。
type Kind string

const (
	KindInsufficientBalance  Kind = "InsufficientBalance"
	KindIdempotencyConflict  Kind = "IdempotencyConflict"
	KindCouponNotFound       Kind = "CouponNotFound"
	KindCouponAlreadyGranted Kind = "CouponAlreadyGranted"
	KindCouponUnavailable    Kind = "CouponUnavailable"
	KindCouponScopeMismatch  Kind = "CouponScopeMismatch"
	KindAccessDenied         Kind = "AccessDenied"
	KindConflict             Kind = "Conflict"
	KindInvalidArgument      Kind = "InvalidArgument"
	KindNotFound             Kind = "NotFound"
)

// Error 账本业务错误
type Error struct {
	Kind Kind
	Code string // 具体错误码，如 BalanceNotEnough、OrderIdExist
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is 按类别匹配，使 errors.Is(err, errcode.ErrConflict) 对所有 Conflict 类错误成立
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Kind == e.Kind
}

// 类别哨兵，仅用于 errors.Is 判断
var (
	ErrInsufficientBalance  = &Error{Kind: KindInsufficientBalance}
	ErrIdempotencyConflict  = &Error{Kind: KindIdempotencyConflict}
	ErrCouponNotFound       = &Error{Kind: KindCouponNotFound}
	ErrCouponAlreadyGranted = &Error{Kind: KindCouponAlreadyGranted}
	ErrCouponUnavailable    = &Error{Kind: KindCouponUnavailable}
	ErrCouponScopeMismatch  = &Error{Kind: KindCouponScopeMismatch}
	ErrAccessDenied         = &Error{Kind: KindAccessDenied}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrInvalidArgument      = &Error{Kind: KindInvalidArgument}
	ErrNotFound             = &Error{Kind: KindNotFound}
)

func newError(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Msg: fmt.Sprintf(format, args...)}
}

func BalanceNotEnough(format string, args ...interface{}) *Error {
	return newError(KindInsufficientBalance, "BalanceNotEnough", format, args...)
}

func OrderIDExist(appID, orderID string) *Error {
	return newError(KindIdempotencyConflict, "OrderIdExist", "app %s order_id %s already paid", appID, orderID)
}

func NoSuchCoupon(couponID string) *Error {
	return newError(KindCouponNotFound, "NoSuchCoupon", "coupon %s does not exist", couponID)
}

func AlreadyGranted(couponID string) *Error {
	return newError(KindCouponAlreadyGranted, "AlreadyGranted", "coupon %s has already been granted", couponID)
}

func NotAvailable(couponID string) *Error {
	return newError(KindCouponUnavailable, "NotAvailable", "coupon %s is not available", couponID)
}

func NotEffective(couponID string) *Error {
	return newError(KindCouponUnavailable, "NotEffective", "coupon %s is not yet effective", couponID)
}

func ExpiredCoupon(couponID string) *Error {
	return newError(KindCouponUnavailable, "ExpiredCoupon", "coupon %s has expired", couponID)
}

func InvalidCouponCode(couponID string) *Error {
	return newError(KindCouponNotFound, "InvalidCouponCode", "invalid code for coupon %s", couponID)
}

func InvalidCoupon(format string, args ...interface{}) *Error {
	return newError(KindCouponScopeMismatch, "InvalidCoupon", format, args...)
}

func NotAllowToVo(appServiceID string) *Error {
	return newError(KindCouponScopeMismatch, "NotAllowToVo", "coupons of app service %s can not be granted to a vo", appServiceID)
}

func NotUsable(couponID, appServiceID string) *Error {
	return newError(KindCouponScopeMismatch, "NotUsable", "coupon %s can not be used for app service %s", couponID, appServiceID)
}

func AccessDenied(format string, args ...interface{}) *Error {
	return newError(KindAccessDenied, "AccessDenied", format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newError(KindConflict, "ConflictError", format, args...)
}

func InvalidArgument(format string, args ...interface{}) *Error {
	return newError(KindInvalidArgument, "InvalidArgument", format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, "NotFound", format, args...)
}

// As 取出错误链中的 *Error
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetrySafe 幂等冲突说明同一笔业务已经成功执行过，调用方可以按成功处理
func IsRetrySafe(err error) bool {
	return errors.Is(err, ErrIdempotencyConflict)
}
