package response

import (
	"errors"
	"net/http"

	"walletledger/internal/errcode"
	"walletledger/internal/infrastructure/lock"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeServerBusy    = 503
	CodeBusinessError = 1000
)

// 账本业务错误码
const (
	CodeBalanceNotEnough     = 1001
	CodeOrderIDExist         = 1002
	CodeCouponNotFound       = 1003
	CodeCouponAlreadyGranted = 1004
	CodeCouponUnavailable    = 1005
	CodeCouponScopeMismatch  = 1006
	CodeConflict             = 1007
)

var kindCodes = map[errcode.Kind]int{
	errcode.KindInsufficientBalance:  CodeBalanceNotEnough,
	errcode.KindIdempotencyConflict:  CodeOrderIDExist,
	errcode.KindCouponNotFound:       CodeCouponNotFound,
	errcode.KindCouponAlreadyGranted: CodeCouponAlreadyGranted,
	errcode.KindCouponUnavailable:    CodeCouponUnavailable,
	errcode.KindCouponScopeMismatch:  CodeCouponScopeMismatch,
	errcode.KindAccessDenied:         CodeForbidden,
	errcode.KindConflict:             CodeConflict,
	errcode.KindInvalidArgument:      CodeParamError,
	errcode.KindNotFound:             CodeNotFound,
}

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Reason  string      `json:"reason,omitempty"` // 具体错误码，如 BalanceNotEnough
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// FromError 按错误类别输出响应，未识别的错误按服务器错误处理
func FromError(c *gin.Context, err error) {
	if e, ok := errcode.As(err); ok {
		code, known := kindCodes[e.Kind]
		if !known {
			code = CodeBusinessError
		}
		c.JSON(http.StatusOK, Response{
			Code:    code,
			Message: e.Msg,
			Reason:  e.Code,
		})
		return
	}
	if errors.Is(err, lock.ErrLockFailed) {
		Error(c, CodeServerBusy, "系统繁忙，请稍后重试")
		return
	}
	ServerError(c, err.Error())
}
