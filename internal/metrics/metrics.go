package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

var (
	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_payments_total",
		Help: "Payments processed by the ledger, by result.",
	}, []string{"result"})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_refunds_total",
		Help: "Refunds processed by the ledger, by result.",
	}, []string{"result"})

	RechargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_recharges_total",
		Help: "Recharges credited to accounts, by result.",
	}, []string{"result"})

	CouponConsumedAmount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_coupon_consumed_amount_total",
		Help: "Total amount deducted from cash coupons.",
	})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "HTTP requests handled, by route, method and status.",
	}, []string{"route", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// Result 把 error 转成 result 标签
func Result(err error) string {
	if err != nil {
		return ResultFailed
	}
	return ResultSuccess
}

func AddCouponConsumed(amount decimal.Decimal) {
	if amount.IsPositive() {
		CouponConsumedAmount.Add(amount.InexactFloat64())
	}
}

// GinMiddleware 记录请求数与耗时，route 使用路由模板避免标签爆炸
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
