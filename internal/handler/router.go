package handler

import (
	"walletledger/internal/config"
	"walletledger/internal/infrastructure/lock"
	"walletledger/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, locker lock.OwnerLocker, cfg *config.Config, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())
	r.Use(metrics.GinMiddleware())

	h := NewHandler(db, locker, cfg, log)

	api := r.Group("/api/v1")
	{
		// 所有者维度：:kind 为 user 或 vo
		owner := api.Group("/owners/:kind/:id")
		{
			owner.POST("/account", h.OpenAccount)
			owner.GET("/balance", h.GetBalance)
			owner.POST("/pay", h.Pay)
			owner.GET("/payments", h.ListPayments)
			owner.GET("/bills", h.ListBills)

			owner.GET("/coupons", h.ListOwnerCoupons)
			owner.POST("/coupons/draw", h.DrawCoupon)
			owner.POST("/coupons/exchange", h.ExchangeCoupon)
			owner.POST("/coupons/issue", h.IssueCoupon)

			owner.GET("/recharges", h.ListRecharges)
			owner.POST("/recharges", h.CreateRecharge)
			owner.POST("/recharges/manual", h.ManualRecharge)
		}

		api.GET("/bills/:id", h.GetBill)

		payment := api.Group("/payments")
		{
			payment.GET("/:id", h.GetPayment)
			payment.GET("/:id/coupons", h.ListPaymentCoupons)
			payment.GET("/:id/refunds", h.ListPaymentRefunds)
		}

		refund := api.Group("/refunds")
		{
			refund.POST("", h.Refund)
			refund.GET("/:id", h.GetRefund)
		}

		recharge := api.Group("/recharges")
		{
			recharge.GET("/:id", h.GetRecharge)
			recharge.POST("/notify", h.RechargeNotify)
			recharge.POST("/:id/close", h.CloseRecharge)
		}

		coupon := api.Group("/coupons")
		{
			coupon.POST("", h.CreateWaitCoupon)
			coupon.GET("/:id", h.GetCoupon)
			coupon.GET("/:id/payments", h.ListCouponPayments)
			coupon.POST("/:id/cancel", h.CancelCoupon)
			coupon.DELETE("/:id", h.DeleteCoupon)
		}

		activity := api.Group("/coupon-activities")
		{
			activity.POST("", h.CreateActivity)
			activity.POST("/:id/coupons", h.CreateActivityCoupons)
		}
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
