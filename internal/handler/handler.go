package handler

import (
	"strconv"

	"walletledger/internal/config"
	"walletledger/internal/infrastructure/lock"
	"walletledger/internal/model"
	"walletledger/internal/repository"
	"walletledger/internal/service"
	"walletledger/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler 统一处理器，只做参数绑定和错误码转换，账本语义全部在 service 层
type Handler struct {
	accountService  *service.AccountService
	couponService   *service.CouponService
	payService      *service.PayService
	refundService   *service.RefundService
	rechargeService *service.RechargeService
	billService     *service.BillService
	log             *zap.Logger
}

func NewHandler(db *gorm.DB, locker lock.OwnerLocker, cfg *config.Config, log *zap.Logger) *Handler {
	return &Handler{
		accountService:  service.NewAccountService(db),
		couponService:   service.NewCouponService(db, cfg, log),
		payService:      service.NewPayService(db, locker, cfg, log),
		refundService:   service.NewRefundService(db, locker, cfg, log),
		rechargeService: service.NewRechargeService(db, locker, cfg, log),
		billService:     service.NewBillService(db),
		log:             log,
	}
}

func ownerParam(c *gin.Context) (model.Owner, bool) {
	owner, err := model.ParseOwner(c.Param("kind"), c.Param("id"))
	if err != nil {
		response.ParamError(c, err.Error())
		return model.Owner{}, false
	}
	return owner, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

func pageResult(list interface{}, total int64, page, pageSize int) gin.H {
	return gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}
}

// ============================================================
// 账户
// ============================================================

// GetBalance 查询余额
// GET /api/v1/owners/:kind/:id/balance
func (h *Handler) GetBalance(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}

	balance, err := h.accountService.GetBalance(c.Request.Context(), owner)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{
		"owner_kind": owner.Kind,
		"owner_id":   owner.ID,
		"balance":    balance.StringFixed(2),
	})
}

// OpenAccount 开户
// POST /api/v1/owners/:kind/:id/account
func (h *Handler) OpenAccount(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}

	account, err := h.accountService.OpenAccount(c.Request.Context(), owner)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, account)
}

// ListBills 交易流水
// GET /api/v1/owners/:kind/:id/bills?trade_type=&app_service_id=&page=&page_size=
func (h *Handler) ListBills(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	filter := repository.BillFilter{
		TradeType:    c.Query("trade_type"),
		AppServiceID: c.Query("app_service_id"),
	}
	bills, total, err := h.billService.ListBills(c.Request.Context(), owner, filter, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pageResult(bills, total, page, pageSize))
}

// GetBill GET /api/v1/bills/:id
func (h *Handler) GetBill(c *gin.Context) {
	bill, err := h.billService.GetBill(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, bill)
}

// ============================================================
// 支付
// ============================================================

// Pay 支付
// POST /api/v1/owners/:kind/:id/pay
//
// coupon_ids 不传时自动选券，传 [] 时不使用券
func (h *Handler) Pay(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}

	var req service.PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.Owner = owner

	payment, err := h.payService.Pay(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, payment)
}

// GetPayment GET /api/v1/payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	payment, err := h.payService.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, payment)
}

// ListPaymentCoupons GET /api/v1/payments/:id/coupons
func (h *Handler) ListPaymentCoupons(c *gin.Context) {
	records, err := h.payService.ListPaymentCoupons(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, records)
}

// ListPayments GET /api/v1/owners/:kind/:id/payments
func (h *Handler) ListPayments(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	payments, total, err := h.payService.ListPayments(c.Request.Context(), owner, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pageResult(payments, total, page, pageSize))
}

// ============================================================
// 退款
// ============================================================

// Refund 退款
// POST /api/v1/refunds
func (h *Handler) Refund(c *gin.Context) {
	var req service.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	refund, err := h.refundService.Refund(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, refund)
}

// GetRefund GET /api/v1/refunds/:id
func (h *Handler) GetRefund(c *gin.Context) {
	refund, err := h.refundService.GetRefund(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, refund)
}

// ListPaymentRefunds GET /api/v1/payments/:id/refunds
func (h *Handler) ListPaymentRefunds(c *gin.Context) {
	refunds, err := h.refundService.ListRefunds(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, refunds)
}

// ============================================================
// 代金券
// ============================================================

// ListOwnerCoupons GET /api/v1/owners/:kind/:id/coupons?app_service_id=&status=&valid=
func (h *Handler) ListOwnerCoupons(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	filter := repository.CouponFilter{
		AppServiceID: c.Query("app_service_id"),
		Status:       c.Query("status"),
	}
	if v := c.Query("valid"); v != "" {
		valid, err := strconv.ParseBool(v)
		if err != nil {
			response.ParamError(c, "valid 参数错误")
			return
		}
		filter.Valid = &valid
	}

	coupons, total := h.couponService.ListOwnerCoupons(c.Request.Context(), owner, filter, page, pageSize)
	response.Success(c, pageResult(coupons, total, page, pageSize))
}

type drawCouponRequest struct {
	CouponID   string `json:"coupon_id" binding:"required"`
	CouponCode string `json:"coupon_code" binding:"required"`
}

// DrawCoupon 领取券
// POST /api/v1/owners/:kind/:id/coupons/draw
func (h *Handler) DrawCoupon(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}

	var req drawCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	coupon, err := h.couponService.DrawCoupon(c.Request.Context(), req.CouponID, req.CouponCode, owner)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, coupon)
}

// ExchangeCoupon 兑换码领取券
// POST /api/v1/owners/:kind/:id/coupons/exchange
func (h *Handler) ExchangeCoupon(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	coupon, err := h.couponService.ExchangeCoupon(c.Request.Context(), req.Code, owner)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, coupon)
}

// IssueCoupon 管理员发券
// POST /api/v1/owners/:kind/:id/coupons/issue
func (h *Handler) IssueCoupon(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}

	var req service.CouponParams
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	coupon, err := h.couponService.IssueCoupon(c.Request.Context(), &req, owner)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, coupon)
}

// CreateWaitCoupon POST /api/v1/coupons
func (h *Handler) CreateWaitCoupon(c *gin.Context) {
	var req service.CouponParams
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	coupon, err := h.couponService.CreateWaitCoupon(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	// 新建的待领取券需要把兑换码交给发放方
	response.Success(c, gin.H{
		"coupon":        coupon,
		"exchange_code": coupon.ID + coupon.CouponCode,
	})
}

// GetCoupon GET /api/v1/coupons/:id
func (h *Handler) GetCoupon(c *gin.Context) {
	coupon, err := h.couponService.GetCoupon(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, coupon)
}

// ListCouponPayments GET /api/v1/coupons/:id/payments
func (h *Handler) ListCouponPayments(c *gin.Context) {
	page, pageSize := pageParams(c)
	records, total, err := h.couponService.ListCouponPayments(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pageResult(records, total, page, pageSize))
}

// CancelCoupon POST /api/v1/coupons/:id/cancel
func (h *Handler) CancelCoupon(c *gin.Context) {
	if err := h.couponService.CancelCoupon(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "券已作废"})
}

// DeleteCoupon DELETE /api/v1/coupons/:id
func (h *Handler) DeleteCoupon(c *gin.Context) {
	if err := h.couponService.DeleteCoupon(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "券已删除"})
}

// CreateActivity POST /api/v1/coupon-activities
func (h *Handler) CreateActivity(c *gin.Context) {
	var req service.CreateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	activity, err := h.couponService.CreateActivity(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, activity)
}

// CreateActivityCoupons POST /api/v1/coupon-activities/:id/coupons
func (h *Handler) CreateActivityCoupons(c *gin.Context) {
	var req struct {
		Count int `json:"count" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	coupons, err := h.couponService.CreateCouponsFromActivity(c.Request.Context(), c.Param("id"), req.Count)
	if err != nil {
		response.FromError(c, err)
		return
	}

	codes := make([]string, 0, len(coupons))
	for _, cp := range coupons {
		codes = append(codes, cp.ID+cp.CouponCode)
	}
	response.Success(c, gin.H{
		"count":          len(coupons),
		"exchange_codes": codes,
	})
}

// ============================================================
// 充值
// ============================================================

// CreateRecharge POST /api/v1/owners/:kind/:id/recharges
func (h *Handler) CreateRecharge(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}

	var req service.CreateRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.Owner = owner

	recharge, err := h.rechargeService.CreateWaitRecharge(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, recharge)
}

// RechargeNotify 渠道支付成功回调：先置 success，再入账
// POST /api/v1/recharges/notify
//
// 入账失败时充值单停在 success，由补偿任务重试
func (h *Handler) RechargeNotify(c *gin.Context) {
	var req service.PaySuccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if _, err := h.rechargeService.SetRechargePaySuccess(ctx, &req); err != nil {
		response.FromError(c, err)
		return
	}

	recharge, err := h.rechargeService.DoRechargeToBalance(ctx, req.RechargeID)
	if err != nil {
		h.log.Warn("充值入账失败，等待补偿", zap.String("recharge_id", req.RechargeID), zap.Error(err))
		response.FromError(c, err)
		return
	}
	response.Success(c, recharge)
}

// ManualRecharge POST /api/v1/owners/:kind/:id/recharges/manual
func (h *Handler) ManualRecharge(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}

	var req service.ManualRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.Owner = owner

	recharge, err := h.rechargeService.ManualRecharge(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, recharge)
}

// CloseRecharge POST /api/v1/recharges/:id/close
func (h *Handler) CloseRecharge(c *gin.Context) {
	if err := h.rechargeService.CloseWaitRecharge(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "充值单已关闭"})
}

// GetRecharge GET /api/v1/recharges/:id
func (h *Handler) GetRecharge(c *gin.Context) {
	recharge, err := h.rechargeService.GetRecharge(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, recharge)
}

// ListRecharges GET /api/v1/owners/:kind/:id/recharges
func (h *Handler) ListRecharges(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	recharges, total, err := h.rechargeService.ListRecharges(c.Request.Context(), owner, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pageResult(recharges, total, page, pageSize))
}
