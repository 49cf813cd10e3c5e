package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"walletledger/internal/config"
	"walletledger/internal/errcode"
	"walletledger/internal/model"
	"walletledger/internal/repository"
	"walletledger/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 券编号 = yyyymmdd + 6 位当日序号
const (
	couponIDDateLayout = "20060102"
	couponIDLength     = 14
	couponCodeLength   = 10
)

type CouponService struct {
	db           *gorm.DB
	cfg          *config.Config
	log          *zap.Logger
	directory    *AppServiceDirectory
	couponRepo   *repository.CouponRepository
	activityRepo *repository.CouponActivityRepository
	seqRepo      *repository.SequenceRepository
}

func NewCouponService(db *gorm.DB, cfg *config.Config, log *zap.Logger) *CouponService {
	return &CouponService{
		db:           db,
		cfg:          cfg,
		log:          log,
		directory:    NewAppServiceDirectory(cfg),
		couponRepo:   repository.NewCouponRepository(db),
		activityRepo: repository.NewCouponActivityRepository(db),
		seqRepo:      repository.NewSequenceRepository(db),
	}
}

// ============================================================================
// 查询所有者的可用券
// ============================================================================

// GetOwnerCoupons 获取 owner 用于支付的券
//
//	couponIDs == nil      自动选择：可用、余额>0、在有效期内，按过期时间升序
//	len(couponIDs) == 0   不使用券
//	其他                  严格按调用方给定的顺序返回，任一张不可用则整体失败
//
// selectForUpdate 时按 id 升序加行锁
func (s *CouponService) GetOwnerCoupons(ctx context.Context, tx *gorm.DB, owner model.Owner, couponIDs []string, selectForUpdate bool) ([]*model.CashCoupon, error) {
	if couponIDs != nil && len(couponIDs) == 0 {
		return []*model.CashCoupon{}, nil
	}

	now := time.Now()

	if couponIDs == nil {
		coupons, err := s.couponRepo.ListOwnerAvailable(ctx, tx, owner, selectForUpdate)
		if err != nil {
			return nil, fmt.Errorf("查询可用券失败: %w", err)
		}
		valid := make([]*model.CashCoupon, 0, len(coupons))
		for _, c := range coupons {
			if c.InValidityWindow(now) {
				valid = append(valid, c)
			}
		}
		SortByExpiration(valid)
		return valid, nil
	}

	seen := make(map[string]struct{}, len(couponIDs))
	for _, id := range couponIDs {
		if _, dup := seen[id]; dup {
			return nil, errcode.InvalidArgument("coupon %s appears more than once", id)
		}
		seen[id] = struct{}{}
	}

	locked, err := s.couponRepo.ListByIDs(ctx, tx, couponIDs, selectForUpdate)
	if err != nil {
		return nil, fmt.Errorf("查询券失败: %w", err)
	}
	byID := make(map[string]*model.CashCoupon, len(locked))
	for _, c := range locked {
		byID[c.ID] = c
	}

	result := make([]*model.CashCoupon, 0, len(couponIDs))
	for _, id := range couponIDs {
		c, ok := byID[id]
		if !ok {
			return nil, errcode.NoSuchCoupon(id)
		}
		if err := checkCouponForPayment(c, owner, now); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

func checkCouponForPayment(c *model.CashCoupon, owner model.Owner, now time.Time) error {
	if c.Status != model.CouponStatusAvailable {
		return errcode.NotAvailable(c.ID)
	}
	if !c.IsOwnedBy(owner) {
		return errcode.AccessDenied("coupon %s does not belong to %s", c.ID, owner)
	}
	if now.Before(c.EffectiveTime) {
		return errcode.NotEffective(c.ID)
	}
	if !now.Before(c.ExpirationTime) {
		return errcode.ExpiredCoupon(c.ID)
	}
	return nil
}

// ============================================================================
// 券活动与发券
// ============================================================================

type CreateActivityRequest struct {
	Name           string          `json:"name" binding:"required"`
	FaceValue      decimal.Decimal `json:"face_value"`
	EffectiveTime  time.Time       `json:"effective_time" binding:"required"`
	ExpirationTime time.Time       `json:"expiration_time" binding:"required"`
	AppServiceID   string          `json:"app_service_id" binding:"required"`
	UseScope       string          `json:"use_scope"`
	GrantTotal     int             `json:"grant_total" binding:"required,gt=0"`
	Creator        string          `json:"creator"`
}

// CouponParams 单张券的参数
type CouponParams struct {
	FaceValue      decimal.Decimal `json:"face_value"`
	EffectiveTime  time.Time       `json:"effective_time" binding:"required"`
	ExpirationTime time.Time       `json:"expiration_time" binding:"required"`
	AppServiceID   string          `json:"app_service_id" binding:"required"`
	UseScope       string          `json:"use_scope"`
	OrderID        string          `json:"order_id"`
	Issuer         string          `json:"issuer"`
	Remark         string          `json:"remark"`
}

func (s *CouponService) validateParams(p *CouponParams) error {
	if !p.FaceValue.IsPositive() {
		return errcode.InvalidArgument("face_value must be positive, got %s", p.FaceValue)
	}
	if !p.ExpirationTime.After(p.EffectiveTime) {
		return errcode.InvalidArgument("expiration_time must be after effective_time")
	}
	if p.UseScope == "" {
		p.UseScope = model.UseScopeServiceUnit
	}
	switch p.UseScope {
	case model.UseScopeServiceUnit:
		p.OrderID = ""
	case model.UseScopeOrder:
		if p.OrderID == "" {
			return errcode.InvalidArgument("order_id is required when use_scope is order")
		}
	default:
		return errcode.InvalidArgument("unknown use_scope %q", p.UseScope)
	}
	if _, ok := s.directory.Get(p.AppServiceID); !ok {
		return errcode.InvalidCoupon("app service %s is not registered", p.AppServiceID)
	}
	return nil
}

func (s *CouponService) CreateActivity(ctx context.Context, req *CreateActivityRequest) (*model.CouponActivity, error) {
	params := CouponParams{
		FaceValue:      req.FaceValue,
		EffectiveTime:  req.EffectiveTime,
		ExpirationTime: req.ExpirationTime,
		AppServiceID:   req.AppServiceID,
		UseScope:       req.UseScope,
	}
	if err := s.validateParams(&params); err != nil {
		return nil, err
	}
	if params.UseScope == model.UseScopeOrder {
		return nil, errcode.InvalidArgument("activity coupons can not be bound to an order")
	}
	if req.GrantTotal <= 0 {
		return nil, errcode.InvalidArgument("grant_total must be positive")
	}

	activity := &model.CouponActivity{
		ID:             strconv.FormatInt(idgen.NextID(), 10),
		Name:           req.Name,
		FaceValue:      req.FaceValue.Round(2),
		EffectiveTime:  req.EffectiveTime,
		ExpirationTime: req.ExpirationTime,
		AppServiceID:   req.AppServiceID,
		UseScope:       params.UseScope,
		GrantTotal:     req.GrantTotal,
		GrantStatus:    model.GrantStatusPending,
		Creator:        req.Creator,
	}
	if err := s.activityRepo.Create(ctx, nil, activity); err != nil {
		return nil, fmt.Errorf("创建券活动失败: %w", err)
	}
	return activity, nil
}

// CreateCouponsFromActivity 从活动模板生成 count 张待领取券，超出 grant_total 的部分不生成
func (s *CouponService) CreateCouponsFromActivity(ctx context.Context, activityID string, count int) ([]*model.CashCoupon, error) {
	if count <= 0 {
		return nil, errcode.InvalidArgument("count must be positive")
	}

	var coupons []*model.CashCoupon
	err := s.db.Transaction(func(tx *gorm.DB) error {
		activity, err := s.activityRepo.GetForUpdate(ctx, tx, activityID)
		if err != nil {
			if errors.Is(err, repository.ErrActivityNotFound) {
				return errcode.NotFound("coupon activity %s not found", activityID)
			}
			return fmt.Errorf("锁定券活动失败: %w", err)
		}

		left := activity.GrantTotal - activity.GrantedCount
		if activity.GrantStatus == model.GrantStatusCompleted || left <= 0 {
			return errcode.Conflict("coupon activity %s has granted all %d coupons", activityID, activity.GrantTotal)
		}
		if count > left {
			count = left
		}

		now := time.Now()
		ids, err := s.nextCouponIDs(ctx, tx, now, count)
		if err != nil {
			return err
		}

		coupons = make([]*model.CashCoupon, 0, count)
		for _, id := range ids {
			coupons = append(coupons, &model.CashCoupon{
				ID:             id,
				CouponCode:     newCouponCode(),
				FaceValue:      activity.FaceValue,
				Balance:        activity.FaceValue,
				Status:         model.CouponStatusWait,
				AppServiceID:   activity.AppServiceID,
				UseScope:       activity.UseScope,
				EffectiveTime:  activity.EffectiveTime,
				ExpirationTime: activity.ExpirationTime,
				Issuer:         activity.Creator,
				ActivityID:     activity.ID,
			})
		}
		if err := s.couponRepo.Create(ctx, tx, coupons...); err != nil {
			return fmt.Errorf("生成券失败: %w", err)
		}

		grantStatus := model.GrantStatusGrant
		if activity.GrantedCount+count >= activity.GrantTotal {
			grantStatus = model.GrantStatusCompleted
		}
		if err := s.activityRepo.AddGranted(ctx, tx, activity.ID, count, grantStatus); err != nil {
			return fmt.Errorf("更新券活动发放数量失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("券活动生成券", zap.String("activity_id", activityID), zap.Int("count", len(coupons)))
	return coupons, nil
}

// CreateWaitCoupon 创建一张不属于任何活动的待领取券
func (s *CouponService) CreateWaitCoupon(ctx context.Context, params *CouponParams) (*model.CashCoupon, error) {
	if err := s.validateParams(params); err != nil {
		return nil, err
	}

	var coupon *model.CashCoupon
	err := s.db.Transaction(func(tx *gorm.DB) error {
		ids, err := s.nextCouponIDs(ctx, tx, time.Now(), 1)
		if err != nil {
			return err
		}
		coupon = newCouponFromParams(ids[0], params)
		coupon.Status = model.CouponStatusWait
		return s.couponRepo.Create(ctx, tx, coupon)
	})
	if err != nil {
		return nil, err
	}
	return coupon, nil
}

// IssueCoupon 管理员直接发券给 owner，券直接为 available
func (s *CouponService) IssueCoupon(ctx context.Context, params *CouponParams, owner model.Owner) (*model.CashCoupon, error) {
	if err := s.validateParams(params); err != nil {
		return nil, err
	}
	if owner.IsVo() && !s.directory.AllowVo(params.AppServiceID) {
		return nil, errcode.NotAllowToVo(params.AppServiceID)
	}

	var coupon *model.CashCoupon
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		ids, err := s.nextCouponIDs(ctx, tx, now, 1)
		if err != nil {
			return err
		}
		coupon = newCouponFromParams(ids[0], params)
		coupon.Status = model.CouponStatusAvailable
		coupon.OwnerKind = owner.Kind
		coupon.OwnerID = owner.ID
		coupon.GrantedTime = &now
		return s.couponRepo.Create(ctx, tx, coupon)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("发放代金券",
		zap.String("coupon_id", coupon.ID),
		zap.Stringer("owner", owner),
		zap.String("face_value", coupon.FaceValue.StringFixed(2)),
	)
	return coupon, nil
}

// DrawCoupon 凭券编号和兑换码领取待领取券
func (s *CouponService) DrawCoupon(ctx context.Context, couponID, couponCode string, owner model.Owner) (*model.CashCoupon, error) {
	var coupon *model.CashCoupon
	err := s.db.Transaction(func(tx *gorm.DB) error {
		c, err := s.couponRepo.GetByIDForUpdate(ctx, tx, couponID)
		if err != nil {
			if errors.Is(err, repository.ErrCouponNotFound) {
				return errcode.NoSuchCoupon(couponID)
			}
			return fmt.Errorf("锁定券失败: %w", err)
		}
		if c.CouponCode != couponCode {
			return errcode.InvalidCouponCode(couponID)
		}
		if c.Status != model.CouponStatusWait {
			return errcode.AlreadyGranted(couponID)
		}
		if _, ok := s.directory.Get(c.AppServiceID); !ok {
			return errcode.InvalidCoupon("coupon %s is bound to unknown app service %s", couponID, c.AppServiceID)
		}
		if owner.IsVo() && !s.directory.AllowVo(c.AppServiceID) {
			return errcode.NotAllowToVo(c.AppServiceID)
		}

		now := time.Now()
		if err := s.couponRepo.Grant(ctx, tx, couponID, owner, now); err != nil {
			if errors.Is(err, repository.ErrCouponStatusInvalid) {
				return errcode.AlreadyGranted(couponID)
			}
			return fmt.Errorf("领取券失败: %w", err)
		}
		c.Status = model.CouponStatusAvailable
		c.OwnerKind = owner.Kind
		c.OwnerID = owner.ID
		c.GrantedTime = &now
		coupon = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("领取代金券", zap.String("coupon_id", couponID), zap.Stringer("owner", owner))
	return coupon, nil
}

// ExchangeCoupon 兑换码 = 券编号 + 券密码
func (s *CouponService) ExchangeCoupon(ctx context.Context, code string, owner model.Owner) (*model.CashCoupon, error) {
	code = strings.TrimSpace(code)
	if len(code) <= couponIDLength {
		return nil, errcode.InvalidCouponCode(code)
	}
	return s.DrawCoupon(ctx, code[:couponIDLength], code[couponIDLength:], owner)
}

// CancelCoupon 作废券，已作废/已删除的券返回冲突
func (s *CouponService) CancelCoupon(ctx context.Context, couponID string) error {
	return s.transitCoupon(ctx, couponID, []string{model.CouponStatusWait, model.CouponStatusAvailable}, model.CouponStatusCancelled)
}

func (s *CouponService) DeleteCoupon(ctx context.Context, couponID string) error {
	return s.transitCoupon(ctx, couponID, []string{model.CouponStatusWait, model.CouponStatusAvailable, model.CouponStatusCancelled}, model.CouponStatusDeleted)
}

func (s *CouponService) transitCoupon(ctx context.Context, couponID string, from []string, to string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		c, err := s.couponRepo.GetByIDForUpdate(ctx, tx, couponID)
		if err != nil {
			if errors.Is(err, repository.ErrCouponNotFound) {
				return errcode.NoSuchCoupon(couponID)
			}
			return fmt.Errorf("锁定券失败: %w", err)
		}
		if err := s.couponRepo.UpdateStatus(ctx, tx, couponID, from, to); err != nil {
			if errors.Is(err, repository.ErrCouponStatusInvalid) {
				return errcode.Conflict("coupon %s can not change from %s to %s", couponID, c.Status, to)
			}
			return fmt.Errorf("更新券状态失败: %w", err)
		}
		return nil
	})
}

// ============================================================================
// 查询
// ============================================================================

// ListOwnerCoupons 查询失败只记录日志并返回空列表
func (s *CouponService) ListOwnerCoupons(ctx context.Context, owner model.Owner, filter repository.CouponFilter, page, pageSize int) ([]*model.CashCoupon, int64) {
	coupons, total, err := s.couponRepo.ListByOwner(ctx, owner, filter, page, pageSize)
	if err != nil {
		s.log.Warn("查询券列表失败", zap.Stringer("owner", owner), zap.Error(err))
		return []*model.CashCoupon{}, 0
	}
	return coupons, total
}

func (s *CouponService) GetCoupon(ctx context.Context, couponID string) (*model.CashCoupon, error) {
	c, err := s.couponRepo.GetByID(ctx, nil, couponID)
	if err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			return nil, errcode.NoSuchCoupon(couponID)
		}
		return nil, err
	}
	return c, nil
}

// ListCouponPayments 券的扣费/退还明细
func (s *CouponService) ListCouponPayments(ctx context.Context, couponID string, page, pageSize int) ([]*model.CashCouponPaymentHistory, int64, error) {
	return s.couponRepo.ListCouponRecords(ctx, couponID, page, pageSize)
}

// ============================================================================
// 编号
// ============================================================================

// nextCouponIDs 从当日序列一次性取 n 个连续编号
func (s *CouponService) nextCouponIDs(ctx context.Context, tx *gorm.DB, now time.Time, n int) ([]string, error) {
	day := now.Format(couponIDDateLayout)
	first, err := s.seqRepo.NextN(ctx, tx, "coupon:"+day, n)
	if err != nil {
		return nil, fmt.Errorf("生成券编号失败: %w", err)
	}
	if first+int64(n)-1 > 999999 {
		return nil, errcode.Conflict("coupon numbering for %s is exhausted", day)
	}
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, fmt.Sprintf("%s%06d", day, first+int64(i)))
	}
	return ids, nil
}

func newCouponCode() string {
	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return code[:couponCodeLength]
}

func newCouponFromParams(id string, p *CouponParams) *model.CashCoupon {
	face := p.FaceValue.Round(2)
	return &model.CashCoupon{
		ID:             id,
		CouponCode:     newCouponCode(),
		FaceValue:      face,
		Balance:        face,
		AppServiceID:   p.AppServiceID,
		UseScope:       p.UseScope,
		OrderID:        p.OrderID,
		EffectiveTime:  p.EffectiveTime,
		ExpirationTime: p.ExpirationTime,
		Issuer:         p.Issuer,
		Remark:         p.Remark,
	}
}
