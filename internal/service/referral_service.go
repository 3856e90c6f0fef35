package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/metrics"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/payout"
	"github.com/settle-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreateReferralInput 登记推荐关系参数
type CreateReferralInput struct {
	ReferrerID uint   `json:"referrer_id"`
	ReferredID uint   `json:"referred_id"`
	Code       string `json:"code"`
	Activate   bool   `json:"activate"`
}

// ReferralPaymentItem 本轮生成的返佣付款
type ReferralPaymentItem struct {
	ReferralID uint         `json:"referral_id"`
	ReferrerID uint         `json:"referrer_id"`
	PaymentID  uint         `json:"payment_id"`
	Period     string       `json:"period"`
	MonthIndex int          `json:"month_index"`
	Amount     models.Money `json:"amount"`
}

// CascadeResult 月度返佣执行结果
type CascadeResult struct {
	ProcessedCount   int                   `json:"processedCount"`
	TotalAmount      models.Money          `json:"totalAmount"`
	ReferralPayments []ReferralPaymentItem `json:"referralPayments"`
	SkippedCount     int                   `json:"skippedCount"`
	CappedCount      int                   `json:"cappedCount"`
}

// ReferralService 推荐关系与月度返佣
type ReferralService struct {
	referralRepo     repository.ReferralRepository
	paymentRepo      repository.PaymentRepository
	subscriptionRepo repository.SubscriptionRepository
	opts             SettlementOptions
}

// NewReferralService 创建推荐服务
func NewReferralService(
	referralRepo repository.ReferralRepository,
	paymentRepo repository.PaymentRepository,
	subscriptionRepo repository.SubscriptionRepository,
	opts SettlementOptions,
) *ReferralService {
	return &ReferralService{
		referralRepo:     referralRepo,
		paymentRepo:      paymentRepo,
		subscriptionRepo: subscriptionRepo,
		opts:             opts.normalize(),
	}
}

// CreateReferral 登记推荐关系，被推荐方只能有一条
func (s *ReferralService) CreateReferral(input CreateReferralInput) (*models.Referral, error) {
	if input.ReferrerID == 0 || input.ReferredID == 0 {
		return nil, ErrReferralNotFound
	}
	if input.ReferrerID == input.ReferredID {
		return nil, ErrReferralSelf
	}
	existing, err := s.referralRepo.GetByReferredID(input.ReferredID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrReferralDuplicate
	}
	referral := &models.Referral{
		ReferrerID:   input.ReferrerID,
		ReferredID:   input.ReferredID,
		Code:         strings.ToUpper(strings.TrimSpace(input.Code)),
		Status:       constants.ReferralStatusPending,
		PayoutStatus: constants.ReferralPayoutStatusNone,
	}
	if input.Activate {
		now := time.Now()
		referral.Status = constants.ReferralStatusActive
		referral.ActivatedAt = &now
	}
	if err := s.referralRepo.Create(referral); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrReferralDuplicate
		}
		return nil, err
	}
	return referral, nil
}

// ActivateReferral 激活推荐关系
func (s *ReferralService) ActivateReferral(id uint) (*models.Referral, error) {
	now := time.Now()
	return s.transition(id, []string{constants.ReferralStatusPending}, constants.ReferralStatusActive,
		map[string]interface{}{"activated_at": now})
}

// CancelReferral 取消推荐关系，已生成的返佣不受影响
func (s *ReferralService) CancelReferral(id uint) (*models.Referral, error) {
	return s.transition(id, []string{constants.ReferralStatusPending, constants.ReferralStatusActive},
		constants.ReferralStatusCancelled, nil)
}

func (s *ReferralService) transition(id uint, from []string, to string, updates map[string]interface{}) (*models.Referral, error) {
	referral, err := s.referralRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if referral == nil {
		return nil, ErrReferralNotFound
	}
	ok, err := s.referralRepo.TransitionStatus(id, from, to, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrReferralStatusInvalid
	}
	return s.referralRepo.GetByID(id)
}

// GetReferral 获取推荐关系
func (s *ReferralService) GetReferral(id uint) (*models.Referral, error) {
	referral, err := s.referralRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if referral == nil {
		return nil, ErrReferralNotFound
	}
	return referral, nil
}

// ListReferrals 分页查询推荐关系
func (s *ReferralService) ListReferrals(filter repository.ReferralListFilter) ([]models.Referral, int64, error) {
	return s.referralRepo.List(filter)
}

// ListPayouts 查询推荐关系的返佣账期
func (s *ReferralService) ListPayouts(referralID uint) ([]models.ReferralPayout, error) {
	return s.referralRepo.ListPayouts(referralID)
}

// ActiveReferralFee 付款方存在有效推荐关系时返回每期推荐费
func (s *ReferralService) ActiveReferralFee(customerID uint, now time.Time) (decimal.Decimal, error) {
	referral, err := s.referralRepo.GetActiveByReferredID(customerID)
	if err != nil {
		return decimal.Zero, err
	}
	if referral == nil {
		return decimal.Zero, nil
	}
	if referral.ActivatedAt != nil && referral.ActivatedAt.After(now) {
		return decimal.Zero, nil
	}
	return s.opts.ReferralFee, nil
}

// RunMonthlyCascade 为有效推荐关系生成本月返佣，重复执行不会重复生成
func (s *ReferralService) RunMonthlyCascade(ctx context.Context, now time.Time) (*CascadeResult, error) {
	referrals, err := s.referralRepo.ListActive()
	if err != nil {
		return nil, err
	}
	period := cascadePeriod(now)
	amount := models.NewMoneyFromDecimal(s.opts.ReferralMonthlyAmount)
	total := decimal.Zero
	result := &CascadeResult{ReferralPayments: make([]ReferralPaymentItem, 0)}

	for i := range referrals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		referral := &referrals[i]
		item, status, err := s.cascadeOne(referral, period, amount, now)
		if err != nil {
			logger.Warnw("referral_cascade_item_failed",
				"referral_id", referral.ID,
				"period", period,
				"error", err,
			)
			result.SkippedCount++
			continue
		}
		switch status {
		case cascadeCreated:
			result.ProcessedCount++
			result.ReferralPayments = append(result.ReferralPayments, *item)
			total = total.Add(item.Amount.Decimal)
			metrics.ReferralPayoutsTotal.Inc()
		case cascadeCapped:
			result.CappedCount++
		default:
			result.SkippedCount++
		}
	}
	result.TotalAmount = models.NewMoneyFromDecimal(total)
	logger.Infow("referral_cascade_finished",
		"period", period,
		"processed", result.ProcessedCount,
		"skipped", result.SkippedCount,
		"capped", result.CappedCount,
		"total_amount", result.TotalAmount.String(),
	)
	return result, nil
}

type cascadeStatus int

const (
	cascadeSkipped cascadeStatus = iota
	cascadeCapped
	cascadeCreated
)

func (s *ReferralService) cascadeOne(referral *models.Referral, period string, amount models.Money, now time.Time) (*ReferralPaymentItem, cascadeStatus, error) {
	if referral.PayoutStatus == constants.ReferralPayoutStatusCapped {
		return nil, cascadeCapped, nil
	}
	subscription, err := s.subscriptionRepo.GetLatestByCustomer(referral.ReferredID)
	if err != nil {
		return nil, cascadeSkipped, err
	}
	if subscription == nil || subscription.Status != constants.SubscriptionStatusActive {
		return nil, cascadeSkipped, nil
	}
	elapsed := monthsBetween(subscription.StartDate, now)
	if elapsed >= s.opts.ReferralCapMonths {
		if err := s.referralRepo.UpdatePayoutStatus(referral.ID, constants.ReferralPayoutStatusCapped); err != nil {
			return nil, cascadeSkipped, err
		}
		return nil, cascadeCapped, nil
	}
	paid, err := s.referralRepo.CountPayouts(referral.ID)
	if err != nil {
		return nil, cascadeSkipped, err
	}
	if paid >= int64(s.opts.ReferralCapMonths) {
		if err := s.referralRepo.UpdatePayoutStatus(referral.ID, constants.ReferralPayoutStatusCapped); err != nil {
			return nil, cascadeSkipped, err
		}
		return nil, cascadeCapped, nil
	}
	existing, err := s.referralRepo.GetPayout(referral.ID, period)
	if err != nil {
		return nil, cascadeSkipped, err
	}
	if existing != nil {
		return nil, cascadeSkipped, nil
	}
	// 同一订阅月只发放一次，账期与订阅月可能错位
	existing, err = s.referralRepo.GetPayoutByMonthIndex(referral.ID, elapsed+1)
	if err != nil {
		return nil, cascadeSkipped, err
	}
	if existing != nil {
		return nil, cascadeSkipped, nil
	}

	item := &ReferralPaymentItem{
		ReferralID: referral.ID,
		ReferrerID: referral.ReferrerID,
		Period:     period,
		MonthIndex: elapsed + 1,
		Amount:     amount,
	}
	err = s.paymentRepo.Transaction(func(tx *gorm.DB) error {
		paymentRepo := s.paymentRepo.WithTx(tx)
		referralRepo := s.referralRepo.WithTx(tx)
		subscriptionID := subscription.ID
		approvedAt := now
		payment := &models.Payment{
			Amount:         amount,
			Currency:       s.opts.Currency,
			Type:           constants.PaymentTypeMonthlyReferral,
			Status:         constants.PaymentStatusApproved,
			PayeeType:      constants.PayeeTypeReferrer,
			PayeeID:        referral.ReferrerID,
			SourceType:     constants.SourceTypeReferral,
			SourceID:       referral.ID,
			SubscriptionID: &subscriptionID,
			Memo:           "referral credit " + period,
			ApprovedAt:     &approvedAt,
		}
		if err := paymentRepo.Create(payment); err != nil {
			return err
		}
		payment.IdempotencyKey = payout.IdempotencyKey(payment.ID)
		if err := paymentRepo.Update(payment); err != nil {
			return err
		}
		if err := referralRepo.CreatePayout(&models.ReferralPayout{
			ReferralID: referral.ID,
			Period:     period,
			MonthIndex: item.MonthIndex,
			Amount:     amount,
			PaymentID:  payment.ID,
		}); err != nil {
			return err
		}
		if referral.PayoutStatus != constants.ReferralPayoutStatusAccruing {
			if err := referralRepo.UpdatePayoutStatus(referral.ID, constants.ReferralPayoutStatusAccruing); err != nil {
				return err
			}
		}
		item.PaymentID = payment.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, cascadeSkipped, nil
		}
		return nil, cascadeSkipped, err
	}
	return item, cascadeCreated, nil
}

// cascadePeriod 返佣账期（UTC 自然月）
func cascadePeriod(now time.Time) string {
	return now.UTC().Format("2006-01")
}

// monthsBetween 计算两个时间之间的完整月数
func monthsBetween(start, now time.Time) int {
	start = start.UTC()
	now = now.UTC()
	months := (now.Year()-start.Year())*12 + int(now.Month()) - int(start.Month())
	if now.Day() < start.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
