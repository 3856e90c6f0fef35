package service

import (
	"errors"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/fee"
	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/payout"
	"github.com/settle-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReferralFeeSource 查询付款方当期推荐费
type ReferralFeeSource interface {
	ActiveReferralFee(customerID uint, now time.Time) (decimal.Decimal, error)
}

// ServiceCompletionInput 服务完成登记参数，Gross 为一个计费周期的收费
type ServiceCompletionInput struct {
	ServiceID      uint         `json:"service_id"`
	EmployeeID     uint         `json:"employee_id"`
	CustomerID     uint         `json:"customer_id"`
	SubscriptionID *uint        `json:"subscription_id"`
	Gross          models.Money `json:"gross"`
	Visits         int          `json:"visits"`
	AutoApprove    bool         `json:"auto_approve"`
	ActorID        uint         `json:"-"`
}

// ServiceCompletionResult 服务完成登记结果
type ServiceCompletionResult struct {
	Payment   *models.Payment `json:"payment"`
	Earning   *models.Earning `json:"earning"`
	Breakdown fee.Breakdown   `json:"breakdown"`
}

// EarningService 服务收入登记
type EarningService struct {
	paymentRepo repository.PaymentRepository
	earningRepo repository.EarningRepository
	referrals   ReferralFeeSource
	opts        SettlementOptions
}

// NewEarningService 创建收入服务
func NewEarningService(
	paymentRepo repository.PaymentRepository,
	earningRepo repository.EarningRepository,
	referrals ReferralFeeSource,
	opts SettlementOptions,
) *EarningService {
	return &EarningService{
		paymentRepo: paymentRepo,
		earningRepo: earningRepo,
		referrals:   referrals,
		opts:        opts.normalize(),
	}
}

// RecordServiceCompletion 拆分收费并登记付款与收入
func (s *EarningService) RecordServiceCompletion(input ServiceCompletionInput) (*ServiceCompletionResult, error) {
	if input.ServiceID == 0 || input.EmployeeID == 0 {
		return nil, payout.NewError(payout.KindValidation, "", "service and employee are required", nil)
	}
	if input.Gross.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	existing, err := s.earningRepo.GetByServiceID(input.ServiceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEarningDuplicate
	}

	now := time.Now()
	period := now.UTC().Format("2006-01")
	// 一次服务完成对应订阅的一个计费周期
	if input.SubscriptionID != nil && *input.SubscriptionID != 0 {
		recorded, err := s.earningRepo.GetBySubscriptionPeriod(*input.SubscriptionID, period)
		if err != nil {
			return nil, err
		}
		if recorded != nil {
			return nil, ErrEarningPeriodUsed
		}
	}
	referralFee := decimal.Zero
	if s.referrals != nil && input.CustomerID != 0 {
		referralFee, err = s.referrals.ActiveReferralFee(input.CustomerID, now)
		if err != nil {
			return nil, err
		}
	}
	visits := input.Visits
	if visits <= 0 {
		visits = s.opts.VisitsPerPeriod
	}
	breakdown, err := s.opts.Fee.Split(input.Gross.Decimal, referralFee, visits)
	if err != nil {
		return nil, err
	}

	status := constants.PaymentStatusPending
	var approvedAt *time.Time
	var approvedBy *uint
	if input.AutoApprove {
		status = constants.PaymentStatusApproved
		approvedAt = &now
		if input.ActorID != 0 {
			actor := input.ActorID
			approvedBy = &actor
		}
	}
	payment := &models.Payment{
		Amount:         models.NewMoneyFromDecimal(breakdown.PayeeShare),
		Currency:       s.opts.Currency,
		Type:           constants.PaymentTypeService,
		Status:         status,
		PayeeType:      constants.PayeeTypeEmployee,
		PayeeID:        input.EmployeeID,
		SourceType:     constants.SourceTypeService,
		SourceID:       input.ServiceID,
		SubscriptionID: input.SubscriptionID,
		ApprovedBy:     approvedBy,
		ApprovedAt:     approvedAt,
	}
	earning := &models.Earning{
		EmployeeID:     input.EmployeeID,
		ServiceID:      input.ServiceID,
		SubscriptionID: input.SubscriptionID,
		Period:         period,
		Amount:         models.NewMoneyFromDecimal(breakdown.PayeeShare),
		PerVisitAmount: models.NewMoneyFromDecimal(breakdown.PerVisitPayee),
		Visits:         breakdown.Visits,
		Status:         status,
		ApprovedBy:     approvedBy,
		ApprovedAt:     approvedAt,
	}
	err = s.paymentRepo.Transaction(func(tx *gorm.DB) error {
		paymentRepo := s.paymentRepo.WithTx(tx)
		if err := paymentRepo.Create(payment); err != nil {
			return err
		}
		payment.IdempotencyKey = payout.IdempotencyKey(payment.ID)
		if err := paymentRepo.Update(payment); err != nil {
			return err
		}
		earning.PaymentID = payment.ID
		return s.earningRepo.WithTx(tx).Create(earning)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEarningDuplicate
		}
		return nil, err
	}
	logger.Infow("service_completion_recorded",
		"service_id", input.ServiceID,
		"employee_id", input.EmployeeID,
		"payment_id", payment.ID,
		"gross", input.Gross.String(),
		"payee_share", payment.Amount.String(),
		"referral_fee", breakdown.ReferralFee.StringFixed(2),
	)
	return &ServiceCompletionResult{Payment: payment, Earning: earning, Breakdown: breakdown}, nil
}

// ApproveEarning 审核收入，付款同步进入可入批状态
func (s *EarningService) ApproveEarning(earningID, actorID uint) (*models.Earning, error) {
	earning, err := s.earningRepo.GetByID(earningID)
	if err != nil {
		return nil, err
	}
	if earning == nil {
		return nil, ErrEarningNotFound
	}
	if earning.Status != constants.PaymentStatusPending {
		return nil, ErrEarningNotPending
	}
	now := time.Now()
	err = s.paymentRepo.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"approved_at": now}
		if actorID != 0 {
			updates["approved_by"] = actorID
		}
		ok, err := s.paymentRepo.WithTx(tx).TransitionStatus(earning.PaymentID,
			[]string{constants.PaymentStatusPending}, constants.PaymentStatusApproved, updates)
		if err != nil {
			return err
		}
		if !ok {
			return ErrEarningNotPending
		}
		earningUpdates := map[string]interface{}{
			"status":      constants.PaymentStatusApproved,
			"approved_at": now,
		}
		if actorID != 0 {
			earningUpdates["approved_by"] = actorID
		}
		return s.earningRepo.WithTx(tx).UpdateByPaymentID(earning.PaymentID, earningUpdates)
	})
	if err != nil {
		return nil, err
	}
	return s.earningRepo.GetByID(earningID)
}

// ListEmployeeEarnings 分页查询员工收入
func (s *EarningService) ListEmployeeEarnings(employeeID uint, page, pageSize int) ([]models.Earning, int64, error) {
	return s.earningRepo.ListByEmployee(employeeID, page, pageSize)
}
