package service

import (
	"strings"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/repository"

	"gorm.io/gorm"
)

// PaymentService 付款查询与人工确认
type PaymentService struct {
	paymentRepo repository.PaymentRepository
	earningRepo repository.EarningRepository
	ledger      paymentLedger
}

// NewPaymentService 创建付款服务
func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	earningRepo repository.EarningRepository,
	subscriptionRepo repository.SubscriptionRepository,
) *PaymentService {
	return &PaymentService{
		paymentRepo: paymentRepo,
		earningRepo: earningRepo,
		ledger: paymentLedger{
			paymentRepo:      paymentRepo,
			earningRepo:      earningRepo,
			subscriptionRepo: subscriptionRepo,
		},
	}
}

// GetPayment 获取付款
func (s *PaymentService) GetPayment(id uint) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// GetPaymentEarning 获取付款对应的员工收入记录，推荐付款返回 nil
func (s *PaymentService) GetPaymentEarning(payment *models.Payment) (*models.Earning, error) {
	if payment == nil || payment.PayeeType != constants.PayeeTypeEmployee {
		return nil, nil
	}
	return s.earningRepo.GetByPaymentID(payment.ID)
}

// ListPayments 分页查询付款
func (s *PaymentService) ListPayments(filter repository.PaymentListFilter) ([]models.Payment, int64, error) {
	return s.paymentRepo.List(filter)
}

// ConfirmManualPayment 操作员核实线下转账后将付款置为已到账
func (s *PaymentService) ConfirmManualPayment(paymentID, actorID uint, reference string) (*models.Payment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrPaymentReferenceMissing
	}
	payment, err := s.paymentRepo.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if payment.Status != constants.PaymentStatusPendingManual {
		return nil, ErrPaymentNotPendingManual
	}
	now := time.Now()
	err = s.paymentRepo.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"paid_at":   now,
			"reference": reference,
		}
		ok, err := s.paymentRepo.WithTx(tx).TransitionStatus(payment.ID,
			[]string{constants.PaymentStatusPendingManual}, constants.PaymentStatusPaid, updates)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPaymentNotPendingManual
		}
		earningUpdates := map[string]interface{}{
			"status":    constants.PaymentStatusPaid,
			"paid_at":   now,
			"paid_via":  constants.RailManual,
			"reference": reference,
		}
		if err := s.ledger.earningRepo.WithTx(tx).UpdateByPaymentID(payment.ID, earningUpdates); err != nil {
			return err
		}
		return s.ledger.setSubscriptionStatus(tx, payment, constants.SubscriptionStatusActive, now)
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("manual_payment_confirmed",
		"payment_id", payment.ID,
		"actor_id", actorID,
		"reference", reference,
	)
	return s.paymentRepo.GetByID(payment.ID)
}
