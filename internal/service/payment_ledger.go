package service

import (
	"context"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/repository"

	"gorm.io/gorm"
)

// paymentLedger 付款状态流转及收入镜像同步，所有方法须在短事务内调用
type paymentLedger struct {
	paymentRepo      repository.PaymentRepository
	earningRepo      repository.EarningRepository
	subscriptionRepo repository.SubscriptionRepository
}

func (l paymentLedger) markPaid(tx *gorm.DB, payment *models.Payment, outcome *TransferOutcome, from []string, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"paid_at":       now,
		"error_code":    "",
		"error_message": "",
	}
	if outcome != nil {
		updates["rail"] = outcome.Rail
		if outcome.ExternalID != "" {
			updates["rail_transaction_id"] = outcome.ExternalID
		}
	}
	ok, err := l.paymentRepo.WithTx(tx).TransitionStatus(payment.ID, from, constants.PaymentStatusPaid, updates)
	if err != nil || !ok {
		return ok, err
	}
	earningUpdates := map[string]interface{}{
		"status":  constants.PaymentStatusPaid,
		"paid_at": now,
	}
	if outcome != nil {
		earningUpdates["paid_via"] = outcome.Rail
		if outcome.ExternalID != "" && outcome.Rail == constants.RailStripe {
			earningUpdates["stripe_transfer_id"] = outcome.ExternalID
		}
	}
	if err := l.earningRepo.WithTx(tx).UpdateByPaymentID(payment.ID, earningUpdates); err != nil {
		return false, err
	}
	return true, nil
}

func (l paymentLedger) markPendingManual(tx *gorm.DB, payment *models.Payment, outcome *TransferOutcome, from []string, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"error_code":    "",
		"error_message": "",
	}
	if outcome != nil {
		updates["rail"] = outcome.Rail
		updates["rail_transaction_id"] = outcome.ExternalID
	}
	ok, err := l.paymentRepo.WithTx(tx).TransitionStatus(payment.ID, from, constants.PaymentStatusPendingManual, updates)
	if err != nil || !ok {
		return ok, err
	}
	earningUpdates := map[string]interface{}{"status": constants.PaymentStatusPendingManual}
	if outcome != nil {
		earningUpdates["paid_via"] = outcome.Rail
	}
	if err := l.earningRepo.WithTx(tx).UpdateByPaymentID(payment.ID, earningUpdates); err != nil {
		return false, err
	}
	return true, nil
}

func (l paymentLedger) markFailed(tx *gorm.DB, payment *models.Payment, rail string, cause error, from []string) (bool, error) {
	code, message := failureFields(cause)
	updates := map[string]interface{}{
		"error_code":    code,
		"error_message": message,
	}
	if rail != "" {
		updates["rail"] = rail
	}
	ok, err := l.paymentRepo.WithTx(tx).TransitionStatus(payment.ID, from, constants.PaymentStatusFailed, updates)
	if err != nil || !ok {
		return ok, err
	}
	if err := l.earningRepo.WithTx(tx).UpdateByPaymentID(payment.ID, map[string]interface{}{
		"status": constants.PaymentStatusFailed,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// setSubscriptionStatus 更新付款所属订阅状态，已取消的订阅保持不变
func (l paymentLedger) setSubscriptionStatus(tx *gorm.DB, payment *models.Payment, status string, now time.Time) error {
	if payment.SubscriptionID == nil || *payment.SubscriptionID == 0 {
		return nil
	}
	repo := l.subscriptionRepo.WithTx(tx)
	subscription, err := repo.GetByID(*payment.SubscriptionID)
	if err != nil {
		return err
	}
	if subscription == nil || subscription.Status == status || subscription.Status == constants.SubscriptionStatusCancelled {
		return nil
	}
	return repo.UpdateStatus(subscription.ID, status, now)
}

// reportUnrecordedTransfer 转账已完成但本地记账失败，通知运营按外部流水号对账
func reportUnrecordedTransfer(ctx context.Context, notifier OperatorNotifier, payment *models.Payment, outcome *TransferOutcome, cause error) {
	rail, externalID, status := "", "", ""
	if outcome != nil {
		rail, externalID, status = outcome.Rail, outcome.ExternalID, string(outcome.Status)
	}
	logger.Errorw("payout_record_failed",
		"payment_id", payment.ID,
		"rail", rail,
		"rail_transaction_id", externalID,
		"transfer_status", status,
		"error", cause,
	)
	if notifier == nil {
		return
	}
	message := "ledger write affected no rows"
	if cause != nil {
		message = cause.Error()
	}
	err := notifier.NotifyOperator(ctx, OperatorAlert{
		Event:   constants.NotifyEventPayoutUnrecorded,
		BizType: constants.NotifyBizPayment,
		BizID:   payment.ID,
		Data: models.JSON{
			"payment_id":          payment.ID,
			"amount":              payment.Amount.String(),
			"payee_type":          payment.PayeeType,
			"payee_id":            payment.PayeeID,
			"rail":                rail,
			"rail_transaction_id": externalID,
			"transfer_status":     status,
			"error_message":       message,
		},
	})
	if err != nil {
		logger.Errorw("payout_unrecorded_alert_failed",
			"payment_id", payment.ID,
			"rail_transaction_id", externalID,
			"error", err,
		)
	}
}
