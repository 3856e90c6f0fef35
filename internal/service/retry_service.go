package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/metrics"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/payout"
	"github.com/settle-next/internal/repository"

	"gorm.io/gorm"
)

// RetryRunResult 一轮重试的汇总
type RetryRunResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

type retryOutcome string

const (
	retryOutcomeSucceeded retryOutcome = "succeeded"
	retryOutcomeFailed    retryOutcome = "failed"
	retryOutcomeSkipped   retryOutcome = "skipped"
)

// RetryService 失败付款的定时重试
type RetryService struct {
	paymentRepo repository.PaymentRepository
	retryRepo   repository.RetryRepository
	ledger      paymentLedger
	executor    *PayoutExecutor
	notifier    OperatorNotifier
	opts        SettlementOptions
}

// NewRetryService 创建重试服务
func NewRetryService(
	paymentRepo repository.PaymentRepository,
	retryRepo repository.RetryRepository,
	earningRepo repository.EarningRepository,
	subscriptionRepo repository.SubscriptionRepository,
	executor *PayoutExecutor,
	notifier OperatorNotifier,
	opts SettlementOptions,
) *RetryService {
	return &RetryService{
		paymentRepo: paymentRepo,
		retryRepo:   retryRepo,
		ledger: paymentLedger{
			paymentRepo:      paymentRepo,
			earningRepo:      earningRepo,
			subscriptionRepo: subscriptionRepo,
		},
		executor: executor,
		notifier: notifier,
		opts:     opts.normalize(),
	}
}

// Schedule 为失败付款登记下一次重试；已有未完成重试或达到上限时不登记
func (s *RetryService) Schedule(tx *gorm.DB, paymentID uint, cause error, now time.Time) (bool, error) {
	repo := s.retryRepo.WithTx(tx)
	open, err := repo.CountOpenByPayment(paymentID)
	if err != nil {
		return false, err
	}
	if open > 0 {
		return false, nil
	}
	latest, err := repo.LatestByPayment(paymentID)
	if err != nil {
		return false, err
	}
	next := 1
	if latest != nil {
		next = latest.RetryCount + 1
	}
	if next > s.opts.MaxRetries {
		return false, nil
	}
	code, message := failureFields(cause)
	retry := &models.PaymentRetry{
		PaymentID:     paymentID,
		RetryCount:    next,
		Status:        constants.RetryStatusScheduled,
		NextRetryDate: now.Add(s.opts.RetryCooldown),
		ErrorCode:     code,
		ErrorMessage:  message,
	}
	if err := repo.Create(retry); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	logger.Infow("payment_retry_scheduled",
		"payment_id", paymentID,
		"retry_count", next,
		"next_retry_date", retry.NextRetryDate,
	)
	return true, nil
}

// ListByPayment 查询付款的重试链
func (s *RetryService) ListByPayment(paymentID uint) ([]models.PaymentRetry, error) {
	return s.retryRepo.ListByPayment(paymentID)
}

// ProcessDueRetries 执行所有到期的重试，单条失败不影响其余
func (s *RetryService) ProcessDueRetries(ctx context.Context, now time.Time) (*RetryRunResult, error) {
	due, err := s.retryRepo.ListDue(now, s.opts.RetryBatchLimit)
	if err != nil {
		return nil, err
	}
	result := &RetryRunResult{Total: len(due)}
	for i := range due {
		if err := ctx.Err(); err != nil {
			result.Skipped += len(due) - i
			break
		}
		outcome := s.processIsolated(ctx, &due[i], now)
		metrics.PaymentRetriesTotal.WithLabelValues(string(outcome)).Inc()
		switch outcome {
		case retryOutcomeSucceeded:
			result.Succeeded++
		case retryOutcomeFailed:
			result.Failed++
		default:
			result.Skipped++
		}
	}
	logger.Infow("payment_retry_run_finished",
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result, nil
}

func (s *RetryService) processIsolated(ctx context.Context, retry *models.PaymentRetry, now time.Time) (outcome retryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("payment_retry_panic", "retry_id", retry.ID, "payment_id", retry.PaymentID, "panic", r)
			outcome = retryOutcomeFailed
		}
	}()
	outcome, err := s.processOne(ctx, retry, now)
	if err != nil {
		logger.Warnw("payment_retry_process_failed",
			"retry_id", retry.ID,
			"payment_id", retry.PaymentID,
			"error", err,
		)
	}
	return outcome
}

func (s *RetryService) processOne(ctx context.Context, retry *models.PaymentRetry, now time.Time) (retryOutcome, error) {
	claimed, err := s.retryRepo.TransitionStatus(retry.ID,
		[]string{constants.RetryStatusScheduled}, constants.RetryStatusPending, nil)
	if err != nil {
		return retryOutcomeFailed, err
	}
	if !claimed {
		return retryOutcomeSkipped, nil
	}

	payment, err := s.paymentRepo.GetByID(retry.PaymentID)
	if err != nil {
		s.releaseClaim(retry.ID)
		return retryOutcomeFailed, err
	}
	if payment == nil {
		return retryOutcomeSkipped, s.closeRetry(retry.ID, constants.RetryStatusFailed, "", "payment not found", now)
	}
	switch payment.Status {
	case constants.PaymentStatusPaid:
		err := s.paymentRepo.Transaction(func(tx *gorm.DB) error {
			if err := s.closeRetryTx(tx, retry.ID, constants.RetryStatusSuccess, payment.RailTransactionID, "", now); err != nil {
				return err
			}
			return s.ledger.setSubscriptionStatus(tx, payment, constants.SubscriptionStatusActive, now)
		})
		if err != nil {
			return retryOutcomeFailed, err
		}
		return retryOutcomeSucceeded, nil
	case constants.PaymentStatusFailed:
	default:
		message := fmt.Sprintf("payment status %s is not retryable", payment.Status)
		return retryOutcomeSkipped, s.closeRetry(retry.ID, constants.RetryStatusFailed, "", message, now)
	}

	claimed, err = s.paymentRepo.TransitionStatus(payment.ID,
		[]string{constants.PaymentStatusFailed}, constants.PaymentStatusProcessing, nil)
	if err != nil {
		s.releaseClaim(retry.ID)
		return retryOutcomeFailed, err
	}
	if !claimed {
		s.releaseClaim(retry.ID)
		return retryOutcomeSkipped, nil
	}

	outcome, execErr := s.executor.Execute(ctx, payment, payment.Rail)
	rail := payment.Rail
	if outcome != nil {
		rail = outcome.Rail
	}
	if execErr == nil {
		result, err := s.recordSuccess(retry, payment, outcome, now)
		if err != nil {
			reportUnrecordedTransfer(ctx, s.notifier, payment, outcome, err)
			s.markRetryUnrecorded(retry.ID, outcome, now)
		}
		return result, err
	}
	return s.recordFailure(ctx, retry, payment, rail, execErr, now)
}

func (s *RetryService) recordSuccess(retry *models.PaymentRetry, payment *models.Payment, outcome *TransferOutcome, now time.Time) (retryOutcome, error) {
	processing := []string{constants.PaymentStatusProcessing}
	pendingManual := outcome.Status == payout.StatusPendingManual
	message := ""
	if pendingManual {
		message = "awaiting manual confirmation"
	}
	err := s.paymentRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.closeRetryTx(tx, retry.ID, constants.RetryStatusSuccess, outcome.ExternalID, message, now); err != nil {
			return err
		}
		var ok bool
		var err error
		if pendingManual {
			ok, err = s.ledger.markPendingManual(tx, payment, outcome, processing, now)
		} else {
			ok, err = s.ledger.markPaid(tx, payment, outcome, processing, now)
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("payment %d left processing during retry", payment.ID)
		}
		// 人工通道在确认到账时才恢复订阅
		if pendingManual {
			return nil
		}
		return s.ledger.setSubscriptionStatus(tx, payment, constants.SubscriptionStatusActive, now)
	})
	if err != nil {
		return retryOutcomeFailed, err
	}
	logger.Infow("payment_retry_succeeded",
		"retry_id", retry.ID,
		"payment_id", payment.ID,
		"retry_count", retry.RetryCount,
		"rail", outcome.Rail,
		"replayed", outcome.Replayed,
	)
	return retryOutcomeSucceeded, nil
}

func (s *RetryService) recordFailure(ctx context.Context, retry *models.PaymentRetry, payment *models.Payment, rail string, cause error, now time.Time) (retryOutcome, error) {
	code, message := failureFields(cause)
	var rescheduled bool
	err := s.paymentRepo.Transaction(func(tx *gorm.DB) error {
		if _, err := s.retryRepo.WithTx(tx).TransitionStatus(retry.ID,
			[]string{constants.RetryStatusPending}, constants.RetryStatusFailed,
			map[string]interface{}{
				"error_code":    code,
				"error_message": message,
				"processed_at":  now,
			}); err != nil {
			return err
		}
		if _, err := s.ledger.markFailed(tx, payment, rail, cause,
			[]string{constants.PaymentStatusProcessing}); err != nil {
			return err
		}
		if payout.IsRetryable(cause) {
			scheduled, err := s.Schedule(tx, payment.ID, cause, now)
			if err != nil {
				return err
			}
			rescheduled = scheduled
		}
		if rescheduled {
			return nil
		}
		return s.ledger.setSubscriptionStatus(tx, payment, constants.SubscriptionStatusPastDue, now)
	})
	if err != nil {
		return retryOutcomeFailed, err
	}
	logger.Warnw("payment_retry_failed",
		"retry_id", retry.ID,
		"payment_id", payment.ID,
		"retry_count", retry.RetryCount,
		"error_code", code,
		"rescheduled", rescheduled,
	)
	if !rescheduled && s.notifier != nil {
		alertErr := s.notifier.NotifyOperator(ctx, OperatorAlert{
			Event:   constants.NotifyEventRetryExhausted,
			BizType: constants.NotifyBizPayment,
			BizID:   payment.ID,
			Data: models.JSON{
				"payment_id":    payment.ID,
				"retry_count":   retry.RetryCount,
				"error_code":    code,
				"error_message": message,
			},
		})
		if alertErr != nil {
			logger.Warnw("payment_retry_alert_failed", "payment_id", payment.ID, "error", alertErr)
		}
	}
	return retryOutcomeFailed, nil
}

// markRetryUnrecorded 记账失败时将外部流水号写回重试记录，保持 pending 不再被领取
func (s *RetryService) markRetryUnrecorded(retryID uint, outcome *TransferOutcome, now time.Time) {
	updates := map[string]interface{}{
		"error_code":    "record_failed",
		"error_message": "transfer sent but ledger update failed",
		"processed_at":  now,
	}
	if outcome != nil && outcome.ExternalID != "" {
		updates["rail_transaction_id"] = outcome.ExternalID
	}
	if _, err := s.retryRepo.TransitionStatus(retryID,
		[]string{constants.RetryStatusPending}, constants.RetryStatusPending, updates); err != nil {
		logger.Warnw("payment_retry_unrecorded_mark_failed", "retry_id", retryID, "error", err)
	}
}

// releaseClaim 将未执行的重试放回待处理
func (s *RetryService) releaseClaim(retryID uint) {
	if _, err := s.retryRepo.TransitionStatus(retryID,
		[]string{constants.RetryStatusPending}, constants.RetryStatusScheduled, nil); err != nil {
		logger.Warnw("payment_retry_release_failed", "retry_id", retryID, "error", err)
	}
}

func (s *RetryService) closeRetry(retryID uint, status, railTransactionID, message string, now time.Time) error {
	return s.closeRetryTx(nil, retryID, status, railTransactionID, message, now)
}

func (s *RetryService) closeRetryTx(tx *gorm.DB, retryID uint, status, railTransactionID, message string, now time.Time) error {
	updates := map[string]interface{}{"processed_at": now}
	if railTransactionID != "" {
		updates["rail_transaction_id"] = railTransactionID
	}
	if message != "" {
		updates["error_message"] = message
	}
	_, err := s.retryRepo.WithTx(tx).TransitionStatus(retryID, []string{constants.RetryStatusPending}, status, updates)
	return err
}
