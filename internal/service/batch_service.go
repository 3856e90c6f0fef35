package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/metrics"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/payout"
	"github.com/settle-next/internal/queue"
	"github.com/settle-next/internal/repository"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const batchNoAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RetryScheduler 为失败付款登记重试
type RetryScheduler interface {
	Schedule(tx *gorm.DB, paymentID uint, cause error, now time.Time) (bool, error)
}

// CreateBatchInput 创建批次参数
type CreateBatchInput struct {
	Type          string     `json:"type"`
	Rail          string     `json:"rail"`
	ScheduledDate *time.Time `json:"scheduled_date"`
	Notes         string     `json:"notes"`
	PaymentIDs    []uint     `json:"payment_ids"`
	CreatedBy     uint       `json:"-"`
}

// PaymentResult 批次内单笔付款的处理结果
type PaymentResult struct {
	PaymentID         uint         `json:"payment_id"`
	Amount            models.Money `json:"amount"`
	Status            string       `json:"status"`
	Rail              string       `json:"rail,omitempty"`
	RailTransactionID string       `json:"rail_transaction_id,omitempty"`
	AlreadySettled    bool         `json:"already_settled"`
	ErrorCode         string       `json:"error_code,omitempty"`
	ErrorMessage      string       `json:"error_message,omitempty"`
	Retryable         bool         `json:"retryable"`
	RetryScheduled    bool         `json:"retry_scheduled"`
	Unrecorded        bool         `json:"unrecorded"`
}

func (r PaymentResult) succeeded() bool {
	return r.Status == constants.PaymentStatusPaid || r.Status == constants.PaymentStatusPendingManual
}

// BatchSummary 批次处理汇总
type BatchSummary struct {
	BatchID             uint            `json:"batch_id"`
	Status              string          `json:"status"`
	TotalPayments       int             `json:"totalPayments"`
	SuccessCount        int             `json:"successCount"`
	FailedCount         int             `json:"failedCount"`
	PendingManualCount  int             `json:"pendingManualCount"`
	AlreadySettledCount int             `json:"alreadySettledCount"`
	UnrecordedCount     int             `json:"unrecordedCount"`
	TotalAmount         models.Money    `json:"totalAmount"`
	Results             []PaymentResult `json:"results"`
}

// BatchService 付款批次编排
type BatchService struct {
	batchRepo   repository.BatchRepository
	paymentRepo repository.PaymentRepository
	earningRepo repository.EarningRepository
	retryRepo   repository.RetryRepository
	ledger      paymentLedger
	executor    *PayoutExecutor
	retries     RetryScheduler
	notifier    OperatorNotifier
	queueClient *queue.Client
	opts        SettlementOptions
}

// NewBatchService 创建批次服务
func NewBatchService(
	batchRepo repository.BatchRepository,
	paymentRepo repository.PaymentRepository,
	earningRepo repository.EarningRepository,
	retryRepo repository.RetryRepository,
	subscriptionRepo repository.SubscriptionRepository,
	executor *PayoutExecutor,
	retries RetryScheduler,
	notifier OperatorNotifier,
	queueClient *queue.Client,
	opts SettlementOptions,
) *BatchService {
	return &BatchService{
		batchRepo:   batchRepo,
		paymentRepo: paymentRepo,
		earningRepo: earningRepo,
		retryRepo:   retryRepo,
		ledger: paymentLedger{
			paymentRepo:      paymentRepo,
			earningRepo:      earningRepo,
			subscriptionRepo: subscriptionRepo,
		},
		executor:    executor,
		retries:     retries,
		notifier:    notifier,
		queueClient: queueClient,
		opts:        opts.normalize(),
	}
}

// CreateBatch 创建草稿批次，可同时加入付款
func (s *BatchService) CreateBatch(input CreateBatchInput) (*models.PaymentBatch, error) {
	batchType := strings.ToLower(strings.TrimSpace(input.Type))
	if batchType == "" {
		batchType = constants.BatchTypeMixed
	}
	switch batchType {
	case constants.BatchTypeService, constants.BatchTypeReferral, constants.BatchTypeMixed:
	default:
		return nil, ErrBatchTypeInvalid
	}
	rail := strings.ToLower(strings.TrimSpace(input.Rail))
	if rail == "" {
		rail = s.opts.DefaultRail
	}
	if !s.executor.ValidSelector(rail) {
		return nil, ErrRailInvalid
	}

	var batch *models.PaymentBatch
	for attempt := 0; attempt < 3; attempt++ {
		batchNo, err := generateBatchNo(time.Now())
		if err != nil {
			return nil, err
		}
		batch = &models.PaymentBatch{
			BatchNo:       batchNo,
			Type:          batchType,
			Status:        constants.BatchStatusDraft,
			Rail:          rail,
			ScheduledDate: input.ScheduledDate,
			Notes:         strings.TrimSpace(input.Notes),
			TotalAmount:   models.NewMoneyFromDecimal(decimal.Zero),
			CreatedBy:     input.CreatedBy,
		}
		err = s.batchRepo.Create(batch)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt == 2 {
			return nil, err
		}
	}
	logger.Infow("batch_created",
		"batch_id", batch.ID,
		"batch_no", batch.BatchNo,
		"type", batch.Type,
		"created_by", input.CreatedBy,
	)
	if len(input.PaymentIDs) > 0 {
		return s.AddPayments(batch.ID, input.PaymentIDs)
	}
	return batch, nil
}

// AddPayments 向草稿批次加入已审核且未入批的付款
func (s *BatchService) AddPayments(batchID uint, paymentIDs []uint) (*models.PaymentBatch, error) {
	ids := uniqueIDs(paymentIDs)
	if len(ids) == 0 {
		return nil, ErrPaymentNotEligible
	}
	err := s.batchRepo.Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadDraft(tx, batchID); err != nil {
			return err
		}
		paymentRepo := s.paymentRepo.WithTx(tx)
		payments, err := paymentRepo.GetByIDs(ids)
		if err != nil {
			return err
		}
		if len(payments) != len(ids) {
			return ErrPaymentNotFound
		}
		for _, payment := range payments {
			if payment.Status != constants.PaymentStatusApproved || payment.BatchID != nil {
				return fmt.Errorf("%w: payment %d", ErrPaymentNotEligible, payment.ID)
			}
		}
		affected, err := paymentRepo.AttachToBatch(batchID, ids)
		if err != nil {
			return err
		}
		if affected != int64(len(ids)) {
			return ErrPaymentNotEligible
		}
		return s.refreshTotals(tx, batchID)
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("batch_payments_added", "batch_id", batchID, "count", len(ids))
	return s.GetBatch(batchID)
}

// RemovePayments 从草稿批次移除付款
func (s *BatchService) RemovePayments(batchID uint, paymentIDs []uint) (*models.PaymentBatch, error) {
	ids := uniqueIDs(paymentIDs)
	if len(ids) == 0 {
		return nil, ErrPaymentNotInBatch
	}
	err := s.batchRepo.Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadDraft(tx, batchID); err != nil {
			return err
		}
		affected, err := s.paymentRepo.WithTx(tx).DetachFromBatch(batchID, ids)
		if err != nil {
			return err
		}
		if affected != int64(len(ids)) {
			return ErrPaymentNotInBatch
		}
		return s.refreshTotals(tx, batchID)
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("batch_payments_removed", "batch_id", batchID, "count", len(ids))
	return s.GetBatch(batchID)
}

// GetBatch 获取批次及其付款
func (s *BatchService) GetBatch(batchID uint) (*models.PaymentBatch, error) {
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, ErrBatchNotFound
	}
	payments, err := s.paymentRepo.ListByBatch(batchID)
	if err != nil {
		return nil, err
	}
	batch.Payments = payments
	return batch, nil
}

// ListBatches 分页查询批次
func (s *BatchService) ListBatches(filter repository.BatchListFilter) ([]models.PaymentBatch, int64, error) {
	return s.batchRepo.List(filter)
}

// EnqueueProcess 校验后将批次处理推入异步队列
func (s *BatchService) EnqueueProcess(batchID uint, selector string, actorID uint) error {
	if !s.executor.ValidSelector(selector) {
		return ErrRailInvalid
	}
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return err
	}
	if batch == nil {
		return ErrBatchNotFound
	}
	if !isProcessableBatchStatus(batch.Status) {
		return ErrBatchNotProcessable
	}
	return s.queueClient.EnqueueBatchProcess(queue.BatchProcessPayload{
		BatchID: batchID,
		Rail:    selector,
		ActorID: actorID,
	}, 0)
}

// ProcessBatch 处理批次：草稿或失败批次进入处理中，逐笔转账后按结果汇总状态
func (s *BatchService) ProcessBatch(ctx context.Context, batchID uint, selector string) (*BatchSummary, error) {
	selector = strings.ToLower(strings.TrimSpace(selector))
	if !s.executor.ValidSelector(selector) {
		return nil, ErrRailInvalid
	}
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, ErrBatchNotFound
	}
	if !isProcessableBatchStatus(batch.Status) {
		return nil, ErrBatchNotProcessable
	}
	if selector == "" {
		selector = batch.Rail
	}
	members, err := s.paymentRepo.ListByBatch(batchID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrBatchEmpty
	}

	startedAt := time.Now()
	claimed, err := s.batchRepo.TransitionStatus(batchID,
		[]string{constants.BatchStatusDraft, constants.BatchStatusFailed},
		constants.BatchStatusProcessing,
		map[string]interface{}{
			"processing_started_at": startedAt,
			"completed_at":          nil,
			"rail":                  selector,
		})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrBatchNotProcessable
	}
	logger.Infow("batch_process_started",
		"batch_id", batchID,
		"batch_no", batch.BatchNo,
		"rail", selector,
		"payments", len(members),
		"resubmitted", batch.Status == constants.BatchStatusFailed,
	)

	results := make([]PaymentResult, len(members))
	var group errgroup.Group
	group.SetLimit(s.opts.BatchConcurrency)
	for i := range members {
		payment := members[i]
		group.Go(func() error {
			results[i] = s.settleIsolated(ctx, &payment, selector)
			return nil
		})
	}
	_ = group.Wait()

	summary := summarize(batchID, results)
	completedAt := time.Now()
	finalized, err := s.batchRepo.TransitionStatus(batchID,
		[]string{constants.BatchStatusProcessing},
		summary.Status,
		map[string]interface{}{
			"completed_at":   completedAt,
			"total_payments": summary.TotalPayments,
			"success_count":  summary.SuccessCount,
			"failed_count":   summary.FailedCount,
			"total_amount":   summary.TotalAmount,
		})
	if err != nil {
		return nil, err
	}
	if !finalized {
		return nil, fmt.Errorf("batch %d left processing before finalization", batchID)
	}
	metrics.BatchesProcessedTotal.WithLabelValues(summary.Status).Inc()
	logger.Infow("batch_process_finished",
		"batch_id", batchID,
		"status", summary.Status,
		"total", summary.TotalPayments,
		"success", summary.SuccessCount,
		"failed", summary.FailedCount,
		"pending_manual", summary.PendingManualCount,
		"already_settled", summary.AlreadySettledCount,
		"unrecorded", summary.UnrecordedCount,
		"elapsed_ms", completedAt.Sub(startedAt).Milliseconds(),
	)
	if summary.FailedCount > 0 {
		s.alert(ctx, OperatorAlert{
			Event:   constants.NotifyEventBatchFinished,
			BizType: constants.NotifyBizBatch,
			BizID:   batchID,
			Data: models.JSON{
				"batch_no":      batch.BatchNo,
				"status":        summary.Status,
				"success_count": summary.SuccessCount,
				"failed_count":  summary.FailedCount,
			},
		})
	}
	return summary, nil
}

// DeleteBatch 删除草稿或失败批次；release 为真时仅解除付款归属
func (s *BatchService) DeleteBatch(batchID uint, release bool) error {
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return err
	}
	if batch == nil {
		return ErrBatchNotFound
	}
	if batch.Status != constants.BatchStatusDraft && batch.Status != constants.BatchStatusFailed {
		return ErrBatchNotDeletable
	}
	err = s.batchRepo.Transaction(func(tx *gorm.DB) error {
		batchRepo := s.batchRepo.WithTx(tx)
		paymentRepo := s.paymentRepo.WithTx(tx)
		ok, err := batchRepo.TransitionStatus(batchID, []string{batch.Status}, batch.Status, nil)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBatchNotDeletable
		}
		members, err := paymentRepo.ListByBatch(batchID)
		if err != nil {
			return err
		}
		removable := make([]uint, 0, len(members))
		for _, member := range members {
			if member.Status == constants.PaymentStatusApproved || member.Status == constants.PaymentStatusFailed {
				removable = append(removable, member.ID)
			}
		}
		if _, err := s.retryRepo.WithTx(tx).CancelOpenByPayments(removable, "batch deleted"); err != nil {
			return err
		}
		if release {
			if _, err := paymentRepo.ReleaseBatch(batchID); err != nil {
				return err
			}
		} else {
			if _, err := paymentRepo.DeleteByBatch(batchID); err != nil {
				return err
			}
			if _, err := s.earningRepo.WithTx(tx).DeleteByPaymentIDs(removable); err != nil {
				return err
			}
			if _, err := paymentRepo.ReleaseBatch(batchID); err != nil {
				return err
			}
		}
		return batchRepo.Delete(batchID)
	})
	if err != nil {
		return err
	}
	logger.Infow("batch_deleted", "batch_id", batchID, "release_payments", release)
	return nil
}

func (s *BatchService) settleIsolated(ctx context.Context, payment *models.Payment, selector string) (result PaymentResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("batch_payment_panic", "payment_id", payment.ID, "panic", r)
			cause := payout.NewError(payout.KindRailUnavailable, "panic", fmt.Sprint(r), nil)
			if _, err := s.ledger.markFailed(nil, payment, "", cause, []string{constants.PaymentStatusProcessing}); err != nil {
				logger.Errorw("batch_payment_panic_record_failed", "payment_id", payment.ID, "error", err)
			}
			result = failedResult(payment, "", cause)
		}
	}()
	return s.settleOne(ctx, payment, selector)
}

func (s *BatchService) settleOne(ctx context.Context, payment *models.Payment, selector string) PaymentResult {
	switch payment.Status {
	case constants.PaymentStatusPaid:
		return PaymentResult{
			PaymentID:         payment.ID,
			Amount:            payment.Amount,
			Status:            constants.PaymentStatusPaid,
			Rail:              payment.Rail,
			RailTransactionID: payment.RailTransactionID,
			AlreadySettled:    true,
		}
	case constants.PaymentStatusPendingManual:
		return PaymentResult{
			PaymentID:         payment.ID,
			Amount:            payment.Amount,
			Status:            constants.PaymentStatusPendingManual,
			Rail:              payment.Rail,
			RailTransactionID: payment.RailTransactionID,
		}
	}

	claimable := []string{constants.PaymentStatusApproved, constants.PaymentStatusFailed}
	claimed, err := s.paymentRepo.TransitionStatus(payment.ID, claimable, constants.PaymentStatusProcessing, nil)
	if err != nil {
		return failedResult(payment, "", payout.NewError(payout.KindRailUnavailable, "claim_failed", "claim payment failed", err))
	}
	if !claimed {
		message := fmt.Sprintf("payment status %s is not processable", payment.Status)
		return failedResult(payment, "", payout.NewError(payout.KindValidation, "not_processable", message, nil))
	}

	outcome, execErr := s.executor.Execute(ctx, payment, selector)
	now := time.Now()
	processing := []string{constants.PaymentStatusProcessing}
	if execErr == nil {
		var ok bool
		err := s.batchRepo.Transaction(func(tx *gorm.DB) error {
			var err error
			if outcome.Status == payout.StatusPendingManual {
				ok, err = s.ledger.markPendingManual(tx, payment, outcome, processing, now)
			} else {
				ok, err = s.ledger.markPaid(tx, payment, outcome, processing, now)
			}
			return err
		})
		if err != nil || !ok {
			reportUnrecordedTransfer(ctx, s.notifier, payment, outcome, err)
			return PaymentResult{
				PaymentID:         payment.ID,
				Amount:            payment.Amount,
				Status:            constants.PaymentStatusProcessing,
				Rail:              outcome.Rail,
				RailTransactionID: outcome.ExternalID,
				ErrorCode:         "record_failed",
				ErrorMessage:      "transfer sent but ledger update failed",
				Unrecorded:        true,
			}
		}
		status := constants.PaymentStatusPaid
		if outcome.Status == payout.StatusPendingManual {
			status = constants.PaymentStatusPendingManual
		}
		return PaymentResult{
			PaymentID:         payment.ID,
			Amount:            payment.Amount,
			Status:            status,
			Rail:              outcome.Rail,
			RailTransactionID: outcome.ExternalID,
			AlreadySettled:    outcome.Replayed,
		}
	}

	rail := ""
	if outcome != nil {
		rail = outcome.Rail
	}
	result := failedResult(payment, rail, execErr)
	err = s.batchRepo.Transaction(func(tx *gorm.DB) error {
		if _, err := s.ledger.markFailed(tx, payment, rail, execErr, processing); err != nil {
			return err
		}
		if result.Retryable && s.retries != nil {
			scheduled, err := s.retries.Schedule(tx, payment.ID, execErr, now)
			if err != nil {
				return err
			}
			result.RetryScheduled = scheduled
		}
		return nil
	})
	if err != nil {
		logger.Errorw("batch_payment_failure_record_failed", "payment_id", payment.ID, "error", err)
	}
	logger.Warnw("payout_transfer_failed",
		"payment_id", payment.ID,
		"rail", rail,
		"error_code", result.ErrorCode,
		"error", execErr,
		"retry_scheduled", result.RetryScheduled,
	)
	if !result.RetryScheduled {
		s.alert(ctx, OperatorAlert{
			Event:   constants.NotifyEventPayoutFailed,
			BizType: constants.NotifyBizPayment,
			BizID:   payment.ID,
			Data: models.JSON{
				"payment_id":    payment.ID,
				"amount":        payment.Amount.String(),
				"payee_type":    payment.PayeeType,
				"payee_id":      payment.PayeeID,
				"error_code":    result.ErrorCode,
				"error_message": result.ErrorMessage,
			},
		})
	}
	return result
}

func (s *BatchService) alert(ctx context.Context, alert OperatorAlert) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyOperator(ctx, alert); err != nil {
		logger.Warnw("operator_alert_failed", "event", alert.Event, "biz_id", alert.BizID, "error", err)
	}
}

func (s *BatchService) loadDraft(tx *gorm.DB, batchID uint) (*models.PaymentBatch, error) {
	batch, err := s.batchRepo.WithTx(tx).GetByID(batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, ErrBatchNotFound
	}
	if batch.Status != constants.BatchStatusDraft {
		return nil, ErrBatchNotDraft
	}
	return batch, nil
}

// refreshTotals 重算草稿批次合计，批次已离开草稿时回滚
func (s *BatchService) refreshTotals(tx *gorm.DB, batchID uint) error {
	total, count, err := s.paymentRepo.WithTx(tx).SumByBatch(batchID)
	if err != nil {
		return err
	}
	ok, err := s.batchRepo.WithTx(tx).TransitionStatus(batchID,
		[]string{constants.BatchStatusDraft}, constants.BatchStatusDraft,
		map[string]interface{}{
			"total_amount":   total,
			"total_payments": count,
		})
	if err != nil {
		return err
	}
	if !ok {
		return ErrBatchNotDraft
	}
	return nil
}

func summarize(batchID uint, results []PaymentResult) *BatchSummary {
	summary := &BatchSummary{
		BatchID:       batchID,
		TotalPayments: len(results),
		Results:       results,
	}
	total := decimal.Zero
	for _, result := range results {
		total = total.Add(result.Amount.Decimal)
		if result.succeeded() {
			summary.SuccessCount++
		} else {
			summary.FailedCount++
		}
		if result.Status == constants.PaymentStatusPendingManual {
			summary.PendingManualCount++
		}
		if result.AlreadySettled {
			summary.AlreadySettledCount++
		}
		if result.Unrecorded {
			summary.UnrecordedCount++
		}
	}
	summary.TotalAmount = models.NewMoneyFromDecimal(total)
	summary.Status = deriveBatchStatus(summary.SuccessCount, summary.FailedCount)
	return summary
}

// deriveBatchStatus 全部成功为完成，全部失败为失败，其余为部分成功
func deriveBatchStatus(successCount, failedCount int) string {
	switch {
	case failedCount == 0:
		return constants.BatchStatusCompleted
	case successCount == 0:
		return constants.BatchStatusFailed
	default:
		return constants.BatchStatusPartial
	}
}

func failedResult(payment *models.Payment, rail string, cause error) PaymentResult {
	code, message := failureFields(cause)
	return PaymentResult{
		PaymentID:    payment.ID,
		Amount:       payment.Amount,
		Status:       constants.PaymentStatusFailed,
		Rail:         rail,
		ErrorCode:    code,
		ErrorMessage: message,
		Retryable:    payout.IsRetryable(cause),
	}
}

func isProcessableBatchStatus(status string) bool {
	return status == constants.BatchStatusDraft || status == constants.BatchStatusFailed
}

func generateBatchNo(now time.Time) (string, error) {
	suffix, err := gonanoid.Generate(batchNoAlphabet, 6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PB%s%s", now.Format("20060102150405"), suffix), nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	result := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
