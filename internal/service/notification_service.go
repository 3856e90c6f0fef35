package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/payout"
	"github.com/settle-next/internal/queue"
	"github.com/settle-next/internal/repository"

	"github.com/hibiken/asynq"
)

// OperatorAlert 需要操作员处理的事件
type OperatorAlert struct {
	Event   string
	BizType string
	BizID   uint
	Data    models.JSON
}

// OperatorNotifier 操作员告警
type OperatorNotifier interface {
	NotifyOperator(ctx context.Context, alert OperatorAlert) error
}

// NotificationService 持久化通知并异步投递
type NotificationService struct {
	repo          repository.NotificationRepository
	queueClient   *queue.Client
	mailer        Mailer
	operatorID    uint
	operatorEmail string
}

// NewNotificationService 创建通知服务
func NewNotificationService(
	repo repository.NotificationRepository,
	queueClient *queue.Client,
	mailer Mailer,
	opts SettlementOptions,
) *NotificationService {
	return &NotificationService{
		repo:          repo,
		queueClient:   queueClient,
		mailer:        mailer,
		operatorID:    opts.OperatorID,
		operatorEmail: strings.TrimSpace(opts.OperatorEmail),
	}
}

// NotifyManualPayout 为人工转账同时通知收款方与操作员
func (s *NotificationService) NotifyManualPayout(ctx context.Context, req payout.TransferRequest) error {
	data := models.JSON{
		"payment_id":      req.PaymentID,
		"amount":          req.Amount.StringFixed(2),
		"currency":        req.Currency,
		"payee_type":      req.Destination.PayeeType,
		"payee_id":        req.Destination.PayeeID,
		"handle":          req.Destination.Handle,
		"display_name":    req.Destination.DisplayName,
		"idempotency_key": req.IdempotencyKey,
	}
	rows := []*models.Notification{
		{
			Event:      constants.NotifyEventManualPayoutIncoming,
			TargetType: constants.NotifyTargetPayee,
			TargetID:   req.Destination.PayeeID,
			Email:      strings.TrimSpace(req.Destination.Email),
			BizType:    constants.NotifyBizPayment,
			BizID:      req.PaymentID,
			Payload:    data,
			Status:     constants.NotificationStatusPending,
		},
		s.operatorRow(constants.NotifyEventManualPayoutRequested, constants.NotifyBizPayment, req.PaymentID, data),
	}
	for _, row := range rows {
		if err := s.repo.Create(row); err != nil {
			return err
		}
	}
	for _, row := range rows {
		s.enqueue(ctx, row.ID)
	}
	return nil
}

// NotifyOperator 记录并投递操作员告警
func (s *NotificationService) NotifyOperator(ctx context.Context, alert OperatorAlert) error {
	event := strings.TrimSpace(alert.Event)
	if event == "" {
		return fmt.Errorf("notification event is required")
	}
	row := s.operatorRow(event, alert.BizType, alert.BizID, alert.Data)
	if err := s.repo.Create(row); err != nil {
		return err
	}
	s.enqueue(ctx, row.ID)
	return nil
}

// ListByBiz 查询业务对象的通知
func (s *NotificationService) ListByBiz(bizType string, bizID uint) ([]models.Notification, error) {
	return s.repo.ListByBiz(bizType, bizID)
}

// Dispatch 投递单条通知
func (s *NotificationService) Dispatch(ctx context.Context, notificationID uint) error {
	row, err := s.repo.GetByID(notificationID)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrNotificationNotFound
	}
	if row.Status == constants.NotificationStatusDelivered {
		return nil
	}
	now := time.Now()
	if s.mailer == nil || !s.mailer.Enabled() || row.Email == "" {
		logger.Infow("notification_logged",
			"notification_id", row.ID,
			"event", row.Event,
			"target_type", row.TargetType,
			"target_id", row.TargetID,
			"biz_type", row.BizType,
			"biz_id", row.BizID,
		)
		return s.repo.MarkDelivered(row.ID, now)
	}
	subject, body := renderNotification(row)
	if err := s.mailer.Send(row.Email, subject, body); err != nil {
		logger.Warnw("notification_email_send_failed",
			"notification_id", row.ID,
			"event", row.Event,
			"error", err,
		)
		if markErr := s.repo.MarkFailed(row.ID, err.Error(), now); markErr != nil {
			logger.Warnw("notification_mark_failed_failed", "notification_id", row.ID, "error", markErr)
		}
		return err
	}
	return s.repo.MarkDelivered(row.ID, now)
}

func (s *NotificationService) operatorRow(event, bizType string, bizID uint, data models.JSON) *models.Notification {
	return &models.Notification{
		Event:      event,
		TargetType: constants.NotifyTargetOperator,
		TargetID:   s.operatorID,
		Email:      s.operatorEmail,
		BizType:    bizType,
		BizID:      bizID,
		Payload:    data,
		Status:     constants.NotificationStatusPending,
	}
}

// enqueue 推送投递任务，队列不可用时在当前进程内投递
func (s *NotificationService) enqueue(ctx context.Context, notificationID uint) {
	if s.queueClient.Enabled() {
		err := s.queueClient.EnqueueNotificationDispatch(
			queue.NotificationDispatchPayload{NotificationID: notificationID},
			asynq.MaxRetry(5),
		)
		if err == nil {
			return
		}
		logger.Warnw("notification_enqueue_failed", "notification_id", notificationID, "error", err)
	}
	if err := s.Dispatch(ctx, notificationID); err != nil {
		logger.Warnw("notification_inline_dispatch_failed", "notification_id", notificationID, "error", err)
	}
}

func renderNotification(row *models.Notification) (string, string) {
	subject := notificationSubjects[row.Event]
	if subject == "" {
		subject = "Settlement notification"
	}
	keys := make([]string, 0, len(row.Payload))
	for key := range row.Payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", subject)
	for _, key := range keys {
		fmt.Fprintf(&b, "%s: %v\n", key, row.Payload[key])
	}
	return subject, b.String()
}

var notificationSubjects = map[string]string{
	constants.NotifyEventManualPayoutRequested: "Manual payout requested",
	constants.NotifyEventManualPayoutIncoming:  "A payout is on its way",
	constants.NotifyEventPayoutFailed:          "Payout failed and needs attention",
	constants.NotifyEventRetryExhausted:        "Payout retries exhausted",
	constants.NotifyEventBatchFinished:         "Payout batch finished",
	constants.NotifyEventPayoutUnrecorded:      "Payout sent but not recorded, reconcile manually",
}
