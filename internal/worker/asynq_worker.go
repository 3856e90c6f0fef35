package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/provider"
	"github.com/settle-next/internal/queue"
	"github.com/settle-next/internal/service"

	"github.com/hibiken/asynq"
)

type notificationDispatcher interface {
	Dispatch(ctx context.Context, notificationID uint) error
}

type batchProcessor interface {
	ProcessBatch(ctx context.Context, batchID uint, selector string) (*service.BatchSummary, error)
}

// Consumer 异步任务消费者
type Consumer struct {
	notifications notificationDispatcher
	batches       batchProcessor
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		notifications: c.NotificationService,
		batches:       c.BatchService,
	}
}

// Register 注册任务处理函数
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskNotificationDispatch, c.handleNotificationDispatch)
	mux.HandleFunc(queue.TaskBatchProcess, c.handleBatchProcess)
}

func (c *Consumer) handleNotificationDispatch(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.notifications == nil {
		logger.Debugw("worker_notification_dispatch_skip_nil", "task_nil", task == nil)
		return nil
	}
	var payload queue.NotificationDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_notification_dispatch_unmarshal_failed", "error", err)
		return err
	}
	if payload.NotificationID == 0 {
		logger.Debugw("worker_notification_dispatch_skip_invalid_payload")
		return nil
	}
	if err := c.notifications.Dispatch(ctx, payload.NotificationID); err != nil {
		if errors.Is(err, service.ErrNotificationNotFound) {
			logger.Debugw("worker_notification_dispatch_skip_not_found", "notification_id", payload.NotificationID)
			return nil
		}
		logger.Warnw("worker_notification_dispatch_failed", "notification_id", payload.NotificationID, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleBatchProcess(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.batches == nil {
		logger.Debugw("worker_batch_process_skip_nil", "task_nil", task == nil)
		return nil
	}
	var payload queue.BatchProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_batch_process_unmarshal_failed", "error", err)
		return err
	}
	if payload.BatchID == 0 {
		logger.Debugw("worker_batch_process_skip_invalid_payload")
		return nil
	}
	summary, err := c.batches.ProcessBatch(ctx, payload.BatchID, payload.Rail)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBatchNotFound),
			errors.Is(err, service.ErrBatchNotProcessable),
			errors.Is(err, service.ErrBatchEmpty),
			errors.Is(err, service.ErrRailInvalid):
			logger.Warnw("worker_batch_process_rejected", "batch_id", payload.BatchID, "actor_id", payload.ActorID, "error", err)
			return nil
		default:
			logger.Errorw("worker_batch_process_failed", "batch_id", payload.BatchID, "actor_id", payload.ActorID, "error", err)
			return err
		}
	}
	logger.Infow("worker_batch_process_finished",
		"batch_id", summary.BatchID,
		"status", summary.Status,
		"success_count", summary.SuccessCount,
		"failed_count", summary.FailedCount,
		"actor_id", payload.ActorID,
	)
	return nil
}
