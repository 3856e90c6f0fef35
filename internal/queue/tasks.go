package queue

import (
	"encoding/json"

	"github.com/settle-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskNotificationDispatch 通知投递任务
	TaskNotificationDispatch = constants.TaskNotificationDispatch
	// TaskBatchProcess 批次异步处理任务
	TaskBatchProcess = constants.TaskBatchProcess
)

// NotificationDispatchPayload 通知投递任务载荷
type NotificationDispatchPayload struct {
	NotificationID uint `json:"notification_id"`
}

// BatchProcessPayload 批次处理任务载荷
type BatchProcessPayload struct {
	BatchID uint   `json:"batch_id"`
	Rail    string `json:"rail"`
	ActorID uint   `json:"actor_id"`
}

// NewNotificationDispatchTask 创建通知投递任务
func NewNotificationDispatchTask(payload NotificationDispatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDispatch, body), nil
}

// NewBatchProcessTask 创建批次处理任务
func NewBatchProcessTask(payload BatchProcessPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBatchProcess, body), nil
}
