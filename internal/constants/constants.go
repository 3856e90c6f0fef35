package constants

// 付款类型常量
const (
	PaymentTypeService         = "service"
	PaymentTypeReferral        = "referral"
	PaymentTypeMonthlyReferral = "monthly_referral"
	PaymentTypeEarnings        = "earnings"
)

// 付款状态常量
const (
	PaymentStatusPending       = "pending"
	PaymentStatusApproved      = "approved"
	PaymentStatusProcessing    = "processing"
	PaymentStatusPaid          = "paid"
	PaymentStatusFailed        = "failed"
	PaymentStatusRefunded      = "refunded"
	PaymentStatusPendingManual = "pending_manual"
)

// 收款方与来源类型常量
const (
	PayeeTypeEmployee = "employee"
	PayeeTypeReferrer = "referrer"

	SourceTypeService  = "service"
	SourceTypeReferral = "referral"
)

// 批次类型常量
const (
	BatchTypeService  = "service"
	BatchTypeReferral = "referral"
	BatchTypeMixed    = "mixed"
)

// 批次状态常量
const (
	BatchStatusDraft      = "draft"
	BatchStatusProcessing = "processing"
	BatchStatusCompleted  = "completed"
	BatchStatusFailed     = "failed"
	BatchStatusPartial    = "partial"
)

// 推荐关系状态常量
const (
	ReferralStatusPending   = "pending"
	ReferralStatusActive    = "active"
	ReferralStatusCancelled = "cancelled"
)

// 推荐返佣发放进度常量
const (
	ReferralPayoutStatusNone     = "none"
	ReferralPayoutStatusAccruing = "accruing"
	ReferralPayoutStatusCapped   = "capped"
)

// 重试状态常量
const (
	RetryStatusScheduled = "scheduled"
	RetryStatusPending   = "pending"
	RetryStatusSuccess   = "success"
	RetryStatusFailed    = "failed"
)

// 订阅状态常量
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusPastDue   = "past_due"
	SubscriptionStatusCancelled = "cancelled"
)

// 转账通道常量
const (
	RailStripe = "stripe"
	RailManual = "manual"
	RailAuto   = "auto"
)

// 通知状态常量
const (
	NotificationStatusPending   = "pending"
	NotificationStatusDelivered = "delivered"
	NotificationStatusFailed    = "failed"
)

// 通知事件常量
const (
	NotifyEventManualPayoutRequested = "manual_payout_requested"
	NotifyEventManualPayoutIncoming  = "manual_payout_incoming"
	NotifyEventPayoutFailed          = "payout_failed"
	NotifyEventRetryExhausted        = "retry_exhausted"
	NotifyEventBatchFinished         = "batch_finished"
	NotifyEventPayoutUnrecorded      = "payout_unrecorded"
)

// 通知对象类型常量
const (
	NotifyTargetOperator = "operator"
	NotifyTargetPayee    = "payee"

	NotifyBizPayment = "payment"
	NotifyBizBatch   = "batch"
)

// 操作者角色常量
const (
	RoleOperator  = "operator"
	RoleAuditor   = "auditor"
	RoleScheduler = "scheduler"
)

// 异步队列与任务常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"

	TaskNotificationDispatch = "notification:dispatch"
	TaskBatchProcess         = "batch:process"
)

// 请求上下文键
const (
	ContextRequestID = "request_id"
	ContextActorID   = "actor_id"
	ContextActorRole = "actor_role"
)
