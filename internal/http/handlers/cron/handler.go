// Package cron 处理外部调度器触发的周期任务
package cron

import (
	"context"
	"time"

	handlershared "github.com/settle-next/internal/http/handlers/shared"
	"github.com/settle-next/internal/http/response"
	"github.com/settle-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// Handler 调度触发接口处理器
type Handler struct {
	*provider.Container
	now func() time.Time
}

// New 创建调度处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c, now: time.Now}
}

// RunPaymentRetries 处理到期的付款重试
func (h *Handler) RunPaymentRetries(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())
	result, err := h.RetryService.ProcessDueRetries(ctx, h.now())
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	handlershared.RequestLog(c).Infow("cron_payment_retries_finished",
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	response.Success(c, result)
}

// RunReferralCascade 执行当月推荐返佣
func (h *Handler) RunReferralCascade(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())
	result, err := h.ReferralService.RunMonthlyCascade(ctx, h.now())
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	handlershared.RequestLog(c).Infow("cron_referral_cascade_finished",
		"processed", result.ProcessedCount,
		"skipped", result.SkippedCount,
		"capped", result.CappedCount,
		"total_amount", result.TotalAmount.String(),
	)
	response.Success(c, result)
}
