package admin

import (
	"context"
	"strconv"
	"strings"
	"time"

	handlershared "github.com/settle-next/internal/http/handlers/shared"
	"github.com/settle-next/internal/http/response"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/repository"
	"github.com/settle-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateBatchRequest 创建批次请求
type CreateBatchRequest struct {
	Type          string     `json:"type" binding:"required"`
	Rail          string     `json:"rail"`
	ScheduledDate *time.Time `json:"scheduled_date"`
	Notes         string     `json:"notes"`
	PaymentIDs    []uint     `json:"payment_ids"`
}

// BatchPaymentsRequest 批次成员变更请求
type BatchPaymentsRequest struct {
	PaymentIDs []uint `json:"payment_ids" binding:"required,min=1"`
}

// ProcessBatchRequest 批次处理请求
type ProcessBatchRequest struct {
	Rail  string `json:"rail"`
	Async bool   `json:"async"`
}

// CreateBatch 创建草稿批次
func (h *Handler) CreateBatch(c *gin.Context) {
	actorID, ok := handlershared.ActorID(c)
	if !ok {
		return
	}
	var req CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "request body invalid", err)
		return
	}
	batch, err := h.BatchService.CreateBatch(service.CreateBatchInput{
		Type:          req.Type,
		Rail:          req.Rail,
		ScheduledDate: req.ScheduledDate,
		Notes:         req.Notes,
		PaymentIDs:    req.PaymentIDs,
		CreatedBy:     actorID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, batch)
}

// ListBatches 批次列表
func (h *Handler) ListBatches(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	batches, total, err := h.BatchService.ListBatches(repository.BatchListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.ToLower(strings.TrimSpace(c.Query("status"))),
		Type:     strings.ToLower(strings.TrimSpace(c.Query("type"))),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, batches, response.BuildPagination(page, pageSize, total))
}

// GetBatch 批次详情（含成员付款）
func (h *Handler) GetBatch(c *gin.Context) {
	batchID, ok := handlershared.ParamID(c, "id")
	if !ok {
		return
	}
	batch, err := h.BatchService.GetBatch(batchID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, batch)
}

// AddBatchPayments 向草稿批次加入付款
func (h *Handler) AddBatchPayments(c *gin.Context) {
	h.changeBatchPayments(c, h.BatchService.AddPayments)
}

// RemoveBatchPayments 从草稿批次移除付款
func (h *Handler) RemoveBatchPayments(c *gin.Context) {
	h.changeBatchPayments(c, h.BatchService.RemovePayments)
}

func (h *Handler) changeBatchPayments(c *gin.Context, apply func(uint, []uint) (*models.PaymentBatch, error)) {
	batchID, ok := handlershared.ParamID(c, "id")
	if !ok {
		return
	}
	var req BatchPaymentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "request body invalid", err)
		return
	}
	batch, err := apply(batchID, req.PaymentIDs)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, batch)
}

// ProcessBatch 同步处理批次并返回汇总，async=true 时推入队列
func (h *Handler) ProcessBatch(c *gin.Context) {
	actorID, ok := handlershared.ActorID(c)
	if !ok {
		return
	}
	batchID, ok := handlershared.ParamID(c, "id")
	if !ok {
		return
	}
	var req ProcessBatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "request body invalid", err)
			return
		}
	}
	if req.Async {
		if err := h.BatchService.EnqueueProcess(batchID, req.Rail, actorID); err != nil {
			respondServiceError(c, err)
			return
		}
		response.Success(c, gin.H{"batch_id": batchID, "queued": true})
		return
	}

	// 客户端断开不应中断进行中的转账
	ctx := context.WithoutCancel(c.Request.Context())
	handlershared.RequestLog(c).Infow("admin_batch_process_requested",
		"batch_id", batchID,
		"rail", req.Rail,
		"actor_id", actorID,
	)
	summary, err := h.BatchService.ProcessBatch(ctx, batchID, req.Rail)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, summary)
}

// DeleteBatch 删除草稿或失败批次
func (h *Handler) DeleteBatch(c *gin.Context) {
	batchID, ok := handlershared.ParamID(c, "id")
	if !ok {
		return
	}
	release, _ := strconv.ParseBool(c.DefaultQuery("release_payments", "false"))
	if err := h.BatchService.DeleteBatch(batchID, release); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"batch_id": batchID, "released": release})
}
