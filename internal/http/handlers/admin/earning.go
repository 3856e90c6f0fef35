package admin

import (
	handlershared "github.com/settle-next/internal/http/handlers/shared"
	"github.com/settle-next/internal/http/response"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ServiceCompletionRequest 服务完成登记请求
type ServiceCompletionRequest struct {
	ServiceID      uint         `json:"service_id" binding:"required"`
	EmployeeID     uint         `json:"employee_id" binding:"required"`
	CustomerID     uint         `json:"customer_id" binding:"required"`
	SubscriptionID *uint        `json:"subscription_id"`
	Gross          models.Money `json:"gross"`
	Visits         int          `json:"visits"`
	AutoApprove    bool         `json:"auto_approve"`
}

// RecordServiceCompletion 登记已完成服务并拆分收入
func (h *Handler) RecordServiceCompletion(c *gin.Context) {
	actorID, ok := handlershared.ActorID(c)
	if !ok {
		return
	}
	var req ServiceCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "request body invalid", err)
		return
	}
	result, err := h.EarningService.RecordServiceCompletion(service.ServiceCompletionInput{
		ServiceID:      req.ServiceID,
		EmployeeID:     req.EmployeeID,
		CustomerID:     req.CustomerID,
		SubscriptionID: req.SubscriptionID,
		Gross:          req.Gross,
		Visits:         req.Visits,
		AutoApprove:    req.AutoApprove,
		ActorID:        actorID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// ApproveEarning 审核收入
func (h *Handler) ApproveEarning(c *gin.Context) {
	actorID, ok := handlershared.ActorID(c)
	if !ok {
		return
	}
	earningID, ok := handlershared.ParamID(c, "id")
	if !ok {
		return
	}
	earning, err := h.EarningService.ApproveEarning(earningID, actorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, earning)
}

// ListEmployeeEarnings 员工收入列表
func (h *Handler) ListEmployeeEarnings(c *gin.Context) {
	employeeID, ok := handlershared.ParamID(c, "id")
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	earnings, total, err := h.EarningService.ListEmployeeEarnings(employeeID, page, pageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, earnings, response.BuildPagination(page, pageSize, total))
}
