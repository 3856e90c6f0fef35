package admin

import (
	"strings"
	"time"

	"github.com/settle-next/internal/constants"
	handlershared "github.com/settle-next/internal/http/handlers/shared"
	"github.com/settle-next/internal/http/response"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// PaymentDetail 付款详情，附带重试与通知记录
type PaymentDetail struct {
	Payment       *models.Payment       `json:"payment"`
	Earning       *models.Earning       `json:"earning,omitempty"`
	Retries       []models.PaymentRetry `json:"retries"`
	Notifications []models.Notification `json:"notifications"`
}

// ConfirmManualRequest 人工到账确认请求
type ConfirmManualRequest struct {
	Reference string `json:"reference" binding:"required"`
}

// ListPayments 付款列表
func (h *Handler) ListPayments(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	filter := repository.PaymentListFilter{
		Page:      page,
		PageSize:  pageSize,
		Type:      strings.ToLower(strings.TrimSpace(c.Query("type"))),
		Status:    strings.ToLower(strings.TrimSpace(c.Query("status"))),
		PayeeType: strings.ToLower(strings.TrimSpace(c.Query("payee_type"))),
		PayeeID:   handlershared.QueryUint(c, "payee_id"),
		BatchID:   handlershared.QueryUint(c, "batch_id"),
		Unbatched: c.Query("unbatched") == "true",
	}
	if from, ok := parseQueryTime(c, "created_from"); !ok {
		return
	} else if from != nil {
		filter.CreatedFrom = from
	}
	if to, ok := parseQueryTime(c, "created_to"); !ok {
		return
	} else if to != nil {
		filter.CreatedTo = to
	}

	payments, total, err := h.PaymentService.ListPayments(filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, payments, response.BuildPagination(page, pageSize, total))
}

func parseQueryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		if day, dayErr := time.Parse("2006-01-02", raw); dayErr == nil {
			return &day, true
		}
		respondError(c, response.CodeBadRequest, name+" invalid", err)
		return nil, false
	}
	return &value, true
}

// GetPayment 付款详情
func (h *Handler) GetPayment(c *gin.Context) {
	paymentID, ok := handlershared.ParamID(c, "id")
	if !ok {
		return
	}
	payment, err := h.PaymentService.GetPayment(paymentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	earning, err := h.PaymentService.GetPaymentEarning(payment)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	retries, err := h.RetryService.ListByPayment(paymentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	notifications, err := h.NotificationService.ListByBiz(constants.NotifyBizPayment, paymentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, PaymentDetail{
		Payment:       payment,
		Earning:       earning,
		Retries:       retries,
		Notifications: notifications,
	})
}

// ConfirmManualPayment 确认人工转账已到账
func (h *Handler) ConfirmManualPayment(c *gin.Context) {
	actorID, ok := handlershared.ActorID(c)
	if !ok {
		return
	}
	paymentID, ok := handlershared.ParamID(c, "id")
	if !ok {
		return
	}
	var req ConfirmManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "request body invalid", err)
		return
	}
	payment, err := h.PaymentService.ConfirmManualPayment(paymentID, actorID, req.Reference)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payment)
}
