package admin

import (
	"strings"

	handlershared "github.com/settle-next/internal/http/handlers/shared"
	"github.com/settle-next/internal/http/response"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/repository"
	"github.com/settle-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateReferralRequest 登记推荐关系请求
type CreateReferralRequest struct {
	ReferrerID uint   `json:"referrer_id" binding:"required"`
	ReferredID uint   `json:"referred_id" binding:"required"`
	Code       string `json:"code"`
	Activate   bool   `json:"activate"`
}

// ReferralDetail 推荐关系及返佣记录
type ReferralDetail struct {
	Referral *models.Referral       `json:"referral"`
	Payouts  []models.ReferralPayout `json:"payouts"`
}

// CreateReferral 登记推荐关系
func (h *Handler) CreateReferral(c *gin.Context) {
	var req CreateReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "request body invalid", err)
		return
	}
	referral, err := h.ReferralService.CreateReferral(service.CreateReferralInput{
		ReferrerID: req.ReferrerID,
		ReferredID: req.ReferredID,
		Code:       req.Code,
		Activate:   req.Activate,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, referral)
}

// ListReferrals 推荐关系列表
func (h *Handler) ListReferrals(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	referrals, total, err := h.ReferralService.ListReferrals(repository.ReferralListFilter{
		Page:       page,
		PageSize:   pageSize,
		ReferrerID: handlershared.QueryUint(c, "referrer_id"),
		Status:     strings.ToLower(strings.TrimSpace(c.Query("status"))),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, referrals, response.BuildPagination(page, pageSize, total))
}

// GetReferral 推荐关系详情
func (h *Handler) GetReferral(c *gin.Context) {
	referralID, ok := handlershared.ParamID(c, "id")
	if !ok {
		return
	}
	referral, err := h.ReferralService.GetReferral(referralID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	payouts, err := h.ReferralService.ListPayouts(referralID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, ReferralDetail{Referral: referral, Payouts: payouts})
}

// ActivateReferral 激活推荐关系
func (h *Handler) ActivateReferral(c *gin.Context) {
	h.changeReferral(c, h.ReferralService.ActivateReferral)
}

// CancelReferral 取消推荐关系
func (h *Handler) CancelReferral(c *gin.Context) {
	h.changeReferral(c, h.ReferralService.CancelReferral)
}

func (h *Handler) changeReferral(c *gin.Context, apply func(uint) (*models.Referral, error)) {
	referralID, ok := handlershared.ParamID(c, "id")
	if !ok {
		return
	}
	referral, err := apply(referralID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, referral)
}
