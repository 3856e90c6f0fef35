package admin

import (
	handlershared "github.com/settle-next/internal/http/handlers/shared"
	"github.com/settle-next/internal/http/response"
	"github.com/settle-next/internal/service"

	"github.com/gin-gonic/gin"
)

// UpsertPayoutAccount 写入收款账户
func (h *Handler) UpsertPayoutAccount(c *gin.Context) {
	var req service.PayoutAccountInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "request body invalid", err)
		return
	}
	account, err := h.PayoutAccountService.UpsertAccount(req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, account)
}

// GetPayoutAccount 查询收款账户
func (h *Handler) GetPayoutAccount(c *gin.Context) {
	payeeID, ok := handlershared.ParamID(c, "payee_id")
	if !ok {
		return
	}
	account, err := h.PayoutAccountService.GetAccount(c.Param("payee_type"), payeeID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, account)
}
