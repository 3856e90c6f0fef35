package admin

import (
	"github.com/settle-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// RolePolicyRequest 角色策略变更请求
type RolePolicyRequest struct {
	Object string `json:"object" binding:"required"`
	Action string `json:"action" binding:"required"`
}

// ListRoles 角色列表
func (h *Handler) ListRoles(c *gin.Context) {
	roles, err := h.AuthzService.ListRoles()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, roles)
}

// GetRolePolicies 角色策略
func (h *Handler) GetRolePolicies(c *gin.Context) {
	policies, err := h.AuthzService.GetRolePolicies(c.Param("role"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, policies)
}

// GrantRolePolicy 为自定义角色授权
func (h *Handler) GrantRolePolicy(c *gin.Context) {
	h.changeRolePolicy(c, h.AuthzService.GrantRolePolicy)
}

// RevokeRolePolicy 撤销自定义角色授权
func (h *Handler) RevokeRolePolicy(c *gin.Context) {
	h.changeRolePolicy(c, h.AuthzService.RevokeRolePolicy)
}

func (h *Handler) changeRolePolicy(c *gin.Context, apply func(role, object, action string) error) {
	var req RolePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "request body invalid", err)
		return
	}
	role := c.Param("role")
	if err := apply(role, req.Object, req.Action); err != nil {
		respondServiceError(c, err)
		return
	}
	policies, err := h.AuthzService.GetRolePolicies(role)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, policies)
}
