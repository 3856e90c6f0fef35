package shared

import (
	"strconv"
	"strings"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ActorID 读取已认证操作者 ID，缺失时直接写入 401 响应。
func ActorID(c *gin.Context) (uint, bool) {
	value, exists := c.Get(constants.ContextActorID)
	if !exists {
		RespondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return 0, false
	}
	id, ok := value.(uint)
	if !ok || id == 0 {
		RespondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return 0, false
	}
	return id, true
}

// ParamID 解析路径上的数字 ID，非法时写入 400 响应。
func ParamID(c *gin.Context, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		RespondError(c, response.CodeBadRequest, name+" invalid", nil)
		return 0, false
	}
	return uint(id), true
}

// QueryUint 解析可选的数字查询参数。
func QueryUint(c *gin.Context, name string) uint {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Query(name)), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
