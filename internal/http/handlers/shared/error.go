package shared

import (
	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/http/response"
	"github.com/settle-next/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if id := c.GetString(constants.ContextRequestID); id != "" {
		return logger.SW("request_id", id)
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, msg string, err error) {
	if err != nil {
		log := RequestLog(c)
		if code >= response.CodeInternal {
			log.Errorw("handler_error", "code", code, "message", msg, "error", err)
		} else {
			log.Warnw("handler_rejected", "code", code, "message", msg, "error", err)
		}
	}
	response.Error(c, code, msg)
}

// RespondServiceError 按领域错误映射状态码后返回
func RespondServiceError(c *gin.Context, err error) {
	code, msg := MapServiceError(err)
	RespondError(c, code, msg, err)
}
