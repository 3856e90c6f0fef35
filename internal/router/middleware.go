package router

import (
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/settle-next/internal/authz"
	"github.com/settle-next/internal/config"
	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/http/response"
	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// CORSMiddleware 跨域中间件
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowedMethods := cfg.AllowedMethods
	if len(allowedMethods) == 0 {
		allowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	allowedHeaders := cfg.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = []string{"Content-Type", "Authorization", requestIDHeader}
	}
	methodsHeader := strings.Join(allowedMethods, ", ")
	headersHeader := strings.Join(allowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed := resolveAllowedOrigin(origin, allowedOrigins, cfg.AllowCredentials); allowed != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowed)
			if allowed != "*" {
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		if cfg.AllowCredentials {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", headersHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", methodsHeader)
		if cfg.MaxAge > 0 {
			c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func resolveAllowedOrigin(origin string, allowedOrigins []string, allowCredentials bool) string {
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			if allowCredentials && origin != "" {
				return origin
			}
			return "*"
		}
	}
	if origin == "" {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// RequestIDMiddleware 请求 ID 中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(constants.ContextRequestID, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// LoggerMiddleware 请求日志与 HTTP 指标
func LoggerMiddleware(base *zap.Logger) gin.HandlerFunc {
	if base == nil {
		base = zap.L()
	}
	sugar := base.Sugar()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		metrics.HTTPResponseSeconds.WithLabelValues(c.Request.Method, path).Observe(elapsed.Seconds())

		log := sugar.With(
			"request_id", c.GetString(constants.ContextRequestID),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", elapsed.Milliseconds(),
			"client_ip", c.ClientIP(),
		)
		if actorID, ok := c.Get(constants.ContextActorID); ok {
			log = log.With("actor_id", actorID)
		}
		if len(c.Errors) > 0 {
			log.Errorw("request", "errors", c.Errors.String())
			return
		}
		log.Infow("request")
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// ActorAuthMiddleware 校验操作者身份令牌
func ActorAuthMiddleware(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Abort(c, response.CodeUnauthorized, "authorization header missing or invalid")
			return
		}
		claims, err := authz.ParseActorToken(cfg.SecretKey, cfg.Issuer, token)
		if err != nil {
			logger.Warnw("actor_token_rejected",
				"request_id", c.GetString(constants.ContextRequestID),
				"path", c.Request.URL.Path,
				"error", err,
			)
			response.Abort(c, response.CodeUnauthorized, "token invalid")
			return
		}
		c.Set(constants.ContextActorID, claims.ActorID)
		c.Set(constants.ContextActorRole, claims.Role)
		c.Next()
	}
}

// RBACMiddleware 按角色校验路由权限
func RBACMiddleware(authzService *authz.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authzService == nil {
			logger.Errorw("rbac_service_unavailable")
			response.Abort(c, response.CodeUnauthorized, "unauthorized")
			return
		}
		role := c.GetString(constants.ContextActorRole)
		resource := c.FullPath()
		if strings.TrimSpace(resource) == "" {
			resource = c.Request.URL.Path
		}
		allowed, err := authzService.EnforceRole(role, resource, c.Request.Method)
		if err != nil {
			logger.Errorw("rbac_enforce_failed",
				"role", role,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"error", err,
			)
			response.Abort(c, response.CodeUnauthorized, "unauthorized")
			return
		}
		if !allowed {
			logger.Warnw("rbac_permission_denied",
				"role", role,
				"actor_id", c.GetUint(constants.ContextActorID),
				"method", c.Request.Method,
				"resource", authz.NormalizeObject(resource),
			)
			response.Abort(c, response.CodeForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

// CronTokenMiddleware 校验外部调度器的静态令牌
func CronTokenMiddleware(expected string) gin.HandlerFunc {
	expected = strings.TrimSpace(expected)
	return func(c *gin.Context) {
		if expected == "" {
			logger.Errorw("cron_token_not_configured", "path", c.Request.URL.Path)
			response.Abort(c, response.CodeUnauthorized, "cron trigger disabled")
			return
		}
		token, ok := bearerToken(c)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			logger.Warnw("cron_token_rejected",
				"request_id", c.GetString(constants.ContextRequestID),
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
			)
			response.Abort(c, response.CodeUnauthorized, "unauthorized")
			return
		}
		c.Next()
	}
}
