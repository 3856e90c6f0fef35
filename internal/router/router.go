package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/settle-next/internal/authz"
	"github.com/settle-next/internal/cache"
	"github.com/settle-next/internal/config"
	adminhandlers "github.com/settle-next/internal/http/handlers/admin"
	cronhandlers "github.com/settle-next/internal/http/handlers/cron"
	"github.com/settle-next/internal/http/response"
	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	adminHandler := adminhandlers.New(c)
	cronHandler := cronhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "settle"
	}
	cronRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:cron", redisPrefix),
		WindowSeconds: cfg.Cron.RateLimitSecs,
		MaxRequests:   cfg.Cron.RateLimitCount,
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		// 外部调度触发
		cron := apiV1.Group("/cron")
		cron.Use(CronTokenMiddleware(cfg.Cron.Token), RateLimitMiddleware(cache.Client(), cronRule, KeyByRoute))
		{
			cron.POST("/payment-retries", cronHandler.RunPaymentRetries)
			cron.POST("/referral-cascade", cronHandler.RunReferralCascade)
		}

		admin := apiV1.Group("/admin")
		admin.Use(ActorAuthMiddleware(cfg.JWT), RBACMiddleware(c.AuthzService))
		{
			admin.POST("/batches", adminHandler.CreateBatch)
			admin.GET("/batches", adminHandler.ListBatches)
			admin.GET("/batches/:id", adminHandler.GetBatch)
			admin.DELETE("/batches/:id", adminHandler.DeleteBatch)
			admin.POST("/batches/:id/payments", adminHandler.AddBatchPayments)
			admin.DELETE("/batches/:id/payments", adminHandler.RemoveBatchPayments)
			admin.POST("/batches/:id/process", adminHandler.ProcessBatch)

			admin.GET("/payments", adminHandler.ListPayments)
			admin.GET("/payments/:id", adminHandler.GetPayment)
			admin.POST("/payments/:id/confirm-manual", adminHandler.ConfirmManualPayment)

			admin.POST("/service-completions", adminHandler.RecordServiceCompletion)
			admin.POST("/earnings/:id/approve", adminHandler.ApproveEarning)
			admin.GET("/employees/:id/earnings", adminHandler.ListEmployeeEarnings)

			admin.POST("/referrals", adminHandler.CreateReferral)
			admin.GET("/referrals", adminHandler.ListReferrals)
			admin.GET("/referrals/:id", adminHandler.GetReferral)
			admin.POST("/referrals/:id/activate", adminHandler.ActivateReferral)
			admin.POST("/referrals/:id/cancel", adminHandler.CancelReferral)

			admin.PUT("/payout-accounts", adminHandler.UpsertPayoutAccount)
			admin.GET("/payout-accounts/:payee_type/:payee_id", adminHandler.GetPayoutAccount)

			admin.GET("/authz/roles", adminHandler.ListRoles)
			admin.GET("/authz/roles/:role/policies", adminHandler.GetRolePolicies)
			admin.POST("/authz/roles/:role/policies", adminHandler.GrantRolePolicy)
			admin.DELETE("/authz/roles/:role/policies", adminHandler.RevokeRolePolicy)
			admin.GET("/authz/permissions", func(ctx *gin.Context) {
				response.Success(ctx, buildPermissionCatalog(r))
			})
		}
	}

	r.GET("/healthz", func(ctx *gin.Context) {
		status := "ok"
		if models.DB != nil {
			if sqlDB, err := models.DB.DB(); err != nil || sqlDB.PingContext(ctx.Request.Context()) != nil {
				status = "degraded"
			}
		}
		ctx.JSON(200, gin.H{"status": status, "rails": c.Rails.Names()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type permissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

// buildPermissionCatalog 从已注册路由生成可授权资源清单
func buildPermissionCatalog(engine *gin.Engine) []permissionCatalogItem {
	if engine == nil {
		return []permissionCatalogItem{}
	}
	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]permissionCatalogItem, 0, len(routes))
	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, permissionCatalogItem{
			Module:     permissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})
	return items
}

func permissionModule(object string) string {
	segments := strings.Split(strings.TrimPrefix(strings.TrimSpace(object), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "system"
	}
	if segments[0] != "admin" || len(segments) == 1 {
		return segments[0]
	}
	return segments[1]
}
