package provider

import (
	"strings"

	"github.com/settle-next/internal/authz"
	"github.com/settle-next/internal/cache"
	"github.com/settle-next/internal/config"
	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/payout"
	"github.com/settle-next/internal/payout/manual"
	"github.com/settle-next/internal/payout/stripe"
	"github.com/settle-next/internal/queue"
	"github.com/settle-next/internal/repository"
	"github.com/settle-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Settlement  service.SettlementOptions
	Rails       *payout.Registry

	// Repositories
	PaymentRepo       repository.PaymentRepository
	EarningRepo       repository.EarningRepository
	BatchRepo         repository.BatchRepository
	RetryRepo         repository.RetryRepository
	ReferralRepo      repository.ReferralRepository
	SubscriptionRepo  repository.SubscriptionRepository
	PayoutAccountRepo repository.PayoutAccountRepository
	NotificationRepo  repository.NotificationRepository

	// Services
	AuthzService         *authz.Service
	EmailService         *service.EmailService
	NotificationService  *service.NotificationService
	PayoutExecutor       *service.PayoutExecutor
	RetryService         *service.RetryService
	BatchService         *service.BatchService
	ReferralService      *service.ReferralService
	EarningService       *service.EarningService
	PaymentService       *service.PaymentService
	PayoutAccountService *service.PayoutAccountService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient, _ = queue.NewClient(nil)
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Settlement:  service.SettlementOptionsFromConfig(cfg),
	}

	c.initRepositories()
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.EarningRepo = repository.NewEarningRepository(db)
	c.BatchRepo = repository.NewBatchRepository(db)
	c.RetryRepo = repository.NewRetryRepository(db)
	c.ReferralRepo = repository.NewReferralRepository(db)
	c.SubscriptionRepo = repository.NewSubscriptionRepository(db)
	c.PayoutAccountRepo = repository.NewPayoutAccountRepository(db)
	c.NotificationRepo = repository.NewNotificationRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.EmailService = service.NewEmailService(&c.Config.Email)
	c.NotificationService = service.NewNotificationService(c.NotificationRepo, c.QueueClient, c.EmailService, c.Settlement)
	c.Rails = buildRailRegistry(c.Config, c.NotificationService)

	c.PayoutExecutor = service.NewPayoutExecutor(c.Rails, c.PayoutAccountRepo, c.Settlement)
	c.RetryService = service.NewRetryService(c.PaymentRepo, c.RetryRepo, c.EarningRepo, c.SubscriptionRepo, c.PayoutExecutor, c.NotificationService, c.Settlement)
	c.BatchService = service.NewBatchService(c.BatchRepo, c.PaymentRepo, c.EarningRepo, c.RetryRepo, c.SubscriptionRepo, c.PayoutExecutor, c.RetryService, c.NotificationService, c.QueueClient, c.Settlement)
	c.ReferralService = service.NewReferralService(c.ReferralRepo, c.PaymentRepo, c.SubscriptionRepo, c.Settlement)
	c.EarningService = service.NewEarningService(c.PaymentRepo, c.EarningRepo, c.ReferralService, c.Settlement)
	c.PaymentService = service.NewPaymentService(c.PaymentRepo, c.EarningRepo, c.SubscriptionRepo)
	c.PayoutAccountService = service.NewPayoutAccountService(c.PayoutAccountRepo)
}

// buildRailRegistry 按配置注册转账通道，未配置密钥时仅启用人工通道
func buildRailRegistry(cfg *config.Config, notifier manual.Notifier) *payout.Registry {
	rails := make([]payout.Rail, 0, 2)
	if strings.TrimSpace(cfg.Stripe.SecretKey) != "" {
		rail, err := stripe.New(stripe.Config{
			SecretKey:         cfg.Stripe.SecretKey,
			APIBaseURL:        cfg.Stripe.APIBaseURL,
			ConnectBaseURL:    cfg.Stripe.ConnectBaseURL,
			MaxNetworkRetries: cfg.Stripe.MaxNetworkRetries,
			AccountCountry:    cfg.Stripe.AccountCountry,
		})
		if err != nil {
			logger.Errorw("provider_init_stripe_rail_failed", "error", err)
		} else {
			rails = append(rails, rail)
		}
	} else {
		logger.Warnw("provider_stripe_rail_disabled", "reason", "secret_key_empty")
	}
	rails = append(rails, manual.New(notifier))

	registry := payout.NewRegistry(rails...)
	defaultRail := strings.ToLower(strings.TrimSpace(cfg.Settlement.DefaultRail))
	if defaultRail != "" && defaultRail != constants.RailAuto {
		if err := registry.SetDefault(defaultRail); err != nil {
			logger.Warnw("provider_default_rail_invalid", "rail", defaultRail, "error", err)
		}
	}
	logger.Infow("provider_rails_registered", "rails", registry.Names())
	return registry
}

// Close 释放队列与缓存连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
