package config

import (
	"fmt"
	"strings"

	"github.com/settle-next/internal/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Queue      QueueConfig      `mapstructure:"queue"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Cron       CronConfig       `mapstructure:"cron"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	Manual     ManualRailConfig `mapstructure:"manual"`
	Email      EmailConfig      `mapstructure:"email"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 操作者身份令牌校验配置
type JWTConfig struct {
	SecretKey string `mapstructure:"secret"`
	Issuer    string `mapstructure:"issuer"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// CronConfig 外部调度触发配置
type CronConfig struct {
	Token          string `mapstructure:"token"`            // 触发接口的 Bearer Token
	RateLimitCount int    `mapstructure:"rate_limit_count"` // 窗口内最大触发次数
	RateLimitSecs  int    `mapstructure:"rate_limit_secs"`  // 限流窗口秒数
}

// SettlementConfig 结算参数配置
type SettlementConfig struct {
	Currency                 string  `mapstructure:"currency"`
	RailFeePct               string  `mapstructure:"rail_fee_pct"`
	RailFeeFixed             string  `mapstructure:"rail_fee_fixed"`
	ReferralFee              string  `mapstructure:"referral_fee"`
	PlatformSharePct         string  `mapstructure:"platform_share_pct"`
	VisitsPerPeriod          int     `mapstructure:"visits_per_period"`
	MaxRetries               int     `mapstructure:"max_retries"`
	RetryCooldownHours       int     `mapstructure:"retry_cooldown_hours"`
	ReferralCapMonths        int     `mapstructure:"referral_cap_months"`
	ReferralMonthlyAmount    string  `mapstructure:"referral_monthly_amount"`
	BatchConcurrency         int     `mapstructure:"batch_concurrency"`
	RetryPollIntervalSeconds int     `mapstructure:"retry_poll_interval_seconds"`
	ReferralCascadeCron      string  `mapstructure:"referral_cascade_cron"`
	DefaultRail              string  `mapstructure:"default_rail"`
	TransferLockSeconds      int     `mapstructure:"transfer_lock_seconds"`
	TransferTimeoutSeconds   float64 `mapstructure:"transfer_timeout_seconds"`
}

// StripeConfig 卡/银行转账通道配置
type StripeConfig struct {
	SecretKey         string `mapstructure:"secret_key"`
	APIBaseURL        string `mapstructure:"api_base_url"`
	ConnectBaseURL    string `mapstructure:"connect_base_url"`
	MaxNetworkRetries int64  `mapstructure:"max_network_retries"`
	AccountCountry    string `mapstructure:"account_country"`
}

// ManualRailConfig 人工转账通道配置
type ManualRailConfig struct {
	OperatorID    uint   `mapstructure:"operator_id"`
	OperatorEmail string `mapstructure:"operator_email"`
}

// EmailConfig 通知邮件配置
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

// Decimal 解析十进制配置项，解析失败返回 fallback
func Decimal(raw string, fallback decimal.Decimal) decimal.Decimal {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		logger.Warnw("config_decimal_parse_failed", "value", raw, "error", err)
		return fallback
	}
	return value
}

// Load 从 .env 与 config.yml 加载配置
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		logger.Infow("config_dotenv_loaded", "file", ".env")
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")     // 从当前目录查找
	viper.AddConfigPath("../")   // 如果从 cmd/server 运行
	viper.AddConfigPath("./etc") // etc 文件夹

	setDefaults(viper.GetViper())

	// 环境变量支持
	viper.AutomaticEnv()                                   // 自动读取环境变量
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 将 . 替换为 _ (例如 server.port -> SERVER_PORT)

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "settle.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/settle.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "settle")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("cron.token", "")
	v.SetDefault("cron.rate_limit_count", 6)
	v.SetDefault("cron.rate_limit_secs", 60)
	v.SetDefault("settlement.currency", "usd")
	v.SetDefault("settlement.rail_fee_pct", "0.029")
	v.SetDefault("settlement.rail_fee_fixed", "0.30")
	v.SetDefault("settlement.referral_fee", "5.00")
	v.SetDefault("settlement.platform_share_pct", "0.25")
	v.SetDefault("settlement.visits_per_period", 4)
	v.SetDefault("settlement.max_retries", 3)
	v.SetDefault("settlement.retry_cooldown_hours", 72)
	v.SetDefault("settlement.referral_cap_months", 12)
	v.SetDefault("settlement.referral_monthly_amount", "5.00")
	v.SetDefault("settlement.batch_concurrency", 4)
	v.SetDefault("settlement.retry_poll_interval_seconds", 300)
	v.SetDefault("settlement.referral_cascade_cron", "0 3 1 * *")
	v.SetDefault("settlement.default_rail", "auto")
	v.SetDefault("settlement.transfer_lock_seconds", 120)
	v.SetDefault("settlement.transfer_timeout_seconds", 30)
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.api_base_url", "")
	v.SetDefault("stripe.connect_base_url", "")
	v.SetDefault("stripe.max_network_retries", 2)
	v.SetDefault("stripe.account_country", "US")
	v.SetDefault("manual.operator_id", 1)
	v.SetDefault("manual.operator_email", "")
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.host", "")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.from_name", "Settlement")
}
