package service

import (
	"strings"
	"time"

	"github.com/settle-next/internal/config"
	"github.com/settle-next/internal/fee"

	"github.com/shopspring/decimal"
)

const (
	defaultCurrency            = "USD"
	defaultVisitsPerPeriod     = 4
	defaultMaxRetries          = 3
	defaultRetryCooldown       = 72 * time.Hour
	defaultReferralCapMonths   = 12
	defaultBatchConcurrency    = 4
	defaultTransferLockTTL     = 120 * time.Second
	defaultTransferTimeout     = 30 * time.Second
	defaultRetryPollBatchLimit = 200
)

var (
	defaultRailFeePct            = decimal.RequireFromString("0.029")
	defaultRailFeeFixed          = decimal.RequireFromString("0.30")
	defaultReferralFee           = decimal.RequireFromString("5.00")
	defaultPlatformSharePct      = decimal.RequireFromString("0.25")
	defaultReferralMonthlyAmount = decimal.RequireFromString("5.00")
)

// SettlementOptions 结算引擎运行参数
type SettlementOptions struct {
	Currency              string
	Fee                   fee.Calculator
	ReferralFee           decimal.Decimal
	ReferralMonthlyAmount decimal.Decimal
	VisitsPerPeriod       int
	MaxRetries            int
	RetryCooldown         time.Duration
	RetryBatchLimit       int
	ReferralCapMonths     int
	BatchConcurrency      int
	DefaultRail           string
	TransferLockTTL       time.Duration
	TransferTimeout       time.Duration
	OperatorID            uint
	OperatorEmail         string
}

// SettlementOptionsFromConfig 从配置构建结算参数
func SettlementOptionsFromConfig(cfg *config.Config) SettlementOptions {
	if cfg == nil {
		return DefaultSettlementOptions()
	}
	s := cfg.Settlement
	opts := SettlementOptions{
		Currency: s.Currency,
		Fee: fee.Calculator{
			RailFeePct:       config.Decimal(s.RailFeePct, defaultRailFeePct),
			RailFeeFixed:     config.Decimal(s.RailFeeFixed, defaultRailFeeFixed),
			PlatformSharePct: config.Decimal(s.PlatformSharePct, defaultPlatformSharePct),
		},
		ReferralFee:           config.Decimal(s.ReferralFee, defaultReferralFee),
		ReferralMonthlyAmount: config.Decimal(s.ReferralMonthlyAmount, defaultReferralMonthlyAmount),
		VisitsPerPeriod:       s.VisitsPerPeriod,
		MaxRetries:            s.MaxRetries,
		RetryCooldown:         time.Duration(s.RetryCooldownHours) * time.Hour,
		ReferralCapMonths:     s.ReferralCapMonths,
		BatchConcurrency:      s.BatchConcurrency,
		DefaultRail:           s.DefaultRail,
		TransferLockTTL:       time.Duration(s.TransferLockSeconds) * time.Second,
		TransferTimeout:       time.Duration(s.TransferTimeoutSeconds * float64(time.Second)),
		OperatorID:            cfg.Manual.OperatorID,
		OperatorEmail:         cfg.Manual.OperatorEmail,
	}
	return opts.normalize()
}

// DefaultSettlementOptions 默认结算参数
func DefaultSettlementOptions() SettlementOptions {
	return SettlementOptions{}.normalize()
}

func (o SettlementOptions) normalize() SettlementOptions {
	o.Currency = strings.ToUpper(strings.TrimSpace(o.Currency))
	if o.Currency == "" {
		o.Currency = defaultCurrency
	}
	if o.Fee.RailFeePct.IsZero() && o.Fee.RailFeeFixed.IsZero() {
		o.Fee.RailFeePct = defaultRailFeePct
		o.Fee.RailFeeFixed = defaultRailFeeFixed
	}
	if o.Fee.PlatformSharePct.IsZero() {
		o.Fee.PlatformSharePct = defaultPlatformSharePct
	}
	if o.ReferralFee.IsNegative() {
		o.ReferralFee = defaultReferralFee
	}
	if o.ReferralMonthlyAmount.LessThanOrEqual(decimal.Zero) {
		o.ReferralMonthlyAmount = defaultReferralMonthlyAmount
	}
	if o.VisitsPerPeriod <= 0 {
		o.VisitsPerPeriod = defaultVisitsPerPeriod
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.RetryCooldown <= 0 {
		o.RetryCooldown = defaultRetryCooldown
	}
	if o.RetryBatchLimit <= 0 {
		o.RetryBatchLimit = defaultRetryPollBatchLimit
	}
	if o.ReferralCapMonths <= 0 {
		o.ReferralCapMonths = defaultReferralCapMonths
	}
	if o.BatchConcurrency <= 0 {
		o.BatchConcurrency = defaultBatchConcurrency
	}
	if o.TransferLockTTL <= 0 {
		o.TransferLockTTL = defaultTransferLockTTL
	}
	if o.TransferTimeout <= 0 {
		o.TransferTimeout = defaultTransferTimeout
	}
	return o
}
