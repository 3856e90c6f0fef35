// Package stripe 通过 Stripe Connect 转账完成卡/银行通道结算
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/payout"

	"github.com/shopspring/decimal"
	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// RailName 通道名称
const RailName = "stripe"

const defaultHTTPTimeout = 30 * time.Second

var (
	ErrConfigInvalid = errors.New("stripe config invalid")
)

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {},
	"CLP": {},
	"DJF": {},
	"GNF": {},
	"JPY": {},
	"KMF": {},
	"KRW": {},
	"MGA": {},
	"PYG": {},
	"RWF": {},
	"UGX": {},
	"VND": {},
	"VUV": {},
	"XAF": {},
	"XOF": {},
	"XPF": {},
}

// Config Stripe 通道配置
type Config struct {
	SecretKey         string
	APIBaseURL        string // 为空时使用官方地址
	ConnectBaseURL    string
	MaxNetworkRetries int64
	AccountCountry    string
	HTTPClient        *http.Client
}

// Rail Stripe 转账通道
type Rail struct {
	api     *client.API
	country string
}

// New 创建 Stripe 通道
func New(cfg Config) (*Rail, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	apiBackend := newBackend(stripego.APIBackend, cfg.APIBaseURL, cfg.MaxNetworkRetries, httpClient)
	connectBackend := newBackend(stripego.ConnectBackend, firstNonEmpty(cfg.ConnectBaseURL, cfg.APIBaseURL), cfg.MaxNetworkRetries, httpClient)
	uploadsBackend := newBackend(stripego.UploadsBackend, cfg.APIBaseURL, cfg.MaxNetworkRetries, httpClient)

	api := client.New(strings.TrimSpace(cfg.SecretKey), &stripego.Backends{
		API:     apiBackend,
		Connect: connectBackend,
		Uploads: uploadsBackend,
	})
	country := strings.ToUpper(strings.TrimSpace(cfg.AccountCountry))
	if country == "" {
		country = "US"
	}
	return &Rail{api: api, country: country}, nil
}

func newBackend(kind stripego.SupportedBackend, baseURL string, retries int64, httpClient *http.Client) stripego.Backend {
	backendCfg := &stripego.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripego.Int64(retries),
		LeveledLogger:     logger.S(),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
		backendCfg.URL = stripego.String(trimmed)
	}
	return stripego.GetBackendWithConfig(kind, backendCfg)
}

// Name 通道名称
func (r *Rail) Name() string {
	return RailName
}

// Transfer 向已关联的 Connect 账户发起转账
func (r *Rail) Transfer(ctx context.Context, req payout.TransferRequest) (*payout.TransferResult, error) {
	destination := strings.TrimSpace(req.Destination.AccountID)
	if destination == "" {
		return nil, payout.NewError(payout.KindNoLinkedAccount, "", "payee has no linked stripe account", nil)
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, payout.NewError(payout.KindValidation, "", "idempotency key is required", nil)
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, payout.NewError(payout.KindValidation, "", "currency is required", nil)
	}
	minor, err := toMinorAmount(req.Amount, currency)
	if err != nil {
		return nil, payout.NewError(payout.KindValidation, "", err.Error(), err)
	}

	params := &stripego.TransferParams{
		Amount:        stripego.Int64(minor),
		Currency:      stripego.String(currency),
		Destination:   stripego.String(destination),
		TransferGroup: stripego.String("payment-" + strconv.FormatUint(uint64(req.PaymentID), 10)),
	}
	if memo := strings.TrimSpace(req.Memo); memo != "" {
		params.Description = stripego.String(memo)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("payment_id", strconv.FormatUint(uint64(req.PaymentID), 10))
	params.AddMetadata("payee_type", req.Destination.PayeeType)
	params.AddMetadata("payee_id", strconv.FormatUint(uint64(req.Destination.PayeeID), 10))

	transfer, err := r.api.Transfers.New(params)
	if err != nil {
		return nil, classify(err)
	}
	result := &payout.TransferResult{
		ExternalID: transfer.ID,
		Status:     payout.StatusSucceeded,
	}
	if transfer.LastResponse != nil && strings.EqualFold(transfer.LastResponse.Header.Get("Idempotent-Replayed"), "true") {
		result.Replayed = true
	}
	return result, nil
}

// LinkAccount 为收款方创建 Express Connect 账户
func (r *Rail) LinkAccount(ctx context.Context, dest payout.Destination) (string, error) {
	params := &stripego.AccountParams{
		Type:    stripego.String(string(stripego.AccountTypeExpress)),
		Country: stripego.String(r.country),
		Capabilities: &stripego.AccountCapabilitiesParams{
			Transfers: &stripego.AccountCapabilitiesTransfersParams{Requested: stripego.Bool(true)},
		},
	}
	if email := strings.TrimSpace(dest.Email); email != "" {
		params.Email = stripego.String(email)
	}
	params.Context = ctx
	params.SetIdempotencyKey(fmt.Sprintf("link-%s-%d", dest.PayeeType, dest.PayeeID))
	params.AddMetadata("payee_type", dest.PayeeType)
	params.AddMetadata("payee_id", strconv.FormatUint(uint64(dest.PayeeID), 10))

	account, err := r.api.Accounts.New(params)
	if err != nil {
		return "", classify(err)
	}
	if strings.TrimSpace(account.ID) == "" {
		return "", payout.NewError(payout.KindNoLinkedAccount, "", "stripe returned empty account id", nil)
	}
	return account.ID, nil
}

// classify 将 Stripe 错误映射为通道错误分类
func classify(err error) error {
	var stripeErr *stripego.Error
	if !errors.As(err, &stripeErr) {
		return payout.NewError(payout.KindRailUnavailable, "", err.Error(), err)
	}
	code := string(stripeErr.Code)
	message := stripeErr.Msg
	if message == "" {
		message = err.Error()
	}

	switch {
	case string(stripeErr.Type) == "idempotency_error":
		return payout.NewError(payout.KindAlreadySettled, code, message, err)
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
		return payout.NewError(payout.KindRailUnavailable, code, message, err)
	case string(stripeErr.Type) == "api_error":
		return payout.NewError(payout.KindRailUnavailable, code, message, err)
	case code == "balance_insufficient" || code == "lock_timeout" || code == "rate_limit":
		return payout.NewError(payout.KindRailUnavailable, code, message, err)
	case isMissingDestination(stripeErr):
		return payout.NewError(payout.KindNoLinkedAccount, code, message, err)
	default:
		return payout.NewError(payout.KindRailDeclined, code, message, err)
	}
}

func isMissingDestination(stripeErr *stripego.Error) bool {
	code := string(stripeErr.Code)
	if code == "account_invalid" {
		return true
	}
	return code == "resource_missing" && stripeErr.Param == "destination"
}

func toMinorAmount(amount decimal.Decimal, currency string) (int64, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return 0, errors.New("amount must be greater than zero")
	}
	scale := currencyScale(currency)
	minor := amount.Shift(int32(scale))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, errors.New("amount precision is invalid")
	}
	return minor.IntPart(), nil
}

func currencyScale(currency string) int {
	upper := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[upper]; ok {
		return 0
	}
	return 2
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
