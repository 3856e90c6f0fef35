package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/settle-next/internal/cache"
	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/metrics"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/payout"
	"github.com/settle-next/internal/repository"
)

// PayoutExecutor 对单笔付款执行一次通道转账
type PayoutExecutor struct {
	registry    *payout.Registry
	accountRepo repository.PayoutAccountRepository
	opts        SettlementOptions
}

// TransferOutcome 单次转账的执行结果
type TransferOutcome struct {
	Rail       string
	ExternalID string
	Status     payout.TransferStatus
	Replayed   bool
}

// NewPayoutExecutor 创建转账执行器
func NewPayoutExecutor(registry *payout.Registry, accountRepo repository.PayoutAccountRepository, opts SettlementOptions) *PayoutExecutor {
	return &PayoutExecutor{
		registry:    registry,
		accountRepo: accountRepo,
		opts:        opts.normalize(),
	}
}

// ValidSelector 校验批次通道选择器
func (e *PayoutExecutor) ValidSelector(selector string) bool {
	return e.registry.ValidSelector(selector)
}

// Execute 解析通道并转账；已结算的幂等冲突按成功返回
func (e *PayoutExecutor) Execute(ctx context.Context, payment *models.Payment, selector string) (*TransferOutcome, error) {
	if payment == nil {
		return nil, payout.NewError(payout.KindValidation, "", "payment is required", nil)
	}
	account, err := e.accountRepo.GetByPayee(payment.PayeeType, payment.PayeeID)
	if err != nil {
		return nil, payout.NewError(payout.KindRailUnavailable, "account_lookup_failed", "load payout account failed", err)
	}
	preferred := ""
	if account != nil {
		preferred = account.PreferredRail
	}
	rail, err := e.registry.Resolve(selector, preferred)
	if err != nil {
		return nil, payout.NewError(payout.KindValidation, "rail_unresolved", "resolve payout rail failed", err)
	}
	outcome := &TransferOutcome{Rail: rail.Name()}
	// 零额付款无需转账
	if payment.Amount.IsZero() {
		logger.Infow("payout_zero_amount_settled", "payment_id", payment.ID, "rail", rail.Name())
		outcome.Status = payout.StatusSucceeded
		return outcome, nil
	}

	lock, err := cache.AcquireLock(ctx, cache.TransferLockKey(payment.ID), e.opts.TransferLockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return outcome, payout.NewError(payout.KindRailUnavailable, "transfer_in_flight", "another transfer for this payment is in flight", err)
		}
		return outcome, payout.NewError(payout.KindRailUnavailable, "lock_failed", "acquire transfer lock failed", err)
	}
	defer func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil {
			logger.Warnw("payout_lock_release_failed", "payment_id", payment.ID, "error", releaseErr)
		}
	}()

	dest := buildDestination(payment, account)
	req := payout.TransferRequest{
		PaymentID:      payment.ID,
		Destination:    dest,
		Amount:         payment.Amount.Decimal,
		Currency:       payment.Currency,
		IdempotencyKey: paymentIdempotencyKey(payment),
		Memo:           payment.Memo,
	}
	result, err := e.transfer(ctx, rail, req)
	if payout.KindOf(err) == payout.KindNoLinkedAccount {
		accountID, linked := e.linkAccount(ctx, rail, account, dest)
		if linked {
			req.Destination.AccountID = accountID
			result, err = e.transfer(ctx, rail, req)
		}
	}
	if err != nil {
		if payout.IsSettled(err) {
			logger.Infow("payout_transfer_already_settled",
				"payment_id", payment.ID,
				"rail", rail.Name(),
				"error", err,
			)
			outcome.ExternalID = payment.RailTransactionID
			outcome.Status = payout.StatusSucceeded
			outcome.Replayed = true
			return outcome, nil
		}
		return outcome, err
	}
	outcome.ExternalID = result.ExternalID
	outcome.Status = result.Status
	outcome.Replayed = result.Replayed
	return outcome, nil
}

func (e *PayoutExecutor) transfer(ctx context.Context, rail payout.Rail, req payout.TransferRequest) (*payout.TransferResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.TransferTimeout)
	defer cancel()

	started := time.Now()
	result, err := rail.Transfer(callCtx, req)
	metrics.ObserveTransfer(rail.Name(), transferOutcomeLabel(result, err), time.Since(started))
	if err == nil && result == nil {
		err = payout.NewError(payout.KindRailUnavailable, "empty_result", "rail returned no result", nil)
	}
	return result, err
}

// linkAccount 在通道支持时为收款方创建关联账户
func (e *PayoutExecutor) linkAccount(ctx context.Context, rail payout.Rail, account *models.PayoutAccount, dest payout.Destination) (string, bool) {
	linker, ok := rail.(payout.AccountLinker)
	if !ok || account == nil {
		return "", false
	}
	accountID, err := linker.LinkAccount(ctx, dest)
	if err != nil || strings.TrimSpace(accountID) == "" {
		logger.Warnw("payout_account_link_failed",
			"payee_type", account.PayeeType,
			"payee_id", account.PayeeID,
			"rail", rail.Name(),
			"error", err,
		)
		return "", false
	}
	if err := e.accountRepo.SetStripeAccount(account.ID, accountID); err != nil {
		logger.Warnw("payout_account_link_persist_failed",
			"payout_account_id", account.ID,
			"error", err,
		)
	}
	account.StripeAccountID = accountID
	logger.Infow("payout_account_linked",
		"payout_account_id", account.ID,
		"rail", rail.Name(),
	)
	return accountID, true
}

func buildDestination(payment *models.Payment, account *models.PayoutAccount) payout.Destination {
	dest := payout.Destination{
		PayeeType: payment.PayeeType,
		PayeeID:   payment.PayeeID,
	}
	if account != nil {
		dest.AccountID = account.StripeAccountID
		dest.Handle = account.ManualHandle
		dest.Email = account.Email
		dest.DisplayName = account.DisplayName
	}
	return dest
}

func paymentIdempotencyKey(payment *models.Payment) string {
	if key := strings.TrimSpace(payment.IdempotencyKey); key != "" {
		return key
	}
	return payout.IdempotencyKey(payment.ID)
}

func transferOutcomeLabel(result *payout.TransferResult, err error) string {
	if err != nil {
		return strings.ToLower(string(payout.KindOf(err)))
	}
	if result == nil {
		return "empty"
	}
	return string(result.Status)
}

// failureFields 失败时写入付款的错误字段
func failureFields(err error) (string, string) {
	kind := payout.KindOf(err)
	message := ""
	if err != nil {
		message = err.Error()
	}
	return string(kind), message
}
