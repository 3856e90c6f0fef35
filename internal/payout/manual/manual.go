// Package manual 人工/现金转账通道，由操作员线下完成转账后确认
package manual

import (
	"context"
	"fmt"
	"strings"

	"github.com/settle-next/internal/payout"

	"github.com/shopspring/decimal"
)

// RailName 通道名称
const RailName = "manual"

// Notifier 为人工转账生成持久化通知
type Notifier interface {
	NotifyManualPayout(ctx context.Context, req payout.TransferRequest) error
}

// Rail 人工转账通道
type Rail struct {
	notifier Notifier
}

// New 创建人工转账通道
func New(notifier Notifier) *Rail {
	return &Rail{notifier: notifier}
}

// Name 通道名称
func (r *Rail) Name() string {
	return RailName
}

// Transfer 登记待人工处理的转账并通知收款方与操作员
func (r *Rail) Transfer(ctx context.Context, req payout.TransferRequest) (*payout.TransferResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, payout.NewError(payout.KindValidation, "", "amount must be greater than zero", nil)
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, payout.NewError(payout.KindValidation, "", "idempotency key is required", nil)
	}
	if r.notifier != nil {
		if err := r.notifier.NotifyManualPayout(ctx, req); err != nil {
			return nil, payout.NewError(payout.KindRailUnavailable, "notify_failed", "record manual payout notification failed", err)
		}
	}
	return &payout.TransferResult{
		ExternalID: fmt.Sprintf("manual-%d", req.PaymentID),
		Status:     payout.StatusPendingManual,
	}, nil
}
