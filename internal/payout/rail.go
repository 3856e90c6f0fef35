// Package payout 定义统一的转账通道能力，以及通道错误分类
package payout

import (
	"context"

	"github.com/shopspring/decimal"
)

// TransferStatus 通道受理结果
type TransferStatus string

const (
	// StatusSucceeded 已由通道完成转账
	StatusSucceeded TransferStatus = "succeeded"
	// StatusPendingManual 等待人工线下转账并确认
	StatusPendingManual TransferStatus = "pending_manual"
)

// Destination 收款目标
type Destination struct {
	PayeeType   string
	PayeeID     uint
	AccountID   string // 卡/银行通道的已关联账户
	Handle      string // 人工通道的收款账号
	Email       string
	DisplayName string
}

// TransferRequest 单笔转账请求
type TransferRequest struct {
	PaymentID      uint
	Destination    Destination
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
	Memo           string
}

// TransferResult 单笔转账结果
type TransferResult struct {
	ExternalID string
	Status     TransferStatus
	Replayed   bool // 通道按幂等键返回了此前的结果
}

// Rail 转账通道
type Rail interface {
	Name() string
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// AccountLinker 可按需为收款方创建关联账户的通道
type AccountLinker interface {
	LinkAccount(ctx context.Context, dest Destination) (string, error)
}
