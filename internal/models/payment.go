package models

import (
	"time"

	"gorm.io/gorm"
)

// Payment 单笔付款义务
type Payment struct {
	ID                uint           `gorm:"primarykey" json:"id"`                                           // 主键
	Amount            Money          `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`            // 付款金额
	Currency          string         `gorm:"type:varchar(10);not null" json:"currency"`                      // 币种
	Type              string         `gorm:"type:varchar(32);not null;index" json:"type"`                    // 付款类型（service/referral/monthly_referral/earnings）
	Status            string         `gorm:"type:varchar(32);not null;index" json:"status"`                  // 付款状态
	PayeeType         string         `gorm:"type:varchar(20);not null;index:idx_payment_payee" json:"payee_type"` // 收款方类型（employee/referrer）
	PayeeID           uint           `gorm:"not null;index:idx_payment_payee" json:"payee_id"`               // 收款方ID
	SourceType        string         `gorm:"type:varchar(20);not null;index:idx_payment_source" json:"source_type"` // 来源类型（service/referral）
	SourceID          uint           `gorm:"not null;index:idx_payment_source" json:"source_id"`             // 来源ID
	SubscriptionID    *uint          `gorm:"index" json:"subscription_id,omitempty"`                         // 关联订阅
	BatchID           *uint          `gorm:"index" json:"batch_id,omitempty"`                                // 所属批次
	Rail              string         `gorm:"type:varchar(20)" json:"rail"`                                   // 实际使用的转账通道
	RailTransactionID string         `gorm:"type:varchar(128);index" json:"rail_transaction_id"`             // 通道流水号
	IdempotencyKey    string         `gorm:"type:varchar(80);index" json:"idempotency_key"`                  // 转账幂等键（由付款 ID 派生）
	ErrorCode         string         `gorm:"type:varchar(32)" json:"error_code"`                             // 失败分类
	ErrorMessage      string         `gorm:"type:text" json:"error_message"`                                 // 失败原因
	Reference         string         `gorm:"type:varchar(255)" json:"reference"`                             // 人工确认凭证
	Memo              string         `gorm:"type:varchar(255)" json:"memo"`                                  // 转账备注
	ApprovedBy        *uint          `gorm:"index" json:"approved_by,omitempty"`                             // 审核人
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`                                        // 创建时间
	ApprovedAt        *time.Time     `gorm:"index" json:"approved_at,omitempty"`                             // 审核时间
	PaidAt            *time.Time     `gorm:"index" json:"paid_at,omitempty"`                                 // 到账时间
	UpdatedAt         time.Time      `gorm:"index" json:"updated_at"`                                        // 更新时间
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`                                                 // 软删除时间
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}
