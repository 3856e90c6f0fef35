package models

import "time"

// PaymentRetry 付款重试计划
type PaymentRetry struct {
	ID                uint       `gorm:"primarykey" json:"id"`                                                  // 主键
	PaymentID         uint       `gorm:"not null;index:idx_payment_retry_lineage,unique" json:"payment_id"`     // 付款ID
	RetryCount        int        `gorm:"not null;index:idx_payment_retry_lineage,unique" json:"retry_count"`    // 第几次重试
	Status            string     `gorm:"type:varchar(20);not null;index:idx_payment_retry_due" json:"status"`   // 状态
	NextRetryDate     time.Time  `gorm:"not null;index:idx_payment_retry_due" json:"next_retry_date"`           // 下次执行时间
	ErrorCode         string     `gorm:"type:varchar(32)" json:"error_code"`                                    // 失败分类
	ErrorMessage      string     `gorm:"type:text" json:"error_message"`                                        // 失败原因
	RailTransactionID string     `gorm:"type:varchar(128)" json:"rail_transaction_id"`                          // 通道流水号
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`                                                // 执行时间
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`                                               // 创建时间
	UpdatedAt         time.Time  `json:"updated_at"`                                                            // 更新时间

	Payment *Payment `gorm:"foreignKey:PaymentID" json:"payment,omitempty"`
}

// TableName 指定表名
func (PaymentRetry) TableName() string {
	return "payment_retries"
}
