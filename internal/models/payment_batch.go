package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentBatch 付款批次
type PaymentBatch struct {
	ID                  uint           `gorm:"primarykey" json:"id"`                                       // 主键
	BatchNo             string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"batch_no"`      // 批次号
	Type                string         `gorm:"type:varchar(20);not null" json:"type"`                      // 批次类型
	Status              string         `gorm:"type:varchar(20);not null;index" json:"status"`              // 批次状态
	Rail                string         `gorm:"type:varchar(20)" json:"rail"`                               // 最近一次处理使用的通道
	ScheduledDate       *time.Time     `gorm:"index" json:"scheduled_date,omitempty"`                      // 计划处理日期
	ProcessingStartedAt *time.Time     `json:"processing_started_at,omitempty"`                            // 开始处理时间
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`                                     // 处理结束时间
	TotalPayments       int            `gorm:"not null;default:0" json:"total_payments"`                   // 成员数量
	SuccessCount        int            `gorm:"not null;default:0" json:"success_count"`                    // 成功数量
	FailedCount         int            `gorm:"not null;default:0" json:"failed_count"`                     // 失败数量
	TotalAmount         Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`  // 批次总额
	Notes               string         `gorm:"type:text" json:"notes"`                                     // 备注
	CreatedBy           uint           `gorm:"index" json:"created_by"`                                    // 创建人
	CreatedAt           time.Time      `gorm:"index" json:"created_at"`                                    // 创建时间
	UpdatedAt           time.Time      `json:"updated_at"`                                                 // 更新时间
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`                                             // 软删除时间

	Payments []Payment `gorm:"foreignKey:BatchID" json:"payments,omitempty"`
}

// TableName 指定表名
func (PaymentBatch) TableName() string {
	return "payment_batches"
}
