package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscription 客户服务订阅
type Subscription struct {
	ID              uint           `gorm:"primarykey" json:"id"`                                     // 主键
	CustomerID      uint           `gorm:"not null;index" json:"customer_id"`                        // 客户ID
	Status          string         `gorm:"type:varchar(20);not null;index" json:"status"`            // 状态（active/past_due/cancelled）
	PlanAmount      Money          `gorm:"type:decimal(20,2);not null;default:0" json:"plan_amount"` // 每期金额
	VisitsPerPeriod int            `gorm:"not null;default:4" json:"visits_per_period"`              // 每期上门次数
	StartDate       time.Time      `gorm:"not null;index" json:"start_date"`                         // 订阅开始日期
	PastDueAt       *time.Time     `json:"past_due_at,omitempty"`                                    // 转为逾期时间
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                                  // 创建时间
	UpdatedAt       time.Time      `json:"updated_at"`                                               // 更新时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                                           // 软删除时间
}

// TableName 指定表名
func (Subscription) TableName() string {
	return "subscriptions"
}
