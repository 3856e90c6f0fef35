package models

import (
	"time"

	"gorm.io/gorm"
)

// Earning 服务人员视角的收入记录
type Earning struct {
	ID               uint           `gorm:"primarykey" json:"id"`                                          // 主键
	PaymentID        uint           `gorm:"not null;uniqueIndex" json:"payment_id"`                        // 对应付款
	EmployeeID       uint           `gorm:"not null;index" json:"employee_id"`                             // 服务人员ID
	ServiceID        uint           `gorm:"not null;uniqueIndex" json:"service_id"`                        // 完成的服务ID
	SubscriptionID   *uint          `gorm:"index:idx_earning_subscription_period" json:"subscription_id,omitempty"` // 所属订阅
	Period           string         `gorm:"type:varchar(7);index:idx_earning_subscription_period" json:"period"`    // 计费账期（YYYY-MM）
	Amount           Money          `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`           // 收入总额
	PerVisitAmount   Money          `gorm:"type:decimal(20,2);not null;default:0" json:"per_visit_amount"` // 单次上门收入
	Visits           int            `gorm:"not null;default:1" json:"visits"`                              // 计费周期内上门次数
	Status           string         `gorm:"type:varchar(32);not null;index" json:"status"`                 // 状态（与付款同步）
	PaidVia          string         `gorm:"type:varchar(20)" json:"paid_via"`                              // 到账通道
	StripeTransferID string         `gorm:"type:varchar(128)" json:"stripe_transfer_id"`                   // 卡通道转账ID
	Reference        string         `gorm:"type:varchar(255)" json:"reference"`                            // 人工转账凭证
	ApprovedBy       *uint          `gorm:"index" json:"approved_by,omitempty"`                            // 审核人
	ApprovedAt       *time.Time     `json:"approved_at,omitempty"`                                         // 审核时间
	PaidAt           *time.Time     `json:"paid_at,omitempty"`                                             // 到账时间
	CreatedAt        time.Time      `gorm:"index" json:"created_at"`                                       // 创建时间
	UpdatedAt        time.Time      `json:"updated_at"`                                                    // 更新时间
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`                                                // 软删除时间

	Payment *Payment `gorm:"foreignKey:PaymentID" json:"payment,omitempty"`
}

// TableName 指定表名
func (Earning) TableName() string {
	return "earnings"
}
