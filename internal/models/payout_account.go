package models

import (
	"time"

	"gorm.io/gorm"
)

// PayoutAccount 收款账户
type PayoutAccount struct {
	ID              uint           `gorm:"primarykey" json:"id"`                                                       // 主键
	PayeeType       string         `gorm:"type:varchar(20);not null;index:idx_payout_account_payee,unique" json:"payee_type"` // 收款方类型
	PayeeID         uint           `gorm:"not null;index:idx_payout_account_payee,unique" json:"payee_id"`             // 收款方ID
	Email           string         `gorm:"type:varchar(255)" json:"email"`                                             // 联系邮箱
	DisplayName     string         `gorm:"type:varchar(120)" json:"display_name"`                                      // 展示名
	PreferredRail   string         `gorm:"type:varchar(20);not null;default:'stripe'" json:"preferred_rail"`           // 偏好通道
	StripeAccountID string         `gorm:"type:varchar(64)" json:"stripe_account_id"`                                  // 已关联的 Connect 账户
	ManualHandle    string         `gorm:"type:varchar(120)" json:"manual_handle"`                                     // 人工转账账号
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                                                    // 创建时间
	UpdatedAt       time.Time      `json:"updated_at"`                                                                 // 更新时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                                                             // 软删除时间
}

// TableName 指定表名
func (PayoutAccount) TableName() string {
	return "payout_accounts"
}
