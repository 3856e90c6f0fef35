package models

import (
	"time"

	"gorm.io/gorm"
)

// Referral 推荐关系
type Referral struct {
	ID           uint           `gorm:"primarykey" json:"id"`                                      // 主键
	ReferrerID   uint           `gorm:"not null;index" json:"referrer_id"`                         // 推荐人ID
	ReferredID   uint           `gorm:"not null;uniqueIndex" json:"referred_id"`                   // 被推荐客户ID
	Code         string         `gorm:"type:varchar(32);index" json:"code"`                        // 推荐码
	Status       string         `gorm:"type:varchar(20);not null;index" json:"status"`             // 状态（pending/active/cancelled）
	PayoutStatus string         `gorm:"type:varchar(20);not null;default:'none'" json:"payout_status"` // 返佣进度
	ActivatedAt  *time.Time     `json:"activated_at,omitempty"`                                    // 激活时间
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                                   // 创建时间
	UpdatedAt    time.Time      `json:"updated_at"`                                                // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                                            // 软删除时间
}

// TableName 指定表名
func (Referral) TableName() string {
	return "referrals"
}

// ReferralPayout 推荐月度返佣记录
type ReferralPayout struct {
	ID         uint      `gorm:"primarykey" json:"id"`                                                      // 主键
	ReferralID uint      `gorm:"not null;index:idx_referral_payout_period,unique;index:idx_referral_payout_month,unique" json:"referral_id"` // 推荐关系ID
	Period     string    `gorm:"type:varchar(7);not null;index:idx_referral_payout_period,unique" json:"period"` // 账期（YYYY-MM）
	MonthIndex int       `gorm:"not null;index:idx_referral_payout_month,unique" json:"month_index"`       // 订阅开始后的月序号
	Amount     Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`                      // 返佣金额
	PaymentID  uint      `gorm:"not null;index" json:"payment_id"`                                          // 对应付款
	CreatedAt  time.Time `gorm:"index" json:"created_at"`                                                   // 创建时间
}

// TableName 指定表名
func (ReferralPayout) TableName() string {
	return "referral_payouts"
}
