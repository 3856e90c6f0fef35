package models

import "time"

// Notification 待投递通知记录
type Notification struct {
	ID          uint       `gorm:"primarykey" json:"id"`                           // 主键
	Event       string     `gorm:"type:varchar(64);not null;index" json:"event"`   // 事件类型
	TargetType  string     `gorm:"type:varchar(20);not null" json:"target_type"`   // 通知对象类型（operator/payee）
	TargetID    uint       `gorm:"index" json:"target_id"`                         // 通知对象ID
	Email       string     `gorm:"type:varchar(255)" json:"email"`                 // 投递邮箱
	BizType     string     `gorm:"type:varchar(32);index:idx_notification_biz" json:"biz_type"` // 业务类型
	BizID       uint       `gorm:"index:idx_notification_biz" json:"biz_id"`       // 业务ID
	Payload     JSON       `gorm:"type:json" json:"payload"`                       // 通知内容
	Status      string     `gorm:"type:varchar(20);not null;index" json:"status"`  // 投递状态
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`             // 投递次数
	LastError   string     `gorm:"type:text" json:"last_error"`                    // 最近错误
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`                         // 投递时间
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`                        // 创建时间
	UpdatedAt   time.Time  `json:"updated_at"`                                     // 更新时间
}

// TableName 指定表名
func (Notification) TableName() string {
	return "notifications"
}
