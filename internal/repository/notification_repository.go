package repository

import (
	"errors"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/models"

	"gorm.io/gorm"
)

// NotificationRepository 通知记录数据访问接口
type NotificationRepository interface {
	WithTx(tx *gorm.DB) NotificationRepository
	Create(notification *models.Notification) error
	GetByID(id uint) (*models.Notification, error)
	ListByBiz(bizType string, bizID uint) ([]models.Notification, error)
	MarkDelivered(id uint, at time.Time) error
	MarkFailed(id uint, reason string, at time.Time) error
}

// GormNotificationRepository GORM 实现
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知仓库
func NewNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

// WithTx 绑定事务
func (r *GormNotificationRepository) WithTx(tx *gorm.DB) NotificationRepository {
	if tx == nil {
		return r
	}
	return &GormNotificationRepository{db: tx}
}

// Create 创建通知记录
func (r *GormNotificationRepository) Create(notification *models.Notification) error {
	return r.db.Create(notification).Error
}

// GetByID 按 ID 获取通知
func (r *GormNotificationRepository) GetByID(id uint) (*models.Notification, error) {
	var notification models.Notification
	if err := r.db.First(&notification, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &notification, nil
}

// ListByBiz 获取业务对象关联的通知
func (r *GormNotificationRepository) ListByBiz(bizType string, bizID uint) ([]models.Notification, error) {
	var rows []models.Notification
	if err := r.db.Where("biz_type = ? AND biz_id = ?", bizType, bizID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkDelivered 标记通知已投递
func (r *GormNotificationRepository) MarkDelivered(id uint, at time.Time) error {
	return r.db.Model(&models.Notification{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       constants.NotificationStatusDelivered,
		"attempts":     gorm.Expr("attempts + 1"),
		"delivered_at": at,
		"updated_at":   at,
	}).Error
}

// MarkFailed 标记通知投递失败
func (r *GormNotificationRepository) MarkFailed(id uint, reason string, at time.Time) error {
	return r.db.Model(&models.Notification{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     constants.NotificationStatusFailed,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": reason,
		"updated_at": at,
	}).Error
}
