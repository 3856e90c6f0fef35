package repository

import (
	"errors"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/models"

	"gorm.io/gorm"
)

// SubscriptionRepository 订阅数据访问接口
type SubscriptionRepository interface {
	WithTx(tx *gorm.DB) SubscriptionRepository
	Create(subscription *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	GetLatestByCustomer(customerID uint) (*models.Subscription, error)
	UpdateStatus(id uint, status string, at time.Time) error
}

// GormSubscriptionRepository GORM 实现
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository 创建订阅仓库
func NewSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSubscriptionRepository) WithTx(tx *gorm.DB) SubscriptionRepository {
	if tx == nil {
		return r
	}
	return &GormSubscriptionRepository{db: tx}
}

// Create 创建订阅
func (r *GormSubscriptionRepository) Create(subscription *models.Subscription) error {
	return r.db.Create(subscription).Error
}

// GetByID 按 ID 获取订阅
func (r *GormSubscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	var subscription models.Subscription
	if err := r.db.First(&subscription, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

// GetLatestByCustomer 获取客户最近的订阅
func (r *GormSubscriptionRepository) GetLatestByCustomer(customerID uint) (*models.Subscription, error) {
	var subscription models.Subscription
	result := r.db.Where("customer_id = ?", customerID).Order("start_date desc, id desc").Limit(1).Find(&subscription)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &subscription, nil
}

// UpdateStatus 更新订阅状态
func (r *GormSubscriptionRepository) UpdateStatus(id uint, status string, at time.Time) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": at,
	}
	switch status {
	case constants.SubscriptionStatusPastDue:
		updates["past_due_at"] = at
	case constants.SubscriptionStatusActive:
		updates["past_due_at"] = nil
	}
	return r.db.Model(&models.Subscription{}).Where("id = ?", id).Updates(updates).Error
}
