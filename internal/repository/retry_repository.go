package repository

import (
	"errors"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/models"

	"gorm.io/gorm"
)

// RetryRepository 付款重试数据访问接口
type RetryRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) RetryRepository

	Create(retry *models.PaymentRetry) error
	GetByID(id uint) (*models.PaymentRetry, error)
	ListDue(now time.Time, limit int) ([]models.PaymentRetry, error)
	ListByPayment(paymentID uint) ([]models.PaymentRetry, error)
	LatestByPayment(paymentID uint) (*models.PaymentRetry, error)
	CountOpenByPayment(paymentID uint) (int64, error)
	TransitionStatus(id uint, from []string, to string, updates map[string]interface{}) (bool, error)
	CancelOpenByPayments(paymentIDs []uint, reason string) (int64, error)
}

// GormRetryRepository GORM 实现
type GormRetryRepository struct {
	db *gorm.DB
}

// NewRetryRepository 创建重试仓库
func NewRetryRepository(db *gorm.DB) *GormRetryRepository {
	return &GormRetryRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRetryRepository) WithTx(tx *gorm.DB) RetryRepository {
	if tx == nil {
		return r
	}
	return &GormRetryRepository{db: tx}
}

// Transaction 执行事务
func (r *GormRetryRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 创建重试计划，(payment_id, retry_count) 冲突返回 ErrDuplicate
func (r *GormRetryRepository) Create(retry *models.PaymentRetry) error {
	return wrapUnique(r.db.Create(retry).Error)
}

// GetByID 按 ID 获取重试计划
func (r *GormRetryRepository) GetByID(id uint) (*models.PaymentRetry, error) {
	var retry models.PaymentRetry
	if err := r.db.First(&retry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &retry, nil
}

// ListDue 获取已到期的待执行重试
func (r *GormRetryRepository) ListDue(now time.Time, limit int) ([]models.PaymentRetry, error) {
	query := r.db.Where("status = ? AND next_retry_date <= ?", constants.RetryStatusScheduled, now).
		Order("next_retry_date asc, id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.PaymentRetry
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByPayment 获取付款的重试链
func (r *GormRetryRepository) ListByPayment(paymentID uint) ([]models.PaymentRetry, error) {
	var rows []models.PaymentRetry
	if err := r.db.Where("payment_id = ?", paymentID).Order("retry_count asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// LatestByPayment 获取付款最近一次重试
func (r *GormRetryRepository) LatestByPayment(paymentID uint) (*models.PaymentRetry, error) {
	var retry models.PaymentRetry
	result := r.db.Where("payment_id = ?", paymentID).Order("retry_count desc").Limit(1).Find(&retry)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &retry, nil
}

// CountOpenByPayment 统计付款尚未结束的重试
func (r *GormRetryRepository) CountOpenByPayment(paymentID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.PaymentRetry{}).
		Where("payment_id = ? AND status IN ?", paymentID, []string{constants.RetryStatusScheduled, constants.RetryStatusPending}).
		Count(&count).Error
	return count, err
}

// TransitionStatus 条件更新重试状态
func (r *GormRetryRepository) TransitionStatus(id uint, from []string, to string, updates map[string]interface{}) (bool, error) {
	values := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for key, value := range updates {
		values[key] = value
	}
	result := r.db.Model(&models.PaymentRetry{}).Where("id = ? AND status IN ?", id, from).Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CancelOpenByPayments 终止一组付款的待执行重试
func (r *GormRetryRepository) CancelOpenByPayments(paymentIDs []uint, reason string) (int64, error) {
	if len(paymentIDs) == 0 {
		return 0, nil
	}
	now := time.Now()
	result := r.db.Model(&models.PaymentRetry{}).
		Where("payment_id IN ? AND status = ?", paymentIDs, constants.RetryStatusScheduled).
		Updates(map[string]interface{}{
			"status":        constants.RetryStatusFailed,
			"error_message": reason,
			"processed_at":  now,
			"updated_at":    now,
		})
	return result.RowsAffected, result.Error
}
