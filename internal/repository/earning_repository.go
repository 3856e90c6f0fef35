package repository

import (
	"errors"
	"time"

	"github.com/settle-next/internal/models"

	"gorm.io/gorm"
)

// EarningRepository 服务人员收入数据访问接口
type EarningRepository interface {
	WithTx(tx *gorm.DB) EarningRepository
	Create(earning *models.Earning) error
	GetByID(id uint) (*models.Earning, error)
	GetByPaymentID(paymentID uint) (*models.Earning, error)
	GetByServiceID(serviceID uint) (*models.Earning, error)
	GetBySubscriptionPeriod(subscriptionID uint, period string) (*models.Earning, error)
	UpdateByPaymentID(paymentID uint, updates map[string]interface{}) error
	ListByEmployee(employeeID uint, page, pageSize int) ([]models.Earning, int64, error)
	DeleteByPaymentIDs(paymentIDs []uint) (int64, error)
}

// GormEarningRepository GORM 实现
type GormEarningRepository struct {
	db *gorm.DB
}

// NewEarningRepository 创建收入仓库
func NewEarningRepository(db *gorm.DB) *GormEarningRepository {
	return &GormEarningRepository{db: db}
}

// WithTx 绑定事务
func (r *GormEarningRepository) WithTx(tx *gorm.DB) EarningRepository {
	if tx == nil {
		return r
	}
	return &GormEarningRepository{db: tx}
}

// Create 创建收入记录
func (r *GormEarningRepository) Create(earning *models.Earning) error {
	return wrapUnique(r.db.Create(earning).Error)
}

// GetByID 根据 ID 获取收入记录
func (r *GormEarningRepository) GetByID(id uint) (*models.Earning, error) {
	return r.first(r.db.Where("id = ?", id))
}

// GetByPaymentID 根据付款获取收入记录
func (r *GormEarningRepository) GetByPaymentID(paymentID uint) (*models.Earning, error) {
	return r.first(r.db.Where("payment_id = ?", paymentID))
}

// GetBySubscriptionPeriod 获取订阅在指定账期的收入记录
func (r *GormEarningRepository) GetBySubscriptionPeriod(subscriptionID uint, period string) (*models.Earning, error) {
	return r.first(r.db.Where("subscription_id = ? AND period = ?", subscriptionID, period))
}

// GetByServiceID 根据服务获取收入记录
func (r *GormEarningRepository) GetByServiceID(serviceID uint) (*models.Earning, error) {
	return r.first(r.db.Where("service_id = ?", serviceID))
}

func (r *GormEarningRepository) first(query *gorm.DB) (*models.Earning, error) {
	var earning models.Earning
	if err := query.First(&earning).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &earning, nil
}

// UpdateByPaymentID 同步付款状态到收入记录
func (r *GormEarningRepository) UpdateByPaymentID(paymentID uint, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	values := map[string]interface{}{"updated_at": time.Now()}
	for key, value := range updates {
		values[key] = value
	}
	return r.db.Model(&models.Earning{}).Where("payment_id = ?", paymentID).Updates(values).Error
}

// ListByEmployee 分页查询服务人员收入
func (r *GormEarningRepository) ListByEmployee(employeeID uint, page, pageSize int) ([]models.Earning, int64, error) {
	query := r.db.Model(&models.Earning{}).Where("employee_id = ?", employeeID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Earning
	if err := applyPagination(query, page, pageSize).Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// DeleteByPaymentIDs 软删除付款对应的收入记录
func (r *GormEarningRepository) DeleteByPaymentIDs(paymentIDs []uint) (int64, error) {
	if len(paymentIDs) == 0 {
		return 0, nil
	}
	result := r.db.Where("payment_id IN ?", paymentIDs).Delete(&models.Earning{})
	return result.RowsAffected, result.Error
}
