package repository

import (
	"errors"
	"time"

	"github.com/settle-next/internal/models"

	"gorm.io/gorm"
)

// BatchRepository 付款批次数据访问接口
type BatchRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) BatchRepository

	Create(batch *models.PaymentBatch) error
	Update(batch *models.PaymentBatch) error
	GetByID(id uint) (*models.PaymentBatch, error)
	List(filter BatchListFilter) ([]models.PaymentBatch, int64, error)
	Delete(id uint) error
	TransitionStatus(id uint, from []string, to string, updates map[string]interface{}) (bool, error)
}

// GormBatchRepository GORM 实现
type GormBatchRepository struct {
	db *gorm.DB
}

// NewBatchRepository 创建批次仓库
func NewBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// WithTx 绑定事务
func (r *GormBatchRepository) WithTx(tx *gorm.DB) BatchRepository {
	if tx == nil {
		return r
	}
	return &GormBatchRepository{db: tx}
}

// Transaction 执行事务
func (r *GormBatchRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 创建批次
func (r *GormBatchRepository) Create(batch *models.PaymentBatch) error {
	return wrapUnique(r.db.Create(batch).Error)
}

// Update 更新批次
func (r *GormBatchRepository) Update(batch *models.PaymentBatch) error {
	return r.db.Save(batch).Error
}

// GetByID 根据 ID 获取批次
func (r *GormBatchRepository) GetByID(id uint) (*models.PaymentBatch, error) {
	var batch models.PaymentBatch
	if err := r.db.First(&batch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// List 分页查询批次
func (r *GormBatchRepository) List(filter BatchListFilter) ([]models.PaymentBatch, int64, error) {
	query := r.db.Model(&models.PaymentBatch{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var batches []models.PaymentBatch
	if err := applyPagination(query, filter.Page, filter.PageSize).Order("id desc").Find(&batches).Error; err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

// Delete 软删除批次
func (r *GormBatchRepository) Delete(id uint) error {
	return r.db.Delete(&models.PaymentBatch{}, id).Error
}

// TransitionStatus 条件更新批次状态，返回是否命中
func (r *GormBatchRepository) TransitionStatus(id uint, from []string, to string, updates map[string]interface{}) (bool, error) {
	values := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for key, value := range updates {
		values[key] = value
	}
	result := r.db.Model(&models.PaymentBatch{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
