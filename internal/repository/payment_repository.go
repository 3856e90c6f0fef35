package repository

import (
	"errors"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/models"

	"gorm.io/gorm"
)

// PaymentRepository 付款数据访问接口
type PaymentRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) PaymentRepository

	Create(payment *models.Payment) error
	Update(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByIDs(ids []uint) ([]models.Payment, error)
	ListByBatch(batchID uint) ([]models.Payment, error)
	List(filter PaymentListFilter) ([]models.Payment, int64, error)

	AttachToBatch(batchID uint, ids []uint) (int64, error)
	DetachFromBatch(batchID uint, ids []uint) (int64, error)
	ReleaseBatch(batchID uint) (int64, error)
	DeleteByBatch(batchID uint) (int64, error)
	SumByBatch(batchID uint) (models.Money, int64, error)

	TransitionStatus(id uint, from []string, to string, updates map[string]interface{}) (bool, error)
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建付款仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) PaymentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRepository{db: tx}
}

// Transaction 执行事务
func (r *GormPaymentRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 创建付款记录
func (r *GormPaymentRepository) Create(payment *models.Payment) error {
	return wrapUnique(r.db.Create(payment).Error)
}

// Update 更新付款记录
func (r *GormPaymentRepository) Update(payment *models.Payment) error {
	return wrapUnique(r.db.Save(payment).Error)
}

// GetByID 根据 ID 获取付款记录
func (r *GormPaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetByIDs 根据 ID 列表获取付款记录
func (r *GormPaymentRepository) GetByIDs(ids []uint) ([]models.Payment, error) {
	if len(ids) == 0 {
		return []models.Payment{}, nil
	}
	var payments []models.Payment
	if err := r.db.Where("id IN ?", ids).Order("id asc").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// ListByBatch 获取批次成员
func (r *GormPaymentRepository) ListByBatch(batchID uint) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.Where("batch_id = ?", batchID).Order("id asc").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// List 分页查询付款记录
func (r *GormPaymentRepository) List(filter PaymentListFilter) ([]models.Payment, int64, error) {
	query := r.db.Model(&models.Payment{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PayeeType != "" {
		query = query.Where("payee_type = ?", filter.PayeeType)
	}
	if filter.PayeeID != 0 {
		query = query.Where("payee_id = ?", filter.PayeeID)
	}
	if filter.BatchID != 0 {
		query = query.Where("batch_id = ?", filter.BatchID)
	}
	if filter.Unbatched {
		query = query.Where("batch_id IS NULL")
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var payments []models.Payment
	if err := query.Order("id desc").Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// AttachToBatch 将已审核且未入批的付款绑定到批次
func (r *GormPaymentRepository) AttachToBatch(batchID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Payment{}).
		Where("id IN ? AND status = ? AND batch_id IS NULL", ids, constants.PaymentStatusApproved).
		Updates(map[string]interface{}{
			"batch_id":   batchID,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// DetachFromBatch 从批次移除指定付款
func (r *GormPaymentRepository) DetachFromBatch(batchID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Payment{}).
		Where("batch_id = ? AND id IN ?", batchID, ids).
		Updates(map[string]interface{}{
			"batch_id":   nil,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// ReleaseBatch 解绑批次内尚未结算的付款并恢复为已审核
func (r *GormPaymentRepository) ReleaseBatch(batchID uint) (int64, error) {
	result := r.db.Model(&models.Payment{}).
		Where("batch_id = ? AND status IN ?", batchID, []string{
			constants.PaymentStatusApproved,
			constants.PaymentStatusFailed,
		}).
		Updates(map[string]interface{}{
			"batch_id":      nil,
			"status":        constants.PaymentStatusApproved,
			"error_code":    "",
			"error_message": "",
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	// 已到账或待人工确认的成员保留金额记录，仅解除批次关联
	rest := r.db.Model(&models.Payment{}).
		Where("batch_id = ?", batchID).
		Updates(map[string]interface{}{
			"batch_id":   nil,
			"updated_at": time.Now(),
		})
	return result.RowsAffected + rest.RowsAffected, rest.Error
}

// DeleteByBatch 软删除批次内尚未结算的付款
func (r *GormPaymentRepository) DeleteByBatch(batchID uint) (int64, error) {
	result := r.db.Where("batch_id = ? AND status IN ?", batchID, []string{
		constants.PaymentStatusApproved,
		constants.PaymentStatusFailed,
	}).Delete(&models.Payment{})
	return result.RowsAffected, result.Error
}

// SumByBatch 统计批次成员数量与金额
func (r *GormPaymentRepository) SumByBatch(batchID uint) (models.Money, int64, error) {
	var row struct {
		Total models.Money
		Count int64
	}
	err := r.db.Model(&models.Payment{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("batch_id = ?", batchID).
		Scan(&row).Error
	if err != nil {
		return models.Money{}, 0, err
	}
	return row.Total, row.Count, nil
}

// TransitionStatus 条件更新状态，仅当当前状态属于 from 时生效
func (r *GormPaymentRepository) TransitionStatus(id uint, from []string, to string, updates map[string]interface{}) (bool, error) {
	values := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for key, value := range updates {
		values[key] = value
	}
	result := r.db.Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, wrapUnique(result.Error)
	}
	return result.RowsAffected == 1, nil
}
