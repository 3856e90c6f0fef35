package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/models"

	"gorm.io/gorm"
)

// ReferralRepository 推荐关系与月度返佣数据访问接口
type ReferralRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) ReferralRepository

	Create(referral *models.Referral) error
	GetByID(id uint) (*models.Referral, error)
	GetByReferredID(referredID uint) (*models.Referral, error)
	GetActiveByReferredID(referredID uint) (*models.Referral, error)
	List(filter ReferralListFilter) ([]models.Referral, int64, error)
	ListActive() ([]models.Referral, error)
	TransitionStatus(id uint, from []string, to string, updates map[string]interface{}) (bool, error)
	UpdatePayoutStatus(id uint, payoutStatus string) error

	CreatePayout(payout *models.ReferralPayout) error
	GetPayout(referralID uint, period string) (*models.ReferralPayout, error)
	GetPayoutByMonthIndex(referralID uint, monthIndex int) (*models.ReferralPayout, error)
	ListPayouts(referralID uint) ([]models.ReferralPayout, error)
	CountPayouts(referralID uint) (int64, error)
}

// GormReferralRepository GORM 实现
type GormReferralRepository struct {
	db *gorm.DB
}

// NewReferralRepository 创建推荐仓库
func NewReferralRepository(db *gorm.DB) *GormReferralRepository {
	return &GormReferralRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReferralRepository) WithTx(tx *gorm.DB) ReferralRepository {
	if tx == nil {
		return r
	}
	return &GormReferralRepository{db: tx}
}

// Transaction 执行事务
func (r *GormReferralRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 创建推荐关系
func (r *GormReferralRepository) Create(referral *models.Referral) error {
	return wrapUnique(r.db.Create(referral).Error)
}

// GetByID 按 ID 获取推荐关系
func (r *GormReferralRepository) GetByID(id uint) (*models.Referral, error) {
	return r.first(r.db.Where("id = ?", id))
}

// GetByReferredID 按被推荐客户获取推荐关系
func (r *GormReferralRepository) GetByReferredID(referredID uint) (*models.Referral, error) {
	return r.first(r.db.Where("referred_id = ?", referredID))
}

// GetActiveByReferredID 获取被推荐客户的有效推荐关系
func (r *GormReferralRepository) GetActiveByReferredID(referredID uint) (*models.Referral, error) {
	return r.first(r.db.Where("referred_id = ? AND status = ?", referredID, constants.ReferralStatusActive))
}

func (r *GormReferralRepository) first(query *gorm.DB) (*models.Referral, error) {
	var referral models.Referral
	if err := query.First(&referral).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// List 分页查询推荐关系
func (r *GormReferralRepository) List(filter ReferralListFilter) ([]models.Referral, int64, error) {
	query := r.db.Model(&models.Referral{})
	if filter.ReferrerID != 0 {
		query = query.Where("referrer_id = ?", filter.ReferrerID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Referral
	if err := applyPagination(query, filter.Page, filter.PageSize).Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListActive 获取全部有效推荐关系
func (r *GormReferralRepository) ListActive() ([]models.Referral, error) {
	var rows []models.Referral
	if err := r.db.Where("status = ?", constants.ReferralStatusActive).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// TransitionStatus 条件更新推荐关系状态
func (r *GormReferralRepository) TransitionStatus(id uint, from []string, to string, updates map[string]interface{}) (bool, error) {
	values := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for key, value := range updates {
		values[key] = value
	}
	result := r.db.Model(&models.Referral{}).Where("id = ? AND status IN ?", id, from).Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdatePayoutStatus 更新返佣进度
func (r *GormReferralRepository) UpdatePayoutStatus(id uint, payoutStatus string) error {
	return r.db.Model(&models.Referral{}).Where("id = ?", id).Updates(map[string]interface{}{
		"payout_status": payoutStatus,
		"updated_at":    time.Now(),
	}).Error
}

// CreatePayout 创建月度返佣记录，(referral_id, period) 或 (referral_id, month_index) 冲突返回 ErrDuplicate
func (r *GormReferralRepository) CreatePayout(payout *models.ReferralPayout) error {
	return wrapUnique(r.db.Create(payout).Error)
}

// GetPayout 获取指定账期的返佣记录
func (r *GormReferralRepository) GetPayout(referralID uint, period string) (*models.ReferralPayout, error) {
	var payout models.ReferralPayout
	if err := r.db.Where("referral_id = ? AND period = ?", referralID, period).First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// GetPayoutByMonthIndex 获取指定月序号的返佣记录
func (r *GormReferralRepository) GetPayoutByMonthIndex(referralID uint, monthIndex int) (*models.ReferralPayout, error) {
	var payout models.ReferralPayout
	if err := r.db.Where("referral_id = ? AND month_index = ?", referralID, monthIndex).First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// ListPayouts 获取推荐关系的全部返佣记录
func (r *GormReferralRepository) ListPayouts(referralID uint) ([]models.ReferralPayout, error) {
	var rows []models.ReferralPayout
	if err := r.db.Where("referral_id = ?", referralID).Order("period asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountPayouts 统计推荐关系已产生的返佣次数
func (r *GormReferralRepository) CountPayouts(referralID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.ReferralPayout{}).Where("referral_id = ?", referralID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
