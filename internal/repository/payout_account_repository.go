package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/settle-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PayoutAccountRepository 收款账户数据访问接口
type PayoutAccountRepository interface {
	GetByPayee(payeeType string, payeeID uint) (*models.PayoutAccount, error)
	Upsert(account *models.PayoutAccount) error
	SetStripeAccount(id uint, stripeAccountID string) error
}

// GormPayoutAccountRepository GORM 实现
type GormPayoutAccountRepository struct {
	db *gorm.DB
}

// NewPayoutAccountRepository 创建收款账户仓库
func NewPayoutAccountRepository(db *gorm.DB) *GormPayoutAccountRepository {
	return &GormPayoutAccountRepository{db: db}
}

// GetByPayee 按收款方获取账户
func (r *GormPayoutAccountRepository) GetByPayee(payeeType string, payeeID uint) (*models.PayoutAccount, error) {
	var account models.PayoutAccount
	err := r.db.Where("payee_type = ? AND payee_id = ?", strings.TrimSpace(payeeType), payeeID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// Upsert 按收款方写入或更新账户
func (r *GormPayoutAccountRepository) Upsert(account *models.PayoutAccount) error {
	if account == nil {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "payee_type"}, {Name: "payee_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email",
			"display_name",
			"preferred_rail",
			"stripe_account_id",
			"manual_handle",
			"updated_at",
		}),
	}).Create(account).Error
}

// SetStripeAccount 记录新关联的 Connect 账户
func (r *GormPayoutAccountRepository) SetStripeAccount(id uint, stripeAccountID string) error {
	return r.db.Model(&models.PayoutAccount{}).Where("id = ?", id).Updates(map[string]interface{}{
		"stripe_account_id": stripeAccountID,
		"updated_at":        time.Now(),
	}).Error
}
