package service

import (
	"strings"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/repository"
)

// PayoutAccountInput 收款账户写入参数
type PayoutAccountInput struct {
	PayeeType       string `json:"payee_type"`
	PayeeID         uint   `json:"payee_id"`
	Email           string `json:"email"`
	DisplayName     string `json:"display_name"`
	PreferredRail   string `json:"preferred_rail"`
	StripeAccountID string `json:"stripe_account_id"`
	ManualHandle    string `json:"manual_handle"`
}

// PayoutAccountService 收款账户维护
type PayoutAccountService struct {
	repo repository.PayoutAccountRepository
}

// NewPayoutAccountService 创建收款账户服务
func NewPayoutAccountService(repo repository.PayoutAccountRepository) *PayoutAccountService {
	return &PayoutAccountService{repo: repo}
}

// UpsertAccount 写入或更新收款账户
func (s *PayoutAccountService) UpsertAccount(input PayoutAccountInput) (*models.PayoutAccount, error) {
	payeeType := strings.ToLower(strings.TrimSpace(input.PayeeType))
	if payeeType != constants.PayeeTypeEmployee && payeeType != constants.PayeeTypeReferrer {
		return nil, ErrPayoutAccountInvalid
	}
	if input.PayeeID == 0 {
		return nil, ErrPayoutAccountInvalid
	}
	rail := strings.ToLower(strings.TrimSpace(input.PreferredRail))
	if rail == "" {
		rail = constants.RailStripe
	}
	if rail != constants.RailStripe && rail != constants.RailManual {
		return nil, ErrRailInvalid
	}
	if rail == constants.RailManual && strings.TrimSpace(input.ManualHandle) == "" {
		return nil, ErrPayoutAccountInvalid
	}
	account := &models.PayoutAccount{
		PayeeType:       payeeType,
		PayeeID:         input.PayeeID,
		Email:           strings.TrimSpace(input.Email),
		DisplayName:     strings.TrimSpace(input.DisplayName),
		PreferredRail:   rail,
		StripeAccountID: strings.TrimSpace(input.StripeAccountID),
		ManualHandle:    strings.TrimSpace(input.ManualHandle),
	}
	if account.StripeAccountID == "" {
		existing, err := s.repo.GetByPayee(payeeType, input.PayeeID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			account.StripeAccountID = existing.StripeAccountID
		}
	}
	if err := s.repo.Upsert(account); err != nil {
		return nil, err
	}
	return s.repo.GetByPayee(payeeType, input.PayeeID)
}

// GetAccount 获取收款账户
func (s *PayoutAccountService) GetAccount(payeeType string, payeeID uint) (*models.PayoutAccount, error) {
	account, err := s.repo.GetByPayee(strings.ToLower(strings.TrimSpace(payeeType)), payeeID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrPayoutAccountInvalid
	}
	return account, nil
}
