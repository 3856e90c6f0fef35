package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/payout"
	"github.com/settle-next/internal/payout/manual"
	"github.com/settle-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type settlementFixture struct {
	db            *gorm.DB
	rail          *fakeRail
	paymentRepo   *repository.GormPaymentRepository
	earningRepo   *repository.GormEarningRepository
	batchRepo     *repository.GormBatchRepository
	retryRepo     *repository.GormRetryRepository
	referralRepo  *repository.GormReferralRepository
	subRepo       *repository.GormSubscriptionRepository
	accountRepo   *repository.GormPayoutAccountRepository
	notifyRepo    *repository.GormNotificationRepository
	notifications *NotificationService
	retries       *RetryService
	batches       *BatchService
	referrals     *ReferralService
	earnings      *EarningService
	payments      *PaymentService
}

func setupSettlementFixture(t *testing.T, name string, extraRails ...payout.Rail) *settlementFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.Tables()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	opts := DefaultSettlementOptions()
	opts.BatchConcurrency = 2
	opts.OperatorID = 1
	opts.OperatorEmail = "ops@example.com"

	f := &settlementFixture{
		db:           db,
		rail:         newFakeRail(constants.RailStripe),
		paymentRepo:  repository.NewPaymentRepository(db),
		earningRepo:  repository.NewEarningRepository(db),
		batchRepo:    repository.NewBatchRepository(db),
		retryRepo:    repository.NewRetryRepository(db),
		referralRepo: repository.NewReferralRepository(db),
		subRepo:      repository.NewSubscriptionRepository(db),
		accountRepo:  repository.NewPayoutAccountRepository(db),
		notifyRepo:   repository.NewNotificationRepository(db),
	}
	f.notifications = NewNotificationService(f.notifyRepo, nil, nil, opts)
	rails := append([]payout.Rail{f.rail, manual.New(f.notifications)}, extraRails...)
	registry := payout.NewRegistry(rails...)
	executor := NewPayoutExecutor(registry, f.accountRepo, opts)
	f.retries = NewRetryService(f.paymentRepo, f.retryRepo, f.earningRepo, f.subRepo, executor, f.notifications, opts)
	f.batches = NewBatchService(f.batchRepo, f.paymentRepo, f.earningRepo, f.retryRepo, f.subRepo,
		executor, f.retries, f.notifications, nil, opts)
	f.referrals = NewReferralService(f.referralRepo, f.paymentRepo, f.subRepo, opts)
	f.earnings = NewEarningService(f.paymentRepo, f.earningRepo, f.referrals, opts)
	f.payments = NewPaymentService(f.paymentRepo, f.earningRepo, f.subRepo)
	return f
}

func (f *settlementFixture) createPayment(t *testing.T, payeeID uint, status, amount string, subscriptionID *uint) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		Amount:         models.NewMoneyFromDecimal(decimal.RequireFromString(amount)),
		Currency:       "USD",
		Type:           constants.PaymentTypeService,
		Status:         status,
		PayeeType:      constants.PayeeTypeEmployee,
		PayeeID:        payeeID,
		SourceType:     constants.SourceTypeService,
		SourceID:       payeeID * 100,
		SubscriptionID: subscriptionID,
	}
	if err := f.paymentRepo.Create(payment); err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	payment.IdempotencyKey = payout.IdempotencyKey(payment.ID)
	if err := f.paymentRepo.Update(payment); err != nil {
		t.Fatalf("update payment key failed: %v", err)
	}
	return payment
}

func (f *settlementFixture) linkAccount(t *testing.T, payeeID uint, stripeAccountID string) {
	t.Helper()
	account := &models.PayoutAccount{
		PayeeType:       constants.PayeeTypeEmployee,
		PayeeID:         payeeID,
		Email:           fmt.Sprintf("payee%d@example.com", payeeID),
		DisplayName:     fmt.Sprintf("Payee %d", payeeID),
		PreferredRail:   constants.RailStripe,
		StripeAccountID: stripeAccountID,
		ManualHandle:    fmt.Sprintf("$payee%d", payeeID),
	}
	if err := f.accountRepo.Upsert(account); err != nil {
		t.Fatalf("upsert payout account failed: %v", err)
	}
}

func (f *settlementFixture) createSubscription(t *testing.T, customerID uint, status string, start time.Time) *models.Subscription {
	t.Helper()
	subscription := &models.Subscription{
		CustomerID:      customerID,
		Status:          status,
		PlanAmount:      models.NewMoneyFromDecimal(decimal.RequireFromString("55")),
		VisitsPerPeriod: 4,
		StartDate:       start,
	}
	if err := f.subRepo.Create(subscription); err != nil {
		t.Fatalf("create subscription failed: %v", err)
	}
	return subscription
}

func (f *settlementFixture) reloadPayment(t *testing.T, id uint) *models.Payment {
	t.Helper()
	payment, err := f.paymentRepo.GetByID(id)
	if err != nil || payment == nil {
		t.Fatalf("reload payment %d failed: %v", id, err)
	}
	return payment
}

// fakeRail 按幂等键去重的内存通道
type fakeRail struct {
	name string

	mu       sync.Mutex
	calls    int
	byKey    map[string]string
	failures map[uint]error
	failAll  error
}

func newFakeRail(name string) *fakeRail {
	return &fakeRail{
		name:     name,
		byKey:    make(map[string]string),
		failures: make(map[uint]error),
	}
}

func (r *fakeRail) Name() string { return r.name }

func (r *fakeRail) Transfer(_ context.Context, req payout.TransferRequest) (*payout.TransferResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if req.Destination.AccountID == "" {
		return nil, payout.NewError(payout.KindNoLinkedAccount, "", "payee has no linked account", nil)
	}
	if err, ok := r.failures[req.PaymentID]; ok {
		return nil, err
	}
	if r.failAll != nil {
		return nil, r.failAll
	}
	if externalID, ok := r.byKey[req.IdempotencyKey]; ok {
		return &payout.TransferResult{ExternalID: externalID, Status: payout.StatusSucceeded, Replayed: true}, nil
	}
	externalID := fmt.Sprintf("tr_%d", req.PaymentID)
	r.byKey[req.IdempotencyKey] = externalID
	return &payout.TransferResult{ExternalID: externalID, Status: payout.StatusSucceeded}, nil
}

func (r *fakeRail) setFailAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAll = err
}

func (r *fakeRail) failPayment(paymentID uint, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[paymentID] = err
}

func (r *fakeRail) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *fakeRail) transfers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

// settleWriteFailingRepo 到账与待人工确认的状态写入总是失败
type settleWriteFailingRepo struct {
	repository.PaymentRepository
}

var errLedgerWrite = errors.New("ledger write failed")

func (r settleWriteFailingRepo) WithTx(tx *gorm.DB) repository.PaymentRepository {
	return settleWriteFailingRepo{PaymentRepository: r.PaymentRepository.WithTx(tx)}
}

func (r settleWriteFailingRepo) TransitionStatus(id uint, from []string, to string, updates map[string]interface{}) (bool, error) {
	if to == constants.PaymentStatusPaid || to == constants.PaymentStatusPendingManual {
		return false, errLedgerWrite
	}
	return r.PaymentRepository.TransitionStatus(id, from, to, updates)
}

var errRailDown = payout.NewError(payout.KindRailUnavailable, "api_error", "rail temporarily unavailable", nil)

func mustMoney(t *testing.T, raw string) models.Money {
	t.Helper()
	money, err := models.NewMoneyFromString(raw)
	if err != nil {
		t.Fatalf("parse money %s failed: %v", raw, err)
	}
	return money
}
