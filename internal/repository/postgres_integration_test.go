//go:build integration
// +build integration

package repository

import (
	"os"
	"strings"
	"testing"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	_ = db.Migrator().DropTable(models.Tables()...)
	if err := db.AutoMigrate(models.Tables()...); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(models.Tables()...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresBatchMembershipQueries(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewPaymentRepository(db)

	first := createRepoPayment(t, db, "pg-k1", constants.PaymentStatusApproved, "10.25")
	second := createRepoPayment(t, db, "pg-k2", constants.PaymentStatusApproved, "4.75")

	affected, err := repo.AttachToBatch(5, []uint{first.ID, second.ID})
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if affected != 2 {
		t.Fatalf("attach want 2 got %d", affected)
	}

	total, count, err := repo.SumByBatch(5)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if count != 2 || !total.Decimal.Equal(decimal.RequireFromString("15.00")) {
		t.Fatalf("sum want 2/15.00 got %d/%s", count, total.String())
	}

	ok, err := repo.TransitionStatus(first.ID, []string{constants.PaymentStatusApproved}, constants.PaymentStatusPaid, nil)
	if err != nil || !ok {
		t.Fatalf("transition failed: ok=%v err=%v", ok, err)
	}

	released, err := repo.ReleaseBatch(5)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if released != 2 {
		t.Fatalf("release want 2 got %d", released)
	}
	rows, err := repo.ListByBatch(5)
	if err != nil {
		t.Fatalf("list by batch failed: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("batch should be empty after release, got %d", len(rows))
	}
}

func TestPostgresUniqueViolationDetection(t *testing.T) {
	db := setupPostgresIntegrationDB(t)

	referral := &models.Referral{
		ReferrerID:   1,
		ReferredID:   42,
		Status:       constants.ReferralStatusPending,
		PayoutStatus: constants.ReferralPayoutStatusNone,
	}
	if err := db.Create(referral).Error; err != nil {
		t.Fatalf("create referral failed: %v", err)
	}
	duplicate := &models.Referral{
		ReferrerID:   2,
		ReferredID:   42,
		Status:       constants.ReferralStatusPending,
		PayoutStatus: constants.ReferralPayoutStatusNone,
	}
	err := db.Create(duplicate).Error
	if err == nil {
		t.Fatalf("expected unique violation")
	}
	if !IsUniqueViolation(err) {
		t.Fatalf("unique violation not detected: %v", err)
	}
}
