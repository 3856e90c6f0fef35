package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/models"
)

func TestReferralRepositoryReferredIsUnique(t *testing.T) {
	db := setupRepositoryTestDB(t, "referral_unique")
	repo := NewReferralRepository(db)

	first := &models.Referral{ReferrerID: 1, ReferredID: 2, Code: "ABC", Status: constants.ReferralStatusPending, PayoutStatus: constants.ReferralPayoutStatusNone}
	if err := repo.Create(first); err != nil {
		t.Fatalf("create referral failed: %v", err)
	}
	second := &models.Referral{ReferrerID: 3, ReferredID: 2, Code: "DEF", Status: constants.ReferralStatusPending, PayoutStatus: constants.ReferralPayoutStatusNone}
	if err := repo.Create(second); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second referral, got %v", err)
	}
}

func TestReferralRepositoryPayoutPeriodIsUnique(t *testing.T) {
	db := setupRepositoryTestDB(t, "referral_payout")
	repo := NewReferralRepository(db)

	payout := &models.ReferralPayout{ReferralID: 1, Period: "2026-03", MonthIndex: 2, PaymentID: 10}
	if err := repo.CreatePayout(payout); err != nil {
		t.Fatalf("create payout failed: %v", err)
	}
	dup := &models.ReferralPayout{ReferralID: 1, Period: "2026-03", MonthIndex: 2, PaymentID: 11}
	if err := repo.CreatePayout(dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	count, err := repo.CountPayouts(1)
	if err != nil {
		t.Fatalf("count payouts failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one payout, got %d", count)
	}
}

func TestRetryRepositoryLineageAndDue(t *testing.T) {
	db := setupRepositoryTestDB(t, "retry_lineage")
	repo := NewRetryRepository(db)
	now := time.Now().UTC()

	due := &models.PaymentRetry{PaymentID: 1, RetryCount: 1, Status: constants.RetryStatusScheduled, NextRetryDate: now.Add(-time.Minute)}
	later := &models.PaymentRetry{PaymentID: 2, RetryCount: 1, Status: constants.RetryStatusScheduled, NextRetryDate: now.Add(time.Hour)}
	for _, row := range []*models.PaymentRetry{due, later} {
		if err := repo.Create(row); err != nil {
			t.Fatalf("create retry failed: %v", err)
		}
	}
	if err := repo.Create(&models.PaymentRetry{PaymentID: 1, RetryCount: 1, Status: constants.RetryStatusScheduled, NextRetryDate: now}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for same lineage step, got %v", err)
	}

	rows, err := repo.ListDue(now, 0)
	if err != nil {
		t.Fatalf("list due failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != due.ID {
		t.Fatalf("unexpected due rows: %+v", rows)
	}

	claimed, err := repo.TransitionStatus(due.ID, []string{constants.RetryStatusScheduled}, constants.RetryStatusPending, nil)
	if err != nil || !claimed {
		t.Fatalf("claim failed: claimed=%v err=%v", claimed, err)
	}
	claimed, _ = repo.TransitionStatus(due.ID, []string{constants.RetryStatusScheduled}, constants.RetryStatusPending, nil)
	if claimed {
		t.Fatalf("second claim should fail")
	}
}

func TestReferralRepositoryPayoutMonthIndexIsUnique(t *testing.T) {
	db := setupRepositoryTestDB(t, "referral_payout_month")
	repo := NewReferralRepository(db)

	if err := repo.CreatePayout(&models.ReferralPayout{ReferralID: 3, Period: "2025-12", MonthIndex: 12, PaymentID: 20}); err != nil {
		t.Fatalf("create payout failed: %v", err)
	}
	dup := &models.ReferralPayout{ReferralID: 3, Period: "2026-01", MonthIndex: 12, PaymentID: 21}
	if err := repo.CreatePayout(dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for repeated month index, got %v", err)
	}
	found, err := repo.GetPayoutByMonthIndex(3, 12)
	if err != nil || found == nil || found.Period != "2025-12" {
		t.Fatalf("unexpected payout by month index: %+v err=%v", found, err)
	}
	missing, err := repo.GetPayoutByMonthIndex(3, 1)
	if err != nil || missing != nil {
		t.Fatalf("expected no payout for month 1, got %+v err=%v", missing, err)
	}
}
