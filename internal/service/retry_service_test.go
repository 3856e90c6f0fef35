package service

import (
	"context"
	"testing"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/models"
	"github.com/settle-next/internal/payout"
)

func TestRetryExhaustionMarksSubscriptionPastDue(t *testing.T) {
	f := setupSettlementFixture(t, "retry_exhaust")
	f.linkAccount(t, 1, "acct_1")
	subscription := f.createSubscription(t, 77, constants.SubscriptionStatusActive, time.Now().AddDate(0, -2, 0))
	payment := f.createPayment(t, 1, constants.PaymentStatusFailed, "25.00", &subscription.ID)
	f.rail.setFailAll(errRailDown)

	start := time.Now()
	scheduled, err := f.retries.Schedule(nil, payment.ID, errRailDown, start)
	if err != nil || !scheduled {
		t.Fatalf("schedule first retry failed: scheduled=%v err=%v", scheduled, err)
	}

	for round := 1; round <= 3; round++ {
		now := start.AddDate(0, 0, 4*round)
		result, err := f.retries.ProcessDueRetries(context.Background(), now)
		if err != nil {
			t.Fatalf("round %d failed: %v", round, err)
		}
		if result.Total != 1 || result.Failed != 1 {
			t.Fatalf("round %d unexpected result: %+v", round, result)
		}
	}

	rows, err := f.retryRepo.ListByPayment(payment.ID)
	if err != nil {
		t.Fatalf("list retries failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 retry rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.RetryCount != i+1 || row.Status != constants.RetryStatusFailed {
			t.Fatalf("unexpected retry row %d: %+v", i, row)
		}
		if row.RetryCount > 3 {
			t.Fatalf("retry count exceeded max: %d", row.RetryCount)
		}
	}
	stored, err := f.subRepo.GetByID(subscription.ID)
	if err != nil || stored == nil {
		t.Fatalf("load subscription failed: %v", err)
	}
	if stored.Status != constants.SubscriptionStatusPastDue || stored.PastDueAt == nil {
		t.Fatalf("expected past_due subscription, got %+v", stored)
	}
	if got := f.reloadPayment(t, payment.ID); got.Status != constants.PaymentStatusFailed {
		t.Fatalf("payment should stay failed, got %s", got.Status)
	}
	alerts, err := f.notifyRepo.ListByBiz("payment", payment.ID)
	if err != nil {
		t.Fatalf("list notifications failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Event != constants.NotifyEventRetryExhausted {
		t.Fatalf("expected one exhaustion alert, got %+v", alerts)
	}

	result, err := f.retries.ProcessDueRetries(context.Background(), start.AddDate(0, 0, 30))
	if err != nil {
		t.Fatalf("final run failed: %v", err)
	}
	if result.Total != 0 {
		t.Fatalf("no retry should remain after exhaustion, got %+v", result)
	}
}

func TestRetrySuccessReactivatesSubscription(t *testing.T) {
	f := setupSettlementFixture(t, "retry_success")
	f.linkAccount(t, 1, "acct_1")
	subscription := f.createSubscription(t, 78, constants.SubscriptionStatusActive, time.Now())
	if err := f.subRepo.UpdateStatus(subscription.ID, constants.SubscriptionStatusPastDue, time.Now()); err != nil {
		t.Fatalf("mark past due failed: %v", err)
	}
	payment := f.createPayment(t, 1, constants.PaymentStatusFailed, "18.00", &subscription.ID)

	now := time.Now()
	if _, err := f.retries.Schedule(nil, payment.ID, errRailDown, now); err != nil {
		t.Fatalf("schedule retry failed: %v", err)
	}
	if scheduled, err := f.retries.Schedule(nil, payment.ID, errRailDown, now); err != nil || scheduled {
		t.Fatalf("open retry should block a second schedule: scheduled=%v err=%v", scheduled, err)
	}
	early, err := f.retries.ProcessDueRetries(context.Background(), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("early run failed: %v", err)
	}
	if early.Total != 0 {
		t.Fatalf("retry must wait for cooldown, got %+v", early)
	}

	result, err := f.retries.ProcessDueRetries(context.Background(), now.Add(73*time.Hour))
	if err != nil {
		t.Fatalf("process retries failed: %v", err)
	}
	if result.Succeeded != 1 || result.Total != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	paid := f.reloadPayment(t, payment.ID)
	if paid.Status != constants.PaymentStatusPaid || paid.RailTransactionID == "" {
		t.Fatalf("expected paid payment, got %+v", paid)
	}
	latest, err := f.retryRepo.LatestByPayment(payment.ID)
	if err != nil || latest == nil || latest.Status != constants.RetryStatusSuccess {
		t.Fatalf("expected successful retry, got %+v err=%v", latest, err)
	}
	stored, err := f.subRepo.GetByID(subscription.ID)
	if err != nil || stored == nil {
		t.Fatalf("load subscription failed: %v", err)
	}
	if stored.Status != constants.SubscriptionStatusActive || stored.PastDueAt != nil {
		t.Fatalf("subscription should be reactivated, got %+v", stored)
	}
}

func TestRetrySkipsPaymentsNoLongerFailed(t *testing.T) {
	f := setupSettlementFixture(t, "retry_skip")
	f.linkAccount(t, 1, "acct_1")
	payment := f.createPayment(t, 1, constants.PaymentStatusFailed, "9.00", nil)
	now := time.Now()
	if _, err := f.retries.Schedule(nil, payment.ID, errRailDown, now); err != nil {
		t.Fatalf("schedule retry failed: %v", err)
	}
	if _, err := f.paymentRepo.TransitionStatus(payment.ID,
		[]string{constants.PaymentStatusFailed}, constants.PaymentStatusRefunded, nil); err != nil {
		t.Fatalf("refund payment failed: %v", err)
	}
	result, err := f.retries.ProcessDueRetries(context.Background(), now.Add(80*time.Hour))
	if err != nil {
		t.Fatalf("process retries failed: %v", err)
	}
	if result.Skipped != 1 || f.rail.callCount() != 0 {
		t.Fatalf("refunded payment must be skipped without a rail call: %+v", result)
	}
}

func TestRetryTerminalFailureEscalatesImmediately(t *testing.T) {
	f := setupSettlementFixture(t, "retry_terminal")
	f.linkAccount(t, 1, "acct_1")
	subscription := f.createSubscription(t, 79, constants.SubscriptionStatusActive, time.Now())
	payment := f.createPayment(t, 1, constants.PaymentStatusFailed, "11.00", &subscription.ID)
	now := time.Now()
	if _, err := f.retries.Schedule(nil, payment.ID, errRailDown, now); err != nil {
		t.Fatalf("schedule retry failed: %v", err)
	}
	f.rail.failPayment(payment.ID, payout.NewError(payout.KindRailDeclined, "transfers_not_allowed", "declined", nil))

	result, err := f.retries.ProcessDueRetries(context.Background(), now.Add(80*time.Hour))
	if err != nil {
		t.Fatalf("process retries failed: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	rows, err := f.retryRepo.ListByPayment(payment.ID)
	if err != nil {
		t.Fatalf("list retries failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("declined transfer must not be rescheduled, got %d rows", len(rows))
	}
	stored, err := f.subRepo.GetByID(subscription.ID)
	if err != nil || stored == nil || stored.Status != constants.SubscriptionStatusPastDue {
		t.Fatalf("declined retry should flip subscription past due, got %+v err=%v", stored, err)
	}
}

func TestRetryRecordsUnrecordedTransferForReconciliation(t *testing.T) {
	f := setupSettlementFixture(t, "retry_unrecorded")
	f.linkAccount(t, 1, "acct_1")
	payment := f.createPayment(t, 1, constants.PaymentStatusFailed, "21.00", nil)
	now := time.Now()
	if _, err := f.retries.Schedule(nil, payment.ID, errRailDown, now); err != nil {
		t.Fatalf("schedule retry failed: %v", err)
	}
	f.retries.ledger.paymentRepo = settleWriteFailingRepo{PaymentRepository: f.paymentRepo}

	result, err := f.retries.ProcessDueRetries(context.Background(), now.Add(80*time.Hour))
	if err != nil {
		t.Fatalf("process retries failed: %v", err)
	}
	if result.Failed != 1 || result.Succeeded != 0 {
		t.Fatalf("unrecorded transfer must count as failed: %+v", result)
	}
	latest, err := f.retryRepo.LatestByPayment(payment.ID)
	if err != nil || latest == nil {
		t.Fatalf("load retry failed: %v", err)
	}
	if latest.Status != constants.RetryStatusPending || latest.ErrorCode != "record_failed" || latest.RailTransactionID == "" {
		t.Fatalf("retry should keep the transfer id and stay claimed, got %+v", latest)
	}
	if got := f.reloadPayment(t, payment.ID); got.Status != constants.PaymentStatusProcessing {
		t.Fatalf("payment should stay processing, got %s", got.Status)
	}
	alerts, err := f.notifyRepo.ListByBiz("payment", payment.ID)
	if err != nil {
		t.Fatalf("list notifications failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Event != constants.NotifyEventPayoutUnrecorded {
		t.Fatalf("expected one unrecorded alert, got %+v", alerts)
	}

	calls := f.rail.callCount()
	again, err := f.retries.ProcessDueRetries(context.Background(), now.Add(200*time.Hour))
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if again.Total != 0 || f.rail.callCount() != calls {
		t.Fatalf("claimed retry must not be sent again: %+v", again)
	}
}

func TestRetryOnManualRailWaitsForConfirmation(t *testing.T) {
	f := setupSettlementFixture(t, "retry_manual")
	f.linkAccount(t, 1, "")
	subscription := f.createSubscription(t, 80, constants.SubscriptionStatusActive, time.Now())
	if err := f.subRepo.UpdateStatus(subscription.ID, constants.SubscriptionStatusPastDue, time.Now()); err != nil {
		t.Fatalf("mark past due failed: %v", err)
	}
	payment := f.createPayment(t, 1, constants.PaymentStatusFailed, "16.00", &subscription.ID)
	if err := f.db.Model(&models.Payment{}).Where("id = ?", payment.ID).Update("rail", constants.RailManual).Error; err != nil {
		t.Fatalf("set payment rail failed: %v", err)
	}
	now := time.Now()
	if _, err := f.retries.Schedule(nil, payment.ID, errRailDown, now); err != nil {
		t.Fatalf("schedule retry failed: %v", err)
	}

	result, err := f.retries.ProcessDueRetries(context.Background(), now.Add(80*time.Hour))
	if err != nil {
		t.Fatalf("process retries failed: %v", err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	pending := f.reloadPayment(t, payment.ID)
	if pending.Status != constants.PaymentStatusPendingManual {
		t.Fatalf("expected pending_manual, got %s", pending.Status)
	}
	latest, err := f.retryRepo.LatestByPayment(payment.ID)
	if err != nil || latest == nil || latest.Status != constants.RetryStatusSuccess || latest.ErrorMessage != "awaiting manual confirmation" {
		t.Fatalf("unexpected retry row: %+v err=%v", latest, err)
	}
	stored, err := f.subRepo.GetByID(subscription.ID)
	if err != nil || stored == nil || stored.Status != constants.SubscriptionStatusPastDue {
		t.Fatalf("subscription must stay past due until confirmation, got %+v err=%v", stored, err)
	}

	if _, err := f.payments.ConfirmManualPayment(payment.ID, 9, "zelle-311"); err != nil {
		t.Fatalf("confirm manual payment failed: %v", err)
	}
	stored, err = f.subRepo.GetByID(subscription.ID)
	if err != nil || stored == nil || stored.Status != constants.SubscriptionStatusActive {
		t.Fatalf("subscription should be reactivated on confirmation, got %+v err=%v", stored, err)
	}
}
