package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/settle-next/internal/constants"
	"github.com/settle-next/internal/payout"
)

func TestProcessBatchPartialWhenPayeeHasNoLinkedAccount(t *testing.T) {
	f := setupSettlementFixture(t, "batch_partial")
	f.linkAccount(t, 1, "acct_1")
	f.linkAccount(t, 2, "acct_2")
	f.linkAccount(t, 3, "")
	p1 := f.createPayment(t, 1, constants.PaymentStatusApproved, "10.00", nil)
	p2 := f.createPayment(t, 2, constants.PaymentStatusApproved, "20.00", nil)
	p3 := f.createPayment(t, 3, constants.PaymentStatusApproved, "30.00", nil)

	batch, err := f.batches.CreateBatch(CreateBatchInput{PaymentIDs: []uint{p1.ID, p2.ID, p3.ID}, CreatedBy: 9})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	if batch.TotalPayments != 3 || batch.TotalAmount.String() != "60.00" {
		t.Fatalf("unexpected draft totals: %d %s", batch.TotalPayments, batch.TotalAmount.String())
	}

	summary, err := f.batches.ProcessBatch(context.Background(), batch.ID, constants.RailStripe)
	if err != nil {
		t.Fatalf("process batch failed: %v", err)
	}
	if summary.SuccessCount != 2 || summary.FailedCount != 1 || summary.Status != constants.BatchStatusPartial {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.SuccessCount+summary.FailedCount != summary.TotalPayments {
		t.Fatalf("counts do not add up: %+v", summary)
	}

	failed := f.reloadPayment(t, p3.ID)
	if failed.Status != constants.PaymentStatusFailed || failed.ErrorCode != string(payout.KindNoLinkedAccount) {
		t.Fatalf("expected no-linked-account failure, got %s %s", failed.Status, failed.ErrorCode)
	}
	if failed.BatchID == nil || *failed.BatchID != batch.ID {
		t.Fatalf("failed payment should stay in batch for audit")
	}
	retries, err := f.retryRepo.ListByPayment(p3.ID)
	if err != nil {
		t.Fatalf("list retries failed: %v", err)
	}
	if len(retries) != 0 {
		t.Fatalf("terminal failure must not schedule retry, got %d", len(retries))
	}
	alerts, err := f.notifyRepo.ListByBiz("payment", p3.ID)
	if err != nil {
		t.Fatalf("list notifications failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Event != constants.NotifyEventPayoutFailed {
		t.Fatalf("expected one payout failed alert, got %+v", alerts)
	}

	paid := f.reloadPayment(t, p1.ID)
	if paid.Status != constants.PaymentStatusPaid || paid.RailTransactionID == "" || paid.PaidAt == nil {
		t.Fatalf("expected paid payment with transaction id, got %+v", paid)
	}

	stored, err := f.batches.GetBatch(batch.ID)
	if err != nil {
		t.Fatalf("get batch failed: %v", err)
	}
	if stored.Status != constants.BatchStatusPartial || stored.CompletedAt == nil || stored.ProcessingStartedAt == nil {
		t.Fatalf("batch timestamps or status not recorded: %+v", stored)
	}
	if stored.SuccessCount != 2 || stored.FailedCount != 1 {
		t.Fatalf("batch counts not persisted: %d/%d", stored.SuccessCount, stored.FailedCount)
	}
}

func TestProcessBatchRejectsSecondInvocation(t *testing.T) {
	f := setupSettlementFixture(t, "batch_twice")
	f.linkAccount(t, 1, "acct_1")
	p1 := f.createPayment(t, 1, constants.PaymentStatusApproved, "12.50", nil)
	batch, err := f.batches.CreateBatch(CreateBatchInput{PaymentIDs: []uint{p1.ID}})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	summary, err := f.batches.ProcessBatch(context.Background(), batch.ID, "auto")
	if err != nil {
		t.Fatalf("process batch failed: %v", err)
	}
	if summary.Status != constants.BatchStatusCompleted {
		t.Fatalf("expected completed, got %s", summary.Status)
	}
	calls := f.rail.callCount()

	if _, err := f.batches.ProcessBatch(context.Background(), batch.ID, "auto"); !errors.Is(err, ErrBatchNotProcessable) {
		t.Fatalf("expected ErrBatchNotProcessable, got %v", err)
	}
	if f.rail.callCount() != calls {
		t.Fatalf("second process must not reach the rail")
	}
	if err := f.batches.DeleteBatch(batch.ID, true); !errors.Is(err, ErrBatchNotDeletable) {
		t.Fatalf("completed batch must not be deletable, got %v", err)
	}
	if _, err := f.batches.AddPayments(batch.ID, []uint{p1.ID}); !errors.Is(err, ErrBatchNotDraft) {
		t.Fatalf("completed batch must reject membership changes, got %v", err)
	}
}

func TestProcessFailedBatchResubmitsWithSameIdempotencyKeys(t *testing.T) {
	f := setupSettlementFixture(t, "batch_resubmit")
	f.linkAccount(t, 1, "acct_1")
	f.linkAccount(t, 2, "acct_2")
	p1 := f.createPayment(t, 1, constants.PaymentStatusApproved, "10.00", nil)
	p2 := f.createPayment(t, 2, constants.PaymentStatusApproved, "15.00", nil)
	batch, err := f.batches.CreateBatch(CreateBatchInput{PaymentIDs: []uint{p1.ID, p2.ID}})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}

	f.rail.setFailAll(errRailDown)
	summary, err := f.batches.ProcessBatch(context.Background(), batch.ID, constants.RailStripe)
	if err != nil {
		t.Fatalf("process batch failed: %v", err)
	}
	if summary.Status != constants.BatchStatusFailed || summary.FailedCount != 2 {
		t.Fatalf("expected failed batch, got %+v", summary)
	}
	for _, result := range summary.Results {
		if !result.Retryable || !result.RetryScheduled {
			t.Fatalf("transient failure should schedule retry: %+v", result)
		}
	}
	latest, err := f.retryRepo.LatestByPayment(p1.ID)
	if err != nil || latest == nil || latest.RetryCount != 1 || latest.Status != constants.RetryStatusScheduled {
		t.Fatalf("expected scheduled retry #1, got %+v err=%v", latest, err)
	}

	f.rail.setFailAll(nil)
	summary, err = f.batches.ProcessBatch(context.Background(), batch.ID, constants.RailStripe)
	if err != nil {
		t.Fatalf("resubmit batch failed: %v", err)
	}
	if summary.Status != constants.BatchStatusCompleted || summary.SuccessCount != 2 {
		t.Fatalf("expected completed resubmission, got %+v", summary)
	}
	if f.rail.transfers() != 2 {
		t.Fatalf("expected exactly two external transfers, got %d", f.rail.transfers())
	}
}

func TestProcessBatchTreatsAlreadySettledAsSuccess(t *testing.T) {
	f := setupSettlementFixture(t, "batch_settled")
	f.linkAccount(t, 1, "acct_1")
	p1 := f.createPayment(t, 1, constants.PaymentStatusApproved, "40.00", nil)
	f.rail.failPayment(p1.ID, payout.NewError(payout.KindAlreadySettled, "idempotency_error", "key already used", nil))
	batch, err := f.batches.CreateBatch(CreateBatchInput{PaymentIDs: []uint{p1.ID}})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	summary, err := f.batches.ProcessBatch(context.Background(), batch.ID, constants.RailStripe)
	if err != nil {
		t.Fatalf("process batch failed: %v", err)
	}
	if summary.Status != constants.BatchStatusCompleted || summary.AlreadySettledCount != 1 || summary.FailedCount != 0 {
		t.Fatalf("already settled should count as success: %+v", summary)
	}
	if got := f.reloadPayment(t, p1.ID); got.Status != constants.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", got.Status)
	}
}

func TestAddPaymentsAdmitsOnlyApprovedUnbatched(t *testing.T) {
	f := setupSettlementFixture(t, "batch_admit")
	approved := f.createPayment(t, 1, constants.PaymentStatusApproved, "5.00", nil)
	pending := f.createPayment(t, 2, constants.PaymentStatusPending, "5.00", nil)

	first, err := f.batches.CreateBatch(CreateBatchInput{})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	second, err := f.batches.CreateBatch(CreateBatchInput{Type: constants.BatchTypeService})
	if err != nil {
		t.Fatalf("create second batch failed: %v", err)
	}
	if first.BatchNo == second.BatchNo {
		t.Fatalf("batch numbers must be unique")
	}
	if _, err := f.batches.AddPayments(first.ID, []uint{pending.ID}); !errors.Is(err, ErrPaymentNotEligible) {
		t.Fatalf("pending payment must be rejected, got %v", err)
	}
	if _, err := f.batches.AddPayments(first.ID, []uint{approved.ID}); err != nil {
		t.Fatalf("add approved payment failed: %v", err)
	}
	if _, err := f.batches.AddPayments(second.ID, []uint{approved.ID}); !errors.Is(err, ErrPaymentNotEligible) {
		t.Fatalf("payment already in another batch must be rejected, got %v", err)
	}
	if _, err := f.batches.CreateBatch(CreateBatchInput{Rail: "wire"}); !errors.Is(err, ErrRailInvalid) {
		t.Fatalf("unknown rail must be rejected, got %v", err)
	}

	updated, err := f.batches.RemovePayments(first.ID, []uint{approved.ID})
	if err != nil {
		t.Fatalf("remove payment failed: %v", err)
	}
	if updated.TotalPayments != 0 || len(updated.Payments) != 0 {
		t.Fatalf("expected empty batch after removal, got %+v", updated)
	}
	if _, err := f.batches.ProcessBatch(context.Background(), first.ID, ""); !errors.Is(err, ErrBatchEmpty) {
		t.Fatalf("empty batch must not be processed, got %v", err)
	}
}

func TestDeleteBatchReleaseOrDeleteMembers(t *testing.T) {
	f := setupSettlementFixture(t, "batch_delete")
	kept := f.createPayment(t, 1, constants.PaymentStatusApproved, "5.00", nil)
	dropped := f.createPayment(t, 2, constants.PaymentStatusApproved, "6.00", nil)

	releaseBatch, err := f.batches.CreateBatch(CreateBatchInput{PaymentIDs: []uint{kept.ID}})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	if err := f.batches.DeleteBatch(releaseBatch.ID, true); err != nil {
		t.Fatalf("delete with release failed: %v", err)
	}
	released := f.reloadPayment(t, kept.ID)
	if released.BatchID != nil || released.Status != constants.PaymentStatusApproved {
		t.Fatalf("released payment should be approved and unbatched, got %+v", released)
	}
	if _, err := f.batches.GetBatch(releaseBatch.ID); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("deleted batch should not be found, got %v", err)
	}

	deleteBatch, err := f.batches.CreateBatch(CreateBatchInput{PaymentIDs: []uint{dropped.ID}})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	if err := f.batches.DeleteBatch(deleteBatch.ID, false); err != nil {
		t.Fatalf("delete without release failed: %v", err)
	}
	gone, err := f.paymentRepo.GetByID(dropped.ID)
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if gone != nil {
		t.Fatalf("payment should be deleted with its batch")
	}
}

func TestManualRailLeavesPaymentPendingUntilConfirmed(t *testing.T) {
	f := setupSettlementFixture(t, "batch_manual")
	f.linkAccount(t, 1, "")
	result, err := f.earnings.RecordServiceCompletion(ServiceCompletionInput{
		ServiceID:   501,
		EmployeeID:  1,
		Gross:       mustMoney(t, "100.00"),
		Visits:      1,
		AutoApprove: true,
	})
	if err != nil {
		t.Fatalf("record completion failed: %v", err)
	}
	batch, err := f.batches.CreateBatch(CreateBatchInput{PaymentIDs: []uint{result.Payment.ID}})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	summary, err := f.batches.ProcessBatch(context.Background(), batch.ID, constants.RailManual)
	if err != nil {
		t.Fatalf("process batch failed: %v", err)
	}
	if summary.PendingManualCount != 1 || summary.Status != constants.BatchStatusCompleted {
		t.Fatalf("manual payout should be pending and non-failing: %+v", summary)
	}
	if f.rail.callCount() != 0 {
		t.Fatalf("manual rail must not call the network rail")
	}
	pending := f.reloadPayment(t, result.Payment.ID)
	if pending.Status != constants.PaymentStatusPendingManual {
		t.Fatalf("expected pending_manual, got %s", pending.Status)
	}
	notes, err := f.notifyRepo.ListByBiz("payment", pending.ID)
	if err != nil {
		t.Fatalf("list notifications failed: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected payee and operator notifications, got %d", len(notes))
	}

	if _, err := f.payments.ConfirmManualPayment(pending.ID, 9, ""); !errors.Is(err, ErrPaymentReferenceMissing) {
		t.Fatalf("reference should be required, got %v", err)
	}
	confirmed, err := f.payments.ConfirmManualPayment(pending.ID, 9, "cashapp-7781")
	if err != nil {
		t.Fatalf("confirm manual payment failed: %v", err)
	}
	if confirmed.Status != constants.PaymentStatusPaid || confirmed.Reference != "cashapp-7781" {
		t.Fatalf("unexpected confirmed payment: %+v", confirmed)
	}
	earning, err := f.payments.GetPaymentEarning(confirmed)
	if err != nil || earning == nil {
		t.Fatalf("load earning failed: %v", err)
	}
	if earning.Status != constants.PaymentStatusPaid || earning.PaidVia != constants.RailManual {
		t.Fatalf("earning should mirror manual payment, got %+v", earning)
	}
	if _, err := f.payments.ConfirmManualPayment(pending.ID, 9, "again"); !errors.Is(err, ErrPaymentNotPendingManual) {
		t.Fatalf("second confirmation must be rejected, got %v", err)
	}
}

func TestDeriveBatchStatus(t *testing.T) {
	cases := []struct {
		success int
		failed  int
		want    string
	}{
		{3, 0, constants.BatchStatusCompleted},
		{0, 3, constants.BatchStatusFailed},
		{2, 1, constants.BatchStatusPartial},
	}
	for _, tc := range cases {
		if got := deriveBatchStatus(tc.success, tc.failed); got != tc.want {
			t.Fatalf("deriveBatchStatus(%d,%d)=%s want %s", tc.success, tc.failed, got, tc.want)
		}
	}
}

func TestProcessBatchFlagsTransferWhoseLedgerWriteFailed(t *testing.T) {
	f := setupSettlementFixture(t, "batch_unrecorded")
	f.linkAccount(t, 1, "acct_1")
	p1 := f.createPayment(t, 1, constants.PaymentStatusApproved, "30.00", nil)
	batch, err := f.batches.CreateBatch(CreateBatchInput{PaymentIDs: []uint{p1.ID}})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	f.batches.ledger.paymentRepo = settleWriteFailingRepo{PaymentRepository: f.paymentRepo}

	summary, err := f.batches.ProcessBatch(context.Background(), batch.ID, constants.RailStripe)
	if err != nil {
		t.Fatalf("process batch failed: %v", err)
	}
	if summary.Status != constants.BatchStatusFailed || summary.FailedCount != 1 || summary.UnrecordedCount != 1 {
		t.Fatalf("unrecorded transfer must not count as success: %+v", summary)
	}
	result := summary.Results[0]
	if !result.Unrecorded || result.RailTransactionID != fmt.Sprintf("tr_%d", p1.ID) || result.ErrorCode != "record_failed" {
		t.Fatalf("unexpected payment result: %+v", result)
	}
	if got := f.reloadPayment(t, p1.ID); got.Status != constants.PaymentStatusProcessing {
		t.Fatalf("payment should stay processing for reconciliation, got %s", got.Status)
	}
	alerts, err := f.notifyRepo.ListByBiz("payment", p1.ID)
	if err != nil {
		t.Fatalf("list notifications failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Event != constants.NotifyEventPayoutUnrecorded {
		t.Fatalf("expected one unrecorded alert, got %+v", alerts)
	}
	if alerts[0].Payload["rail_transaction_id"] != fmt.Sprintf("tr_%d", p1.ID) {
		t.Fatalf("alert must carry the rail transaction id, got %+v", alerts[0].Payload)
	}

	calls := f.rail.callCount()
	again, err := f.batches.ProcessBatch(context.Background(), batch.ID, constants.RailStripe)
	if err != nil {
		t.Fatalf("resubmit batch failed: %v", err)
	}
	if again.SuccessCount != 0 || f.rail.callCount() != calls {
		t.Fatalf("processing payment must not be sent again: %+v calls=%d", again, f.rail.callCount())
	}
}

func TestProcessBatchSettlesZeroAmountWithoutRail(t *testing.T) {
	f := setupSettlementFixture(t, "batch_zero")
	f.linkAccount(t, 1, "acct_1")
	f.linkAccount(t, 2, "acct_2")
	zero := f.createPayment(t, 1, constants.PaymentStatusApproved, "0.00", nil)
	paid := f.createPayment(t, 2, constants.PaymentStatusApproved, "8.00", nil)
	batch, err := f.batches.CreateBatch(CreateBatchInput{PaymentIDs: []uint{zero.ID, paid.ID}})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	summary, err := f.batches.ProcessBatch(context.Background(), batch.ID, constants.RailStripe)
	if err != nil {
		t.Fatalf("process batch failed: %v", err)
	}
	if summary.Status != constants.BatchStatusCompleted || summary.SuccessCount != 2 {
		t.Fatalf("zero amount payment should settle: %+v", summary)
	}
	if f.rail.callCount() != 1 {
		t.Fatalf("zero amount payment must not reach the rail, calls=%d", f.rail.callCount())
	}
	got := f.reloadPayment(t, zero.ID)
	if got.Status != constants.PaymentStatusPaid || got.PaidAt == nil || got.RailTransactionID != "" {
		t.Fatalf("unexpected zero amount payment: %+v", got)
	}
}

func TestProcessBatchConcurrentCallsSettleOnce(t *testing.T) {
	f := setupSettlementFixture(t, "batch_concurrent")
	ids := make([]uint, 0, 3)
	for payee := uint(1); payee <= 3; payee++ {
		f.linkAccount(t, payee, fmt.Sprintf("acct_%d", payee))
		ids = append(ids, f.createPayment(t, payee, constants.PaymentStatusApproved, "10.00", nil).ID)
	}
	batch, err := f.batches.CreateBatch(CreateBatchInput{PaymentIDs: ids})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}

	var wg sync.WaitGroup
	summaries := make([]*BatchSummary, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summaries[i], errs[i] = f.batches.ProcessBatch(context.Background(), batch.ID, constants.RailStripe)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i := range errs {
		switch {
		case errs[i] == nil:
			succeeded++
			if summaries[i].Status != constants.BatchStatusCompleted || summaries[i].SuccessCount != 3 {
				t.Fatalf("unexpected summary: %+v", summaries[i])
			}
		case !errors.Is(errs[i], ErrBatchNotProcessable):
			t.Fatalf("losing call should be rejected as not processable, got %v", errs[i])
		}
	}
	if succeeded != 1 {
		t.Fatalf("exactly one call should process the batch, got %d", succeeded)
	}
	if f.rail.transfers() != 3 || f.rail.callCount() != 3 {
		t.Fatalf("expected one transfer per payment, transfers=%d calls=%d", f.rail.transfers(), f.rail.callCount())
	}
}

func TestRetryAndBatchResubmissionRaceSendsOnce(t *testing.T) {
	f := setupSettlementFixture(t, "batch_retry_race")
	f.linkAccount(t, 1, "acct_1")
	p1 := f.createPayment(t, 1, constants.PaymentStatusApproved, "14.00", nil)
	batch, err := f.batches.CreateBatch(CreateBatchInput{PaymentIDs: []uint{p1.ID}})
	if err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	f.rail.setFailAll(errRailDown)
	summary, err := f.batches.ProcessBatch(context.Background(), batch.ID, constants.RailStripe)
	if err != nil || summary.Status != constants.BatchStatusFailed {
		t.Fatalf("expected failed batch, got %+v err=%v", summary, err)
	}
	f.rail.setFailAll(nil)
	failedCalls := f.rail.callCount()

	var wg sync.WaitGroup
	var batchErr, retryErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, batchErr = f.batches.ProcessBatch(context.Background(), batch.ID, constants.RailStripe)
	}()
	go func() {
		defer wg.Done()
		_, retryErr = f.retries.ProcessDueRetries(context.Background(), time.Now().Add(80*time.Hour))
	}()
	wg.Wait()
	if batchErr != nil || retryErr != nil {
		t.Fatalf("concurrent runs failed: batch=%v retry=%v", batchErr, retryErr)
	}

	if f.rail.callCount()-failedCalls != 1 || f.rail.transfers() != 1 {
		t.Fatalf("payment must be sent exactly once, calls=%d transfers=%d", f.rail.callCount()-failedCalls, f.rail.transfers())
	}
	if got := f.reloadPayment(t, p1.ID); got.Status != constants.PaymentStatusPaid {
		t.Fatalf("expected paid payment, got %s", got.Status)
	}
}
