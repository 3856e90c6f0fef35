package service

import "errors"

var (
	ErrBatchNotFound       = errors.New("batch not found")
	ErrBatchNotDraft       = errors.New("batch is not in draft status")
	ErrBatchNotProcessable = errors.New("batch cannot be processed in current status")
	ErrBatchNotDeletable   = errors.New("batch cannot be deleted in current status")
	ErrBatchEmpty          = errors.New("batch has no payments")
	ErrBatchTypeInvalid    = errors.New("batch type is invalid")

	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentNotEligible      = errors.New("payment is not approved or already belongs to a batch")
	ErrPaymentNotInBatch       = errors.New("payment does not belong to the batch")
	ErrPaymentNotPendingManual = errors.New("payment is not awaiting manual confirmation")
	ErrPaymentReferenceMissing = errors.New("manual payment reference is required")

	ErrEarningNotFound   = errors.New("earning not found")
	ErrEarningNotPending = errors.New("earning is not pending")
	ErrEarningDuplicate  = errors.New("earning already recorded for service")
	ErrEarningPeriodUsed = errors.New("earning already recorded for subscription period")

	ErrReferralSelf          = errors.New("referrer and referred party must differ")
	ErrReferralDuplicate     = errors.New("referred party already has a referral")
	ErrReferralNotFound      = errors.New("referral not found")
	ErrReferralStatusInvalid = errors.New("referral status transition is invalid")

	ErrRailInvalid          = errors.New("rail selector is invalid")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPayoutAccountInvalid = errors.New("payout account is invalid")

	ErrNotificationNotFound      = errors.New("notification not found")
	ErrEmailServiceDisabled      = errors.New("email service disabled")
	ErrEmailServiceNotConfigured = errors.New("email service not configured")
	ErrInvalidEmail              = errors.New("invalid email address")
)
