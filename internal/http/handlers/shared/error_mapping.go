package shared

import (
	"errors"

	"github.com/settle-next/internal/authz"
	"github.com/settle-next/internal/http/response"
	"github.com/settle-next/internal/payout"
	"github.com/settle-next/internal/service"
)

type errorRule struct {
	target error
	code   int
	msg    string
}

var serviceErrorRules = []errorRule{
	{service.ErrBatchNotFound, response.CodeNotFound, "batch not found"},
	{service.ErrPaymentNotFound, response.CodeNotFound, "payment not found"},
	{service.ErrEarningNotFound, response.CodeNotFound, "earning not found"},
	{service.ErrReferralNotFound, response.CodeNotFound, "referral not found"},
	{service.ErrSubscriptionNotFound, response.CodeNotFound, "subscription not found"},
	{service.ErrNotificationNotFound, response.CodeNotFound, "notification not found"},
	{service.ErrBatchNotDraft, response.CodeConflict, "batch is not in draft status"},
	{service.ErrBatchNotProcessable, response.CodeConflict, "batch cannot be processed in its current status"},
	{service.ErrBatchNotDeletable, response.CodeConflict, "batch cannot be deleted in its current status"},
	{service.ErrPaymentNotEligible, response.CodeConflict, "payment is not eligible for this batch"},
	{service.ErrPaymentNotPendingManual, response.CodeConflict, "payment is not awaiting manual confirmation"},
	{service.ErrEarningNotPending, response.CodeConflict, "earning is not pending"},
	{service.ErrEarningDuplicate, response.CodeConflict, "service completion already recorded"},
	{service.ErrEarningPeriodUsed, response.CodeConflict, "billing period already recorded for subscription"},
	{service.ErrReferralDuplicate, response.CodeConflict, "referral already exists"},
	{service.ErrReferralStatusInvalid, response.CodeConflict, "referral status does not allow this action"},
	{service.ErrBatchEmpty, response.CodeUnprocessable, "batch has no payments"},
	{service.ErrBatchTypeInvalid, response.CodeBadRequest, "batch type invalid"},
	{service.ErrPaymentNotInBatch, response.CodeBadRequest, "payment does not belong to this batch"},
	{service.ErrPaymentReferenceMissing, response.CodeBadRequest, "manual payment reference is required"},
	{service.ErrReferralSelf, response.CodeBadRequest, "referrer and referred customer must differ"},
	{service.ErrRailInvalid, response.CodeBadRequest, "payout rail invalid"},
	{service.ErrInvalidAmount, response.CodeBadRequest, "amount invalid"},
	{service.ErrPayoutAccountInvalid, response.CodeBadRequest, "payout account invalid"},
	{payout.ErrUnknownRail, response.CodeBadRequest, "payout rail invalid"},
	{authz.ErrRoleImmutable, response.CodeForbidden, "builtin role cannot be modified"},
	{authz.ErrRoleRequired, response.CodeBadRequest, "role is required"},
	{authz.ErrRoleReserved, response.CodeBadRequest, "role is reserved"},
	{authz.ErrActionRequired, response.CodeBadRequest, "action is required"},
}

// MapServiceError 将领域错误转为业务状态码与提示
func MapServiceError(err error) (int, string) {
	if err == nil {
		return response.CodeOK, "success"
	}
	for _, rule := range serviceErrorRules {
		if errors.Is(err, rule.target) {
			return rule.code, rule.msg
		}
	}
	var railErr *payout.Error
	if errors.As(err, &railErr) {
		if railErr.Kind == payout.KindValidation {
			return response.CodeBadRequest, railErr.Message
		}
		return response.CodeRailUnavailable, "payout rail error: " + string(railErr.Kind)
	}
	return response.CodeInternal, "internal error"
}
