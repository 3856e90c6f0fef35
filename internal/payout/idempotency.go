package payout

import (
	"strconv"

	"github.com/google/uuid"
)

var idempotencyNamespace = uuid.MustParse("7f3c1d2e-5b8a-4c6f-9e01-2a4b6c8d0e1f")

// IdempotencyKey 由付款 ID 派生稳定的转账幂等键
func IdempotencyKey(paymentID uint) string {
	return "payout-" + uuid.NewSHA1(idempotencyNamespace, []byte("payment:"+strconv.FormatUint(uint64(paymentID), 10))).String()
}
