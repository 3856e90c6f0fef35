package fee

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(raw)
	require.NoError(t, err)
	return d
}

func TestSplitMonthlyPlanWithReferral(t *testing.T) {
	out, err := Split(SplitInput{
		Gross:        dec(t, "55.00"),
		RailFeePct:   dec(t, "0.029"),
		RailFeeFixed: dec(t, "0.30"),
		ReferralFee:  dec(t, "5.00"),
		Visits:       4,
	})
	require.NoError(t, err)

	assert.Equal(t, "1.90", out.RailFee.StringFixed(2))
	assert.Equal(t, "53.10", out.AfterRail.StringFixed(2))
	assert.Equal(t, "48.10", out.AfterReferral.StringFixed(2))
	assert.Equal(t, "12.03", out.PlatformShare.StringFixed(2))
	assert.Equal(t, "36.08", out.PayeeShare.StringFixed(2))
	assert.Equal(t, "9.02", out.PerVisitPayee.StringFixed(2))
	assert.Equal(t, "-0.01", out.Residue.StringFixed(2))
	assert.True(t, out.Balanced())
}

func TestSplitWithoutReferral(t *testing.T) {
	calc := Calculator{RailFeePct: dec(t, "0.029"), RailFeeFixed: dec(t, "0.30")}
	out, err := calc.Split(dec(t, "100"), decimal.Zero, 1)
	require.NoError(t, err)

	assert.Equal(t, "3.20", out.RailFee.StringFixed(2))
	assert.Equal(t, "96.80", out.AfterReferral.StringFixed(2))
	assert.Equal(t, "24.20", out.PlatformShare.StringFixed(2))
	assert.Equal(t, "72.60", out.PayeeShare.StringFixed(2))
	assert.Equal(t, out.PayeeShare.String(), out.PerVisitPayee.String())
	assert.True(t, out.Residue.IsZero())
}

func TestSplitZeroGross(t *testing.T) {
	out, err := Split(SplitInput{Gross: decimal.Zero})
	require.NoError(t, err)
	assert.True(t, out.PayeeShare.IsZero())
	assert.True(t, out.Balanced())
}

func TestSplitFeesExceedGross(t *testing.T) {
	out, err := Split(SplitInput{
		Gross:        dec(t, "2.00"),
		RailFeePct:   dec(t, "0.029"),
		RailFeeFixed: dec(t, "0.30"),
		ReferralFee:  dec(t, "5.00"),
	})
	require.ErrorIs(t, err, ErrFeesExceedGross)
	assert.True(t, out.PayeeShare.IsZero())
	assert.True(t, out.PlatformShare.IsZero())
}

func TestSplitRejectsInvalidInput(t *testing.T) {
	cases := []SplitInput{
		{Gross: dec(t, "-1")},
		{Gross: dec(t, "10"), RailFeePct: dec(t, "1")},
		{Gross: dec(t, "10"), RailFeeFixed: dec(t, "-0.01")},
		{Gross: dec(t, "10"), ReferralFee: dec(t, "-5")},
		{Gross: dec(t, "10"), PlatformSharePct: dec(t, "1.5")},
	}
	for i, input := range cases {
		_, err := Split(input)
		assert.ErrorIs(t, err, ErrInvalidInput, "case %d", i)
	}
}

func TestSplitAlwaysBalancedWithinMinorUnit(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		gross := decimal.New(rng.Int63n(100000)+2000, -2)
		pct := decimal.New(rng.Int63n(60), -3)
		fixed := decimal.New(rng.Int63n(100), -2)
		referral := decimal.New(rng.Int63n(1000), -2)
		out, err := Split(SplitInput{
			Gross:        gross,
			RailFeePct:   pct,
			RailFeeFixed: fixed,
			ReferralFee:  referral,
			Visits:       1 + rng.Intn(5),
		})
		require.NoError(t, err, "gross=%s", gross)
		require.True(t, out.Balanced(), "gross=%s pct=%s fixed=%s referral=%s out=%+v", gross, pct, fixed, referral, out)
	}
}
