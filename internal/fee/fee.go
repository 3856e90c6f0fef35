// Package fee 计算一笔服务收费在通道手续费、推荐费、平台和服务人员之间的拆分
package fee

import (
	"errors"

	"github.com/shopspring/decimal"
)

// 金额精度（最小货币单位位数）
const minorUnitPlaces = 2

var (
	// ErrInvalidInput 输入参数非法
	ErrInvalidInput = errors.New("invalid fee input")
	// ErrFeesExceedGross 手续费与推荐费超过收费总额
	ErrFeesExceedGross = errors.New("fees exceed gross amount")
)

var (
	minorUnit            = decimal.New(1, -minorUnitPlaces)
	defaultPlatformShare = decimal.RequireFromString("0.25")
)

// SplitInput 拆分参数
type SplitInput struct {
	Gross            decimal.Decimal
	RailFeePct       decimal.Decimal
	RailFeeFixed     decimal.Decimal
	ReferralFee      decimal.Decimal
	PlatformSharePct decimal.Decimal // 为零时使用 0.25
	Visits           int             // 计费周期内上门次数，<=1 表示不拆分
}

// Breakdown 拆分结果
type Breakdown struct {
	Gross         decimal.Decimal `json:"gross"`
	RailFee       decimal.Decimal `json:"rail_fee"`
	AfterRail     decimal.Decimal `json:"after_rail"`
	ReferralFee   decimal.Decimal `json:"referral_fee"`
	AfterReferral decimal.Decimal `json:"after_referral"`
	PlatformShare decimal.Decimal `json:"platform_share"`
	PayeeShare    decimal.Decimal `json:"payee_share"`
	PerVisitPayee decimal.Decimal `json:"per_visit_payee"`
	Visits        int             `json:"visits"`
	Residue       decimal.Decimal `json:"residue"`
}

// Calculator 持有固定费率参数
type Calculator struct {
	RailFeePct       decimal.Decimal
	RailFeeFixed     decimal.Decimal
	PlatformSharePct decimal.Decimal
}

// Split 按计算器的费率拆分一笔收费
func (c Calculator) Split(gross, referralFee decimal.Decimal, visits int) (Breakdown, error) {
	return Split(SplitInput{
		Gross:            gross,
		RailFeePct:       c.RailFeePct,
		RailFeeFixed:     c.RailFeeFixed,
		ReferralFee:      referralFee,
		PlatformSharePct: c.PlatformSharePct,
		Visits:           visits,
	})
}

// Split 拆分收费，所有金额半进位舍入到分
func Split(input SplitInput) (Breakdown, error) {
	if err := validate(input); err != nil {
		return Breakdown{}, err
	}
	platformPct := input.PlatformSharePct
	if platformPct.IsZero() {
		platformPct = defaultPlatformShare
	}

	gross := round(input.Gross)
	referralFee := round(input.ReferralFee)
	railFee := round(gross.Mul(input.RailFeePct).Add(input.RailFeeFixed))
	afterRail := gross.Sub(railFee)
	afterReferral := afterRail.Sub(referralFee)

	out := Breakdown{
		Gross:         gross,
		RailFee:       railFee,
		AfterRail:     afterRail,
		ReferralFee:   referralFee,
		AfterReferral: afterReferral,
		PlatformShare: decimal.Zero,
		PayeeShare:    decimal.Zero,
		PerVisitPayee: decimal.Zero,
		Visits:        normalizeVisits(input.Visits),
	}
	if afterReferral.IsNegative() {
		out.AfterReferral = decimal.Zero
		out.Residue = gross.Sub(railFee).Sub(referralFee)
		return out, ErrFeesExceedGross
	}

	out.PlatformShare = round(afterReferral.Mul(platformPct))
	out.PayeeShare = round(afterReferral.Sub(afterReferral.Mul(platformPct)))
	out.Residue = gross.Sub(railFee).Sub(referralFee).Sub(out.PlatformShare).Sub(out.PayeeShare)
	if out.Residue.Abs().GreaterThan(minorUnit) {
		out.PlatformShare = out.PlatformShare.Add(out.Residue)
		out.Residue = decimal.Zero
	}
	out.PerVisitPayee = out.PayeeShare
	if out.Visits > 1 {
		out.PerVisitPayee = round(out.PayeeShare.Div(decimal.NewFromInt(int64(out.Visits))))
	}
	return out, nil
}

// Balanced 判断四项之和与收费总额相差不超过一个最小货币单位
func (b Breakdown) Balanced() bool {
	sum := b.RailFee.Add(b.ReferralFee).Add(b.PlatformShare).Add(b.PayeeShare)
	return sum.Sub(b.Gross).Abs().LessThanOrEqual(minorUnit)
}

func validate(input SplitInput) error {
	switch {
	case input.Gross.IsNegative():
		return ErrInvalidInput
	case input.RailFeePct.IsNegative() || input.RailFeePct.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return ErrInvalidInput
	case input.RailFeeFixed.IsNegative():
		return ErrInvalidInput
	case input.ReferralFee.IsNegative():
		return ErrInvalidInput
	case input.PlatformSharePct.IsNegative() || input.PlatformSharePct.GreaterThan(decimal.NewFromInt(1)):
		return ErrInvalidInput
	}
	return nil
}

func normalizeVisits(visits int) int {
	if visits < 1 {
		return 1
	}
	return visits
}

func round(value decimal.Decimal) decimal.Decimal {
	return value.Round(minorUnitPlaces)
}
