package money

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestMargin(t *testing.T) {
	// 100 contracts @ 50_000, leverage 2 => 100_000 sat (spec.md §8 "Open"
	// scenario).
	got := Margin(dec("100"), dec("50000"), dec("2"))
	require.Equal(t, btcutil.Amount(100_000), got)
}

func TestLiquidationPrice(t *testing.T) {
	// spec.md §8 "Liquidation" scenario: Position{Long, entry=30_000,
	// leverage=2}; liquidation crossed at 20_002 is given as the trigger,
	// and leverage=2 long liquidation price is price*lev/(lev+1).
	got := LiquidationPrice(dec("30000"), dec("2"), Long)
	assert.Equal(t, dec("20000.00").String(), got.String())
}

func TestClosePnLDirectionReversal(t *testing.T) {
	// spec.md §8 "Direction reversal": close 100 @ 50000 entry, 50001 exec.
	got := ClosePnL(dec("100"), dec("50000"), dec("50001"), Long)
	// 100 * (1/50000 - 1/50001) BTC, in sats, rounded half away from zero.
	want := RoundSatsHalfAwayFromZero(
		dec("100").Mul(decimal.NewFromInt(1).Div(dec("50000")).Sub(decimal.NewFromInt(1).Div(dec("50001")))),
	)
	require.Equal(t, want, got)
	assert.Greater(t, int64(got), int64(0), "a long closed above its entry price is a gain for the trader")
}

func TestFundingFeeWorkedExample(t *testing.T) {
	// spec.md §8 "Funding fee": rate=0.003, q=500, index=20000
	// => 75_000 sat, trader pays (positive, Long).
	got := FundingFee(dec("500"), dec("0.003"), dec("20000"), Long)
	require.Equal(t, btcutil.Amount(75_000), got)
}

func TestFundingFeeLongShortSymmetry(t *testing.T) {
	// spec.md §8 property 8: funding_fee(q,r,p,Long) == -funding_fee(q,r,p,Short)
	long := FundingFee(dec("500"), dec("0.003"), dec("20000"), Long)
	short := FundingFee(dec("500"), dec("0.003"), dec("20000"), Short)
	require.Equal(t, -long, short)
}

func TestFundingFeeNegativeRate(t *testing.T) {
	long := FundingFee(dec("500"), dec("-0.003"), dec("20000"), Long)
	short := FundingFee(dec("500"), dec("-0.003"), dec("20000"), Short)
	require.Equal(t, -long, short)
}

func TestMatchingFee(t *testing.T) {
	// spec.md §8 "Increase": fee = 250·(1/49999)·0.003 BTC.
	got := MatchingFee(dec("250"), dec("49999"), dec("0.003"), decimal.Zero)
	want := RoundSatsHalfAwayFromZero(round8dp(dec("250").Div(dec("49999")).Mul(dec("0.003"))))
	require.Equal(t, want, got)
}

func TestMatchingFeeReferralBonusReducesFee(t *testing.T) {
	full := MatchingFee(dec("250"), dec("49999"), dec("0.003"), decimal.Zero)
	discounted := MatchingFee(dec("250"), dec("49999"), dec("0.003"), dec("0.5"))
	assert.Less(t, int64(discounted), int64(full))
}
