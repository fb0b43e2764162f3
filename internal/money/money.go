// Package money implements the fixed-point money math specified in
// spec.md §4.2 and §9: margins, liquidation prices, PnL, matching fees and
// funding fees. Every entry point is a direct, tested port of the
// corresponding formula in original_source/coordinator/src/funding_fee.rs
// and the worked examples in spec.md §8.
//
// All money flows use github.com/shopspring/decimal at the boundary and
// convert to satoshis (btcutil.Amount) with half-away-from-zero rounding,
// per spec.md §9 "Numeric precision".
package money

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

// SatsPerBTC is the number of satoshis in one bitcoin.
const SatsPerBTC = 100_000_000

// Direction is the side of a position or order.
type Direction uint8

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Long {
		return "long"
	}
	return "short"
}

// Opposite returns the other side of the trade, the coordinator's
// direction whenever a trader takes d.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// RoundSatsHalfAwayFromZero converts a BTC-denominated decimal amount to
// satoshis, rounding half away from zero (the convention used throughout
// the original Rust implementation via RoundingStrategy::MidpointAwayFromZero).
func RoundSatsHalfAwayFromZero(btc decimal.Decimal) btcutil.Amount {
	sats := btc.Mul(decimal.NewFromInt(SatsPerBTC)).Round(0)
	return btcutil.Amount(sats.IntPart())
}

// round8dp rounds a BTC amount to 8 decimal places, half away from zero,
// matching rust_decimal's round_dp_with_strategy(8, MidpointAwayFromZero).
func round8dp(d decimal.Decimal) decimal.Decimal {
	return d.Round(8)
}

// Margin computes the sats margin for `quantity` contracts (1 contract = 1
// USD of notional) at `price` USD/BTC with `leverage`, per spec.md §4.2:
//
//	margin_sats = round_half_away_from_zero((quantity / price) * 1e8 / leverage)
func Margin(quantity, price, leverage decimal.Decimal) btcutil.Amount {
	btc := quantity.Div(price).Div(leverage)
	return RoundSatsHalfAwayFromZero(btc)
}

// LiquidationPrice computes the index price at which a side's equity drops
// to zero given its leverage, per spec.md §4.2:
//
//	long:  price * leverage / (leverage + 1)
//	short: price * leverage / (leverage - 1)
//
// rounded to 2 decimal places. A short at leverage 1 has no finite
// liquidation price; zero is returned for it.
func LiquidationPrice(price, leverage decimal.Decimal, direction Direction) decimal.Decimal {
	one := decimal.NewFromInt(1)

	var denom decimal.Decimal
	if direction == Long {
		denom = leverage.Add(one)
	} else {
		denom = leverage.Sub(one)
	}
	if denom.IsZero() {
		return decimal.Zero
	}

	return price.Mul(leverage).Div(denom).Round(2)
}

// ClosePnL computes the PnL in sats for closing `quantity` contracts at
// `execPrice` from `entryPrice`, per spec.md §4.2:
//
//	trader long:  q * (1/entry - 1/exec) [BTC]
//	trader short: negated
func ClosePnL(quantity, entryPrice, execPrice decimal.Decimal, direction Direction) btcutil.Amount {
	btc := quantity.Mul(decimal.NewFromInt(1).Div(entryPrice).Sub(decimal.NewFromInt(1).Div(execPrice)))
	if direction == Short {
		btc = btc.Neg()
	}
	return RoundSatsHalfAwayFromZero(btc)
}

// MatchingFee computes the per-fill matching fee, per spec.md §4.1:
//
//	fee = quantity * (1/price) * feeRate * (1 - referralBonus)
//
// rounded half-away-from-zero to 8 satoshi decimals (i.e. whole sats).
func MatchingFee(quantity, price, feeRate, referralBonus decimal.Decimal) btcutil.Amount {
	one := decimal.NewFromInt(1)
	btc := quantity.Div(price).Mul(feeRate).Mul(one.Sub(referralBonus))
	return RoundSatsHalfAwayFromZero(round8dp(btc))
}

// FundingFee computes the funding-fee amount owed between a position's
// trader and the coordinator, ported verbatim (including the sign flip for
// Short) from
// original_source/coordinator/src/funding_fee.rs::calculate_funding_fee.
//
// A positive result means the trader pays the coordinator; negative means
// the coordinator pays the trader. By construction
// FundingFee(q, r, p, Long) == -FundingFee(q, r, p, Short) (spec.md §8,
// property 8).
func FundingFee(quantity, fundingRate, indexPrice decimal.Decimal, direction Direction) btcutil.Amount {
	rate := fundingRate
	if direction == Short {
		rate = rate.Neg()
	}

	// e.g. 500 [$] / 20_000 [$/BTC] = 0.025 [BTC]
	markValue := quantity.Div(indexPrice)

	btc := round8dp(markValue.Mul(rate))
	return RoundSatsHalfAwayFromZero(btc)
}
