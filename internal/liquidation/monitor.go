// Package liquidation implements the liquidation monitor, per spec.md
// §4.7: on a short, fixed cadence, compare the best available orderbook
// price against each open position's trader- and coordinator-side
// liquidation prices, and inject a synthetic forced-close Market order
// the moment either threshold is crossed.
//
// Grounded on the general mockable-ticker periodic-job idiom used
// throughout the teacher (e.g. htlcswitch's mailbox batch tickers):
// production wiring drives the monitor from a real
// lightningnetwork/lnd/ticker.Ticker, tests pass a small fake ticker and
// call Tick directly so a check runs deterministically.
package liquidation

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/shopspring/decimal"

	"github.com/get10101/10101-sub001/internal/money"
	"github.com/get10101/10101-sub001/internal/store"
)

// forcedCloseExpiry bounds the injected order's lifetime to 7 days, per
// spec.md §4.7 ("bounded by the refund timelock").
const forcedCloseExpiry = 7 * 24 * time.Hour

// PriceSource reports the current best bid/ask the monitor compares
// liquidation prices against.
type PriceSource interface {
	BestBid(ctx context.Context, symbol store.ContractSymbol) (decimal.Decimal, error)
	BestAsk(ctx context.Context, symbol store.ContractSymbol) (decimal.Decimal, error)
}

// PositionSource supplies the open positions to check each tick.
type PositionSource interface {
	ActivePositions(ctx context.Context) ([]store.Position, error)
}

// OrderSubmitter is the subset of orderbook.Book the monitor drives a
// synthetic order through -- the same trade path a manual close uses.
type OrderSubmitter interface {
	Submit(ctx context.Context, o store.Order) error
}

// Monitor is the liquidation monitor loop.
type Monitor struct {
	prices    PriceSource
	positions PositionSource
	orders    OrderSubmitter
	ticker    ticker.Ticker
	now       func() time.Time
}

// New returns a Monitor driven by t. Production passes a *ticker.Ticker;
// the tests pass a local fake implementation of ticker.Ticker.
func New(prices PriceSource, positions PositionSource, orders OrderSubmitter, t ticker.Ticker, now func() time.Time) *Monitor {
	return &Monitor{prices: prices, positions: positions, orders: orders, ticker: t, now: now}
}

// Run blocks, checking positions on every tick, until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.ticker.Resume()
	defer m.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.ticker.Ticks():
			if err := m.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Tick runs one liquidation check across every open position.
func (m *Monitor) Tick(ctx context.Context) error {
	bid, err := m.prices.BestBid(ctx, store.ContractSymbolBtcUsd)
	if err != nil {
		return err
	}
	ask, err := m.prices.BestAsk(ctx, store.ContractSymbolBtcUsd)
	if err != nil {
		return err
	}

	positions, err := m.positions.ActivePositions(ctx)
	if err != nil {
		return err
	}

	for _, p := range positions {
		if p.State != store.PositionOpen {
			continue
		}
		reason, crossed := checkLiquidation(p, bid, ask)
		if !crossed {
			continue
		}
		if err := m.submitForcedClose(ctx, p, reason); err != nil {
			return err
		}
	}
	return nil
}

// checkLiquidation reports whether the relevant side of the book has
// crossed this position's trader or coordinator liquidation price, per
// spec.md §4.7: a long position is checked against the best bid (the
// price it would be sold into), a short against the best ask.
func checkLiquidation(p store.Position, bid, ask decimal.Decimal) (store.OrderReason, bool) {
	var reference decimal.Decimal
	if p.Direction == money.Long {
		reference = bid
	} else {
		reference = ask
	}

	traderCrossed := crossedAgainstTrader(p.Direction, reference, p.TraderLiquidationPrice)
	if traderCrossed {
		return store.ReasonTraderLiquidated, true
	}
	coordinatorCrossed := crossedAgainstTrader(p.Direction, reference, p.CoordinatorLiquidation)
	if coordinatorCrossed {
		return store.ReasonCoordinatorLiquidated, true
	}
	return 0, false
}

// crossedAgainstTrader reports whether price has moved past liqPrice in
// the direction that wipes out the position's equity: down through the
// floor for a long, up through the ceiling for a short.
func crossedAgainstTrader(direction money.Direction, price, liqPrice decimal.Decimal) bool {
	if liqPrice.IsZero() {
		return false
	}
	if direction == money.Long {
		return price.LessThanOrEqual(liqPrice)
	}
	return price.GreaterThanOrEqual(liqPrice)
}

func (m *Monitor) submitForcedClose(ctx context.Context, p store.Position, reason store.OrderReason) error {
	o := store.Order{
		ID:         store.NewOrderID(),
		Trader:     p.Trader,
		Kind:       store.OrderKindMarket,
		Direction:  opposite(p.Direction),
		Quantity:   p.Quantity,
		Reason:     reason,
		State:      store.OrderOpen,
		Expiry:     m.now().Add(forcedCloseExpiry),
		CreatedAt:  m.now(),
		UpdatedAt:  m.now(),
	}
	return m.orders.Submit(ctx, o)
}

func opposite(d money.Direction) money.Direction {
	if d == money.Long {
		return money.Short
	}
	return money.Long
}
