// Package position implements the per-trader position ledger, per
// spec.md §4.9: insertion as Proposed, transitions driven by the owning
// Protocol's outcome, average-entry-price recomputation on resize, and a
// realized-pnl stamp written exactly once on Closing -> Closed.
package position

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
	"github.com/get10101/10101-sub001/internal/money"
	"github.com/get10101/10101-sub001/internal/store"
)

// Store is the subset of the relational store the ledger needs, kept
// narrow so tests can supply an in-memory fake instead of a real Postgres
// connection.
type Store interface {
	InsertPosition(ctx context.Context, p store.Position) (store.PositionID, error)
	GetPosition(ctx context.Context, id store.PositionID) (store.Position, error)
	UpdatePositionState(ctx context.Context, id store.PositionID, state store.PositionState) error
	UpdatePositionResize(ctx context.Context, p store.Position) error
	ClosePosition(ctx context.Context, id store.PositionID, realizedPnLSat int64) error
}

// Ledger drives Position transitions. It holds no state of its own beyond
// a Store handle; every transition re-reads and re-writes the persisted
// row, matching the "pure step function" shape spec.md §9 requires of
// every long-running protocol in this system.
type Ledger struct {
	store Store
}

// New returns a Ledger backed by store.
func New(s Store) *Ledger {
	return &Ledger{store: s}
}

// Open inserts a brand-new position in the Proposed state, per spec.md
// §4.9 "Insertion: only as Proposed, at Offer time".
func (l *Ledger) Open(ctx context.Context, p store.Position) (store.PositionID, error) {
	if p.State != store.PositionProposed {
		return 0, coordinatorerrs.Validation("open position", fmt.Errorf("new position must start Proposed, got %s", p.State))
	}
	id, err := l.store.InsertPosition(ctx, p)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Confirm transitions Proposed -> Open when the opening contract reaches
// Confirmed.
func (l *Ledger) Confirm(ctx context.Context, id store.PositionID) error {
	return l.transition(ctx, id, store.PositionProposed, store.PositionOpen)
}

// BeginResize transitions Open -> Resizing while a size-changing renewal
// is in flight.
func (l *Ledger) BeginResize(ctx context.Context, id store.PositionID) error {
	return l.transition(ctx, id, store.PositionOpen, store.PositionResizing)
}

// BeginRollover transitions Open -> Rollover while an expiry-extending
// renewal is in flight.
func (l *Ledger) BeginRollover(ctx context.Context, id store.PositionID) error {
	return l.transition(ctx, id, store.PositionOpen, store.PositionRollover)
}

// BeginClose transitions Open -> Closing while the settlement protocol
// runs.
func (l *Ledger) BeginClose(ctx context.Context, id store.PositionID) error {
	return l.transition(ctx, id, store.PositionOpen, store.PositionClosing)
}

// Fail moves a position to the terminal Failed state when its owning
// protocol does not succeed, per spec.md §4.9 "anywhere -> Failed".
func (l *Ledger) Fail(ctx context.Context, id store.PositionID) error {
	return l.store.UpdatePositionState(ctx, id, store.PositionFailed)
}

// ResizeFill applies a completed resize renewal: the position returns to
// Open with a recomputed quantity-weighted average entry price and
// liquidation prices for both sides, per spec.md §4.9's "quantity-weighted
// combination of prior and new fills".
func (l *Ledger) ResizeFill(ctx context.Context, id store.PositionID, fillQuantity, fillPrice decimal.Decimal, direction money.Direction, traderMargin, coordinatorMargin btcutil.Amount, traderLeverage, coordinatorLeverage decimal.Decimal) error {
	p, err := l.store.GetPosition(ctx, id)
	if err != nil {
		return err
	}
	if p.State != store.PositionResizing {
		return coordinatorerrs.Protocol("resize fill", fmt.Errorf("position %d not Resizing, got %s", id, p.State))
	}

	p.AverageEntryPrice = WeightedAverageEntryPrice(p.Quantity, p.AverageEntryPrice, fillQuantity, fillPrice)
	p.Quantity = p.Quantity.Add(fillQuantity)
	p.Direction = direction
	p.TraderMargin = traderMargin
	p.CoordinatorMargin = coordinatorMargin
	p.TraderLeverage = traderLeverage
	p.CoordinatorLeverage = coordinatorLeverage
	p.TraderLiquidationPrice = money.LiquidationPrice(p.AverageEntryPrice, traderLeverage, direction)
	p.CoordinatorLiquidation = money.LiquidationPrice(p.AverageEntryPrice, coordinatorLeverage, direction.Opposite())
	p.State = store.PositionOpen

	return l.store.UpdatePositionResize(ctx, p)
}

// RolloverComplete returns a position from Rollover to Open unchanged
// except for its expiry, per spec.md §4.9 ("unchanged for rollover except
// expiry").
func (l *Ledger) RolloverComplete(ctx context.Context, id store.PositionID) error {
	return l.transition(ctx, id, store.PositionRollover, store.PositionOpen)
}

// Close stamps the realized pnl exactly once and transitions Closing ->
// Closed, per spec.md §4.9's "written exactly once" rule.
func (l *Ledger) Close(ctx context.Context, id store.PositionID, realizedPnLSat int64) error {
	p, err := l.store.GetPosition(ctx, id)
	if err != nil {
		return err
	}
	if p.State != store.PositionClosing {
		return coordinatorerrs.Protocol("close position", fmt.Errorf("position %d not Closing, got %s", id, p.State))
	}
	if p.TraderRealizedPnLSat != nil {
		return coordinatorerrs.Protocol("close position", fmt.Errorf("position %d already has a realized pnl stamp", id))
	}
	return l.store.ClosePosition(ctx, id, realizedPnLSat)
}

func (l *Ledger) transition(ctx context.Context, id store.PositionID, from, to store.PositionState) error {
	p, err := l.store.GetPosition(ctx, id)
	if err != nil {
		return err
	}
	if p.State != from {
		return coordinatorerrs.Protocol("position transition", fmt.Errorf("position %d expected %s, got %s", id, from, p.State))
	}
	return l.store.UpdatePositionState(ctx, id, to)
}

// WeightedAverageEntryPrice combines the existing position quantity/price
// with a new fill, per the formula implied by spec.md §8's "Increase"
// worked example: (100*50000 + 250*49999) / 350.
func WeightedAverageEntryPrice(existingQty, existingPrice, fillQty, fillPrice decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return fillPrice
	}
	totalQty := existingQty.Add(fillQty)
	if totalQty.IsZero() {
		return existingPrice
	}
	numerator := existingQty.Mul(existingPrice).Add(fillQty.Mul(fillPrice))
	return numerator.Div(totalQty)
}
