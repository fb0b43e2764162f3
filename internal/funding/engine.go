// Package funding implements the funding-fee accrual engine, per
// spec.md §4.5: on a schedule, read the most recent funding rate, fetch
// an index price for its end_date, and insert an idempotent
// FundingFeeEvent for every position still open across that window.
//
// Ported from original_source/coordinator/src/funding_fee.rs's
// generate_funding_fee_events, restructured as a Go
// (Engine).Run(ctx) error the way the teacher's periodic jobs
// (e.g. contractcourt's anchor sweeps) expose a single idempotent,
// retryable entry point rather than a bespoke retry loop per caller.
package funding

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
	"github.com/get10101/10101-sub001/internal/eventbus"
	"github.com/get10101/10101-sub001/internal/money"
	"github.com/get10101/10101-sub001/internal/store"
)

var errZeroIndexPrice = errors.New("funding: index price is zero")

// defaultMaxAttempts and defaultRetryInterval mirror
// original_source/coordinator/src/funding_fee.rs's RETRY_INTERVAL (5s)
// and hard-coded 10-attempt budget (spec.md §5 "Retry"). They're the
// zero-value fallback when an Engine is built with New rather than
// NewWithRetryBudget.
const (
	defaultMaxAttempts   = 10
	defaultRetryInterval = 5 * time.Second
)

// IndexPriceSource fetches the BTC/USD index price observed at t. Real
// deployments back this with a BitMEX (or similar) HTTP client; spec.md
// §1 treats "oracle HTTP clients" as an external collaborator.
type IndexPriceSource interface {
	IndexPriceAt(ctx context.Context, symbol store.ContractSymbol, t time.Time) (decimal.Decimal, error)
}

// TestIndexPriceSource always returns a fixed price, for use outside
// production the way the Rust IndexPriceSource::Test variant is
// compiled out of release builds.
type TestIndexPriceSource struct {
	Price decimal.Decimal
}

// IndexPriceAt implements IndexPriceSource.
func (t TestIndexPriceSource) IndexPriceAt(context.Context, store.ContractSymbol, time.Time) (decimal.Decimal, error) {
	return t.Price, nil
}

// Store is the subset of the relational store the engine needs.
type Store interface {
	FundingRateForHour(ctx context.Context, endDate time.Time, symbol store.ContractSymbol) (store.FundingRate, error)
	ActivePositions(ctx context.Context) ([]store.Position, error)
	InsertFundingFeeEvent(ctx context.Context, e store.FundingFeeEvent) (store.FundingFeeEventID, error)
}

// Engine runs one funding-fee accrual pass per spec.md §4.5.
type Engine struct {
	store         Store
	prices        IndexPriceSource
	bus           *eventbus.Bus
	now           func() time.Time
	maxAttempts   int
	retryInterval time.Duration
}

// New returns an Engine with the default retry budget. now is injected
// so tests can fix "the present".
func New(s Store, prices IndexPriceSource, bus *eventbus.Bus, now func() time.Time) *Engine {
	return &Engine{
		store:         s,
		prices:        prices,
		bus:           bus,
		now:           now,
		maxAttempts:   defaultMaxAttempts,
		retryInterval: defaultRetryInterval,
	}
}

// NewWithRetryBudget returns an Engine whose RunWithRetry budget is
// configured rather than defaulted, per config.Config's
// FundingFeeMaxRetries/FundingFeeRetryDelay fields.
func NewWithRetryBudget(s Store, prices IndexPriceSource, bus *eventbus.Bus, now func() time.Time, maxAttempts int, retryInterval time.Duration) *Engine {
	e := New(s, prices, bus, now)
	if maxAttempts > 0 {
		e.maxAttempts = maxAttempts
	}
	if retryInterval > 0 {
		e.retryInterval = retryInterval
	}
	return e
}

// Run executes one accrual pass, idempotent on retry by construction:
// the position_id/due_date unique constraint absorbs duplicate inserts.
func (e *Engine) Run(ctx context.Context) error {
	now := e.now()

	rate, err := e.store.FundingRateForHour(ctx, now, store.ContractSymbolBtcUsd)
	if err != nil {
		if err == store.ErrFundingRateNotFound {
			return nil
		}
		return err
	}

	indexPrice, err := e.prices.IndexPriceAt(ctx, store.ContractSymbolBtcUsd, rate.EndDate)
	if err != nil {
		return coordinatorerrs.Storage("fetch index price", err)
	}
	if indexPrice.IsZero() {
		return coordinatorerrs.Validation("fetch index price", errZeroIndexPrice)
	}

	positions, err := e.store.ActivePositions(ctx)
	if err != nil {
		return err
	}

	for _, p := range positions {
		if !accrues(p.State) {
			continue
		}
		if !p.CreatedAt.Before(rate.EndDate) {
			continue
		}

		amount := money.FundingFee(p.Quantity, rate.Rate, indexPrice, p.Direction)

		_, err := e.store.InsertFundingFeeEvent(ctx, store.FundingFeeEvent{
			PositionID: p.ID,
			Trader:     p.Trader,
			Amount:     amount,
			DueDate:    rate.EndDate,
			Price:      indexPrice,
			Rate:       rate.Rate,
		})
		if err != nil {
			if err == store.ErrFundingFeeEventExists {
				continue
			}
			return err
		}

		e.bus.Publish(ctx, eventbus.Event{Kind: eventbus.FundingFeeEvent, Peer: p.Trader})
	}

	return nil
}

// accrues reports whether a position in state still owes funding fees,
// per spec.md §4.5's "state ∈ {Open, Resizing, Rollover}" — narrower than
// store.PositionState.IsActive(), which also covers Proposed and Closing.
func accrues(state store.PositionState) bool {
	switch state {
	case store.PositionOpen, store.PositionResizing, store.PositionRollover:
		return true
	default:
		return false
	}
}

// RunWithRetry runs Run up to e.maxAttempts times at e.retryInterval
// spacing, per spec.md §5's documented retry budget for this job.
func (e *Engine) RunWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.retryInterval):
			}
		}
		if err := e.Run(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
