package liquidation

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/get10101/10101-sub001/internal/money"
	"github.com/get10101/10101-sub001/internal/store"
)

type fakeTicker struct {
	ticks chan time.Time
}

func (f *fakeTicker) Ticks() <-chan time.Time { return f.ticks }
func (f *fakeTicker) Resume()                 {}
func (f *fakeTicker) Pause()                  {}
func (f *fakeTicker) Stop()                   {}

type fakePrices struct {
	bid, ask decimal.Decimal
}

func (f fakePrices) BestBid(context.Context, store.ContractSymbol) (decimal.Decimal, error) {
	return f.bid, nil
}

func (f fakePrices) BestAsk(context.Context, store.ContractSymbol) (decimal.Decimal, error) {
	return f.ask, nil
}

type fakePositions struct {
	positions []store.Position
}

func (f fakePositions) ActivePositions(context.Context) ([]store.Position, error) {
	return f.positions, nil
}

type fakeSubmitter struct {
	submitted []store.Order
}

func (f *fakeSubmitter) Submit(_ context.Context, o store.Order) error {
	f.submitted = append(f.submitted, o)
	return nil
}

func randomPubkey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestTickInjectsTraderLiquidatedOrder(t *testing.T) {
	trader := randomPubkey(t)
	position := store.Position{
		Trader:                 trader,
		Direction:              money.Long,
		Quantity:               decimal.NewFromInt(1),
		TraderLiquidationPrice: decimal.NewFromInt(20_000),
		State:                  store.PositionOpen,
	}

	submitter := &fakeSubmitter{}
	m := New(
		fakePrices{bid: decimal.NewFromInt(19_999), ask: decimal.NewFromInt(20_001)},
		fakePositions{positions: []store.Position{position}},
		submitter,
		&fakeTicker{ticks: make(chan time.Time, 1)},
		func() time.Time { return time.Unix(0, 0) },
	)

	require.NoError(t, m.Tick(context.Background()))
	require.Len(t, submitter.submitted, 1)
	require.Equal(t, store.ReasonTraderLiquidated, submitter.submitted[0].Reason)
	require.Equal(t, money.Short, submitter.submitted[0].Direction)
}

func TestTickSkipsPositionsBelowThreshold(t *testing.T) {
	trader := randomPubkey(t)
	position := store.Position{
		Trader:                 trader,
		Direction:              money.Long,
		Quantity:               decimal.NewFromInt(1),
		TraderLiquidationPrice: decimal.NewFromInt(10_000),
		State:                  store.PositionOpen,
	}

	submitter := &fakeSubmitter{}
	m := New(
		fakePrices{bid: decimal.NewFromInt(19_999), ask: decimal.NewFromInt(20_001)},
		fakePositions{positions: []store.Position{position}},
		submitter,
		&fakeTicker{ticks: make(chan time.Time, 1)},
		func() time.Time { return time.Unix(0, 0) },
	)

	require.NoError(t, m.Tick(context.Background()))
	require.Empty(t, submitter.submitted)
}

func TestTickIgnoresNonOpenPositions(t *testing.T) {
	trader := randomPubkey(t)
	position := store.Position{
		Trader:                 trader,
		Direction:              money.Long,
		Quantity:               decimal.NewFromInt(1),
		TraderLiquidationPrice: decimal.NewFromInt(20_000),
		State:                  store.PositionClosing,
	}

	submitter := &fakeSubmitter{}
	m := New(
		fakePrices{bid: decimal.NewFromInt(19_999), ask: decimal.NewFromInt(20_001)},
		fakePositions{positions: []store.Position{position}},
		submitter,
		&fakeTicker{ticks: make(chan time.Time, 1)},
		func() time.Time { return time.Unix(0, 0) },
	)

	require.NoError(t, m.Tick(context.Background()))
	require.Empty(t, submitter.submitted)
}
