package position

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/get10101/10101-sub001/internal/money"
	"github.com/get10101/10101-sub001/internal/store"
)

type fakeStore struct {
	positions map[store.PositionID]store.Position
}

func newFakeStore(p store.Position) *fakeStore {
	return &fakeStore{positions: map[store.PositionID]store.Position{p.ID: p}}
}

func (f *fakeStore) InsertPosition(context.Context, store.Position) (store.PositionID, error) {
	return 0, nil
}

func (f *fakeStore) GetPosition(_ context.Context, id store.PositionID) (store.Position, error) {
	return f.positions[id], nil
}

func (f *fakeStore) UpdatePositionState(_ context.Context, id store.PositionID, state store.PositionState) error {
	p := f.positions[id]
	p.State = state
	f.positions[id] = p
	return nil
}

func (f *fakeStore) UpdatePositionResize(_ context.Context, p store.Position) error {
	f.positions[p.ID] = p
	return nil
}

func (f *fakeStore) ClosePosition(context.Context, store.PositionID, int64) error {
	return nil
}

func TestWeightedAverageEntryPriceIncreaseExample(t *testing.T) {
	// spec.md §8 "Increase": (100*50000 + 250*49999) / 350.
	got := WeightedAverageEntryPrice(
		decimal.NewFromInt(100), decimal.NewFromInt(50000),
		decimal.NewFromInt(250), decimal.NewFromInt(49999),
	)
	want := decimal.NewFromInt(100).Mul(decimal.NewFromInt(50000)).
		Add(decimal.NewFromInt(250).Mul(decimal.NewFromInt(49999))).
		Div(decimal.NewFromInt(350))
	require.True(t, got.Equal(want), "got %s want %s", got, want)
}

func TestWeightedAverageEntryPriceFromZero(t *testing.T) {
	got := WeightedAverageEntryPrice(decimal.Zero, decimal.Zero, decimal.NewFromInt(100), decimal.NewFromInt(50000))
	require.True(t, got.Equal(decimal.NewFromInt(50000)))
}

func TestResizeFillSetsBothLiquidationPrices(t *testing.T) {
	p := store.Position{
		ID:                  1,
		Direction:           money.Long,
		Quantity:            decimal.NewFromInt(100),
		AverageEntryPrice:   decimal.NewFromInt(50000),
		TraderLeverage:      decimal.NewFromInt(2),
		CoordinatorLeverage: decimal.NewFromInt(1),
		State:               store.PositionResizing,
	}
	s := newFakeStore(p)
	l := New(s)

	err := l.ResizeFill(context.Background(), p.ID,
		decimal.NewFromInt(250), decimal.NewFromInt(49999), money.Long,
		btcutil.Amount(1000), btcutil.Amount(500),
		decimal.NewFromInt(2), decimal.NewFromInt(1),
	)
	require.NoError(t, err)

	got := s.positions[p.ID]
	require.Equal(t, store.PositionOpen, got.State)

	wantTraderLiq := money.LiquidationPrice(got.AverageEntryPrice, decimal.NewFromInt(2), money.Long)
	wantCoordinatorLiq := money.LiquidationPrice(got.AverageEntryPrice, decimal.NewFromInt(1), money.Short)
	require.True(t, got.TraderLiquidationPrice.Equal(wantTraderLiq))
	require.True(t, got.CoordinatorLiquidation.Equal(wantCoordinatorLiq))
}
