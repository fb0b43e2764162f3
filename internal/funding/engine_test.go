package funding

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/get10101/10101-sub001/internal/eventbus"
	"github.com/get10101/10101-sub001/internal/money"
	"github.com/get10101/10101-sub001/internal/store"
)

type fakeFundingStore struct {
	rate      store.FundingRate
	rateErr   error
	positions []store.Position
	inserted  []store.FundingFeeEvent
	dupIDs    map[store.PositionID]bool
}

func (f *fakeFundingStore) FundingRateForHour(context.Context, time.Time, store.ContractSymbol) (store.FundingRate, error) {
	return f.rate, f.rateErr
}

func (f *fakeFundingStore) ActivePositions(context.Context) ([]store.Position, error) {
	return f.positions, nil
}

func (f *fakeFundingStore) InsertFundingFeeEvent(_ context.Context, e store.FundingFeeEvent) (store.FundingFeeEventID, error) {
	if f.dupIDs != nil && f.dupIDs[e.PositionID] {
		return 0, store.ErrFundingFeeEventExists
	}
	f.inserted = append(f.inserted, e)
	return store.FundingFeeEventID(len(f.inserted)), nil
}

func randomPubkey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestRunInsertsFundingFeeEventForEachEligiblePosition(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	endDate := now.Add(-5 * time.Minute)

	s := &fakeFundingStore{
		rate: store.FundingRate{Rate: decimal.NewFromFloat(0.0001), EndDate: endDate},
		positions: []store.Position{
			{ID: 1, Trader: randomPubkey(t), Quantity: decimal.NewFromInt(100), Direction: money.Long, State: store.PositionOpen, CreatedAt: endDate.Add(-time.Hour)},
			{ID: 2, Trader: randomPubkey(t), Quantity: decimal.NewFromInt(50), Direction: money.Short, State: store.PositionClosing, CreatedAt: endDate.Add(-time.Hour)},
			{ID: 3, Trader: randomPubkey(t), Quantity: decimal.NewFromInt(50), Direction: money.Short, State: store.PositionOpen, CreatedAt: endDate.Add(time.Hour)},
		},
	}
	bus := eventbus.New()
	var notified int
	bus.Subscribe(eventbus.FundingFeeEvent, func(context.Context, eventbus.Event) { notified++ })

	e := New(s, TestIndexPriceSource{Price: decimal.NewFromInt(50_000)}, bus, func() time.Time { return now })
	require.NoError(t, e.Run(context.Background()))

	require.Len(t, s.inserted, 1)
	require.Equal(t, store.PositionID(1), s.inserted[0].PositionID)
	require.Equal(t, 1, notified)
}

func TestRunNoOpWithoutFundingRate(t *testing.T) {
	s := &fakeFundingStore{rateErr: store.ErrFundingRateNotFound}
	bus := eventbus.New()
	e := New(s, TestIndexPriceSource{Price: decimal.NewFromInt(50_000)}, bus, time.Now)
	require.NoError(t, e.Run(context.Background()))
	require.Empty(t, s.inserted)
}

func TestRunTreatsDuplicateInsertAsSuccess(t *testing.T) {
	now := time.Now()
	s := &fakeFundingStore{
		rate: store.FundingRate{Rate: decimal.NewFromFloat(0.0001), EndDate: now.Add(-time.Minute)},
		positions: []store.Position{
			{ID: 7, Trader: randomPubkey(t), Quantity: decimal.NewFromInt(10), Direction: money.Long, State: store.PositionOpen, CreatedAt: now.Add(-time.Hour)},
		},
		dupIDs: map[store.PositionID]bool{7: true},
	}
	bus := eventbus.New()
	e := New(s, TestIndexPriceSource{Price: decimal.NewFromInt(50_000)}, bus, func() time.Time { return now })
	require.NoError(t, e.Run(context.Background()))
}
