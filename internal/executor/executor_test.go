package executor

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/get10101/10101-sub001/internal/dlcmanager"
	"github.com/get10101/10101-sub001/internal/dlcmanager/coinselect"
	"github.com/get10101/10101-sub001/internal/money"
	"github.com/get10101/10101-sub001/internal/position"
	"github.com/get10101/10101-sub001/internal/store"
)

type fakeStore struct {
	positions map[store.PositionID]store.Position
	protocols []store.Protocol
	nextID    store.PositionID
	unpaid    map[store.PositionID][]store.FundingFeeEvent
	staged    map[store.ProtocolID][]store.FundingFeeEventID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		positions: make(map[store.PositionID]store.Position),
		unpaid:    make(map[store.PositionID][]store.FundingFeeEvent),
		staged:    make(map[store.ProtocolID][]store.FundingFeeEventID),
	}
}

func (f *fakeStore) InsertPosition(_ context.Context, p store.Position) (store.PositionID, error) {
	f.nextID++
	p.ID = f.nextID
	f.positions[p.ID] = p
	return p.ID, nil
}

func (f *fakeStore) GetPosition(_ context.Context, id store.PositionID) (store.Position, error) {
	p, ok := f.positions[id]
	if !ok {
		return store.Position{}, store.ErrPositionNotFound
	}
	return p, nil
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

func (f *fakeStore) ClosePosition(_ context.Context, id store.PositionID, realizedPnLSat int64) error {
	p := f.positions[id]
	p.State = store.PositionClosed
	p.TraderRealizedPnLSat = &realizedPnLSat
	f.positions[id] = p
	return nil
}

func (f *fakeStore) ActivePositionForTrader(_ context.Context, trader *btcec.PublicKey) (store.Position, error) {
	for _, p := range f.positions {
		if p.Trader.IsEqual(trader) && p.State.IsActive() {
			return p, nil
		}
	}
	return store.Position{}, store.ErrPositionNotFound
}

func (f *fakeStore) InsertProtocol(_ context.Context, p store.Protocol) error {
	f.protocols = append(f.protocols, p)
	return nil
}

func (f *fakeStore) UnpaidFundingFeeEventsForPosition(_ context.Context, id store.PositionID) ([]store.FundingFeeEvent, error) {
	return f.unpaid[id], nil
}

func (f *fakeStore) StageFundingFeeEventsForProtocol(_ context.Context, protocolID store.ProtocolID, eventIDs []store.FundingFeeEventID) error {
	f.staged[protocolID] = eventIDs
	return nil
}

type fakePeers struct{ connected bool }

func (f fakePeers) Connected(*btcec.PublicKey) bool { return f.connected }

type fakeDlc struct{ opened int }

func (f *fakeDlc) OpenOffer(_ context.Context, temporaryID [32]byte, input dlcmanager.ContractInput, candidates []coinselect.Utxo, feeRate int64) (*dlcmanager.Contract, error) {
	f.opened++
	return &dlcmanager.Contract{TemporaryID: temporaryID, Input: input}, nil
}

type fakeUtxos struct{}

func (fakeUtxos) CandidateUtxos(context.Context) ([]coinselect.Utxo, error) {
	return []coinselect.Utxo{{Value: 1_000_000}}, nil
}

func randomPubkey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func newTestExecutor(s *fakeStore, connected bool) (*Executor, *fakeDlc) {
	ledger := position.New(s)
	dlc := &fakeDlc{}
	return New(s, ledger, fakePeers{connected: connected}, dlc, fakeUtxos{}, func() int64 { return 2 }), dlc
}

func TestExecuteOpensNewPositionWhenNoneExists(t *testing.T) {
	s := newFakeStore()
	e, dlc := newTestExecutor(s, true)
	trader := randomPubkey(t)

	m := ExecutableMatch{
		Trader: trader,
		Order: store.Order{
			Trader:    trader,
			Direction: money.Long,
			Leverage:  decimal.NewFromInt(2),
			Reason:    store.ReasonManual,
		},
		Matches: []store.Match{{Quantity: decimal.NewFromInt(100), ExecutionPrice: decimal.NewFromInt(50_000)}},
	}

	require.NoError(t, e.Execute(context.Background(), m))
	require.Equal(t, 1, dlc.opened)
	require.Len(t, s.positions, 1)
	for _, p := range s.positions {
		require.Equal(t, store.PositionProposed, p.State)
		require.True(t, p.Quantity.Equal(decimal.NewFromInt(100)))
	}
}

func TestExecuteRejectsDisconnectedTrader(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestExecutor(s, false)
	trader := randomPubkey(t)

	m := ExecutableMatch{Trader: trader, Order: store.Order{Trader: trader, Reason: store.ReasonManual}}
	require.Error(t, e.Execute(context.Background(), m))
}

func TestExecuteResizesExistingSameDirectionPosition(t *testing.T) {
	s := newFakeStore()
	e, dlc := newTestExecutor(s, true)
	trader := randomPubkey(t)

	existing := store.Position{
		Trader:            trader,
		Direction:         money.Long,
		Quantity:          decimal.NewFromInt(100),
		AverageEntryPrice: decimal.NewFromInt(50_000),
		TraderMargin:      btcutil.Amount(200_000),
		CoordinatorMargin: btcutil.Amount(200_000),
		State:             store.PositionOpen,
	}
	id, err := s.InsertPosition(context.Background(), existing)
	require.NoError(t, err)

	m := ExecutableMatch{
		Trader: trader,
		Order:  store.Order{Trader: trader, Direction: money.Long, Reason: store.ReasonManual},
		Matches: []store.Match{
			{Quantity: decimal.NewFromInt(250), ExecutionPrice: decimal.NewFromInt(49_999)},
		},
	}

	require.NoError(t, e.Execute(context.Background(), m))
	require.Equal(t, 1, dlc.opened)

	p := s.positions[id]
	require.Equal(t, store.PositionOpen, p.State)
	require.True(t, p.Quantity.Equal(decimal.NewFromInt(350)))
}

func TestSelectPathClosesOnOppositeEqualQuantity(t *testing.T) {
	order := store.Order{Direction: money.Short, Reason: store.ReasonManual}
	path := SelectPath(order, true, money.Long, decimal.NewFromInt(100), decimal.NewFromInt(100))
	require.Equal(t, PathClose, path)
}

func TestSelectPathCloseThenOpenOnOppositeLargerQuantity(t *testing.T) {
	order := store.Order{Direction: money.Short, Reason: store.ReasonManual}
	path := SelectPath(order, true, money.Long, decimal.NewFromInt(100), decimal.NewFromInt(150))
	require.Equal(t, PathCloseThenOpen, path)
}

func TestSelectPathForcedCloseOnLiquidation(t *testing.T) {
	order := store.Order{Direction: money.Short, Reason: store.ReasonTraderLiquidated}
	path := SelectPath(order, true, money.Long, decimal.NewFromInt(100), decimal.NewFromInt(100))
	require.Equal(t, PathForcedClose, path)
}
