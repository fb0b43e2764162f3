package orderbook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/get10101/10101-sub001/internal/eventbus"
	"github.com/get10101/10101-sub001/internal/money"
	"github.com/get10101/10101-sub001/internal/store"
)

type fakeStore struct {
	mu      sync.Mutex
	orders  map[store.OrderID]store.Order
	matches []store.Match
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[store.OrderID]store.Order)}
}

func (f *fakeStore) InsertOrder(_ context.Context, o store.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
	return nil
}

func (f *fakeStore) UpdateOrderState(_ context.Context, id store.OrderID, state store.OrderState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[id]
	o.State = state
	f.orders[id] = o
	return nil
}

func (f *fakeStore) GetOrder(_ context.Context, id store.OrderID) (store.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return store.Order{}, store.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeStore) ActiveOrderForTrader(_ context.Context, trader *btcec.PublicKey) (store.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.Trader.IsEqual(trader) && !o.State.IsTerminal() {
			return o, nil
		}
	}
	return store.Order{}, store.ErrOrderNotFound
}

func (f *fakeStore) OpenOrders(_ context.Context) ([]store.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Order
	for _, o := range f.orders {
		if o.State == store.OrderOpen {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertMatch(_ context.Context, m store.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches = append(f.matches, m)
	return nil
}

type openGate struct{}

func (openGate) AppVersionAllowed(string) bool  { return true }
func (openGate) IsMaker(*btcec.PublicKey) bool   { return true }
func (openGate) MakerGatingEnabled() bool        { return false }

type flatFees struct{}

func (flatFees) MatchingFeeRate() decimal.Decimal                   { return decimal.NewFromFloat(0.003) }
func (flatFees) ReferralBonus(*btcec.PublicKey) decimal.Decimal     { return decimal.Zero }

func randomPubkey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestSubmitMarketOrderMatchesRestingLimit(t *testing.T) {
	s := newFakeStore()
	b := New(s, openGate{}, flatFees{}, eventbus.New())
	ctx := context.Background()

	maker := store.Order{
		ID: store.NewOrderID(), Trader: randomPubkey(t), Kind: store.OrderKindLimit,
		Direction: money.Short, Quantity: decimal.NewFromInt(100), Price: decimal.NewFromInt(50000),
		Expiry: time.Now().Add(time.Hour),
	}
	require.NoError(t, b.Submit(ctx, maker))

	taker := store.Order{
		ID: store.NewOrderID(), Trader: randomPubkey(t), Kind: store.OrderKindMarket,
		Direction: money.Long, Quantity: decimal.NewFromInt(100), Expiry: time.Now().Add(time.Hour),
	}
	require.NoError(t, b.Submit(ctx, taker))

	require.Len(t, s.matches, 2)
	got, err := s.GetOrder(ctx, taker.ID)
	require.NoError(t, err)
	require.Equal(t, store.OrderMatched, got.State)
}

func TestCancelRejectsNonOwner(t *testing.T) {
	s := newFakeStore()
	b := New(s, openGate{}, flatFees{}, eventbus.New())
	ctx := context.Background()

	owner := randomPubkey(t)
	o := store.Order{
		ID: store.NewOrderID(), Trader: owner, Kind: store.OrderKindLimit,
		Direction: money.Long, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(1),
		Expiry: time.Now().Add(time.Hour),
	}
	require.NoError(t, b.Submit(ctx, o))

	err := b.Cancel(ctx, o.ID, randomPubkey(t))
	require.Error(t, err)
}

func TestSubmitLimitOrderRejectsNonPositivePrice(t *testing.T) {
	s := newFakeStore()
	b := New(s, openGate{}, flatFees{}, eventbus.New())
	o := store.Order{
		ID: store.NewOrderID(), Trader: randomPubkey(t), Kind: store.OrderKindLimit,
		Direction: money.Long, Quantity: decimal.NewFromInt(1), Price: decimal.Zero,
	}
	err := b.Submit(context.Background(), o)
	require.Error(t, err)
}
