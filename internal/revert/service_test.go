package revert

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/get10101/10101-sub001/internal/eventbus"
	"github.com/get10101/10101-sub001/internal/money"
	"github.com/get10101/10101-sub001/internal/store"
)

type fakeRevertStore struct {
	channel  store.DlcChannel
	position store.Position
	proposal store.CollaborativeRevert
	inserted []store.CollaborativeRevert
	deleted  bool

	channelState store.DlcChannelState
	closedID     store.PositionID
}

func (f *fakeRevertStore) GetDlcChannel(context.Context, store.ChannelID) (store.DlcChannel, error) {
	return f.channel, nil
}

func (f *fakeRevertStore) GetPosition(context.Context, store.PositionID) (store.Position, error) {
	return f.position, nil
}

func (f *fakeRevertStore) InsertCollaborativeRevert(_ context.Context, r store.CollaborativeRevert) error {
	f.inserted = append(f.inserted, r)
	f.proposal = r
	return nil
}

func (f *fakeRevertStore) GetCollaborativeRevert(context.Context, store.ChannelID) (store.CollaborativeRevert, error) {
	return f.proposal, nil
}

func (f *fakeRevertStore) DeleteCollaborativeRevert(context.Context, store.ChannelID) error {
	f.deleted = true
	return nil
}

func (f *fakeRevertStore) ClosePosition(_ context.Context, id store.PositionID, _ int64) error {
	f.closedID = id
	return nil
}

func (f *fakeRevertStore) UpdateDlcChannelState(_ context.Context, _ store.ChannelID, state store.DlcChannelState) error {
	f.channelState = state
	return nil
}

type fakeBroadcaster struct {
	broadcast *wire.MsgTx
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, tx *wire.MsgTx) error {
	f.broadcast = tx
	return nil
}

func TestOfferPersistsProposalAndNotifies(t *testing.T) {
	trader := randomPubkey(t)

	s := &fakeRevertStore{
		channel: store.DlcChannel{
			Trader:                 trader,
			CoordinatorFundingSats: 500_000,
			TraderFundingSats:      500_000,
			TraderReserveSats:      65_450,
			CoordinatorReserveSats: 85_673,
		},
		position: store.Position{
			Trader:            trader,
			Direction:         money.Long,
			Quantity:          decimal.NewFromInt(100),
			AverageEntryPrice: decimal.NewFromInt(50_000),
			TraderMargin:      18_690,
			CoordinatorMargin: 18_690,
		},
	}

	bus := eventbus.New()
	var notified int
	bus.Subscribe(eventbus.CollaborativeRevertProposed, func(context.Context, eventbus.Event) { notified++ })

	builder := NewBuilder(&chaincfg.RegressionNetParams)
	svc := New(s, builder, &fakeBroadcaster{}, bus, func() time.Time { return time.Unix(0, 0) })

	addr, err := btcutil.NewAddressWitnessPubKeyHash(make([]byte, 20), &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	_, err = svc.Offer(context.Background(), store.ChannelID{}, 1, decimal.NewFromInt(50_000), 1, addr, wire.OutPoint{})
	require.NoError(t, err)
	require.Len(t, s.inserted, 1)
	require.Equal(t, 1, notified)
}
