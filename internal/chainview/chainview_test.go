package chainview

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	events map[chainhash.Hash]*ConfirmationEvent
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{events: make(map[chainhash.Hash]*ConfirmationEvent)}
}

func (f *fakeNotifier) RegisterConfirmationsNtfn(txid *chainhash.Hash, _, _ uint32) (*ConfirmationEvent, error) {
	event := &ConfirmationEvent{
		Confirmed:    make(chan *TxConfirmation, 1),
		NegativeConf: make(chan int32, 1),
	}
	f.events[*txid] = event
	return event, nil
}

func (f *fakeNotifier) RegisterSpendNtfn(*wire.OutPoint, uint32) (*SpendEvent, error) {
	return &SpendEvent{Spend: make(chan *SpendDetail, 1)}, nil
}

func (f *fakeNotifier) Start() error { return nil }
func (f *fakeNotifier) Stop() error  { return nil }

func (f *fakeNotifier) confirm(txid chainhash.Hash) {
	f.events[txid].Confirmed <- &TxConfirmation{BlockHeight: 100}
}

func TestIsBuriedBecomesTrueAfterConfirmation(t *testing.T) {
	notifier := newFakeNotifier()
	tracker := NewTracker(notifier)

	outpoint := wire.OutPoint{Hash: chainhash.Hash{1, 2, 3}, Index: 0}

	buried, err := tracker.IsBuried(context.Background(), outpoint, 1)
	require.NoError(t, err)
	require.False(t, buried)

	notifier.confirm(outpoint.Hash)

	require.Eventually(t, func() bool {
		buried, err := tracker.IsBuried(context.Background(), outpoint, 1)
		return err == nil && buried
	}, time.Second, time.Millisecond)
}
