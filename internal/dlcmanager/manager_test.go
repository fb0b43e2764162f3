package dlcmanager

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/get10101/10101-sub001/internal/dlcmanager/coinselect"
	"github.com/get10101/10101-sub001/internal/dlcwire"
)

type fakeBlobstore struct {
	mu        sync.Mutex
	contracts map[[32]byte][]byte
	channels  map[[32]byte][]byte
}

func newFakeBlobstore() *fakeBlobstore {
	return &fakeBlobstore{
		contracts: make(map[[32]byte][]byte),
		channels:  make(map[[32]byte][]byte),
	}
}

func (f *fakeBlobstore) PutContract(_ context.Context, id [32]byte, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contracts[id] = blob
	return nil
}

func (f *fakeBlobstore) PutChannel(_ context.Context, id [32]byte, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[id] = blob
	return nil
}

func (f *fakeBlobstore) ListContracts(context.Context) (map[[32]byte][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[[32]byte][]byte, len(f.contracts))
	for k, v := range f.contracts {
		out[k] = v
	}
	return out, nil
}

func (f *fakeBlobstore) ListChannels(context.Context) (map[[32]byte][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[[32]byte][]byte, len(f.channels))
	for k, v := range f.channels {
		out[k] = v
	}
	return out, nil
}

type fakeChainView struct {
	buried bool
	// wantOutpoint, when non-zero, asserts IsBuried is queried against
	// this outpoint rather than a zero-value placeholder.
	wantOutpoint *wire.OutPoint
	t            *testing.T
}

func (f fakeChainView) IsBuried(_ context.Context, outpoint wire.OutPoint, _ uint32) (bool, error) {
	if f.wantOutpoint != nil {
		require.Equal(f.t, *f.wantOutpoint, outpoint)
	}
	return f.buried, nil
}

type fakeBroadcaster struct {
	mu  sync.Mutex
	txs []*wire.MsgTx
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, tx *wire.MsgTx) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, tx)
	return nil
}

func TestOpenOfferReservesCoinsAndPersists(t *testing.T) {
	blobs := newFakeBlobstore()
	m := New(blobs, fakeChainView{}, &fakeBroadcaster{})
	ctx := context.Background()

	candidates := []coinselect.Utxo{{OutPoint: wire.OutPoint{Index: 0}, Value: 200_000, WitnessType: coinselect.P2WKH}}
	input := ContractInput{OfferCollateral: btcutil.Amount(100_000), AcceptCollateral: btcutil.Amount(100_000)}

	var temporaryID [32]byte
	temporaryID[0] = 1

	c, err := m.OpenOffer(ctx, temporaryID, input, candidates, 2)
	require.NoError(t, err)
	require.Equal(t, ContractOffered, c.State)

	reserved, ok := m.reservations.Reserved(temporaryID)
	require.True(t, ok)
	require.Len(t, reserved, 1)

	require.Len(t, blobs.contracts, 1)
}

func TestHandleMessageAcceptAdvancesContract(t *testing.T) {
	blobs := newFakeBlobstore()
	m := New(blobs, fakeChainView{}, &fakeBroadcaster{})
	ctx := context.Background()

	var temporaryID [32]byte
	temporaryID[0] = 2
	candidates := []coinselect.Utxo{{OutPoint: wire.OutPoint{Index: 0}, Value: 200_000}}
	_, err := m.OpenOffer(ctx, temporaryID, ContractInput{OfferCollateral: 100_000}, candidates, 2)
	require.NoError(t, err)

	ref := dlcwire.ReferenceId{7}
	reply, err := m.HandleMessage(ctx, temporaryID, &dlcwire.Accept{})
	require.NoError(t, err)
	_, ok := reply.(*dlcwire.Sign)
	require.True(t, ok)

	m.mu.Lock()
	state := m.contracts[temporaryID].State
	m.mu.Unlock()
	require.Equal(t, ContractAccepted, state)
	_ = ref
}

func TestHandleMessageUnknownIDRejects(t *testing.T) {
	blobs := newFakeBlobstore()
	m := New(blobs, fakeChainView{}, &fakeBroadcaster{})
	reply, err := m.HandleMessage(context.Background(), [32]byte{99}, &dlcwire.Accept{})
	require.NoError(t, err)
	_, ok := reply.(*dlcwire.Reject)
	require.True(t, ok)
}

func TestStartChecksBurialAgainstContractFundingOutpoint(t *testing.T) {
	blobs := newFakeBlobstore()

	var temporaryID [32]byte
	temporaryID[0] = 3
	outpoint := wire.OutPoint{Index: 7}

	c := &Contract{TemporaryID: temporaryID, State: ContractSigned, FundingOutpoint: outpoint}
	blob, err := encodeContract(c)
	require.NoError(t, err)
	blobs.contracts[temporaryID] = blob

	chain := fakeChainView{buried: true, wantOutpoint: &outpoint, t: t}
	m := New(blobs, chain, &fakeBroadcaster{})

	require.NoError(t, m.Start(context.Background()))

	m.mu.Lock()
	state := m.contracts[temporaryID].State
	m.mu.Unlock()
	require.Equal(t, ContractConfirmed, state)
}

func TestStartRebroadcastsPreClosedClaimOrRefundTx(t *testing.T) {
	blobs := newFakeBlobstore()

	var temporaryID [32]byte
	temporaryID[0] = 4

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 1}})
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))

	c := &Contract{TemporaryID: temporaryID, State: ContractPreClosed, ClaimOrRefundTx: buf.Bytes()}
	blob, err := encodeContract(c)
	require.NoError(t, err)
	blobs.contracts[temporaryID] = blob

	broadcaster := &fakeBroadcaster{}
	m := New(blobs, fakeChainView{}, broadcaster)

	require.NoError(t, m.Start(context.Background()))

	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	require.Len(t, broadcaster.txs, 1)
	require.Equal(t, tx.TxHash(), broadcaster.txs[0].TxHash())
}
