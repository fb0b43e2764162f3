package dlcrouter

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/get10101/10101-sub001/internal/dlcwire"
	"github.com/get10101/10101-sub001/internal/eventbus"
	"github.com/get10101/10101-sub001/internal/store"
)

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	sent      [][]byte
}

func (f *fakeTransport) Send(_ context.Context, _ *btcec.PublicKey, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeTransport) Connected(*btcec.PublicKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

type fakeMessageStore struct {
	mu        sync.Mutex
	processed map[store.DlcMessageHash]bool
	last      map[string]store.LastOutboundDlcMessage
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		processed: make(map[store.DlcMessageHash]bool),
		last:      make(map[string]store.LastOutboundDlcMessage),
	}
}

func (f *fakeMessageStore) InsertDlcMessage(_ context.Context, m store.DlcMessageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[m.Hash] = true
	return nil
}

func (f *fakeMessageStore) HasProcessedDlcMessage(_ context.Context, hash store.DlcMessageHash) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[hash], nil
}

func (f *fakeMessageStore) SetLastOutboundDlcMessage(_ context.Context, m store.LastOutboundDlcMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last[peerKey(m.Peer)] = m
	return nil
}

func (f *fakeMessageStore) LastOutboundDlcMessage(_ context.Context, peerHex string) (store.LastOutboundDlcMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.last[peerHex]
	if !ok {
		return store.LastOutboundDlcMessage{}, store.ErrNoLastOutboundMessage
	}
	return m, nil
}

func randomPubkey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestSendPersistsBeforeTransportDelivery(t *testing.T) {
	transport := &fakeTransport{connected: true}
	msgStore := newFakeMessageStore()
	bus := eventbus.New()
	r := New(transport, msgStore, bus)

	peer := randomPubkey(t)
	err := r.Send(context.Background(), peer, &dlcwire.Offer{})
	require.NoError(t, err)

	require.Len(t, transport.sent, 1)
	_, ok := msgStore.last[peerKey(peer)]
	require.True(t, ok)
}

func TestSendFailsWhenPeerDisconnected(t *testing.T) {
	transport := &fakeTransport{connected: false}
	msgStore := newFakeMessageStore()
	bus := eventbus.New()
	r := New(transport, msgStore, bus)

	err := r.Send(context.Background(), randomPubkey(t), &dlcwire.Offer{})
	require.Error(t, err)
}

func TestHandleInboundDropsDuplicate(t *testing.T) {
	transport := &fakeTransport{connected: true}
	msgStore := newFakeMessageStore()
	bus := eventbus.New()
	r := New(transport, msgStore, bus)

	var received int
	bus.Subscribe(eventbus.Inbound, func(context.Context, eventbus.Event) { received++ })

	peer := randomPubkey(t)
	var buf bytes.Buffer
	_, err := dlcwire.WriteMessage(&buf, &dlcwire.Offer{})
	require.NoError(t, err)
	payload := buf.Bytes()

	require.NoError(t, r.HandleInbound(context.Background(), peer, payload))
	r.Drain(peer)
	require.NoError(t, r.HandleInbound(context.Background(), peer, payload))
	r.Drain(peer)

	require.Equal(t, 1, received)
}

func TestResendLastReplaysStoredPayload(t *testing.T) {
	transport := &fakeTransport{connected: true}
	msgStore := newFakeMessageStore()
	bus := eventbus.New()
	r := New(transport, msgStore, bus)

	peer := randomPubkey(t)
	require.NoError(t, r.Send(context.Background(), peer, &dlcwire.Offer{}))
	require.NoError(t, r.ResendLast(context.Background(), peer))

	require.Len(t, transport.sent, 2)
	require.Equal(t, transport.sent[0], transport.sent[1])
}
