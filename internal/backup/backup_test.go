package backup

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory BlobStore for tests.
type memStore struct {
	byNode map[string]map[string]Blob
}

func newMemStore() *memStore { return &memStore{byNode: map[string]map[string]Blob{}} }

func (m *memStore) Put(_ context.Context, nodeID *btcec.PublicKey, key string, blob Blob) error {
	id := nodeID.SerializeCompressed()
	if m.byNode[string(id)] == nil {
		m.byNode[string(id)] = map[string]Blob{}
	}
	m.byNode[string(id)][key] = blob
	return nil
}

func (m *memStore) Delete(_ context.Context, nodeID *btcec.PublicKey, key string) error {
	delete(m.byNode[string(nodeID.SerializeCompressed())], key)
	return nil
}

func (m *memStore) List(_ context.Context, nodeID *btcec.PublicKey) ([]Blob, error) {
	var out []Blob
	for _, b := range m.byNode[string(nodeID.SerializeCompressed())] {
		out = append(out, b)
	}
	return out, nil
}

type memWriter struct {
	written map[string][]byte
}

func (w *memWriter) WriteLocal(_ context.Context, kind Kind, subkey string, plaintext []byte) error {
	if w.written == nil {
		w.written = map[string][]byte{}
	}
	w.written[Key(kind, subkey)] = plaintext
	return nil
}

func TestBackupRoundTrip(t *testing.T) {
	secret, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	cipher, err := NewCipher(secret)
	require.NoError(t, err)

	store := newMemStore()
	server := NewServer(store)
	client := NewClient(cipher, server)

	ctx := context.Background()
	plaintext := []byte("channel monitor blob")

	done := make(chan struct{})
	go func() {
		client.Backup(ctx, KindLN, "monitor/abc", plaintext)
		close(done)
	}()
	<-done

	// Backup is fire-and-forget; give the goroutine a beat by uploading
	// synchronously via push for a deterministic assertion instead.
	client.push(ctx, KindDLC, "00/deadbeef", plaintext)

	writer := &memWriter{}
	require.NoError(t, client.Restore(ctx, writer))

	got, ok := writer.written[Key(KindDLC, "00/deadbeef")]
	require.True(t, ok)
	require.Equal(t, plaintext, got)
}

func TestBackupBlacklist(t *testing.T) {
	require.True(t, IsBlacklisted(Key(KindLN, "network_graph")))
	require.False(t, IsBlacklisted(Key(KindLN, "monitor/abc")))
}

func TestCipherEncryptDecryptRoundTrip(t *testing.T) {
	secret, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	c, err := NewCipher(secret)
	require.NoError(t, err)

	plaintext := []byte("hello backup")
	ciphertext, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	decrypted, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestSignVerify(t *testing.T) {
	secret, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	c, err := NewCipher(secret)
	require.NoError(t, err)

	msg := []byte("message")
	sig := c.Sign(msg)
	require.True(t, Verify(c.NodeID(), msg, sig))
	require.False(t, Verify(c.NodeID(), []byte("tampered"), sig))
}
