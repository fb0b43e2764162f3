package backup

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// BlobStore is the coordinator-side durable store behind Server: it never
// sees plaintext, only the namespaced key and the trader-encrypted blob.
type BlobStore interface {
	Put(ctx context.Context, nodeID *btcec.PublicKey, key string, blob Blob) error
	Delete(ctx context.Context, nodeID *btcec.PublicKey, key string) error
	List(ctx context.Context, nodeID *btcec.PublicKey) ([]Blob, error)
}

// Server is the coordinator's half of the backup protocol: it durably
// holds trader-encrypted blobs under the trader's node identity, per
// spec.md §4.10. It authenticates every call but never decrypts.
type Server struct {
	store BlobStore
}

// NewServer wires a Server to a durable BlobStore.
func NewServer(store BlobStore) *Server {
	return &Server{store: store}
}

// Upload verifies the trader's signature over the ciphertext and persists
// the blob, per spec.md §4.10's ECDSA-over-ciphertext requirement.
func (s *Server) Upload(ctx context.Context, nodeID *btcec.PublicKey, blob Blob) error {
	if !Verify(nodeID, blob.Ciphertext, blob.Signature) {
		return fmt.Errorf("backup: invalid signature for key %s", blob.Key)
	}
	return s.store.Put(ctx, nodeID, blob.Key, blob)
}

// Delete verifies the trader's signature over the key and removes the
// blob.
func (s *Server) Delete(ctx context.Context, nodeID *btcec.PublicKey, key string, signature []byte) error {
	if !Verify(nodeID, []byte(key), signature) {
		return fmt.Errorf("backup: invalid signature for delete of %s", key)
	}
	return s.store.Delete(ctx, nodeID, key)
}

// Restore verifies the trader's signature over their own node id and
// returns every blob held for them, per spec.md §4.10 "the server returns
// a list of (key, ciphertext)".
func (s *Server) Restore(ctx context.Context, nodeID *btcec.PublicKey, signature []byte) ([]Blob, error) {
	if !Verify(nodeID, nodeID.SerializeCompressed(), signature) {
		return nil, fmt.Errorf("backup: invalid signature for restore")
	}
	return s.store.List(ctx, nodeID)
}
