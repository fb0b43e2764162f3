// Package backup implements the encrypted remote backup store used by
// trader apps as a durable recovery medium for keys, channel monitors and
// contract state, per spec.md §4.10.
//
// Ported from original_source/mobile/native/src/backup.rs: the key
// namespace (`<kind>/<subkey>`), the volatile-data blacklist, and the
// fire-and-forget upload semantics ("it never blocks write paths") are
// carried over unchanged; the HTTP transport itself is an external
// collaborator per spec.md §1, represented here as the Transport
// interface.
package backup

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Kind partitions the backup key namespace, per spec.md §4.10.
type Kind string

const (
	// KindDB backs up the relational store snapshot.
	KindDB Kind = "db"
	// KindLN backs up Lightning monitor/manager blobs.
	KindLN Kind = "ln"
	// KindDLC backs up DLC key-value store blobs.
	KindDLC Kind = "dlc"
)

// blacklist excludes volatile data that would be wasteful or incorrect to
// restore verbatim, ported from backup.rs's BLACKLIST constant.
var blacklist = []string{
	"ln/network_graph",
}

// IsBlacklisted reports whether key (already namespaced as "<kind>/<sub>")
// must never be uploaded.
func IsBlacklisted(key string) bool {
	for _, b := range blacklist {
		if key == b || strings.HasPrefix(key, b+"/") {
			return true
		}
	}
	return false
}

// Key builds the namespaced backup key "<kind>/<subkey>".
func Key(kind Kind, subkey string) string {
	return fmt.Sprintf("%s/%s", kind, subkey)
}

// SplitKey is the inverse of Key, used by restore to route a blob back to
// the matching local store by prefix.
func SplitKey(key string) (kind Kind, subkey string, err error) {
	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("backup: malformed key %q", key)
	}
	return Kind(parts[0]), parts[1], nil
}

// Blob is one encrypted, signed record as stored or returned by the
// remote backup service.
type Blob struct {
	Key        string
	Ciphertext []byte
	Signature  []byte
}

// Transport is the external HTTP collaborator the Client pushes to and
// pulls from. Binding it to a concrete HTTP client is out of scope per
// spec.md §1 ("HTTP/WebSocket transport wiring ... interfaces only").
type Transport interface {
	Upload(ctx context.Context, nodeID *btcec.PublicKey, blob Blob) error
	Delete(ctx context.Context, nodeID *btcec.PublicKey, key string, signature []byte) error
	Restore(ctx context.Context, nodeID *btcec.PublicKey, signature []byte) ([]Blob, error)
}

// LocalWriter is the narrow local-store interface Restore writes decrypted
// blobs back into, dispatched by Kind per spec.md §4.10 "On restore ...
// writes it back to the matching local store by prefix".
type LocalWriter interface {
	WriteLocal(ctx context.Context, kind Kind, subkey string, plaintext []byte) error
}
