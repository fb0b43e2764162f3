// Package persister implements the single persistence facade described in
// spec.md §2: every write to the DLC key-value store or the Lightning
// monitor/manager blob store also gets pushed, best-effort, to the
// encrypted remote backup, per spec.md §5 ("the local write is the
// authority") and §4.10 ("upload is fire-and-forget: it never blocks
// write paths").
package persister

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/get10101/10101-sub001/internal/backup"
	"github.com/get10101/10101-sub001/internal/store/kv"
)

// Backer is the narrow backup.Client surface Persister needs. Kept
// separate from *backup.Client so tests can substitute a spy.
type Backer interface {
	Backup(ctx context.Context, kind backup.Kind, subkey string, plaintext []byte)
}

// Persister wraps the DLC kv store with an optional backup push on every
// write, per spec.md §2's "single persister" requirement. Backer may be
// nil, in which case Persister behaves as a thin pass-through to kv.Store;
// cmd/coordinatord passes nil when no backup base URL is configured and a
// *backup.Client otherwise.
type Persister struct {
	kv     *kv.Store
	backer Backer
}

// New wires a kv.Store with an optional Backer.
func New(store *kv.Store, backer Backer) *Persister {
	return &Persister{kv: store, backer: backer}
}

func (p *Persister) push(ctx context.Context, kind backup.Kind, subkey string, blob []byte) {
	if p.backer == nil {
		return
	}
	p.backer.Backup(ctx, kind, subkey, blob)
}

// PutContract persists a DLC contract blob and backs it up, implementing
// dlcmanager.Blobstore.
func (p *Persister) PutContract(ctx context.Context, temporaryID [32]byte, blob []byte) error {
	if err := p.kv.PutContract(ctx, temporaryID, blob); err != nil {
		return err
	}
	p.push(ctx, backup.KindDLC, dlcSubkey(kv.KindContract, temporaryID[:]), blob)
	return nil
}

// PutChannel persists a signed-channel blob and backs it up, implementing
// dlcmanager.Blobstore.
func (p *Persister) PutChannel(ctx context.Context, channelID [32]byte, blob []byte) error {
	if err := p.kv.PutChannel(ctx, channelID, blob); err != nil {
		return err
	}
	p.push(ctx, backup.KindDLC, dlcSubkey(kv.KindSignedChannel, channelID[:]), blob)
	return nil
}

// ListContracts implements dlcmanager.Blobstore.
func (p *Persister) ListContracts(ctx context.Context) (map[[32]byte][]byte, error) {
	return p.kv.ListContracts(ctx)
}

// ListChannels implements dlcmanager.Blobstore.
func (p *Persister) ListChannels(ctx context.Context) (map[[32]byte][]byte, error) {
	return p.kv.ListChannels(ctx)
}

// PutMonitor persists a Lightning sub-channel monitor blob and backs it
// up, keyed by its funding outpoint.
func (p *Persister) PutMonitor(ctx context.Context, outpoint []byte, blob []byte) error {
	if err := p.kv.PutMonitor(ctx, outpoint, blob); err != nil {
		return err
	}
	p.push(ctx, backup.KindLN, fmt.Sprintf("monitor/%s", hex.EncodeToString(outpoint)), blob)
	return nil
}

// PutManager persists the single Lightning manager blob and backs it up.
func (p *Persister) PutManager(ctx context.Context, blob []byte) error {
	if err := p.kv.PutManager(ctx, blob); err != nil {
		return err
	}
	p.push(ctx, backup.KindLN, "manager", blob)
	return nil
}

// dlcSubkey renders "<kind-hex>/<subkey-hex>", matching the
// original_source/mobile/native/src/backup.rs restore-side parsing of the
// "dlc" namespace ("kind" is a single hex-encoded byte, "key" the rest).
func dlcSubkey(kind kv.Kind, subkey []byte) string {
	return fmt.Sprintf("%02x/%s", byte(kind), hex.EncodeToString(subkey))
}
