package backup

import (
	"context"
	"sync"

	"github.com/btcsuite/btclog"
)

// log is the package-level subsystem logger, per SPEC_FULL.md's logging
// convention. Defaults to disabled; cmd/coordinatord wires a real backend.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by Client.
func UseLogger(l btclog.Logger) { log = l }

// Client is the trader-app side of the backup protocol: it encrypts,
// signs and fire-and-forgets each write to Transport, and decrypts on
// restore, per spec.md §4.10.
type Client struct {
	cipher    *Cipher
	transport Transport

	mu      sync.Mutex
	pending []pendingUpload // failed uploads retried on the next write
}

type pendingUpload struct {
	kind   Kind
	subkey string
	blob   []byte
}

// NewClient wires a Cipher to a Transport collaborator.
func NewClient(cipher *Cipher, transport Transport) *Client {
	return &Client{cipher: cipher, transport: transport}
}

// Backup encrypts and uploads plaintext under "<kind>/<subkey>". It never
// blocks the caller's write path: the upload runs in its own goroutine and
// any failure is queued for opportunistic retry on the next Backup call,
// per spec.md §4.10 ("fire-and-forget ... failures are retried on the
// next write").
func (c *Client) Backup(ctx context.Context, kind Kind, subkey string, plaintext []byte) {
	key := Key(kind, subkey)
	if IsBlacklisted(key) {
		log.Debugf("backup: skipping blacklisted key %s", key)
		return
	}

	go c.upload(ctx, kind, subkey, plaintext)
}

// upload performs one best-effort push, draining any previously failed
// uploads first so retries preserve original ordering.
func (c *Client) upload(ctx context.Context, kind Kind, subkey string, plaintext []byte) {
	c.mu.Lock()
	backlog := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, p := range backlog {
		c.push(ctx, p.kind, p.subkey, p.blob)
	}
	c.push(ctx, kind, subkey, plaintext)
}

func (c *Client) push(ctx context.Context, kind Kind, subkey string, plaintext []byte) {
	key := Key(kind, subkey)

	ciphertext, err := c.cipher.Encrypt(plaintext)
	if err != nil {
		log.Errorf("backup: encrypt %s: %v", key, err)
		return
	}
	signature := c.cipher.Sign(ciphertext)

	if err := c.transport.Upload(ctx, c.cipher.NodeID(), Blob{
		Key:        key,
		Ciphertext: ciphertext,
		Signature:  signature,
	}); err != nil {
		log.Errorf("backup: upload %s failed, queued for retry: %v", key, err)
		c.mu.Lock()
		c.pending = append(c.pending, pendingUpload{kind: kind, subkey: subkey, blob: plaintext})
		c.mu.Unlock()
		return
	}
	log.Debugf("backup: uploaded %s", key)
}

// Delete removes a previously backed-up key.
func (c *Client) Delete(ctx context.Context, kind Kind, subkey string) error {
	key := Key(kind, subkey)
	signature := c.cipher.Sign([]byte(key))
	return c.transport.Delete(ctx, c.cipher.NodeID(), key, signature)
}

// Restore downloads every backed-up blob for this node, decrypts each,
// and hands it to dest by namespace, per spec.md §4.10 "On restore".
func (c *Client) Restore(ctx context.Context, dest LocalWriter) error {
	nodeID := c.cipher.NodeID()
	signature := c.cipher.Sign(nodeID.SerializeCompressed())

	blobs, err := c.transport.Restore(ctx, nodeID, signature)
	if err != nil {
		return err
	}

	for _, blob := range blobs {
		kind, subkey, err := SplitKey(blob.Key)
		if err != nil {
			log.Warnf("backup: restore: %v", err)
			continue
		}

		plaintext, err := c.cipher.Decrypt(blob.Ciphertext)
		if err != nil {
			log.Errorf("backup: restore: decrypt %s: %v", blob.Key, err)
			continue
		}

		if err := dest.WriteLocal(ctx, kind, subkey, plaintext); err != nil {
			log.Errorf("backup: restore: write %s: %v", blob.Key, err)
			continue
		}
	}

	return nil
}
