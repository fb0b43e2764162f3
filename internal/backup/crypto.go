package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/hkdf"
)

// hkdfInfo domain-separates the backup encryption key from any other key
// derived from the same node secret.
const hkdfInfo = "10101/backup/aes-256-gcm"

// deriveKey runs HKDF-SHA256 over the node's secret key to produce a
// 32-byte AES-256 key, per spec.md §4.10 ("a key derived from the trader's
// node secret").
func deriveKey(nodeSecret *btcec.PrivateKey) ([32]byte, error) {
	var key [32]byte
	r := hkdf.New(sha256.New, nodeSecret.Serialize(), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, fmt.Errorf("backup: derive key: %w", err)
	}
	return key, nil
}

// Cipher encrypts, decrypts and signs backup payloads under one trader
// node identity. It never holds the coordinator's key material.
type Cipher struct {
	nodeSecret *btcec.PrivateKey
	nodeID     *btcec.PublicKey
	aead       cipher.AEAD
}

// NewCipher derives the AES-GCM key and caches the constructed AEAD.
func NewCipher(nodeSecret *btcec.PrivateKey) (*Cipher, error) {
	key, err := deriveKey(nodeSecret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("backup: new aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("backup: new gcm: %w", err)
	}
	return &Cipher{
		nodeSecret: nodeSecret,
		nodeID:     nodeSecret.PubKey(),
		aead:       aead,
	}, nil
}

// NodeID returns the public identity this cipher signs and encrypts for.
func (c *Cipher) NodeID() *btcec.PublicKey { return c.nodeID }

// Encrypt seals plaintext with a fresh random nonce, prepended to the
// returned ciphertext.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("backup: read nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(ciphertext) < ns {
		return nil, fmt.Errorf("backup: ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:ns], ciphertext[ns:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("backup: decrypt: %w", err)
	}
	return plaintext, nil
}

// Sign produces an ECDSA signature over sha256(message) using the node
// key, per spec.md §4.10 ("an ECDSA signature over the ciphertext ...
// using the node key").
func (c *Cipher) Sign(message []byte) []byte {
	digest := sha256.Sum256(message)
	sig := ecdsa.Sign(c.nodeSecret, digest[:])
	return sig.Serialize()
}

// Verify checks a signature produced by Sign (or an equivalent peer
// cipher) against the asserted node id.
func Verify(nodeID *btcec.PublicKey, message, signature []byte) bool {
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(message)
	return sig.Verify(digest[:], nodeID)
}
