package postgres

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
)

func btcAmount(sats int64) btcutil.Amount { return btcutil.Amount(sats) }

// idStringer is satisfied by every uuid-backed id type in package store
// (OrderID, MatchID, ProtocolID), letting the helpers below stay generic
// instead of repeating the same marshal/unmarshal pair three times.
type idStringer interface{ String() string }

func uuidText(id idStringer) string { return id.String() }

func parseUUIDText(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

func pubkeyHex(pub *btcec.PublicKey) string {
	if pub == nil {
		return ""
	}
	return hex.EncodeToString(pub.SerializeCompressed())
}

func decodePubkeyHex(s string) (*btcec.PublicKey, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, coordinatorerrs.Storage("decode pubkey", err)
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, coordinatorerrs.Storage("parse pubkey", err)
	}
	return pub, nil
}

// nullableDecimal lets a zero decimal.Decimal (e.g. a Market order's Price)
// be stored as SQL NULL rather than the literal value "0".
func nullableDecimal(d decimal.Decimal) *decimal.Decimal {
	if d.IsZero() {
		return nil
	}
	return &d
}
