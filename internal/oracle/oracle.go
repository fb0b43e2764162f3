// Package oracle defines the narrow interface the DLC contract builder
// uses to fetch oracle announcements and attestations for a BTC/USD
// event, per spec.md §2 "Oracle client (3%)": fetches signed attestations
// and announcements for a contract event id of the form
// "btcusd<unix_ts>". Used only as an interface by the contract builder.
//
// The concrete HTTP oracle client is an external collaborator per
// spec.md §1 ("oracle HTTP clients ... interfaces only"); this package
// owns only the event-id convention and the narrow Client contract, the
// way internal/dlcmanager.ChainView owns the chain-query contract without
// a concrete chain backend.
package oracle

import (
	"context"
	"fmt"
	"time"
)

// EventID renders the canonical BTC/USD event id for the oracle
// attestation due at t, as "btcusd" followed by t's Unix seconds; t is
// used as given and is not truncated to the hour.
func EventID(t time.Time) string {
	return fmt.Sprintf("btcusd%d", t.UTC().Unix())
}

// Announcement is an oracle's pre-committed nonce and outcome set for a
// future event, published before the event resolves.
type Announcement struct {
	EventID   string
	Pubkey    [32]byte // x-only oracle public key
	Nonce     [32]byte
	Outcomes  []string
	MaturedAt time.Time
}

// Attestation is an oracle's signed disclosure of the realized outcome,
// published once the event has occurred.
type Attestation struct {
	EventID   string
	Outcome   string
	Signature [64]byte
}

// Client is the subset of oracle behavior the DLC contract builder
// depends on: it never talks HTTP directly.
type Client interface {
	// Announcement fetches the pre-committed announcement for eventID,
	// used when building a new ContractInfo.
	Announcement(ctx context.Context, eventID string) (*Announcement, error)

	// Attestation fetches the signed outcome attestation for eventID,
	// used by settlement/CET-broadcast logic once the event has
	// resolved. Returns ErrNotYetAttested if the oracle has not
	// published one yet.
	Attestation(ctx context.Context, eventID string) (*Attestation, error)
}

// ErrNotYetAttested is returned by Client.Attestation before the oracle
// has published a signature for the requested event.
var ErrNotYetAttested = fmt.Errorf("oracle: event not yet attested")

// PayoutCurveBuilder is the embedded payout-curve numeric library
// treated as `payout_curve(params) -> piecewise polynomial` per spec.md
// §1; this module only depends on its signature.
type PayoutCurveBuilder func(params PayoutCurveParams) ([]byte, error)

// PayoutCurveParams carries the inputs the payout curve builder needs to
// produce a serialized descriptor for a contract's CET set.
type PayoutCurveParams struct {
	Direction        string
	Quantity         string // decimal string, avoids importing shopspring here
	Leverage         string
	EntryPrice       string
	CoordinatorCollateral uint64
	TraderCollateral      uint64
}
