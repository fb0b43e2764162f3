// Package dlcmanager owns the Contract and SignedChannel protocol state
// machines, per spec.md §4.3. Grounded on contractcourt's
// ContractResolver shape (contractcourt/htlc_timeout_resolver.go): each
// transition is a pure function from (current persisted state, incoming
// message) to (next persisted state, outbound message, error), and each
// machine knows how to Encode/Decode itself for restart recovery.
package dlcmanager

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/get10101/10101-sub001/internal/dlcwire"
)

// ContractState is the Contract state machine, per spec.md §4.3.
type ContractState uint8

const (
	ContractOffered ContractState = iota
	ContractAccepted
	ContractSigned
	ContractConfirmed
	ContractPreClosed
	ContractClosed
	ContractRefunded
	ContractFailedAccept
	ContractFailedSign
	ContractRejected
)

func (s ContractState) String() string {
	switch s {
	case ContractOffered:
		return "Offered"
	case ContractAccepted:
		return "Accepted"
	case ContractSigned:
		return "Signed"
	case ContractConfirmed:
		return "Confirmed"
	case ContractPreClosed:
		return "PreClosed"
	case ContractClosed:
		return "Closed"
	case ContractRefunded:
		return "Refunded"
	case ContractFailedAccept:
		return "FailedAccept"
	case ContractFailedSign:
		return "FailedSign"
	case ContractRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s ContractState) IsTerminal() bool {
	switch s {
	case ContractClosed, ContractRefunded, ContractFailedAccept, ContractFailedSign, ContractRejected:
		return true
	default:
		return false
	}
}

// ContractInfo carries the oracle/payout-curve parameters a contract is
// built against, per spec.md §4.3. The payout curve itself is an external
// collaborator (spec.md §1's "embedded payout-curve numeric library");
// Descriptor here is its opaque serialized output.
type ContractInfo struct {
	Descriptor  []byte
	OraclePubkeys  [][33]byte
	EventID     string // "btcusd<unix_ts>"
	Threshold   uint16
}

// ContractInput is the negotiation input for an Offer, per spec.md §4.3.
type ContractInput struct {
	OfferCollateral  btcutil.Amount
	AcceptCollateral btcutil.Amount
	FeeRatePerVByte  uint32
	Info             ContractInfo
}

// Contract is one DLC negotiated between the coordinator and a trader.
type Contract struct {
	TemporaryID [32]byte
	ChannelID   [32]byte // zero until a signed channel wraps this contract
	State       ContractState
	Input       ContractInput
	Reference   dlcwire.ReferenceId

	// FundingOutpoint is the contract's funding transaction outpoint,
	// known once both parties have exchanged signatures, per spec.md
	// §4.3. Restart recovery checks burial against this rather than a
	// placeholder.
	FundingOutpoint wire.OutPoint

	// ClaimOrRefundTx is the serialized claim or refund transaction for
	// a PreClosed contract, kept so restart recovery can re-broadcast it
	// if the coordinator went down before it propagated.
	ClaimOrRefundTx []byte
}

// Apply advances the contract state machine by one message, per spec.md
// §4.3's "Transitions on message": receipt moves the machine exactly one
// hop; an inconsistent message produces a Reject instead of a state
// change.
func (c *Contract) Apply(msg dlcwire.Message) (dlcwire.Message, error) {
	switch m := msg.(type) {
	case *dlcwire.Offer:
		if c.State != ContractOffered {
			return c.reject(m, "contract not awaiting Offer")
		}
		return nil, nil // Offer is the entry point; no transition needed here.

	case *dlcwire.Accept:
		if c.State != ContractOffered {
			return c.reject(m, "contract not awaiting Accept")
		}
		c.State = ContractAccepted
		return &dlcwire.Sign{}, nil

	case *dlcwire.Sign:
		if c.State != ContractAccepted {
			return c.reject(m, "contract not awaiting Sign")
		}
		c.State = ContractSigned
		return nil, nil

	case *dlcwire.Reject:
		c.State = ContractRejected
		return nil, nil

	default:
		return c.reject(msg, fmt.Sprintf("unexpected message %T for contract", msg))
	}
}

// ConfirmFunding transitions Signed -> Confirmed once the funding
// transaction is buried (the manager's restart scan checks depth 1,
// not FundingTxConfirmationDepth). This is driven by a
// chain-notification collaborator, not a wire message, so it is a
// separate method rather than an Apply arm.
func (c *Contract) ConfirmFunding() error {
	if c.State != ContractSigned {
		return fmt.Errorf("dlcmanager: contract %x not Signed, got %s", c.TemporaryID, c.State)
	}
	c.State = ContractConfirmed
	return nil
}

// SetFundingOutpoint records the contract's funding transaction
// outpoint once it has been assembled and signed, so later burial
// checks (including on restart) query the real transaction instead of
// a placeholder.
func (c *Contract) SetFundingOutpoint(op wire.OutPoint) {
	c.FundingOutpoint = op
}

// MarkPreClosed transitions Confirmed -> PreClosed once a unilateral
// claim or refund transaction has been built for the contract's
// outcome, per spec.md §4.3. tx is the serialized transaction kept so
// restart recovery can re-broadcast it if it never propagated.
func (c *Contract) MarkPreClosed(tx []byte) error {
	if c.State != ContractConfirmed {
		return fmt.Errorf("dlcmanager: contract %x not Confirmed, got %s", c.TemporaryID, c.State)
	}
	c.State = ContractPreClosed
	c.ClaimOrRefundTx = tx
	return nil
}

func (c *Contract) reject(msg dlcwire.Message, reason string) (dlcwire.Message, error) {
	return dlcwire.NewReject(msg.Reference(), reason), nil
}
