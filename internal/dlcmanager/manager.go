package dlcmanager

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/wire"

	"github.com/get10101/10101-sub001/internal/dlcmanager/coinselect"
	"github.com/get10101/10101-sub001/internal/dlcwire"
)

// Blobstore is the subset of the kv store Manager needs to persist and
// reload contracts and channels across restarts, per spec.md §4.3
// "Restart recovery" / §6 "DLC key-value: key = (u8 kind, bytes subkey)".
type Blobstore interface {
	PutContract(ctx context.Context, temporaryID [32]byte, blob []byte) error
	PutChannel(ctx context.Context, channelID [32]byte, blob []byte) error
	ListContracts(ctx context.Context) (map[[32]byte][]byte, error)
	ListChannels(ctx context.Context) (map[[32]byte][]byte, error)
}

// ChainView answers the funding-tx burial questions restart recovery and
// confirmation handling need. It is an external collaborator per spec.md
// §1 ("chain-data fetchers" out of scope); Manager only depends on this
// narrow interface.
type ChainView interface {
	IsBuried(ctx context.Context, outpoint wire.OutPoint, depth uint32) (bool, error)
}

// Broadcaster re-publishes a contract's claim or refund transaction, used
// by restart recovery to re-drive a PreClosed contract whose settlement
// transaction may not have propagated before the coordinator restarted.
// External collaborator per spec.md §1.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx *wire.MsgTx) error
}

// Manager owns every in-flight Contract and SignedChannel, coin
// reservations, and restart recovery, per spec.md §4.3.
type Manager struct {
	blobs       Blobstore
	chain       ChainView
	broadcaster Broadcaster

	mu        sync.Mutex
	contracts map[[32]byte]*Contract
	channels  map[[32]byte]*SignedChannel

	reservations *reservationSet
}

// New returns a Manager with empty in-memory state; call Start to reload
// persisted contracts/channels.
func New(blobs Blobstore, chain ChainView, broadcaster Broadcaster) *Manager {
	return &Manager{
		blobs:        blobs,
		chain:        chain,
		broadcaster:  broadcaster,
		contracts:    make(map[[32]byte]*Contract),
		channels:     make(map[[32]byte]*SignedChannel),
		reservations: newReservationSet(),
	}
}

// Start scans persisted contracts and channels and advances any whose
// funding transaction is now buried, per spec.md §4.3 "Restart recovery".
func (m *Manager) Start(ctx context.Context) error {
	contracts, err := m.blobs.ListContracts(ctx)
	if err != nil {
		return fmt.Errorf("dlcmanager: list contracts: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, blob := range contracts {
		c, err := decodeContract(blob)
		if err != nil {
			return fmt.Errorf("dlcmanager: decode contract %x: %w", id, err)
		}
		m.contracts[id] = c

		if c.State.IsTerminal() {
			continue
		}

		switch c.State {
		case ContractSigned:
			buried, err := m.chain.IsBuried(ctx, c.FundingOutpoint, 1)
			if err != nil {
				return fmt.Errorf("dlcmanager: chain query for contract %x: %w", id, err)
			}
			if buried {
				if err := c.ConfirmFunding(); err != nil {
					return err
				}
			}

		case ContractPreClosed:
			if err := m.rebroadcastClaimOrRefund(ctx, c); err != nil {
				return fmt.Errorf("dlcmanager: rebroadcast claim/refund for contract %x: %w", id, err)
			}
		}
	}

	channels, err := m.blobs.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("dlcmanager: list channels: %w", err)
	}
	for id, blob := range channels {
		sc, err := decodeChannel(blob)
		if err != nil {
			return fmt.Errorf("dlcmanager: decode channel %x: %w", id, err)
		}
		m.channels[id] = sc
	}

	return nil
}

// OpenOffer begins a new contract, pinning the coins a branch-and-bound
// selection chooses to cover input.OfferCollateral, per spec.md §4.3.
func (m *Manager) OpenOffer(ctx context.Context, temporaryID [32]byte, input ContractInput, candidates []coinselect.Utxo, feeRateSatPerVByte int64) (*Contract, error) {
	result, err := coinselect.Select(candidates, input.OfferCollateral, feeRateSatPerVByte)
	if err != nil {
		return nil, err
	}

	m.reservations.reserve(temporaryID, result.Selected)

	c := &Contract{
		TemporaryID: temporaryID,
		State:       ContractOffered,
		Input:       input,
	}

	m.mu.Lock()
	m.contracts[temporaryID] = c
	m.mu.Unlock()

	return c, m.persistContract(ctx, c)
}

// HandleMessage routes an inbound message to the contract or channel it
// belongs to (matched by temporary contract id or channel id, per
// spec.md §4.3), applies the transition, and persists the new state
// before returning any outbound reply.
func (m *Manager) HandleMessage(ctx context.Context, id [32]byte, msg dlcwire.Message) (dlcwire.Message, error) {
	m.mu.Lock()
	channel, isChannel := m.channels[id]
	contract, isContract := m.contracts[id]
	m.mu.Unlock()

	switch {
	case isChannel:
		reply, err := channel.Apply(msg)
		if err != nil {
			return nil, err
		}
		if channel.State == ChannelClosing {
			m.reservations.release(id)
		}
		return reply, m.persistChannel(ctx, channel)

	case isContract:
		reply, err := contract.Apply(msg)
		if err != nil {
			return nil, err
		}
		if contract.State.IsTerminal() {
			m.reservations.release(contract.TemporaryID)
		}
		return reply, m.persistContract(ctx, contract)

	default:
		return dlcwire.NewReject(msg.Reference(), "unknown contract or channel id"), nil
	}
}

// Unreserve releases coins pinned for id without requiring a terminal
// state transition, for explicit caller-driven abandonment.
func (m *Manager) Unreserve(id [32]byte) {
	m.reservations.release(id)
}

// rebroadcastClaimOrRefund re-publishes a PreClosed contract's stored
// claim or refund transaction, per spec.md §4.3's restart-recovery
// requirement that a settlement that may not have propagated gets
// re-driven on startup rather than left to chance.
func (m *Manager) rebroadcastClaimOrRefund(ctx context.Context, c *Contract) error {
	if len(c.ClaimOrRefundTx) == 0 {
		return fmt.Errorf("dlcmanager: contract %x is PreClosed with no stored claim/refund tx", c.TemporaryID)
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(c.ClaimOrRefundTx)); err != nil {
		return fmt.Errorf("dlcmanager: decode claim/refund tx: %w", err)
	}

	return m.broadcaster.Broadcast(ctx, &tx)
}

func (m *Manager) persistContract(ctx context.Context, c *Contract) error {
	blob, err := encodeContract(c)
	if err != nil {
		return err
	}
	return m.blobs.PutContract(ctx, c.TemporaryID, blob)
}

func (m *Manager) persistChannel(ctx context.Context, sc *SignedChannel) error {
	blob, err := encodeChannel(sc)
	if err != nil {
		return err
	}
	return m.blobs.PutChannel(ctx, sc.ChannelID, blob)
}
