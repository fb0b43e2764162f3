package revert

import (
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
	"github.com/get10101/10101-sub001/internal/eventbus"
	"github.com/get10101/10101-sub001/internal/store"
)

// errFundingTxidMissing is returned when a channel has no recorded
// funding transaction to revert against.
var errFundingTxidMissing = errors.New("revert: dlc channel has no funding txid")

// fundingOutpoint derives the channel's funding outpoint. DLC channel
// funding transactions place the 2-of-2 output at index 0, per spec.md
// §3's funding transaction layout.
func fundingOutpoint(channel store.DlcChannel) (wire.OutPoint, error) {
	if channel.FundingTxid == nil {
		return wire.OutPoint{}, coordinatorerrs.Validation("funding outpoint", errFundingTxidMissing)
	}
	hash, err := chainhash.NewHashFromStr(*channel.FundingTxid)
	if err != nil {
		return wire.OutPoint{}, coordinatorerrs.Validation("parse funding txid", err)
	}
	return wire.OutPoint{Hash: *hash, Index: 0}, nil
}

// Store is the subset of the relational store the service needs.
type Store interface {
	GetDlcChannel(ctx context.Context, id store.ChannelID) (store.DlcChannel, error)
	GetPosition(ctx context.Context, id store.PositionID) (store.Position, error)
	InsertCollaborativeRevert(ctx context.Context, r store.CollaborativeRevert) error
	GetCollaborativeRevert(ctx context.Context, id store.ChannelID) (store.CollaborativeRevert, error)
	DeleteCollaborativeRevert(ctx context.Context, id store.ChannelID) error
	ClosePosition(ctx context.Context, id store.PositionID, realizedPnLSat int64) error
	UpdateDlcChannelState(ctx context.Context, id store.ChannelID, state store.DlcChannelState) error
}

// Broadcaster publishes a finished transaction to the network. Real
// deployments back this with a full node RPC client or Esplora client;
// spec.md §1 treats chain broadcast as an external collaborator.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx *wire.MsgTx) error
}

// Service offers and confirms collaborative reverts for wedged DLC
// channels, per spec.md §4.8.
type Service struct {
	store   Store
	builder *Builder
	chain   Broadcaster
	bus     *eventbus.Bus
	now     func() time.Time
}

// New returns a Service.
func New(s Store, builder *Builder, chain Broadcaster, bus *eventbus.Bus, now func() time.Time) *Service {
	return &Service{store: s, builder: builder, chain: chain, bus: bus, now: now}
}

// Offer computes and persists a fresh proposal for a channel, per
// spec.md §4.8 point 1, superseding any previous unconfirmed proposal.
func (svc *Service) Offer(
	ctx context.Context,
	channelID store.ChannelID,
	positionID store.PositionID,
	price decimal.Decimal,
	feeRateSatPerVByte int64,
	coordinatorAddress btcutil.Address,
	outpoint wire.OutPoint,
) (Proposal, error) {
	channel, err := svc.store.GetDlcChannel(ctx, channelID)
	if err != nil {
		return Proposal{}, err
	}
	position, err := svc.store.GetPosition(ctx, positionID)
	if err != nil {
		return Proposal{}, err
	}

	proposal, err := svc.builder.Propose(channel, position, price, feeRateSatPerVByte, coordinatorAddress, outpoint)
	if err != nil {
		return Proposal{}, err
	}

	record := store.CollaborativeRevert{
		ChannelID:          proposal.ChannelID,
		Trader:             proposal.Trader,
		Price:              proposal.Price,
		CoordinatorAddress: coordinatorAddress.String(),
		CoordinatorAmount:  proposal.CoordinatorAmount,
		TraderAmount:       proposal.TraderAmount,
		Timestamp:          svc.now(),
	}
	if err := svc.store.InsertCollaborativeRevert(ctx, record); err != nil {
		return Proposal{}, err
	}

	svc.bus.Publish(ctx, eventbus.Event{Kind: eventbus.CollaborativeRevertProposed, Peer: proposal.Trader})
	return proposal, nil
}

// Confirm validates a trader-countersigned revert transaction against
// the stored proposal, co-signs it, broadcasts it, and marks the
// position and channel closed, per spec.md §4.8 point 3.
func (svc *Service) Confirm(
	ctx context.Context,
	channelID store.ChannelID,
	positionID store.PositionID,
	tx *wire.MsgTx,
	traderSig []byte,
	coordinatorSign func(tx *wire.MsgTx, fundingValue btcutil.Amount, redeemScript []byte) error,
) error {
	channel, err := svc.store.GetDlcChannel(ctx, channelID)
	if err != nil {
		return err
	}
	proposal, err := svc.store.GetCollaborativeRevert(ctx, channelID)
	if err != nil {
		return err
	}

	expectedOutpoint, err := fundingOutpoint(channel)
	if err != nil {
		return err
	}
	if err := VerifySpendsFundingOutpoint(tx, expectedOutpoint); err != nil {
		return err
	}

	settledTotal := proposal.CoordinatorAmount + proposal.TraderAmount
	if err := VerifyOutputsCoverFundingValue(tx, settledTotal, 0); err != nil {
		return err
	}

	fundingValue := channel.CoordinatorFundingSats + channel.TraderFundingSats
	if err := VerifyTraderSignature(tx, fundingValue, channel.FundingRedeemScript, channel.Trader, traderSig); err != nil {
		return err
	}

	if err := coordinatorSign(tx, fundingValue, channel.FundingRedeemScript); err != nil {
		return coordinatorerrs.Fatal("co-sign collaborative revert", err)
	}

	if err := svc.chain.Broadcast(ctx, tx); err != nil {
		return coordinatorerrs.Transport("broadcast collaborative revert", err)
	}

	if err := svc.store.UpdateDlcChannelState(ctx, channelID, store.DlcChannelClosed); err != nil {
		return err
	}
	if err := svc.store.ClosePosition(ctx, positionID, int64(proposal.CoordinatorAmount)-int64(channel.CoordinatorFundingSats)); err != nil {
		return err
	}
	if err := svc.store.DeleteCollaborativeRevert(ctx, channelID); err != nil {
		return err
	}

	svc.bus.Publish(ctx, eventbus.Event{Kind: eventbus.CollaborativeRevertConfirmed, Peer: channel.Trader})
	return nil
}
