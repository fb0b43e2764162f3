// Package revert implements the collaborative revert protocol, per
// spec.md §4.8: the two-party signed escape hatch that spends the
// funding output directly when the DLC channel state machine is wedged.
//
// Ported from
// original_source/coordinator/src/collaborative_revert.rs, including its
// golden fee-split test (calculate_dlc_channel_tx_fees). Unlike that
// original, amounts below the dust threshold are rejected outright
// (ErrBelowDust) rather than silently absorbed into the counterparty's
// share — a deliberate REDESIGN decision, since silently moving value
// across the two outputs changes who owns it.
package revert

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/shopspring/decimal"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
	"github.com/get10101/10101-sub001/internal/money"
	"github.com/get10101/10101-sub001/internal/store"
)

// collaborativeRevertTxWeightWU is the estimated weight of the 1-in/2-out
// revert transaction, per the teacher's
// COLLABORATIVE_REVERT_TX_WEIGHT constant (672 WU).
const collaborativeRevertTxWeightWU = 672

// ErrBelowDust is returned when a computed output would fall under the
// network's dust threshold.
var ErrBelowDust = errors.New("revert: output below dust threshold")

// ErrWrongFundingOutpoint is returned when a proposed revert transaction
// does not spend the channel's tracked funding outpoint.
var ErrWrongFundingOutpoint = errors.New("revert: transaction does not spend the tracked funding outpoint")

// ErrInvalidSignature is returned when the trader's signature does not
// validate against the stored funding redeem script.
var ErrInvalidSignature = errors.New("revert: trader signature does not validate")

// Proposal is the coordinator's computed settlement split before the
// trader has countersigned.
type Proposal struct {
	ChannelID          store.ChannelID
	Trader             *btcec.PublicKey
	Price              decimal.Decimal
	CoordinatorAddress btcutil.Address
	CoordinatorAmount  btcutil.Amount
	TraderAmount       btcutil.Amount
	FundingOutpoint    wire.OutPoint
}

// Builder computes collaborative-revert proposals (Propose) and assembles
// the resulting transaction (BuildTransaction), per spec.md §4.8.
// Verification is done by the package-level Verify* functions, and
// co-signing by the callback passed to Service.Confirm.
type Builder struct {
	net *chaincfg.Params
}

// NewBuilder returns a Builder for the given network.
func NewBuilder(net *chaincfg.Params) *Builder {
	return &Builder{net: net}
}

// calculateDlcChannelTxFees estimates the total fee already paid out
// across the channel's settlement transactions, ported verbatim from
// original_source/coordinator/src/collaborative_revert.rs::calculate_dlc_channel_tx_fees.
func calculateDlcChannelTxFees(initialFunding btcutil.Amount, pnl int64, inboundCapacity, outboundCapacity btcutil.Amount, traderMargin, coordinatorMargin btcutil.Amount) btcutil.Amount {
	return initialFunding - (inboundCapacity + outboundCapacity +
		btcutil.Amount(int64(traderMargin)-pnl) + btcutil.Amount(int64(coordinatorMargin)+pnl))
}

// Propose computes the coordinator/trader settlement split for a
// channel given a proposed close price and on-chain fee rate, per
// spec.md §4.8 point 1-2.
func (b *Builder) Propose(
	channel store.DlcChannel,
	position store.Position,
	price decimal.Decimal,
	feeRateSatPerVByte int64,
	coordinatorAddress btcutil.Address,
	fundingOutpoint wire.OutPoint,
) (Proposal, error) {
	pnl := money.ClosePnL(position.Quantity, position.AverageEntryPrice, price, position.Direction)

	fundValue := channel.CoordinatorFundingSats + channel.TraderFundingSats
	dlcFee := calculateDlcChannelTxFees(
		fundValue, int64(pnl),
		channel.TraderReserveSats, channel.CoordinatorReserveSats,
		position.TraderMargin, position.CoordinatorMargin,
	)

	settlementAmount := btcutil.Amount(pnl)
	coordinatorAmount := fundValue - channel.TraderReserveSats - settlementAmount - dlcFee/2
	traderAmount := fundValue - coordinatorAmount

	txFee := weightToFee(collaborativeRevertTxWeightWU, feeRateSatPerVByte)
	coordinatorAmount -= txFee / 2
	traderAmount -= txFee / 2

	relayFeePerKB := btcutil.Amount(1000)
	if isDust(coordinatorAmount, relayFeePerKB) {
		return Proposal{}, coordinatorerrs.Validation("propose collaborative revert", ErrBelowDust)
	}
	if isDust(traderAmount, relayFeePerKB) {
		return Proposal{}, coordinatorerrs.Validation("propose collaborative revert", ErrBelowDust)
	}

	return Proposal{
		ChannelID:          channel.ChannelID,
		Trader:             channel.Trader,
		Price:              price,
		CoordinatorAddress: coordinatorAddress,
		CoordinatorAmount:  coordinatorAmount,
		TraderAmount:       traderAmount,
		FundingOutpoint:    fundingOutpoint,
	}, nil
}

// BuildTransaction assembles the 1-in/2-out revert transaction spending
// the funding outpoint, per spec.md §4.8 point 2.
func (b *Builder) BuildTransaction(p Proposal, traderAddress btcutil.Address) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: p.FundingOutpoint})

	coordinatorScript, err := txscript.PayToAddrScript(p.CoordinatorAddress)
	if err != nil {
		return nil, coordinatorerrs.Validation("build revert tx", err)
	}
	traderScript, err := txscript.PayToAddrScript(traderAddress)
	if err != nil {
		return nil, coordinatorerrs.Validation("build revert tx", err)
	}

	tx.AddTxOut(wire.NewTxOut(int64(p.CoordinatorAmount), coordinatorScript))
	tx.AddTxOut(wire.NewTxOut(int64(p.TraderAmount), traderScript))

	return tx, nil
}

// VerifySpendsFundingOutpoint enforces spec.md §4.8's invariant that "the
// transaction must spend exactly the tracked funding outpoint".
func VerifySpendsFundingOutpoint(tx *wire.MsgTx, expected wire.OutPoint) error {
	if len(tx.TxIn) != 1 || tx.TxIn[0].PreviousOutPoint != expected {
		return coordinatorerrs.Validation("verify revert tx", ErrWrongFundingOutpoint)
	}
	return nil
}

// VerifyOutputsCoverFundingValue enforces "the sum of outputs equals the
// funding value minus the fee".
func VerifyOutputsCoverFundingValue(tx *wire.MsgTx, fundingValue, fee btcutil.Amount) error {
	var sum int64
	for _, out := range tx.TxOut {
		sum += out.Value
	}
	if btcutil.Amount(sum) != fundingValue-fee {
		return coordinatorerrs.Validation("verify revert tx", errOutputSumMismatch)
	}
	return nil
}

var errOutputSumMismatch = errors.New("revert: output sum does not equal funding value minus fee")

// VerifyTraderSignature checks a trader-supplied raw signature for input
// 0 against the stored funding redeem script, per spec.md §4.8's
// "trader signature must validate against the stored funding redeem
// script" invariant.
func VerifyTraderSignature(tx *wire.MsgTx, fundingValue btcutil.Amount, redeemScript []byte, traderPubkey *btcec.PublicKey, sig []byte) error {
	sigHashes := txscript.NewTxSigHashes(tx)
	hash, err := txscript.CalcWitnessSigHash(redeemScript, sigHashes, txscript.SigHashAll, tx, 0, int64(fundingValue))
	if err != nil {
		return coordinatorerrs.Validation("verify trader signature", err)
	}

	parsedSig, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return coordinatorerrs.Validation("verify trader signature", ErrInvalidSignature)
	}
	if !parsedSig.Verify(hash, traderPubkey) {
		return coordinatorerrs.Authentication("verify trader signature", ErrInvalidSignature)
	}
	return nil
}

func weightToFee(weightWU int, feeRateSatPerVByte int64) btcutil.Amount {
	vbytes := (weightWU + 3) / 4
	return btcutil.Amount(int64(vbytes) * feeRateSatPerVByte)
}

func isDust(amount btcutil.Amount, relayFeePerKB btcutil.Amount) bool {
	return amount < txrules.GetDustThreshold(22, relayFeePerKB)
}
