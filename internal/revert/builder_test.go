package revert

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/get10101/10101-sub001/internal/money"
	"github.com/get10101/10101-sub001/internal/store"
)

// TestCalculateDlcChannelTxFees reproduces the golden value from
// original_source/coordinator/src/collaborative_revert.rs's
// calculate_transaction_fee_for_dlc_channel_transactions test:
// 200_000 - (65_450 + 85_673 + (18_690 - (-4_047)) + (18_690 + (-4_047))) = 11_497.
func TestCalculateDlcChannelTxFees(t *testing.T) {
	fee := calculateDlcChannelTxFees(200_000, -4047, 65_450, 85_673, 18_690, 18_690)
	require.Equal(t, btcutil.Amount(11_497), fee)
}

func randomPubkey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func TestProposeRejectsDustOutputs(t *testing.T) {
	b := NewBuilder(&chaincfg.RegressionNetParams)
	trader := randomPubkey(t)

	channel := store.DlcChannel{
		CoordinatorFundingSats: 1000,
		TraderFundingSats:      1000,
		TraderReserveSats:      900,
		CoordinatorReserveSats: 900,
		Trader:                 trader,
	}
	position := store.Position{
		Trader:            trader,
		Direction:         money.Long,
		Quantity:          decimal.NewFromInt(100),
		AverageEntryPrice: decimal.NewFromInt(50_000),
		TraderMargin:      900,
		CoordinatorMargin: 900,
	}

	addr, err := btcutil.NewAddressWitnessPubKeyHash(make([]byte, 20), &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	_, err = b.Propose(channel, position, decimal.NewFromInt(50_000), 1, addr, wire.OutPoint{})
	require.ErrorIs(t, err, ErrBelowDust)
}

func TestProposeSplitsSettlementAndFee(t *testing.T) {
	b := NewBuilder(&chaincfg.RegressionNetParams)
	trader := randomPubkey(t)

	channel := store.DlcChannel{
		CoordinatorFundingSats: 500_000,
		TraderFundingSats:      500_000,
		TraderReserveSats:      65_450,
		CoordinatorReserveSats: 85_673,
		Trader:                 trader,
	}
	position := store.Position{
		Trader:            trader,
		Direction:         money.Long,
		Quantity:          decimal.NewFromInt(100),
		AverageEntryPrice: decimal.NewFromInt(50_000),
		TraderMargin:      18_690,
		CoordinatorMargin: 18_690,
	}

	addr, err := btcutil.NewAddressWitnessPubKeyHash(make([]byte, 20), &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	proposal, err := b.Propose(channel, position, decimal.NewFromInt(50_000), 1, addr, wire.OutPoint{})
	require.NoError(t, err)

	txFee := weightToFee(collaborativeRevertTxWeightWU, 1)
	fundValue := channel.CoordinatorFundingSats + channel.TraderFundingSats

	total := proposal.CoordinatorAmount + proposal.TraderAmount
	require.Equal(t, fundValue-txFee, total)
}

func TestVerifySpendsFundingOutpointRejectsWrongOutpoint(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 1}})

	err := VerifySpendsFundingOutpoint(tx, wire.OutPoint{Index: 0})
	require.ErrorIs(t, err, ErrWrongFundingOutpoint)
}
