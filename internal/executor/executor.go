// Package executor implements the trade executor, per spec.md §4.2: it
// consumes an ExecutableMatch for one trader, selects a path by order
// reason and the trader's current position, and turns that path into a
// position transition plus a Pending Protocol row. The open and resize
// paths also offer one DLC manager ContractInput; the close path makes no
// DLC manager call. The position writes, the offer and the Protocol row
// are separate calls, not one database transaction.
//
// The path table and numeric semantics are a direct application of
// internal/money and internal/position; the state-machine-dispatch shape
// (one method per path, a switch picking among them) is grounded on
// contractcourt's resolver-selection switch in
// contractcourt/chain_watcher.go, which picks a resolver type from a
// small decision table keyed on channel-close cause the same way this
// picks an execution path keyed on order reason and position state.
package executor

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
	"github.com/get10101/10101-sub001/internal/dlcmanager"
	"github.com/get10101/10101-sub001/internal/dlcmanager/coinselect"
	"github.com/get10101/10101-sub001/internal/money"
	"github.com/get10101/10101-sub001/internal/oracle"
	"github.com/get10101/10101-sub001/internal/position"
	"github.com/get10101/10101-sub001/internal/store"
)

// Path names the trade path the executor selected, for logging and tests.
type Path uint8

const (
	PathOpen Path = iota
	PathResizeIncrease
	PathResizeDecrease
	PathClose
	PathCloseThenOpen
	PathForcedClose
)

func (p Path) String() string {
	switch p {
	case PathOpen:
		return "open"
	case PathResizeIncrease:
		return "resize_increase"
	case PathResizeDecrease:
		return "resize_decrease"
	case PathClose:
		return "close"
	case PathCloseThenOpen:
		return "close_then_open"
	case PathForcedClose:
		return "forced_close"
	default:
		return "unknown"
	}
}

// ExecutableMatch is one trader's matched order plus its fills, handed
// from the orderbook to the executor, per spec.md §4.1 "Dispatch".
type ExecutableMatch struct {
	Trader  *btcec.PublicKey
	Order   store.Order
	Matches []store.Match
}

// PeerGate reports whether a trader's transport session is currently up;
// the executor rejects execution of a disconnected trader's match, per
// spec.md §4.2 "Rejects unless the trader is connected."
type PeerGate interface {
	Connected(peer *btcec.PublicKey) bool
}

// Store is the subset of the relational store the executor needs.
type Store interface {
	ActivePositionForTrader(ctx context.Context, trader *btcec.PublicKey) (store.Position, error)
	InsertProtocol(ctx context.Context, p store.Protocol) error
	UnpaidFundingFeeEventsForPosition(ctx context.Context, id store.PositionID) ([]store.FundingFeeEvent, error)
	StageFundingFeeEventsForProtocol(ctx context.Context, protocolID store.ProtocolID, eventIDs []store.FundingFeeEventID) error
}

// DlcOpener is the subset of the DLC manager the executor drives to turn
// a trade path into an actual funding/renewal negotiation.
type DlcOpener interface {
	OpenOffer(ctx context.Context, temporaryID [32]byte, input dlcmanager.ContractInput, candidates []coinselect.Utxo, feeRateSatPerVByte int64) (*dlcmanager.Contract, error)
}

// UtxoSource supplies coin-selection candidates for a new or renewed
// contract's funding input.
type UtxoSource interface {
	CandidateUtxos(ctx context.Context) ([]coinselect.Utxo, error)
}

var errTraderDisconnected = fmt.Errorf("executor: trader not connected")

// newTemporaryID generates a fresh temporary contract id, correlating a
// Position with the DLC manager's in-flight Contract before funding is
// confirmed, per spec.md §3 "temporary_contract_id".
func newTemporaryID() ([32]byte, error) {
	var id [32]byte
	_, err := rand.Read(id[:])
	return id, err
}

// Executor selects and runs a trade path for one ExecutableMatch.
type Executor struct {
	store   Store
	ledger  *position.Ledger
	peers   PeerGate
	dlc     DlcOpener
	utxos   UtxoSource
	feeRate func() int64

	oracleClient oracle.Client
	payoutCurve  oracle.PayoutCurveBuilder
}

// New returns an Executor. feeRate supplies the current on-chain fee rate
// (sat/vByte) for contract funding/renewal transactions.
func New(s Store, ledger *position.Ledger, peers PeerGate, dlc DlcOpener, utxos UtxoSource, feeRate func() int64) *Executor {
	return &Executor{store: s, ledger: ledger, peers: peers, dlc: dlc, utxos: utxos, feeRate: feeRate}
}

// SetOracle wires the oracle client and payout-curve builder used to
// populate a new contract's ContractInfo, per spec.md §2's "oracle client
// ... used only as an interface by the contract builder". Left unset,
// offerContract builds a ContractInfo with no oracle data, which is
// sufficient for paths that never reach a real DLC manager (e.g. in unit
// tests against a fake DlcOpener).
func (e *Executor) SetOracle(client oracle.Client, payoutCurve oracle.PayoutCurveBuilder) {
	e.oracleClient = client
	e.payoutCurve = payoutCurve
}

// offerContract runs coin selection and opens a DLC contract for the
// given collateral split, applying any unpaid funding-fee events to the
// two sides first, per spec.md §4.6. maturity seeds the oracle event id
// ("btcusd<unix_ts>", per spec.md §2) when an oracle client is wired.
func (e *Executor) offerContract(ctx context.Context, temporaryID [32]byte, offerCollateral, acceptCollateral btcutil.Amount, events []store.FundingFeeEvent, maturity time.Time) error {
	for _, ev := range events {
		offerCollateral += btcutil.Amount(ev.Amount)
		acceptCollateral -= btcutil.Amount(ev.Amount)
	}

	candidates, err := e.utxos.CandidateUtxos(ctx)
	if err != nil {
		return err
	}

	info, err := e.buildContractInfo(ctx, maturity, offerCollateral, acceptCollateral)
	if err != nil {
		return err
	}

	_, err = e.dlc.OpenOffer(ctx, temporaryID, dlcmanager.ContractInput{
		OfferCollateral:  offerCollateral,
		AcceptCollateral: acceptCollateral,
		FeeRatePerVByte:  uint32(e.feeRate()),
		Info:             info,
	}, candidates, e.feeRate())
	return err
}

// buildContractInfo fetches the oracle announcement for this contract's
// maturity and runs the payout-curve builder over the negotiated
// collateral split, per spec.md §2 and §1's "payout_curve(params) ->
// piecewise polynomial" external collaborator. Returns a zero-value
// ContractInfo if no oracle client is wired.
func (e *Executor) buildContractInfo(ctx context.Context, maturity time.Time, offerCollateral, acceptCollateral btcutil.Amount) (dlcmanager.ContractInfo, error) {
	if e.oracleClient == nil {
		return dlcmanager.ContractInfo{}, nil
	}

	eventID := oracle.EventID(maturity)
	announcement, err := e.oracleClient.Announcement(ctx, eventID)
	if err != nil {
		return dlcmanager.ContractInfo{}, fmt.Errorf("executor: fetch oracle announcement %s: %w", eventID, err)
	}

	var descriptor []byte
	if e.payoutCurve != nil {
		descriptor, err = e.payoutCurve(oracle.PayoutCurveParams{
			CoordinatorCollateral: uint64(acceptCollateral),
			TraderCollateral:      uint64(offerCollateral),
		})
		if err != nil {
			return dlcmanager.ContractInfo{}, fmt.Errorf("executor: build payout curve: %w", err)
		}
	}

	return dlcmanager.ContractInfo{
		Descriptor:    descriptor,
		OraclePubkeys: [][33]byte{pad33(announcement.Pubkey)},
		EventID:       announcement.EventID,
		Threshold:     1,
	}, nil
}

func pad33(xonly [32]byte) [33]byte {
	var out [33]byte
	out[0] = 0x02
	copy(out[1:], xonly[:])
	return out
}

// SelectPath implements the decision table in spec.md §4.2.
func SelectPath(order store.Order, hasOpenPosition bool, posDirection money.Direction, posQuantity, orderQuantity decimal.Decimal) Path {
	switch order.Reason {
	case store.ReasonExpired:
		return PathClose
	case store.ReasonTraderLiquidated, store.ReasonCoordinatorLiquidated:
		return PathForcedClose
	}

	if !hasOpenPosition {
		return PathOpen
	}
	if posDirection == order.Direction {
		return PathResizeIncrease
	}

	cmp := orderQuantity.Abs().Cmp(posQuantity.Abs())
	switch {
	case cmp < 0:
		return PathResizeDecrease
	case cmp == 0:
		return PathClose
	default:
		return PathCloseThenOpen
	}
}

// Execute runs the full path selected for m, writing the Protocol row in
// Pending state under the same logical unit of work as the position
// transition, per spec.md §4.2.
func (e *Executor) Execute(ctx context.Context, m ExecutableMatch) error {
	if !e.peers.Connected(m.Trader) {
		return coordinatorerrs.Transport("execute match", errTraderDisconnected)
	}

	existing, err := e.store.ActivePositionForTrader(ctx, m.Trader)
	hasPosition := err == nil
	if err != nil && err != store.ErrPositionNotFound {
		return err
	}

	quantity, price := weightedFill(m.Matches)

	var posDirection money.Direction
	var posQuantity decimal.Decimal
	if hasPosition {
		posDirection = existing.Direction
		posQuantity = existing.Quantity
	}

	path := SelectPath(m.Order, hasPosition, posDirection, posQuantity, quantity)

	switch path {
	case PathOpen:
		return e.open(ctx, m, quantity, price)
	case PathResizeIncrease, PathResizeDecrease:
		return e.resize(ctx, existing, m, quantity, price)
	case PathClose, PathForcedClose:
		return e.close(ctx, existing, quantity, price)
	case PathCloseThenOpen:
		remaining := quantity.Sub(posQuantity.Abs())
		if err := e.close(ctx, existing, posQuantity.Abs(), price); err != nil {
			return err
		}
		return e.open(ctx, m, remaining, price)
	default:
		return coordinatorerrs.Protocol("execute match", fmt.Errorf("unhandled path %s", path))
	}
}

// weightedFill computes the quantity-weighted average execution price
// across m.Matches plus their summed quantity, used for Expired closes
// and multi-fill opens alike, per spec.md §4.9 "weighted average
// execution price".
func weightedFill(matches []store.Match) (quantity, avgPrice decimal.Decimal) {
	quantity = decimal.Zero
	weighted := decimal.Zero
	for _, mt := range matches {
		quantity = quantity.Add(mt.Quantity)
		weighted = weighted.Add(mt.Quantity.Mul(mt.ExecutionPrice))
	}
	if quantity.IsZero() {
		return quantity, decimal.Zero
	}
	return quantity, weighted.Div(quantity)
}

func (e *Executor) open(ctx context.Context, m ExecutableMatch, quantity, price decimal.Decimal) error {
	coordinatorLeverage := decimal.NewFromInt(1)

	margin := money.Margin(quantity, price, m.Order.Leverage)
	liq := money.LiquidationPrice(price, m.Order.Leverage, m.Order.Direction)
	coordinatorLiq := money.LiquidationPrice(price, coordinatorLeverage, m.Order.Direction.Opposite())

	p := store.Position{
		Trader:                 m.Trader,
		ContractSymbol:         store.ContractSymbolBtcUsd,
		Direction:              m.Order.Direction,
		Quantity:               quantity,
		AverageEntryPrice:      price,
		TraderLeverage:         m.Order.Leverage,
		CoordinatorLeverage:    coordinatorLeverage,
		TraderMargin:           margin,
		CoordinatorMargin:      margin,
		TraderLiquidationPrice: liq,
		CoordinatorLiquidation: coordinatorLiq,
		State:                  store.PositionProposed,
		Expiry:                 m.Order.Expiry,
	}

	temporaryID, err := newTemporaryID()
	if err != nil {
		return err
	}
	p.TemporaryContractID = &temporaryID

	if _, err := e.ledger.Open(ctx, p); err != nil {
		return err
	}

	if err := e.offerContract(ctx, temporaryID, margin, margin, nil, p.Expiry); err != nil {
		return err
	}

	return e.store.InsertProtocol(ctx, store.Protocol{
		ProtocolID: store.NewProtocolID(),
		Trader:     m.Trader,
		Kind:       store.ProtocolOpen,
		State:      store.ProtocolPending,
	})
}

func (e *Executor) resize(ctx context.Context, existing store.Position, m ExecutableMatch, fillQuantity, fillPrice decimal.Decimal) error {
	if err := e.ledger.BeginResize(ctx, existing.ID); err != nil {
		return err
	}

	protocolID := store.NewProtocolID()

	unpaid, err := e.store.UnpaidFundingFeeEventsForPosition(ctx, existing.ID)
	if err != nil {
		return err
	}
	if len(unpaid) > 0 {
		ids := make([]store.FundingFeeEventID, len(unpaid))
		for i, ev := range unpaid {
			ids[i] = ev.ID
		}
		if err := e.store.StageFundingFeeEventsForProtocol(ctx, protocolID, ids); err != nil {
			return err
		}
	}

	direction := existing.Direction
	if m.Order.Direction != existing.Direction {
		direction = m.Order.Direction
	}

	if err := e.ledger.ResizeFill(ctx, existing.ID, fillQuantity, fillPrice, direction, existing.TraderMargin, existing.CoordinatorMargin, existing.TraderLeverage, existing.CoordinatorLeverage); err != nil {
		return err
	}

	temporaryID, err := newTemporaryID()
	if err != nil {
		return err
	}
	if err := e.offerContract(ctx, temporaryID, existing.TraderMargin, existing.CoordinatorMargin, unpaid, existing.Expiry); err != nil {
		return err
	}

	return e.store.InsertProtocol(ctx, store.Protocol{
		ProtocolID: protocolID,
		Trader:     m.Trader,
		ChannelID:  nil,
		Kind:       store.ProtocolRenewResize,
		State:      store.ProtocolPending,
	})
}

func (e *Executor) close(ctx context.Context, existing store.Position, closeQuantity, execPrice decimal.Decimal) error {
	if err := e.ledger.BeginClose(ctx, existing.ID); err != nil {
		return err
	}

	pnl := money.ClosePnL(closeQuantity, existing.AverageEntryPrice, execPrice, existing.Direction)

	if err := e.ledger.Close(ctx, existing.ID, int64(pnl)); err != nil {
		return err
	}

	return e.store.InsertProtocol(ctx, store.Protocol{
		ProtocolID: store.NewProtocolID(),
		Trader:     existing.Trader,
		Kind:       store.ProtocolClose,
		State:      store.ProtocolPending,
	})
}
