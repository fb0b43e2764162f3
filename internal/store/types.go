// Package store defines the domain entities persisted by the coordinator,
// per spec.md §3. Relational entities are implemented in the postgres
// sub-package; append-style and key/value blobs live in the kv sub-package.
// The kv store sits behind the Persister (internal/store/persister) so that
// every blob write can also be pushed to the encrypted remote backup, per
// spec.md §2; the postgres store is not wrapped by it.
package store

import (
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/get10101/10101-sub001/internal/money"
)

// OrderID uniquely identifies an Order.
type OrderID uuid.UUID

func (id OrderID) String() string { return uuid.UUID(id).String() }

// NewOrderID generates a fresh, random OrderID.
func NewOrderID() OrderID { return OrderID(uuid.New()) }

// OrderKind distinguishes Market from Limit orders.
type OrderKind uint8

const (
	OrderKindMarket OrderKind = iota
	OrderKindLimit
)

func (k OrderKind) String() string {
	if k == OrderKindMarket {
		return "market"
	}
	return "limit"
}

// OrderReason records who or what caused the order to exist.
type OrderReason uint8

const (
	// ReasonManual is a trader-submitted order.
	ReasonManual OrderReason = iota
	// ReasonExpired is injected when a matched taker order's expiry
	// passes before execution.
	ReasonExpired
	// ReasonTraderLiquidated is injected by the liquidation monitor when
	// the trader's liquidation price is crossed.
	ReasonTraderLiquidated
	// ReasonCoordinatorLiquidated is injected by the liquidation monitor
	// when the coordinator's liquidation price is crossed.
	ReasonCoordinatorLiquidated
)

func (r OrderReason) String() string {
	switch r {
	case ReasonManual:
		return "manual"
	case ReasonExpired:
		return "expired"
	case ReasonTraderLiquidated:
		return "trader_liquidated"
	case ReasonCoordinatorLiquidated:
		return "coordinator_liquidated"
	default:
		return "unknown"
	}
}

// IsSystemInjected reports whether this reason can only originate from the
// coordinator, never directly from a trader request. Per spec.md §3's
// Order invariant: "a Market order of reason != Manual is injected by the
// system, never by the trader."
func (r OrderReason) IsSystemInjected() bool {
	return r != ReasonManual
}

// OrderState is the Order state machine, per spec.md §3.
type OrderState uint8

const (
	OrderOpen OrderState = iota
	OrderMatched
	OrderTaken
	OrderFilled
	OrderFailed
	OrderExpired
)

func (s OrderState) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderMatched:
		return "matched"
	case OrderTaken:
		return "taken"
	case OrderFilled:
		return "filled"
	case OrderFailed:
		return "failed"
	case OrderExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state machine has reached a terminal
// state, i.e. no further transition is possible.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderFailed, OrderExpired:
		return true
	default:
		return false
	}
}

// Order is a trader's request to open, resize or close a position, per
// spec.md §3.
type Order struct {
	ID             OrderID
	Trader         *btcec.PublicKey
	Kind           OrderKind
	Direction      money.Direction
	Quantity       decimal.Decimal
	Leverage       decimal.Decimal
	Price          decimal.Decimal // zero for Market orders
	Reason         OrderReason
	State          OrderState
	Expiry         time.Time
	AppVersion     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MatchID uniquely identifies a Match.
type MatchID uuid.UUID

func (id MatchID) String() string { return uuid.UUID(id).String() }

// NewMatchID generates a fresh, random MatchID.
func NewMatchID() MatchID { return MatchID(uuid.New()) }

// MatchState is the Match state machine, per spec.md §3. Transitions are
// monotonic: Pending -> {Filled, Failed}.
type MatchState uint8

const (
	MatchPending MatchState = iota
	MatchFilled
	MatchFailed
)

func (s MatchState) String() string {
	switch s {
	case MatchPending:
		return "pending"
	case MatchFilled:
		return "filled"
	case MatchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Match records one fill between a taker order and a maker (or
// system-synthesised counterparty) order, per spec.md §3.
type Match struct {
	ID              MatchID
	OrderID         OrderID
	MatchedOrderID  OrderID
	Quantity        decimal.Decimal
	ExecutionPrice  decimal.Decimal
	MatchingFee     btcutil.Amount
	State           MatchState
	CreatedAt       time.Time
}

// PositionID uniquely identifies a Position.
type PositionID int32

// PositionState is the Position state machine, per spec.md §3.
type PositionState uint8

const (
	PositionProposed PositionState = iota
	PositionOpen
	PositionRollover
	PositionResizing
	PositionClosing
	PositionClosed
	PositionFailed
)

func (s PositionState) String() string {
	switch s {
	case PositionProposed:
		return "proposed"
	case PositionOpen:
		return "open"
	case PositionRollover:
		return "rollover"
	case PositionResizing:
		return "resizing"
	case PositionClosing:
		return "closing"
	case PositionClosed:
		return "closed"
	case PositionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsActive reports whether a trader may have at most one position in this
// state concurrently, per spec.md §3's Position invariant ("at most one
// Open | Resizing | Rollover | Closing | Proposed position per trader").
func (s PositionState) IsActive() bool {
	switch s {
	case PositionProposed, PositionOpen, PositionResizing, PositionRollover, PositionClosing:
		return true
	default:
		return false
	}
}

// ContractSymbol enumerates the tradeable contract. Only BtcUsd exists, per
// spec.md §1.
type ContractSymbol uint8

const (
	ContractSymbolBtcUsd ContractSymbol = iota
)

func (s ContractSymbol) String() string {
	return "btcusd"
}

// Position is the per-trader open derivative position, per spec.md §3.
type Position struct {
	ID                      PositionID
	Trader                  *btcec.PublicKey
	ContractSymbol          ContractSymbol
	Direction               money.Direction
	Quantity                decimal.Decimal
	AverageEntryPrice       decimal.Decimal
	TraderLeverage          decimal.Decimal
	CoordinatorLeverage     decimal.Decimal
	TraderMargin            btcutil.Amount
	CoordinatorMargin       btcutil.Amount
	TraderLiquidationPrice  decimal.Decimal
	CoordinatorLiquidation  decimal.Decimal
	State                   PositionState
	Expiry                  time.Time
	TraderRealizedPnLSat    *int64
	OrderMatchingFees       btcutil.Amount
	TemporaryContractID     *[32]byte
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// ChannelID identifies a DlcChannel.
type ChannelID [32]byte

func (id ChannelID) String() string {
	return uuid.UUID(firstSixteen(id)).String()
}

func firstSixteen(b [32]byte) [16]byte {
	var out [16]byte
	copy(out[:], b[:16])
	return out
}

// DlcChannelState is the DlcChannel state machine, per spec.md §3.
type DlcChannelState uint8

const (
	DlcChannelPending DlcChannelState = iota
	DlcChannelOpen
	DlcChannelClosing
	DlcChannelClosed
	DlcChannelFailed
	DlcChannelCancelled
)

func (s DlcChannelState) String() string {
	switch s {
	case DlcChannelPending:
		return "pending"
	case DlcChannelOpen:
		return "open"
	case DlcChannelClosing:
		return "closing"
	case DlcChannelClosed:
		return "closed"
	case DlcChannelFailed:
		return "failed"
	case DlcChannelCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DlcChannel is the summary view of the signed-channel wrapper around a
// sequence of contracts sharing one funding output, per spec.md §3.
type DlcChannel struct {
	ChannelID              ChannelID
	Trader                 *btcec.PublicKey
	State                  DlcChannelState
	CoordinatorReserveSats btcutil.Amount
	TraderReserveSats      btcutil.Amount
	CoordinatorFundingSats btcutil.Amount
	TraderFundingSats      btcutil.Amount
	FundingTxid            *string
	CloseTxid              *string
	SettleTxid             *string
	BufferTxid             *string
	ClaimTxid              *string
	PunishTxid             *string
	CounterFundingPubkey   *btcec.PublicKey
	FundingRedeemScript    []byte
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// ProtocolID identifies a single run of a DLC protocol (open, settle,
// renew, rollover, close), per spec.md §3.
type ProtocolID uuid.UUID

func (id ProtocolID) String() string { return uuid.UUID(id).String() }

// NewProtocolID generates a fresh, random ProtocolID.
func NewProtocolID() ProtocolID { return ProtocolID(uuid.New()) }

// ProtocolKind distinguishes the DLC protocol variant a Protocol row
// correlates.
type ProtocolKind uint8

const (
	ProtocolOpen ProtocolKind = iota
	ProtocolSettle
	ProtocolRenewResize
	ProtocolRenewRollover
	ProtocolClose
)

func (k ProtocolKind) String() string {
	switch k {
	case ProtocolOpen:
		return "open"
	case ProtocolSettle:
		return "settle"
	case ProtocolRenewResize:
		return "renew_resize"
	case ProtocolRenewRollover:
		return "renew_rollover"
	case ProtocolClose:
		return "close"
	default:
		return "unknown"
	}
}

// ProtocolState is the Protocol state machine, per spec.md §3.
type ProtocolState uint8

const (
	ProtocolPending ProtocolState = iota
	ProtocolSuccess
	ProtocolFailed
)

func (s ProtocolState) String() string {
	switch s {
	case ProtocolPending:
		return "pending"
	case ProtocolSuccess:
		return "success"
	case ProtocolFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Protocol correlates a DLC protocol run across the orderbook, the trade
// executor and the DLC manager, and serves as an idempotency key, per
// spec.md §3.
type Protocol struct {
	ProtocolID         ProtocolID
	PreviousProtocolID *ProtocolID
	Trader             *btcec.PublicKey
	ChannelID          *ChannelID
	Kind               ProtocolKind
	State              ProtocolState
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FundingRate is the hourly rate transferring value between longs and
// shorts, per spec.md §3.
type FundingRate struct {
	Rate           decimal.Decimal
	StartDate      time.Time
	EndDate        time.Time
	ContractSymbol ContractSymbol
}

// FundingFeeEventID identifies a FundingFeeEvent.
type FundingFeeEventID int32

// FundingFeeEvent records a funding fee owed between a position's trader
// and the coordinator, per spec.md §3. A positive Amount means the trader
// pays the coordinator.
type FundingFeeEvent struct {
	ID          FundingFeeEventID
	PositionID  PositionID
	Trader      *btcec.PublicKey
	Amount      btcutil.Amount
	DueDate     time.Time
	Price       decimal.Decimal
	Rate        decimal.Decimal
	PaidDate    *time.Time
	CreatedAt   time.Time
}

// DlcMessageHash is the sha256 digest of a serialized DLC message payload,
// used both as a dedup key and an idempotency key for reprocessing.
type DlcMessageHash [32]byte

// MessageDirection distinguishes inbound from outbound DLC messages.
type MessageDirection uint8

const (
	DirectionInbound MessageDirection = iota
	DirectionOutbound
)

// DlcMessageRecord is the persisted record of one DLC message, per
// spec.md §3. The message handler refuses to re-dispatch an inbound
// message whose hash is already present.
type DlcMessageRecord struct {
	Hash      DlcMessageHash
	Peer      *btcec.PublicKey
	Direction MessageDirection
	Kind      string
	Timestamp time.Time
}

// LastOutboundDlcMessage is the most recently sent serialized payload to a
// peer, replayed verbatim on reconnect, per spec.md §3.
type LastOutboundDlcMessage struct {
	Peer    *btcec.PublicKey
	Payload []byte
}

// CollaborativeRevert describes an outstanding two-party signed proposal to
// spend the funding output when the DLC channel state machine is wedged,
// per spec.md §3/§4.8.
type CollaborativeRevert struct {
	ChannelID          ChannelID
	Trader             *btcec.PublicKey
	Price              decimal.Decimal
	CoordinatorAddress string
	CoordinatorAmount  btcutil.Amount
	TraderAmount       btcutil.Amount
	Timestamp          time.Time
}
