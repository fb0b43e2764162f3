// Package eventbus is the shared publish/subscribe bus the DLC manager, the
// message router and the orderbook use to avoid owning each other
// directly, per spec.md §9's "cyclic ownership avoided by message-passing".
// It generalises the node-event names spec.md §4.4 lists (Connected,
// SendDlcMessage, StoreDlcMessage, SendLastDlcMessage) into one Event sum
// type plus an Inbound variant for messages arriving off the wire.
package eventbus

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/get10101/10101-sub001/internal/store"
)

// Kind enumerates the node events a subscriber can receive.
type Kind uint8

const (
	// Connected fires when a peer's transport session comes up.
	Connected Kind = iota
	// Disconnected fires when a peer's transport session drops.
	Disconnected
	// Inbound carries a deduplicated, persisted inbound DLC message.
	Inbound
	// SendDlcMessage asks the router to deliver a message to a peer,
	// persisting it as the peer's LastOutboundDlcMessage first.
	SendDlcMessage
	// StoreDlcMessage asks the router to persist a message without
	// sending it (used when a manager replays state internally).
	StoreDlcMessage
	// SendLastDlcMessage asks the router to re-send the peer's stored
	// LastOutboundDlcMessage, used on reconnect.
	SendLastDlcMessage
	// MatchFound fires when the orderbook pairs two orders.
	MatchFound
	// TradeError fires when the trade executor fails to execute a match.
	TradeError
	// FundingFeeEvent fires when the funding-fee engine stages a new fee
	// against a position.
	FundingFeeEvent
	// CollaborativeRevertProposed fires when a revert proposal is stored.
	CollaborativeRevertProposed
	// CollaborativeRevertConfirmed fires once a revert transaction has
	// broadcast and the channel/position are closed.
	CollaborativeRevertConfirmed
)

func (k Kind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Inbound:
		return "inbound"
	case SendDlcMessage:
		return "send_dlc_message"
	case StoreDlcMessage:
		return "store_dlc_message"
	case SendLastDlcMessage:
		return "send_last_dlc_message"
	case MatchFound:
		return "match_found"
	case TradeError:
		return "trade_error"
	case FundingFeeEvent:
		return "funding_fee_event"
	case CollaborativeRevertProposed:
		return "collaborative_revert_proposed"
	case CollaborativeRevertConfirmed:
		return "collaborative_revert_confirmed"
	default:
		return "unknown"
	}
}

// Event is one published node event. Only the field(s) relevant to Kind are
// populated; this mirrors the single enum payload rust-dlc's NodeEvent
// types use, flattened into one Go struct the way lnwire flattens distinct
// wire messages behind a common Message interface elsewhere in this
// module.
type Event struct {
	Kind    Kind
	Peer    *btcec.PublicKey
	Payload []byte // serialized TenTenOne* message, when relevant
	Hash    store.DlcMessageHash
	Err     error
}

// Handler processes one event. A Handler must not block for long; slow
// work belongs on internal/workerpool.
type Handler func(ctx context.Context, evt Event)

// Bus is a simple fan-out publish/subscribe bus. Subscribers are invoked
// synchronously, in subscription order, on the publishing goroutine --
// callers that need concurrency dispatch their own work from inside the
// handler.
type Bus struct {
	mu   sync.RWMutex
	subs map[Kind][]Handler
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[Kind][]Handler)}
}

// Subscribe registers fn to be called for every future event of kind k.
func (b *Bus) Subscribe(k Kind, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[k] = append(b.subs[k], fn)
}

// Publish delivers evt to every subscriber of evt.Kind.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subs[evt.Kind]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, evt)
	}
}
