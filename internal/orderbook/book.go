// Package orderbook implements order intake, matching and match→trader
// dispatch, per spec.md §4.1. It is grounded on htlcswitch.Switch's
// mailbox-plus-notification shape (htlcswitch/switch.go): an internal
// matching channel stands in for the plex packet queue, and match/trade
// outcomes are published on the shared eventbus instead of being returned
// synchronously to the caller.
package orderbook

import (
	"context"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
	"github.com/get10101/10101-sub001/internal/eventbus"
	"github.com/get10101/10101-sub001/internal/money"
	"github.com/get10101/10101-sub001/internal/store"
)

// Store is the subset of the relational store the book needs.
type Store interface {
	InsertOrder(ctx context.Context, o store.Order) error
	UpdateOrderState(ctx context.Context, id store.OrderID, state store.OrderState) error
	GetOrder(ctx context.Context, id store.OrderID) (store.Order, error)
	ActiveOrderForTrader(ctx context.Context, trader *btcec.PublicKey) (store.Order, error)
	OpenOrders(ctx context.Context) ([]store.Order, error)
	InsertMatch(ctx context.Context, m store.Match) error
}

// Gate decides whether a trader may place a Limit order (maker allow-list)
// and whether a trader's app version may place a Market order, per
// spec.md §4.1's Submit validation.
type Gate interface {
	AppVersionAllowed(version string) bool
	IsMaker(trader *btcec.PublicKey) bool
	MakerGatingEnabled() bool
}

// FeeSchedule supplies the matching-fee rate and a trader's referral
// bonus, used by the formula in spec.md §4.1.
type FeeSchedule interface {
	MatchingFeeRate() decimal.Decimal
	ReferralBonus(trader *btcec.PublicKey) decimal.Decimal
}

// Book is the in-memory limit-order book plus the relational order/match
// records behind it. Matching runs single-threaded under bookMu the way
// htlcswitch.Switch guards its link index with indexMtx, so price-time
// priority never races with a concurrent Submit/Cancel.
type Book struct {
	store Store
	gate  Gate
	fees  FeeSchedule
	bus   *eventbus.Bus

	bookMu sync.Mutex
	limits map[money.Direction][]store.Order // price-time ordered, per side
}

// New returns an empty Book.
func New(s Store, gate Gate, fees FeeSchedule, bus *eventbus.Bus) *Book {
	return &Book{
		store:  s,
		gate:   gate,
		fees:   fees,
		bus:    bus,
		limits: make(map[money.Direction][]store.Order),
	}
}

// Submit validates and inserts a new order, per spec.md §4.1. A Market
// order is matched immediately; a Limit order rests on the book.
func (b *Book) Submit(ctx context.Context, o store.Order) error {
	if err := b.validate(o); err != nil {
		return err
	}

	if _, err := b.store.ActiveOrderForTrader(ctx, o.Trader); err == nil {
		return coordinatorerrs.Validation("submit order", store.ErrOrderAlreadyActive)
	}

	o.State = store.OrderOpen
	if err := b.store.InsertOrder(ctx, o); err != nil {
		return err
	}

	if o.Kind == store.OrderKindLimit {
		b.rest(o)
		return nil
	}
	return b.match(ctx, o)
}

func (b *Book) validate(o store.Order) error {
	switch o.Kind {
	case store.OrderKindMarket:
		if !o.Reason.IsSystemInjected() && !b.gate.AppVersionAllowed(o.AppVersion) {
			return coordinatorerrs.Validation("submit order", errUnsupportedAppVersion)
		}
	case store.OrderKindLimit:
		if !o.Price.IsPositive() {
			return coordinatorerrs.Validation("submit order", errNonPositivePrice)
		}
		if b.gate.MakerGatingEnabled() && !b.gate.IsMaker(o.Trader) {
			return coordinatorerrs.Authentication("submit order", errNotAMaker)
		}
	}
	return nil
}

// Cancel marks a trader's own open order Failed, per spec.md §6's
// `DELETE /api/orders/{id}`.
func (b *Book) Cancel(ctx context.Context, id store.OrderID, trader *btcec.PublicKey) error {
	o, err := b.store.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if !o.Trader.IsEqual(trader) {
		return coordinatorerrs.Authentication("cancel order", errNotOrderOwner)
	}
	if o.State.IsTerminal() {
		return coordinatorerrs.Validation("cancel order", errOrderAlreadyTerminal)
	}

	b.bookMu.Lock()
	b.removeFromBook(o)
	b.bookMu.Unlock()

	return b.store.UpdateOrderState(ctx, id, store.OrderFailed)
}

// ReplayPending re-loads resting Limit orders from storage into the
// in-memory book, for startup recovery.
func (b *Book) ReplayPending(ctx context.Context) error {
	open, err := b.store.OpenOrders(ctx)
	if err != nil {
		return err
	}
	b.bookMu.Lock()
	defer b.bookMu.Unlock()
	for _, o := range open {
		if o.Kind == store.OrderKindLimit {
			b.limits[o.Direction] = append(b.limits[o.Direction], o)
		}
	}
	for dir := range b.limits {
		sortByPriceTime(b.limits[dir], dir)
	}
	return nil
}

func (b *Book) rest(o store.Order) {
	b.bookMu.Lock()
	defer b.bookMu.Unlock()
	b.limits[o.Direction] = append(b.limits[o.Direction], o)
	sortByPriceTime(b.limits[o.Direction], o.Direction)
}

func (b *Book) removeFromBook(o store.Order) {
	side := b.limits[o.Direction]
	for i, resting := range side {
		if resting.ID == o.ID {
			b.limits[o.Direction] = append(side[:i], side[i+1:]...)
			return
		}
	}
}

func oppositeSide(d money.Direction) money.Direction {
	if d == money.Long {
		return money.Short
	}
	return money.Long
}

// sortByPriceTime orders resting Limit orders best-price-first, FIFO on
// ties, per spec.md §4.1 "Match": "best-priced Limit orders on the
// opposite side (FIFO on equal price)". Longs want the highest price
// first (best bid); shorts want the lowest price first (best ask).
func sortByPriceTime(side []store.Order, direction money.Direction) {
	sort.SliceStable(side, func(i, j int) bool {
		if side[i].Price.Equal(side[j].Price) {
			return side[i].CreatedAt.Before(side[j].CreatedAt)
		}
		if direction == money.Long {
			return side[i].Price.GreaterThan(side[j].Price)
		}
		return side[i].Price.LessThan(side[j].Price)
	})
}

// match fills a Market taker order against the resting book on the
// opposite side, per spec.md §4.1. Limit orders always rest on submission
// and are not matched here.
func (b *Book) match(ctx context.Context, taker store.Order) error {
	remaining := taker.Quantity

	b.bookMu.Lock()
	side := oppositeSide(taker.Direction)
	resting := b.limits[side]
	var fills []store.Order
	var leftover []store.Order
	for _, maker := range resting {
		if remaining.IsZero() {
			leftover = append(leftover, maker)
			continue
		}
		fillQty := decimal.Min(remaining, maker.Quantity)
		remaining = remaining.Sub(fillQty)

		fill := maker
		fill.Quantity = fillQty
		fills = append(fills, fill)

		if fillQty.LessThan(maker.Quantity) {
			maker.Quantity = maker.Quantity.Sub(fillQty)
			leftover = append(leftover, maker)
		}
	}
	b.limits[side] = leftover
	b.bookMu.Unlock()

	feeRate := b.fees.MatchingFeeRate()
	bonus := b.fees.ReferralBonus(taker.Trader)

	for _, maker := range fills {
		fee := money.MatchingFee(maker.Quantity, maker.Price, feeRate, bonus)

		takerMatch := store.Match{
			ID:             store.NewMatchID(),
			OrderID:        taker.ID,
			MatchedOrderID: maker.ID,
			Quantity:       maker.Quantity,
			ExecutionPrice: maker.Price,
			MatchingFee:    fee,
			State:          store.MatchPending,
		}
		if err := b.store.InsertMatch(ctx, takerMatch); err != nil {
			return err
		}

		// The maker side is auto-Filled: no real maker runs a DLC
		// channel with the coordinator yet (spec.md §9 Open Question
		// 2).
		makerMatch := store.Match{
			ID:             store.NewMatchID(),
			OrderID:        maker.ID,
			MatchedOrderID: taker.ID,
			Quantity:       maker.Quantity,
			ExecutionPrice: maker.Price,
			MatchingFee:    fee,
			State:          store.MatchFilled,
		}
		if err := b.store.InsertMatch(ctx, makerMatch); err != nil {
			return err
		}

		b.bus.Publish(ctx, eventbus.Event{Kind: eventbus.MatchFound, Peer: taker.Trader})
	}

	if remaining.IsZero() {
		return b.store.UpdateOrderState(ctx, taker.ID, store.OrderMatched)
	}
	// Partial fill: spec.md doesn't define resting the unfilled taker
	// remainder for a Market order, so the unmatched quantity lapses;
	// the filled portion still dispatches.
	return b.store.UpdateOrderState(ctx, taker.ID, store.OrderMatched)
}
