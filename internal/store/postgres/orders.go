package postgres

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
	"github.com/get10101/10101-sub001/internal/store"
)

// InsertOrder persists a new order. It returns store.ErrOrderAlreadyActive
// if the trader already has a non-terminal order, per spec.md §3's Order
// invariant.
func (s *Store) InsertOrder(ctx context.Context, o store.Order) error {
	const q = `
		INSERT INTO orders
			(id, trader_pubkey, kind, direction, quantity, leverage, price,
			 reason, state, expiry, app_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, q,
		uuidText(o.ID), pubkeyHex(o.Trader), o.Kind, o.Direction,
		o.Quantity, o.Leverage, nullableDecimal(o.Price), o.Reason, o.State,
		o.Expiry, o.AppVersion, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrderAlreadyActive
		}
		return coordinatorerrs.Storage("insert order", err)
	}
	return nil
}

// UpdateOrderState transitions an order to a new state.
func (s *Store) UpdateOrderState(ctx context.Context, id store.OrderID, state store.OrderState) error {
	const q = `UPDATE orders SET state = $2, updated_at = now() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, uuidText(id), state)
	if err != nil {
		return coordinatorerrs.Storage("update order state", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrOrderNotFound
	}
	return nil
}

// GetOrder loads a single order by id.
func (s *Store) GetOrder(ctx context.Context, id store.OrderID) (store.Order, error) {
	const q = `
		SELECT id, trader_pubkey, kind, direction, quantity, leverage, price,
		       reason, state, expiry, app_version, created_at, updated_at
		FROM orders WHERE id = $1`
	row := s.pool.QueryRow(ctx, q, uuidText(id))
	return scanOrder(row)
}

// ActiveOrderForTrader returns the trader's single non-terminal order, if
// any.
func (s *Store) ActiveOrderForTrader(ctx context.Context, trader *btcec.PublicKey) (store.Order, error) {
	const q = `
		SELECT id, trader_pubkey, kind, direction, quantity, leverage, price,
		       reason, state, expiry, app_version, created_at, updated_at
		FROM orders
		WHERE trader_pubkey = $1 AND state IN (0, 1, 2)`
	row := s.pool.QueryRow(ctx, q, pubkeyHex(trader))
	return scanOrder(row)
}

// OpenOrders returns every order in OrderOpen state, oldest first, for the
// matching engine's book rebuild on startup.
func (s *Store) OpenOrders(ctx context.Context) ([]store.Order, error) {
	const q = `
		SELECT id, trader_pubkey, kind, direction, quantity, leverage, price,
		       reason, state, expiry, app_version, created_at, updated_at
		FROM orders
		WHERE state = 0
		ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, coordinatorerrs.Storage("list open orders", err)
	}
	defer rows.Close()

	var out []store.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, coordinatorerrs.Storage("scan order", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row pgx.Row) (store.Order, error) {
	o, err := scanOrderRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Order{}, store.ErrOrderNotFound
	}
	if err != nil {
		return store.Order{}, coordinatorerrs.Storage("scan order", err)
	}
	return o, nil
}

func scanOrderRow(row rowScanner) (store.Order, error) {
	var (
		o         store.Order
		idText    string
		traderHex string
		priceDec  *decimal.Decimal
	)
	err := row.Scan(&idText, &traderHex, &o.Kind, &o.Direction, &o.Quantity,
		&o.Leverage, &priceDec, &o.Reason, &o.State, &o.Expiry,
		&o.AppVersion, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return store.Order{}, err
	}

	id, err := parseUUIDText(idText)
	if err != nil {
		return store.Order{}, err
	}
	o.ID = store.OrderID(id)

	trader, err := decodePubkeyHex(traderHex)
	if err != nil {
		return store.Order{}, err
	}
	o.Trader = trader

	if priceDec != nil {
		o.Price = *priceDec
	}
	return o, nil
}
