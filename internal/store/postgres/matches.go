package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
	"github.com/get10101/10101-sub001/internal/store"
)

// InsertMatch persists a new match between two orders.
func (s *Store) InsertMatch(ctx context.Context, m store.Match) error {
	const q = `
		INSERT INTO matches
			(id, order_id, matched_order_id, quantity, execution_price,
			 matching_fee_sats, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		uuidText(m.ID), uuidText(m.OrderID), uuidText(m.MatchedOrderID),
		m.Quantity, m.ExecutionPrice, int64(m.MatchingFee), m.State, m.CreatedAt)
	if err != nil {
		return coordinatorerrs.Storage("insert match", err)
	}
	return nil
}

// UpdateMatchState transitions a match to a terminal state.
func (s *Store) UpdateMatchState(ctx context.Context, id store.MatchID, state store.MatchState) error {
	const q = `UPDATE matches SET state = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, uuidText(id), state)
	if err != nil {
		return coordinatorerrs.Storage("update match state", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrMatchNotFound
	}
	return nil
}

// MatchesForOrder returns every match recorded against an order, oldest
// first.
func (s *Store) MatchesForOrder(ctx context.Context, orderID store.OrderID) ([]store.Match, error) {
	const q = `
		SELECT id, order_id, matched_order_id, quantity, execution_price,
		       matching_fee_sats, state, created_at
		FROM matches
		WHERE order_id = $1
		ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, q, uuidText(orderID))
	if err != nil {
		return nil, coordinatorerrs.Storage("list matches for order", err)
	}
	defer rows.Close()

	var out []store.Match
	for rows.Next() {
		m, err := scanMatchRow(rows)
		if err != nil {
			return nil, coordinatorerrs.Storage("scan match", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMatch loads a single match by id.
func (s *Store) GetMatch(ctx context.Context, id store.MatchID) (store.Match, error) {
	const q = `
		SELECT id, order_id, matched_order_id, quantity, execution_price,
		       matching_fee_sats, state, created_at
		FROM matches WHERE id = $1`
	m, err := scanMatchRow(s.pool.QueryRow(ctx, q, uuidText(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Match{}, store.ErrMatchNotFound
	}
	if err != nil {
		return store.Match{}, coordinatorerrs.Storage("scan match", err)
	}
	return m, nil
}

func scanMatchRow(row rowScanner) (store.Match, error) {
	var (
		m                  store.Match
		idText, orderText  string
		matchedOrderText   string
		feeSats            int64
	)
	err := row.Scan(&idText, &orderText, &matchedOrderText, &m.Quantity,
		&m.ExecutionPrice, &feeSats, &m.State, &m.CreatedAt)
	if err != nil {
		return store.Match{}, err
	}

	id, err := parseUUIDText(idText)
	if err != nil {
		return store.Match{}, err
	}
	m.ID = store.MatchID(id)

	orderID, err := parseUUIDText(orderText)
	if err != nil {
		return store.Match{}, err
	}
	m.OrderID = store.OrderID(orderID)

	matchedOrderID, err := parseUUIDText(matchedOrderText)
	if err != nil {
		return store.Match{}, err
	}
	m.MatchedOrderID = store.OrderID(matchedOrderID)

	m.MatchingFee = btcAmount(feeSats)
	return m, nil
}
