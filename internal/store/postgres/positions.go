package postgres

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/jackc/pgx/v4"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
	"github.com/get10101/10101-sub001/internal/store"
)

// InsertPosition persists a newly proposed position. It returns
// store.ErrPositionAlreadyActive if the trader already has an active
// position, per spec.md §3's Position invariant.
func (s *Store) InsertPosition(ctx context.Context, p store.Position) (store.PositionID, error) {
	const q = `
		INSERT INTO positions
			(trader_pubkey, contract_symbol, direction, quantity,
			 average_entry_price, trader_leverage, coordinator_leverage,
			 trader_margin_sats, coordinator_margin_sats,
			 trader_liquidation_price, coordinator_liquidation_price,
			 state, expiry, trader_realized_pnl_sats,
			 order_matching_fees_sats, temporary_contract_id,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id`

	var id int32
	err := s.pool.QueryRow(ctx, q,
		pubkeyHex(p.Trader), p.ContractSymbol, p.Direction, p.Quantity,
		p.AverageEntryPrice, p.TraderLeverage, p.CoordinatorLeverage,
		int64(p.TraderMargin), int64(p.CoordinatorMargin),
		p.TraderLiquidationPrice, p.CoordinatorLiquidation,
		p.State, p.Expiry, p.TraderRealizedPnLSat,
		int64(p.OrderMatchingFees), temporaryContractIDBytes(p.TemporaryContractID),
		p.CreatedAt, p.UpdatedAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrPositionAlreadyActive
		}
		return 0, coordinatorerrs.Storage("insert position", err)
	}
	return store.PositionID(id), nil
}

// UpdatePositionState transitions a position to a new state.
func (s *Store) UpdatePositionState(ctx context.Context, id store.PositionID, state store.PositionState) error {
	const q = `UPDATE positions SET state = $2, updated_at = now() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, int32(id), state)
	if err != nil {
		return coordinatorerrs.Storage("update position state", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrPositionNotFound
	}
	return nil
}

// ClosePosition stamps the realized pnl and moves the position to
// PositionClosed in one write, per spec.md §4.9's close path.
func (s *Store) ClosePosition(ctx context.Context, id store.PositionID, realizedPnLSat int64) error {
	const q = `
		UPDATE positions
		SET state = $2, trader_realized_pnl_sats = $3, updated_at = now()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, int32(id), store.PositionClosed, realizedPnLSat)
	if err != nil {
		return coordinatorerrs.Storage("close position", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrPositionNotFound
	}
	return nil
}

// UpdatePositionResize rewrites the mutable fields a completed resize
// touches: quantity, average entry price, direction, margins, state,
// leverages and liquidation prices.
func (s *Store) UpdatePositionResize(ctx context.Context, p store.Position) error {
	const q = `
		UPDATE positions
		SET quantity = $2, average_entry_price = $3, direction = $4,
		    trader_margin_sats = $5, coordinator_margin_sats = $6,
		    state = $7, trader_leverage = $8, coordinator_leverage = $9,
		    trader_liquidation_price = $10,
		    coordinator_liquidation_price = $11, updated_at = now()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, int32(p.ID), p.Quantity, p.AverageEntryPrice,
		p.Direction, int64(p.TraderMargin), int64(p.CoordinatorMargin), p.State,
		p.TraderLeverage, p.CoordinatorLeverage, p.TraderLiquidationPrice,
		p.CoordinatorLiquidation)
	if err != nil {
		return coordinatorerrs.Storage("update position resize", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrPositionNotFound
	}
	return nil
}

// GetPosition loads a single position by id.
func (s *Store) GetPosition(ctx context.Context, id store.PositionID) (store.Position, error) {
	const q = positionSelect + ` WHERE id = $1`
	p, err := scanPositionRow(s.pool.QueryRow(ctx, q, int32(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Position{}, store.ErrPositionNotFound
	}
	if err != nil {
		return store.Position{}, coordinatorerrs.Storage("scan position", err)
	}
	return p, nil
}

// ActivePositionForTrader returns the trader's single active position, if
// any.
func (s *Store) ActivePositionForTrader(ctx context.Context, trader *btcec.PublicKey) (store.Position, error) {
	const q = positionSelect + ` WHERE trader_pubkey = $1 AND state IN (0,1,2,3,4)`
	p, err := scanPositionRow(s.pool.QueryRow(ctx, q, pubkeyHex(trader)))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Position{}, store.ErrPositionNotFound
	}
	if err != nil {
		return store.Position{}, coordinatorerrs.Storage("scan position", err)
	}
	return p, nil
}

// ActivePositions returns every active position across all traders, for
// the liquidation monitor and the funding-fee engine.
func (s *Store) ActivePositions(ctx context.Context) ([]store.Position, error) {
	const q = positionSelect + ` WHERE state IN (0,1,2,3,4) ORDER BY id ASC`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, coordinatorerrs.Storage("list active positions", err)
	}
	defer rows.Close()

	var out []store.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, coordinatorerrs.Storage("scan position", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const positionSelect = `
	SELECT id, trader_pubkey, contract_symbol, direction, quantity,
	       average_entry_price, trader_leverage, coordinator_leverage,
	       trader_margin_sats, coordinator_margin_sats,
	       trader_liquidation_price, coordinator_liquidation_price,
	       state, expiry, trader_realized_pnl_sats,
	       order_matching_fees_sats, temporary_contract_id,
	       created_at, updated_at
	FROM positions`

func scanPositionRow(row rowScanner) (store.Position, error) {
	var (
		p                             store.Position
		id                            int32
		traderHex                     string
		traderMarginSats              int64
		coordinatorMarginSats         int64
		orderMatchingFeesSats         int64
		temporaryContractID           []byte
	)
	err := row.Scan(&id, &traderHex, &p.ContractSymbol, &p.Direction,
		&p.Quantity, &p.AverageEntryPrice, &p.TraderLeverage,
		&p.CoordinatorLeverage, &traderMarginSats, &coordinatorMarginSats,
		&p.TraderLiquidationPrice, &p.CoordinatorLiquidation, &p.State,
		&p.Expiry, &p.TraderRealizedPnLSat, &orderMatchingFeesSats,
		&temporaryContractID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return store.Position{}, err
	}

	p.ID = store.PositionID(id)
	p.TraderMargin = btcAmount(traderMarginSats)
	p.CoordinatorMargin = btcAmount(coordinatorMarginSats)
	p.OrderMatchingFees = btcAmount(orderMatchingFeesSats)

	trader, err := decodePubkeyHex(traderHex)
	if err != nil {
		return store.Position{}, err
	}
	p.Trader = trader

	if len(temporaryContractID) == 32 {
		var arr [32]byte
		copy(arr[:], temporaryContractID)
		p.TemporaryContractID = &arr
	}
	return p, nil
}

func temporaryContractIDBytes(id *[32]byte) []byte {
	if id == nil {
		return nil
	}
	return id[:]
}
