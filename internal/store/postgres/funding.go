package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
	"github.com/get10101/10101-sub001/internal/store"
)

// InsertFundingRate persists the rate computed for one hourly window. The
// unique index on (end_date, contract_symbol) makes a retried publish
// idempotent.
func (s *Store) InsertFundingRate(ctx context.Context, r store.FundingRate) error {
	const q = `
		INSERT INTO funding_rates (rate, start_date, end_date, contract_symbol)
		VALUES ($1, $2, $3, $4)`
	_, err := s.pool.Exec(ctx, q, r.Rate, r.StartDate, r.EndDate, r.ContractSymbol)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return coordinatorerrs.Storage("insert funding rate", err)
	}
	return nil
}

// FundingRateForHour returns the rate whose window ends at endDate.
func (s *Store) FundingRateForHour(ctx context.Context, endDate time.Time, symbol store.ContractSymbol) (store.FundingRate, error) {
	const q = `
		SELECT rate, start_date, end_date, contract_symbol
		FROM funding_rates WHERE end_date = $1 AND contract_symbol = $2`
	var r store.FundingRate
	err := s.pool.QueryRow(ctx, q, endDate, symbol).
		Scan(&r.Rate, &r.StartDate, &r.EndDate, &r.ContractSymbol)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.FundingRate{}, store.ErrFundingRateNotFound
	}
	if err != nil {
		return store.FundingRate{}, coordinatorerrs.Storage("get funding rate", err)
	}
	return r, nil
}

// InsertFundingFeeEvent persists a funding fee charged to a position for
// one due date. Per spec.md §7, a unique-constraint violation on
// (position_id, due_date) is treated as idempotent success: the event was
// already staged by a previous, possibly crashed, run of the scheduler.
func (s *Store) InsertFundingFeeEvent(ctx context.Context, e store.FundingFeeEvent) (store.FundingFeeEventID, error) {
	const q = `
		INSERT INTO funding_fee_events
			(position_id, trader_pubkey, amount_sats, due_date, price,
			 funding_rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (position_id, due_date) DO NOTHING
		RETURNING id`

	var id int32
	err := s.pool.QueryRow(ctx, q, int32(e.PositionID), pubkeyHex(e.Trader),
		int64(e.Amount), e.DueDate, e.Price, e.Rate, e.CreatedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// ON CONFLICT DO NOTHING suppressed the insert: another run
		// already staged this event.
		return 0, store.ErrFundingFeeEventExists
	}
	if err != nil {
		return 0, coordinatorerrs.Storage("insert funding fee event", err)
	}
	return store.FundingFeeEventID(id), nil
}

// UnpaidFundingFeeEventsForPosition returns every funding fee event still
// owed against a position, oldest due date first.
func (s *Store) UnpaidFundingFeeEventsForPosition(ctx context.Context, positionID store.PositionID) ([]store.FundingFeeEvent, error) {
	const q = fundingFeeEventSelect + ` WHERE position_id = $1 AND paid_date IS NULL ORDER BY due_date ASC`
	rows, err := s.pool.Query(ctx, q, int32(positionID))
	if err != nil {
		return nil, coordinatorerrs.Storage("list unpaid funding fee events", err)
	}
	defer rows.Close()

	var out []store.FundingFeeEvent
	for rows.Next() {
		e, err := scanFundingFeeEventRow(rows)
		if err != nil {
			return nil, coordinatorerrs.Storage("scan funding fee event", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const fundingFeeEventSelect = `
	SELECT id, position_id, trader_pubkey, amount_sats, due_date, price,
	       funding_rate, paid_date, created_at
	FROM funding_fee_events`

func scanFundingFeeEventRow(row rowScanner) (store.FundingFeeEvent, error) {
	var (
		e            store.FundingFeeEvent
		id           int32
		positionID   int32
		traderHex    string
		amountSats   int64
	)
	err := row.Scan(&id, &positionID, &traderHex, &amountSats, &e.DueDate,
		&e.Price, &e.Rate, &e.PaidDate, &e.CreatedAt)
	if err != nil {
		return store.FundingFeeEvent{}, err
	}
	e.ID = store.FundingFeeEventID(id)
	e.PositionID = store.PositionID(positionID)
	e.Amount = btcAmount(amountSats)

	trader, err := decodePubkeyHex(traderHex)
	if err != nil {
		return store.FundingFeeEvent{}, err
	}
	e.Trader = trader
	return e, nil
}

// StageFundingFeeEventsForProtocol associates a batch of unpaid funding fee
// events with the renewal protocol run that will settle them atomically
// against the position, per spec.md §4.6.
func (s *Store) StageFundingFeeEventsForProtocol(ctx context.Context, protocolID store.ProtocolID, eventIDs []store.FundingFeeEventID) error {
	return s.withTx(ctx, func(q querier) error {
		const insert = `
			INSERT INTO protocol_funding_fee_events (protocol_id, funding_fee_event_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`
		for _, id := range eventIDs {
			if _, err := q.Exec(ctx, insert, uuidText(protocolID), int32(id)); err != nil {
				return coordinatorerrs.Storage("stage funding fee event", err)
			}
		}
		return nil
	})
}

// MarkFundingFeeEventsPaid stamps paid_date on every funding fee event
// staged against protocolID and clears the staging rows, in a single
// transaction: the renewal protocol either settles every staged fee or
// none of them, per spec.md §4.6.
func (s *Store) MarkFundingFeeEventsPaid(ctx context.Context, protocolID store.ProtocolID, paidDate time.Time) error {
	return s.withTx(ctx, func(q querier) error {
		const update = `
			UPDATE funding_fee_events
			SET paid_date = $2
			WHERE id IN (
				SELECT funding_fee_event_id FROM protocol_funding_fee_events
				WHERE protocol_id = $1
			)`
		if _, err := q.Exec(ctx, update, uuidText(protocolID), paidDate); err != nil {
			return coordinatorerrs.Storage("mark funding fee events paid", err)
		}

		const clear = `DELETE FROM protocol_funding_fee_events WHERE protocol_id = $1`
		if _, err := q.Exec(ctx, clear, uuidText(protocolID)); err != nil {
			return coordinatorerrs.Storage("clear staged funding fee events", err)
		}
		return nil
	})
}
