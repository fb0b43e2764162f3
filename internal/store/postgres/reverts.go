package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
	"github.com/get10101/10101-sub001/internal/store"
)

// InsertCollaborativeRevert persists an outstanding collaborative-revert
// proposal, per spec.md §4.8.
func (s *Store) InsertCollaborativeRevert(ctx context.Context, r store.CollaborativeRevert) error {
	const q = `
		INSERT INTO collaborative_reverts
			(channel_id, trader_pubkey, price, coordinator_address,
			 coordinator_amount_sats, trader_amount_sats, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (channel_id) DO UPDATE SET
			price = EXCLUDED.price,
			coordinator_address = EXCLUDED.coordinator_address,
			coordinator_amount_sats = EXCLUDED.coordinator_amount_sats,
			trader_amount_sats = EXCLUDED.trader_amount_sats,
			timestamp = EXCLUDED.timestamp`

	_, err := s.pool.Exec(ctx, q, r.ChannelID[:], pubkeyHex(r.Trader), r.Price,
		r.CoordinatorAddress, int64(r.CoordinatorAmount), int64(r.TraderAmount), r.Timestamp)
	if err != nil {
		return coordinatorerrs.Storage("insert collaborative revert", err)
	}
	return nil
}

// GetCollaborativeRevert loads the outstanding proposal for a channel, if
// any.
func (s *Store) GetCollaborativeRevert(ctx context.Context, channelID store.ChannelID) (store.CollaborativeRevert, error) {
	const q = `
		SELECT channel_id, trader_pubkey, price, coordinator_address,
		       coordinator_amount_sats, trader_amount_sats, timestamp
		FROM collaborative_reverts WHERE channel_id = $1`

	var (
		r                    store.CollaborativeRevert
		channelIDBytes       []byte
		traderHex            string
		coordinatorAmount    int64
		traderAmount         int64
	)
	err := s.pool.QueryRow(ctx, q, channelID[:]).Scan(&channelIDBytes,
		&traderHex, &r.Price, &r.CoordinatorAddress, &coordinatorAmount,
		&traderAmount, &r.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.CollaborativeRevert{}, store.ErrCollaborativeRevertNotFound
	}
	if err != nil {
		return store.CollaborativeRevert{}, coordinatorerrs.Storage("get collaborative revert", err)
	}

	copy(r.ChannelID[:], channelIDBytes)
	r.CoordinatorAmount = btcAmount(coordinatorAmount)
	r.TraderAmount = btcAmount(traderAmount)

	trader, err := decodePubkeyHex(traderHex)
	if err != nil {
		return store.CollaborativeRevert{}, err
	}
	r.Trader = trader
	return r, nil
}

// DeleteCollaborativeRevert clears a proposal once both parties have
// broadcast the revert transaction.
func (s *Store) DeleteCollaborativeRevert(ctx context.Context, channelID store.ChannelID) error {
	const q = `DELETE FROM collaborative_reverts WHERE channel_id = $1`
	_, err := s.pool.Exec(ctx, q, channelID[:])
	if err != nil {
		return coordinatorerrs.Storage("delete collaborative revert", err)
	}
	return nil
}
