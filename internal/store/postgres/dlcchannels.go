package postgres

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/jackc/pgx/v4"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
	"github.com/get10101/10101-sub001/internal/store"
)

// InsertDlcChannel persists a newly proposed channel.
func (s *Store) InsertDlcChannel(ctx context.Context, c store.DlcChannel) error {
	const q = `
		INSERT INTO dlc_channels
			(channel_id, trader_pubkey, state, coordinator_reserve_sats,
			 trader_reserve_sats, coordinator_funding_sats,
			 trader_funding_sats, funding_txid, close_txid, settle_txid,
			 buffer_txid, claim_txid, punish_txid, counter_funding_pubkey,
			 funding_redeem_script, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	_, err := s.pool.Exec(ctx, q,
		c.ChannelID[:], pubkeyHex(c.Trader), c.State,
		int64(c.CoordinatorReserveSats), int64(c.TraderReserveSats),
		int64(c.CoordinatorFundingSats), int64(c.TraderFundingSats),
		c.FundingTxid, c.CloseTxid, c.SettleTxid, c.BufferTxid, c.ClaimTxid,
		c.PunishTxid, optionalPubkeyBytes(c.CounterFundingPubkey),
		c.FundingRedeemScript, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return coordinatorerrs.Storage("insert dlc channel", err)
	}
	return nil
}

// UpdateDlcChannelState transitions a channel to a new state.
func (s *Store) UpdateDlcChannelState(ctx context.Context, id store.ChannelID, state store.DlcChannelState) error {
	const q = `UPDATE dlc_channels SET state = $2, updated_at = now() WHERE channel_id = $1`
	tag, err := s.pool.Exec(ctx, q, id[:], state)
	if err != nil {
		return coordinatorerrs.Storage("update dlc channel state", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDlcChannelNotFound
	}
	return nil
}

// SetDlcChannelCloseTxid records the txid that eventually confirms to close
// a channel (a cooperative close, unilateral close, buffer, claim or
// punish transaction, per which field is non-nil).
func (s *Store) SetDlcChannelCloseTxid(ctx context.Context, id store.ChannelID, field string, txid string) error {
	column, ok := dlcChannelTxidColumns[field]
	if !ok {
		return coordinatorerrs.Validation("set dlc channel txid", errUnknownTxidField)
	}
	q := `UPDATE dlc_channels SET ` + column + ` = $2, updated_at = now() WHERE channel_id = $1`
	tag, err := s.pool.Exec(ctx, q, id[:], txid)
	if err != nil {
		return coordinatorerrs.Storage("set dlc channel txid", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDlcChannelNotFound
	}
	return nil
}

var errUnknownTxidField = errors.New("unknown dlc channel txid field")

var dlcChannelTxidColumns = map[string]string{
	"funding": "funding_txid",
	"close":   "close_txid",
	"settle":  "settle_txid",
	"buffer":  "buffer_txid",
	"claim":   "claim_txid",
	"punish":  "punish_txid",
}

// GetDlcChannel loads a single channel by id.
func (s *Store) GetDlcChannel(ctx context.Context, id store.ChannelID) (store.DlcChannel, error) {
	const q = dlcChannelSelect + ` WHERE channel_id = $1`
	c, err := scanDlcChannelRow(s.pool.QueryRow(ctx, q, id[:]))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.DlcChannel{}, store.ErrDlcChannelNotFound
	}
	if err != nil {
		return store.DlcChannel{}, coordinatorerrs.Storage("scan dlc channel", err)
	}
	return c, nil
}

// OpenDlcChannelForTrader returns the trader's single Open channel, if any.
func (s *Store) OpenDlcChannelForTrader(ctx context.Context, trader *btcec.PublicKey) (store.DlcChannel, error) {
	const q = dlcChannelSelect + ` WHERE trader_pubkey = $1 AND state = 1`
	c, err := scanDlcChannelRow(s.pool.QueryRow(ctx, q, pubkeyHex(trader)))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.DlcChannel{}, store.ErrDlcChannelNotFound
	}
	if err != nil {
		return store.DlcChannel{}, coordinatorerrs.Storage("scan dlc channel", err)
	}
	return c, nil
}

const dlcChannelSelect = `
	SELECT channel_id, trader_pubkey, state, coordinator_reserve_sats,
	       trader_reserve_sats, coordinator_funding_sats,
	       trader_funding_sats, funding_txid, close_txid, settle_txid,
	       buffer_txid, claim_txid, punish_txid, counter_funding_pubkey,
	       funding_redeem_script, created_at, updated_at
	FROM dlc_channels`

func scanDlcChannelRow(row rowScanner) (store.DlcChannel, error) {
	var (
		c                     store.DlcChannel
		channelIDBytes        []byte
		traderHex             string
		coordinatorReserve    int64
		traderReserve         int64
		coordinatorFunding    int64
		traderFunding         int64
		counterFundingPubkey  []byte
	)
	err := row.Scan(&channelIDBytes, &traderHex, &c.State, &coordinatorReserve,
		&traderReserve, &coordinatorFunding, &traderFunding, &c.FundingTxid,
		&c.CloseTxid, &c.SettleTxid, &c.BufferTxid, &c.ClaimTxid,
		&c.PunishTxid, &counterFundingPubkey, &c.FundingRedeemScript,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return store.DlcChannel{}, err
	}

	copy(c.ChannelID[:], channelIDBytes)
	c.CoordinatorReserveSats = btcAmount(coordinatorReserve)
	c.TraderReserveSats = btcAmount(traderReserve)
	c.CoordinatorFundingSats = btcAmount(coordinatorFunding)
	c.TraderFundingSats = btcAmount(traderFunding)

	trader, err := decodePubkeyHex(traderHex)
	if err != nil {
		return store.DlcChannel{}, err
	}
	c.Trader = trader

	if len(counterFundingPubkey) > 0 {
		pub, err := btcec.ParsePubKey(counterFundingPubkey)
		if err != nil {
			return store.DlcChannel{}, err
		}
		c.CounterFundingPubkey = pub
	}
	return c, nil
}

func optionalPubkeyBytes(pub *btcec.PublicKey) []byte {
	if pub == nil {
		return nil
	}
	return pub.SerializeCompressed()
}
