package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
	"github.com/get10101/10101-sub001/internal/store"
)

// InsertDlcMessage records a processed message's hash for dedup. It
// returns store.ErrDlcMessageAlreadyProcessed, which callers treat as
// idempotent success, if the hash was already recorded.
func (s *Store) InsertDlcMessage(ctx context.Context, m store.DlcMessageRecord) error {
	const q = `
		INSERT INTO dlc_messages (hash, peer, direction, kind, timestamp)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, q, m.Hash[:], pubkeyHex(m.Peer), m.Direction, m.Kind, m.Timestamp)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDlcMessageAlreadyProcessed
		}
		return coordinatorerrs.Storage("insert dlc message", err)
	}
	return nil
}

// HasProcessedDlcMessage reports whether hash has already been recorded,
// per spec.md §4.4's at-most-once inbound dispatch requirement.
func (s *Store) HasProcessedDlcMessage(ctx context.Context, hash store.DlcMessageHash) (bool, error) {
	const q = `SELECT 1 FROM dlc_messages WHERE hash = $1`
	var one int
	err := s.pool.QueryRow(ctx, q, hash[:]).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, coordinatorerrs.Storage("check dlc message", err)
	}
	return true, nil
}

// SetLastOutboundDlcMessage upserts the most recently sent payload for a
// peer, replayed on reconnect per spec.md §3/§4.4.
func (s *Store) SetLastOutboundDlcMessage(ctx context.Context, m store.LastOutboundDlcMessage) error {
	const q = `
		INSERT INTO last_outbound_dlc_messages (peer, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (peer) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`
	_, err := s.pool.Exec(ctx, q, pubkeyHex(m.Peer), m.Payload)
	if err != nil {
		return coordinatorerrs.Storage("set last outbound dlc message", err)
	}
	return nil
}

// LastOutboundDlcMessage returns the most recently sent payload for a peer.
func (s *Store) LastOutboundDlcMessage(ctx context.Context, peerHex string) (store.LastOutboundDlcMessage, error) {
	const q = `SELECT peer, payload FROM last_outbound_dlc_messages WHERE peer = $1`
	var (
		traderHex string
		payload   []byte
	)
	err := s.pool.QueryRow(ctx, q, peerHex).Scan(&traderHex, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.LastOutboundDlcMessage{}, store.ErrNoLastOutboundMessage
	}
	if err != nil {
		return store.LastOutboundDlcMessage{}, coordinatorerrs.Storage("get last outbound dlc message", err)
	}

	peer, err := decodePubkeyHex(traderHex)
	if err != nil {
		return store.LastOutboundDlcMessage{}, err
	}
	return store.LastOutboundDlcMessage{Peer: peer, Payload: payload}, nil
}
