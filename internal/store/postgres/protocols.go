package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
	"github.com/get10101/10101-sub001/internal/store"
)

// InsertProtocol persists a new protocol run. PreviousProtocolID chains a
// renew/resize/rollover onto the protocol it continues, per spec.md §3.
func (s *Store) InsertProtocol(ctx context.Context, p store.Protocol) error {
	const q = `
		INSERT INTO protocols
			(protocol_id, previous_protocol_id, trader_pubkey, channel_id,
			 kind, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		uuidText(p.ProtocolID), previousProtocolText(p.PreviousProtocolID),
		pubkeyHex(p.Trader), channelIDBytes(p.ChannelID), p.Kind, p.State,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return coordinatorerrs.Storage("insert protocol", err)
	}
	return nil
}

// UpdateProtocolState transitions a protocol run to Success or Failed.
func (s *Store) UpdateProtocolState(ctx context.Context, id store.ProtocolID, state store.ProtocolState) error {
	const q = `UPDATE protocols SET state = $2, updated_at = now() WHERE protocol_id = $1`
	tag, err := s.pool.Exec(ctx, q, uuidText(id), state)
	if err != nil {
		return coordinatorerrs.Storage("update protocol state", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrProtocolNotFound
	}
	return nil
}

// GetProtocol loads a single protocol run by id.
func (s *Store) GetProtocol(ctx context.Context, id store.ProtocolID) (store.Protocol, error) {
	const q = protocolSelect + ` WHERE protocol_id = $1`
	p, err := scanProtocolRow(s.pool.QueryRow(ctx, q, uuidText(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Protocol{}, store.ErrProtocolNotFound
	}
	if err != nil {
		return store.Protocol{}, coordinatorerrs.Storage("scan protocol", err)
	}
	return p, nil
}

// PendingProtocolsForChannel returns every protocol run still Pending
// against a channel, for restart recovery per spec.md §4's "pure step
// function" requirement.
func (s *Store) PendingProtocolsForChannel(ctx context.Context, channelID store.ChannelID) ([]store.Protocol, error) {
	const q = protocolSelect + ` WHERE channel_id = $1 AND state = 0 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, q, channelID[:])
	if err != nil {
		return nil, coordinatorerrs.Storage("list pending protocols", err)
	}
	defer rows.Close()

	var out []store.Protocol
	for rows.Next() {
		p, err := scanProtocolRow(rows)
		if err != nil {
			return nil, coordinatorerrs.Storage("scan protocol", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const protocolSelect = `
	SELECT protocol_id, previous_protocol_id, trader_pubkey, channel_id,
	       kind, state, created_at, updated_at
	FROM protocols`

func scanProtocolRow(row rowScanner) (store.Protocol, error) {
	var (
		p                store.Protocol
		idText           string
		previousIDText   *string
		traderHex        string
		channelIDBytes   []byte
	)
	err := row.Scan(&idText, &previousIDText, &traderHex, &channelIDBytes,
		&p.Kind, &p.State, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return store.Protocol{}, err
	}

	id, err := parseUUIDText(idText)
	if err != nil {
		return store.Protocol{}, err
	}
	p.ProtocolID = store.ProtocolID(id)

	if previousIDText != nil {
		prevID, err := parseUUIDText(*previousIDText)
		if err != nil {
			return store.Protocol{}, err
		}
		pid := store.ProtocolID(prevID)
		p.PreviousProtocolID = &pid
	}

	trader, err := decodePubkeyHex(traderHex)
	if err != nil {
		return store.Protocol{}, err
	}
	p.Trader = trader

	if len(channelIDBytes) == 32 {
		var cid store.ChannelID
		copy(cid[:], channelIDBytes)
		p.ChannelID = &cid
	}
	return p, nil
}

func previousProtocolText(id *store.ProtocolID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func channelIDBytes(id *store.ChannelID) []byte {
	if id == nil {
		return nil
	}
	return id[:]
}
