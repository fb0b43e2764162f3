package dlcmanager

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// encodeContract/decodeContract and their channel counterparts serialize
// the two state machines for the kv blob store, mirroring the
// Encode(io.Writer)/Decode(io.Reader) pair contractcourt.ContractResolver
// implementations use for exactly the same restart-recovery purpose
// (contractcourt/htlc_timeout_resolver.go). gob is used rather than a
// bespoke binary format since, unlike the wire protocol, this encoding
// never leaves the process.
func encodeContract(c *Contract) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("dlcmanager: encode contract: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeContract(blob []byte) (*Contract, error) {
	var c Contract
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&c); err != nil {
		return nil, fmt.Errorf("dlcmanager: decode contract: %w", err)
	}
	return &c, nil
}

func encodeChannel(sc *SignedChannel) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sc); err != nil {
		return nil, fmt.Errorf("dlcmanager: encode channel: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeChannel(blob []byte) (*SignedChannel, error) {
	var sc SignedChannel
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&sc); err != nil {
		return nil, fmt.Errorf("dlcmanager: decode channel: %w", err)
	}
	return &sc, nil
}
