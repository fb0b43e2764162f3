package dlcmanager

import (
	"sync"

	"github.com/get10101/10101-sub001/internal/dlcmanager/coinselect"
)

// reservationSet is the in-memory UTXO reservation set spec.md §5
// describes: "guarded by a single mutex; acquired only during coin
// selection; released on protocol finalise/fail/timeout."
type reservationSet struct {
	mu    sync.Mutex
	byKey map[[32]byte][]coinselect.Utxo
}

func newReservationSet() *reservationSet {
	return &reservationSet{byKey: make(map[[32]byte][]coinselect.Utxo)}
}

func (r *reservationSet) reserve(key [32]byte, utxos []coinselect.Utxo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[key] = utxos
}

func (r *reservationSet) release(key [32]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, key)
}

// Reserved reports the coins currently pinned under key, if any.
func (r *reservationSet) Reserved(key [32]byte) ([]coinselect.Utxo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	utxos, ok := r.byKey[key]
	return utxos, ok
}
