package registry

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// OwnerSnapshot is one outstanding receipt balance. Amounts travel as decimal
// strings so the codec never loses precision.
type OwnerSnapshot struct {
	Owner    string `msgpack:"owner"`
	Receipts string `msgpack:"receipts"`
}

// Snapshot is the persistent slice of registry state: every owner with a
// non-zero receipt balance.
type Snapshot struct {
	Outstanding []OwnerSnapshot `msgpack:"outstanding"`
}

// Export captures outstanding receipts, sorted by owner for a stable
// encoding.
func (r *Accruing) Export() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{}
	for owner, held := range r.outstanding {
		if held.Sign() == 0 {
			continue
		}
		snap.Outstanding = append(snap.Outstanding, OwnerSnapshot{
			Owner:    owner.Hex(),
			Receipts: held.String(),
		})
	}
	sort.Slice(snap.Outstanding, func(i, j int) bool {
		return snap.Outstanding[i].Owner < snap.Outstanding[j].Owner
	})
	return snap
}

// Restore replaces outstanding balances with the snapshot's entries.
func (r *Accruing) Restore(snap Snapshot) error {
	outstanding := make(map[common.Address]*big.Int, len(snap.Outstanding))
	for _, entry := range snap.Outstanding {
		if !common.IsHexAddress(entry.Owner) {
			return fmt.Errorf("snapshot owner %q", entry.Owner)
		}
		held, ok := new(big.Int).SetString(entry.Receipts, 10)
		if !ok || held.Sign() < 0 {
			return fmt.Errorf("snapshot receipts %q for %s", entry.Receipts, entry.Owner)
		}
		outstanding[common.HexToAddress(entry.Owner)] = held
	}
	r.mu.Lock()
	r.outstanding = outstanding
	r.mu.Unlock()
	return nil
}
