package strategy

import (
	"fmt"
	"math/big"

	"lsd-vault-node/internal/assets"
)

// ReserveSnapshot is one ledger entry in enumeration order. Amounts travel as
// decimal strings so the codec never loses precision.
type ReserveSnapshot struct {
	Asset   string `msgpack:"asset"`
	Reserve string `msgpack:"reserve"`
}

// Snapshot is the persistent slice of strategy state: the reserve ledger in
// its fixed enumeration order. Bindings and limits come from config, not the
// snapshot.
type Snapshot struct {
	Reserves []ReserveSnapshot `msgpack:"reserves"`
}

// Export captures the current ledger.
func (s *Strategy) Export() Snapshot {
	snap := Snapshot{}
	for _, asset := range s.ledger.Assets() {
		snap.Reserves = append(snap.Reserves, ReserveSnapshot{
			Asset:   asset.Hex(),
			Reserve: s.ledger.Reserve(asset).String(),
		})
	}
	return snap
}

// Restore replaces the ledger with the snapshot's entries, preserving their
// recorded order. Settlement and receipt slots are re-tracked first so a
// snapshot from an older layout cannot displace them.
func (s *Strategy) Restore(snap Snapshot) error {
	ledger := NewLedger(s.settlement, s.receipt)
	for _, entry := range snap.Reserves {
		asset, err := assets.Parse(entry.Asset)
		if err != nil {
			return fmt.Errorf("snapshot asset %q: %w", entry.Asset, err)
		}
		reserve, ok := new(big.Int).SetString(entry.Reserve, 10)
		if !ok || reserve.Sign() < 0 {
			return fmt.Errorf("snapshot reserve %q for %s", entry.Reserve, entry.Asset)
		}
		ledger.Track(asset)
		ledger.Credit(asset, reserve)
	}
	s.ledger = ledger
	return nil
}
