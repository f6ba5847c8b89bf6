package vault

import (
	"fmt"
	"math/big"
	"time"

	"lsd-vault-node/internal/assets"

	"github.com/ethereum/go-ethereum/common"
)

// PositionSnapshot is one holder's shares and lock expiry (unix seconds,
// zero when unlocked).
type PositionSnapshot struct {
	Holder      string `msgpack:"holder"`
	Shares      string `msgpack:"shares"`
	LockedUntil int64  `msgpack:"locked_until"`
}

// Snapshot is the persistent slice of vault state.
type Snapshot struct {
	TotalSupply string             `msgpack:"total_supply"`
	Positions   []PositionSnapshot `msgpack:"positions"`
}

func (v *Vault) Export() Snapshot {
	snap := Snapshot{TotalSupply: v.totalSupply.String()}
	for holder, bal := range v.shares {
		if bal.Sign() == 0 {
			continue
		}
		pos := PositionSnapshot{Holder: holder.Hex(), Shares: bal.String()}
		if lock, ok := v.locks[holder]; ok {
			pos.LockedUntil = lock.Unix()
		}
		snap.Positions = append(snap.Positions, pos)
	}
	return snap
}

// Restore replaces share balances and locks with the snapshot's. The restored
// positions must sum to the recorded total supply.
func (v *Vault) Restore(snap Snapshot) error {
	supply, ok := new(big.Int).SetString(snap.TotalSupply, 10)
	if !ok || supply.Sign() < 0 {
		return fmt.Errorf("snapshot total supply %q", snap.TotalSupply)
	}
	shares := make(map[common.Address]*big.Int, len(snap.Positions))
	locks := make(map[common.Address]time.Time, len(snap.Positions))
	sum := big.NewInt(0)
	for _, pos := range snap.Positions {
		holder, err := assets.Parse(pos.Holder)
		if err != nil {
			return fmt.Errorf("snapshot holder %q: %w", pos.Holder, err)
		}
		bal, ok := new(big.Int).SetString(pos.Shares, 10)
		if !ok || bal.Sign() < 0 {
			return fmt.Errorf("snapshot shares %q for %s", pos.Shares, pos.Holder)
		}
		shares[holder] = bal
		if pos.LockedUntil > 0 {
			locks[holder] = time.Unix(pos.LockedUntil, 0)
		}
		sum.Add(sum, bal)
	}
	if sum.Cmp(supply) != 0 {
		return fmt.Errorf("snapshot positions sum %s, total supply %s", sum, supply)
	}
	v.shares = shares
	v.locks = locks
	v.totalSupply = supply
	return nil
}
