package strategy

import (
	"fmt"
	"math/big"

	"lsd-vault-node/internal/assets"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the strategy's accounted per-asset balance: the ground truth for
// all proportional math, deliberately independent of any live token balance.
// Entries are never deleted; a reserve may reach zero but keeps its slot in
// the enumeration order.
type Ledger struct {
	holdings *assets.OrderedSet
	reserves map[common.Address]*big.Int
}

func NewLedger(holding ...common.Address) *Ledger {
	l := &Ledger{
		holdings: assets.NewOrderedSet(),
		reserves: make(map[common.Address]*big.Int),
	}
	for _, asset := range holding {
		l.Track(asset)
	}
	return l
}

// Track registers an asset in the enumeration order without changing its
// reserve.
func (l *Ledger) Track(asset common.Address) {
	if l.holdings.Add(asset) {
		l.reserves[asset] = big.NewInt(0)
	}
}

func (l *Ledger) Tracked(asset common.Address) bool {
	return l.holdings.Contains(asset)
}

// Credit adds to the asset's reserve, tracking the asset if needed.
func (l *Ledger) Credit(asset common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	l.Track(asset)
	l.reserves[asset] = new(big.Int).Add(l.reserves[asset], amount)
}

// Debit subtracts from the asset's reserve. Cumulative withdrawals must never
// exceed the accounted balance, so underflow is a hard error.
func (l *Ledger) Debit(asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	current, ok := l.reserves[asset]
	if !ok || current.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s reserve %s, debit %s", ErrInsufficientReserve, asset.Hex(), l.Reserve(asset), amount)
	}
	l.reserves[asset] = new(big.Int).Sub(current, amount)
	return nil
}

// Reserve returns a copy of the accounted balance (zero for untracked assets).
func (l *Ledger) Reserve(asset common.Address) *big.Int {
	current, ok := l.reserves[asset]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(current)
}

// Assets returns the tracked assets in their fixed enumeration order.
func (l *Ledger) Assets() []common.Address {
	return l.holdings.Items()
}

func (l *Ledger) Clone() *Ledger {
	clone := &Ledger{
		holdings: l.holdings.Clone(),
		reserves: make(map[common.Address]*big.Int, len(l.reserves)),
	}
	for asset, amount := range l.reserves {
		clone.reserves[asset] = new(big.Int).Set(amount)
	}
	return clone
}
