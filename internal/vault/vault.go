package vault

import (
	"context"
	"math/big"
	"time"

	"lsd-vault-node/internal/guard"
	"lsd-vault-node/internal/strategy"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Strategy is the vault's view of its accounting engine. The concrete engine
// also satisfies strategy.MigrationTarget, which SwitchStrategy relies on.
type Strategy interface {
	Address() common.Address
	TotalAssets() (*big.Int, error)
	PreviewDeposit(asset common.Address, amount *big.Int) (*big.Int, error)
	Deposit(ctx context.Context, caller, asset common.Address, amount *big.Int, sellForSettlement bool) (*big.Int, error)
	Withdraw(ctx context.Context, caller common.Address, shares, totalSupply *big.Int, recipient common.Address) (*big.Int, *big.Int, error)
	MigrateFunds(ctx context.Context, caller common.Address, target strategy.MigrationTarget) error
	AcceptMigration(caller, prev common.Address) error
}

// Config fixes the vault's identity, governance, and lock-up policy.
type Config struct {
	Address   common.Address
	Owner     common.Address
	MinLockUp time.Duration
	// MinShares floors the shares minted per deposit. A positive floor is
	// the first-depositor mitigation: seeding the pool below it is refused.
	MinShares *big.Int
}

// Vault issues proportional shares against the strategy's total asset value
// and enforces a per-holder lock-up refreshed on every deposit. Share prices
// are always derived from live strategy valuation, never cached.
type Vault struct {
	guard guard.Guard
	log   *zap.Logger

	addr      common.Address
	owner     common.Address
	minLockUp time.Duration
	minShares *big.Int
	clock     func() time.Time

	strat       Strategy
	shares      map[common.Address]*big.Int
	totalSupply *big.Int
	locks       map[common.Address]time.Time
}

func New(cfg Config, strat Strategy, log *zap.Logger) (*Vault, error) {
	if cfg.Address == (common.Address{}) || cfg.Owner == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if strat == nil {
		return nil, ErrNoStrategySet
	}
	minShares := big.NewInt(0)
	if cfg.MinShares != nil {
		minShares = new(big.Int).Set(cfg.MinShares)
	}
	return &Vault{
		log:         log,
		addr:        cfg.Address,
		owner:       cfg.Owner,
		minLockUp:   cfg.MinLockUp,
		minShares:   minShares,
		clock:       time.Now,
		strat:       strat,
		shares:      make(map[common.Address]*big.Int),
		totalSupply: big.NewInt(0),
		locks:       make(map[common.Address]time.Time),
	}, nil
}

// SetClock overrides the time source. Test hook.
func (v *Vault) SetClock(clock func() time.Time) { v.clock = clock }

func (v *Vault) Address() common.Address { return v.addr }

func (v *Vault) TotalSupply() *big.Int { return new(big.Int).Set(v.totalSupply) }

func (v *Vault) BalanceOf(holder common.Address) *big.Int {
	bal, ok := v.shares[holder]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(bal)
}

// LockedUntil reports when the holder's shares unlock; the zero time means no
// active lock.
func (v *Vault) LockedUntil(holder common.Address) time.Time {
	return v.locks[holder]
}

func (v *Vault) TotalAssets() (*big.Int, error) {
	return v.strat.TotalAssets()
}

// SharePrice returns total assets per share at ray scale, or ray itself for
// an empty vault.
func (v *Vault) SharePrice(ray *big.Int) (*big.Int, error) {
	if v.totalSupply.Sign() == 0 {
		return new(big.Int).Set(ray), nil
	}
	total, err := v.strat.TotalAssets()
	if err != nil {
		return nil, err
	}
	price := new(big.Int).Mul(total, ray)
	return price.Quo(price, v.totalSupply), nil
}

// Deposit forwards the holder's assets into the strategy and mints shares
// against the total value held before this deposit. Minting floors, so the
// share price never decreases from rounding. The holder's lock-up is
// refreshed to a full period.
func (v *Vault) Deposit(ctx context.Context, holder, asset common.Address, amount *big.Int, sellForSettlement bool) (minted *big.Int, err error) {
	if holder == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if !v.guard.Enter() {
		return nil, ErrReentrantCall
	}
	defer v.guard.Exit()

	// Price against the pre-deposit total; the strategy call below mutates it.
	priorTotal, err := v.strat.TotalAssets()
	if err != nil {
		return nil, err
	}
	// Mintability is decided on a pure quote before any funds move, so a
	// share-floor refusal leaves the strategy untouched.
	value, err := v.strat.PreviewDeposit(asset, amount)
	if err != nil {
		return nil, err
	}
	if v.totalSupply.Sign() == 0 || priorTotal.Sign() == 0 {
		minted = new(big.Int).Set(value)
	} else {
		minted = new(big.Int).Mul(value, v.totalSupply)
		minted.Quo(minted, priorTotal)
	}
	if minted.Sign() == 0 || minted.Cmp(v.minShares) < 0 {
		return nil, ErrTooSmall
	}
	if _, err = v.strat.Deposit(ctx, v.addr, asset, amount, sellForSettlement); err != nil {
		return nil, err
	}

	v.shares[holder] = new(big.Int).Add(v.BalanceOf(holder), minted)
	v.totalSupply = new(big.Int).Add(v.totalSupply, minted)
	v.locks[holder] = v.clock().Add(v.minLockUp)

	if v.log != nil {
		v.log.Info("vault deposit",
			zap.String("holder", holder.Hex()),
			zap.String("asset", asset.Hex()),
			zap.String("value", value.String()),
			zap.String("minted", minted.String()),
			zap.Time("locked_until", v.locks[holder]),
		)
	}
	return minted, nil
}

// Withdraw burns the holder's shares after the strategy has delivered their
// proportional slice to the recipient. The strategy call is all-or-nothing,
// so a failed delivery leaves the shares intact.
func (v *Vault) Withdraw(ctx context.Context, holder common.Address, shares *big.Int, recipient common.Address) (settlementOut, nativeOut *big.Int, err error) {
	if holder == (common.Address{}) || recipient == (common.Address{}) {
		return nil, nil, ErrZeroAddress
	}
	if !v.guard.Enter() {
		return nil, nil, ErrReentrantCall
	}
	defer v.guard.Exit()
	if shares == nil || shares.Sign() <= 0 {
		return nil, nil, ErrInvalidShares
	}
	held := v.BalanceOf(holder)
	if held.Sign() == 0 {
		return nil, nil, ErrUnknownHolder
	}
	if shares.Cmp(held) > 0 {
		return nil, nil, ErrInvalidShares
	}
	if now := v.clock(); now.Before(v.locks[holder]) {
		return nil, nil, ErrComeBackLater
	}

	// The strategy prorates against the pre-burn supply.
	settlementOut, nativeOut, err = v.strat.Withdraw(ctx, v.addr, shares, v.totalSupply, recipient)
	if err != nil {
		return nil, nil, err
	}
	v.shares[holder] = new(big.Int).Sub(held, shares)
	v.totalSupply = new(big.Int).Sub(v.totalSupply, shares)

	if v.log != nil {
		v.log.Info("vault withdraw",
			zap.String("holder", holder.Hex()),
			zap.String("shares", shares.String()),
			zap.String("settlement_out", settlementOut.String()),
			zap.String("native_out", nativeOut.String()),
		)
	}
	return settlementOut, nativeOut, nil
}

// SwitchStrategy retires the current strategy into the successor and swaps
// the pointer only once every reserve has moved. Owner-only. Share balances
// are untouched: holders keep their proportional claim on the migrated pool.
func (v *Vault) SwitchStrategy(ctx context.Context, caller common.Address, next Strategy) error {
	if caller != v.owner {
		return ErrUnauthorized
	}
	if !v.guard.Enter() {
		return ErrReentrantCall
	}
	defer v.guard.Exit()
	if next == nil || next.Address() == (common.Address{}) {
		return ErrZeroAddress
	}
	if next.Address() == v.strat.Address() {
		return ErrSameStrategy
	}
	target, ok := next.(strategy.MigrationTarget)
	if !ok {
		return ErrNoStrategySet
	}
	prev := v.strat.Address()
	if err := v.strat.MigrateFunds(ctx, v.addr, target); err != nil {
		return err
	}
	if err := next.AcceptMigration(v.addr, prev); err != nil {
		return err
	}
	v.strat = next
	if v.log != nil {
		v.log.Info("strategy switched",
			zap.String("previous", prev.Hex()),
			zap.String("next", next.Address().Hex()),
		)
	}
	return nil
}
