package vault

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"lsd-vault-node/internal/guard"
	"lsd-vault-node/internal/strategy"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Backstop is the single-asset sibling vault. It takes deposits of exactly
// one asset under its own time lock and exposes an open native-for-asset swap
// at a fixed 1:1 nominal rate. The swap is the settlement liquidity backstop:
// the primary vault's withdrawals can realize native coin here without an
// external venue for the settlement leg.
type Backstop struct {
	guard guard.Guard
	log   *zap.Logger

	addr      common.Address
	asset     common.Address
	bank      strategy.Bank
	minLockUp time.Duration
	clock     func() time.Time

	assetReserve  *big.Int
	nativeReserve *big.Int
	balances      map[common.Address]*big.Int
	locks         map[common.Address]time.Time
}

func NewBackstop(addr, asset common.Address, bank strategy.Bank, minLockUp time.Duration, log *zap.Logger) (*Backstop, error) {
	if addr == (common.Address{}) || asset == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	return &Backstop{
		log:           log,
		addr:          addr,
		asset:         asset,
		bank:          bank,
		minLockUp:     minLockUp,
		clock:         time.Now,
		assetReserve:  big.NewInt(0),
		nativeReserve: big.NewInt(0),
		balances:      make(map[common.Address]*big.Int),
		locks:         make(map[common.Address]time.Time),
	}, nil
}

// SetClock overrides the time source. Test hook.
func (b *Backstop) SetClock(clock func() time.Time) { b.clock = clock }

func (b *Backstop) Address() common.Address { return b.addr }
func (b *Backstop) Asset() common.Address   { return b.asset }

func (b *Backstop) AssetReserve() *big.Int  { return new(big.Int).Set(b.assetReserve) }
func (b *Backstop) NativeReserve() *big.Int { return new(big.Int).Set(b.nativeReserve) }

func (b *Backstop) BalanceOf(holder common.Address) *big.Int {
	bal, ok := b.balances[holder]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(bal)
}

func (b *Backstop) LockedUntil(holder common.Address) time.Time {
	return b.locks[holder]
}

// Deposit credits the holder with the deposited quantity of the held asset
// and refreshes their lock-up.
func (b *Backstop) Deposit(ctx context.Context, holder common.Address, amount *big.Int) error {
	if holder == (common.Address{}) {
		return ErrZeroAddress
	}
	if !b.guard.Enter() {
		return ErrReentrantCall
	}
	defer b.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.assetReserve = new(big.Int).Add(b.assetReserve, amount)
	b.balances[holder] = new(big.Int).Add(b.BalanceOf(holder), amount)
	b.locks[holder] = b.clock().Add(b.minLockUp)
	if b.log != nil {
		b.log.Info("backstop deposit",
			zap.String("holder", holder.Hex()),
			zap.String("amount", amount.String()),
		)
	}
	return nil
}

// Withdraw pays the holder's claim after their lock expires. Claims are paid
// in the held asset first; once swaps have drained it, the remainder is paid
// in native coin at the same 1:1 nominal rate.
func (b *Backstop) Withdraw(ctx context.Context, holder common.Address, amount *big.Int, recipient common.Address) (err error) {
	if holder == (common.Address{}) || recipient == (common.Address{}) {
		return ErrZeroAddress
	}
	if !b.guard.Enter() {
		return ErrReentrantCall
	}
	defer b.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	held := b.BalanceOf(holder)
	if amount.Cmp(held) > 0 {
		return ErrInvalidShares
	}
	if now := b.clock(); now.Before(b.locks[holder]) {
		return ErrComeBackLater
	}

	assetLeg := new(big.Int).Set(amount)
	if assetLeg.Cmp(b.assetReserve) > 0 {
		assetLeg.Set(b.assetReserve)
	}
	nativeLeg := new(big.Int).Sub(amount, assetLeg)
	if nativeLeg.Cmp(b.nativeReserve) > 0 {
		return ErrInsufficientAsset
	}

	assetReserve := new(big.Int).Sub(b.assetReserve, assetLeg)
	nativeReserve := new(big.Int).Sub(b.nativeReserve, nativeLeg)
	if assetLeg.Sign() > 0 {
		if err := b.bank.SendToken(ctx, b.asset, recipient, assetLeg); err != nil {
			return fmt.Errorf("send asset: %w", err)
		}
	}
	if nativeLeg.Sign() > 0 {
		if err := b.bank.SendNative(ctx, recipient, nativeLeg); err != nil {
			return fmt.Errorf("%w: %v", strategy.ErrFailedToSendNative, err)
		}
	}
	b.assetReserve = assetReserve
	b.nativeReserve = nativeReserve
	b.balances[holder] = new(big.Int).Sub(held, amount)
	if b.log != nil {
		b.log.Info("backstop withdraw",
			zap.String("holder", holder.Hex()),
			zap.String("asset_leg", assetLeg.String()),
			zap.String("native_leg", nativeLeg.String()),
		)
	}
	return nil
}

// SwapNativeForAsset is the open backstop entry: anyone may trade native coin
// for the held asset at a fixed 1:1 nominal rate, no slippage curve. Native
// coin is credited to the reserve and the held asset delivered out.
func (b *Backstop) SwapNativeForAsset(ctx context.Context, amount *big.Int, recipient common.Address) error {
	if recipient == (common.Address{}) {
		return ErrZeroAddress
	}
	if !b.guard.Enter() {
		return ErrReentrantCall
	}
	defer b.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(b.assetReserve) > 0 {
		return ErrInsufficientAsset
	}
	assetReserve := new(big.Int).Sub(b.assetReserve, amount)
	if err := b.bank.SendToken(ctx, b.asset, recipient, amount); err != nil {
		return fmt.Errorf("send asset: %w", err)
	}
	b.assetReserve = assetReserve
	b.nativeReserve = new(big.Int).Add(b.nativeReserve, amount)
	if b.log != nil {
		b.log.Info("backstop swap",
			zap.String("recipient", recipient.Hex()),
			zap.String("amount", amount.String()),
		)
	}
	return nil
}
