package vault

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"lsd-vault-node/internal/assets"
	"lsd-vault-node/internal/rates"
	"lsd-vault-node/internal/registry"
	"lsd-vault-node/internal/strategy"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	vaultIdentity  = common.HexToAddress("0xa4")
	ownerAddr      = common.HexToAddress("0xa2")
	managerAddr    = common.HexToAddress("0xa3")
	stratAddrA     = common.HexToAddress("0xa1")
	stratAddrB     = common.HexToAddress("0xa9")
	settlementAddr = common.HexToAddress("0xb1")
	receiptAddr    = common.HexToAddress("0xb2")
	holderA        = common.HexToAddress("0xd1")
	holderB        = common.HexToAddress("0xd2")
)

type bankSend struct {
	token  common.Address
	to     common.Address
	amount *big.Int
}

type testBank struct {
	tokenSends  []bankSend
	nativeSends []bankSend
	failNative  bool
}

func (b *testBank) SendToken(ctx context.Context, token, to common.Address, amount *big.Int) error {
	b.tokenSends = append(b.tokenSends, bankSend{token, to, new(big.Int).Set(amount)})
	return nil
}

func (b *testBank) SendNative(ctx context.Context, to common.Address, amount *big.Int) error {
	if b.failNative {
		return errors.New("recipient refused transfer")
	}
	b.nativeSends = append(b.nativeSends, bankSend{assets.Native, to, new(big.Int).Set(amount)})
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type vaultFixture struct {
	vault  *Vault
	strat  *strategy.Strategy
	oracle *rates.Oracle
	reg    *registry.Accruing
	bank   *testBank
	clock  *fakeClock
}

func newStrategy(t *testing.T, addr common.Address, oracle *rates.Oracle, reg registry.Registry, bank strategy.Bank) *strategy.Strategy {
	t.Helper()
	strat, err := strategy.New(strategy.Config{
		Address:    addr,
		Owner:      ownerAddr,
		Manager:    managerAddr,
		Vault:      vaultIdentity,
		Settlement: settlementAddr,
		Receipt:    receiptAddr,
		DustFloor:  big.NewInt(10),
	}, oracle, reg, bank, zap.NewNop())
	if err != nil {
		t.Fatalf("new strategy: %v", err)
	}
	for _, asset := range []common.Address{assets.Native, settlementAddr} {
		if err := strat.AddUnderlying(ownerAddr, asset, strategy.UnderlyingConfig{MinDeposit: big.NewInt(1)}); err != nil {
			t.Fatalf("add underlying: %v", err)
		}
	}
	return strat
}

func newVaultFixture(t *testing.T) *vaultFixture {
	t.Helper()
	log := zap.NewNop()
	oracle := rates.NewOracle(log)
	oracle.SetRate(assets.Native, rates.Ray)
	oracle.SetRate(settlementAddr, rates.Ray)
	oracle.SetRate(receiptAddr, rates.Ray)
	reg := registry.NewAccruing(oracle, receiptAddr, log)
	bank := &testBank{}
	strat := newStrategy(t, stratAddrA, oracle, reg, bank)
	v, err := New(Config{
		Address:   vaultIdentity,
		Owner:     ownerAddr,
		MinLockUp: 24 * time.Hour,
		MinShares: big.NewInt(100),
	}, strat, log)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	v.SetClock(clock.Now)
	return &vaultFixture{vault: v, strat: strat, oracle: oracle, reg: reg, bank: bank, clock: clock}
}

func TestDepositMintsProportionalShares(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	minted, err := f.vault.Deposit(ctx, holderA, assets.Native, big.NewInt(1000), false)
	if err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	// Empty vault: shares equal contributed value.
	if minted.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("minted = %s, want 1000", minted)
	}

	// Receipt rate appreciates 50%: pool is now worth more per share, so the
	// same value buys fewer shares.
	f.vault.Deposit(ctx, holderA, settlementAddr, big.NewInt(1000), false)
	appreciated := new(big.Int).Mul(rates.Ray, big.NewInt(3))
	appreciated.Quo(appreciated, big.NewInt(2))
	f.oracle.SetRate(receiptAddr, appreciated)

	// Pool: 1000 native + 1000 receipts at 1.5 = 2500 value, 2000 shares.
	minted, err = f.vault.Deposit(ctx, holderB, assets.Native, big.NewInt(1000), false)
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	// floor(1000 * 2000 / 2500) = 800.
	if minted.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("minted = %s, want 800", minted)
	}
	if got := f.vault.TotalSupply(); got.Cmp(big.NewInt(2800)) != 0 {
		t.Fatalf("supply = %s, want 2800", got)
	}
}

func TestDepositBelowShareFloor(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()
	if _, err := f.vault.Deposit(ctx, holderA, assets.Native, big.NewInt(99), false); !errors.Is(err, ErrTooSmall) {
		t.Fatalf("below floor: %v, want ErrTooSmall", err)
	}
	// A refused deposit leaves the pool untouched.
	total, err := f.vault.TotalAssets()
	if err != nil {
		t.Fatalf("total assets: %v", err)
	}
	if total.Sign() != 0 {
		t.Fatalf("total = %s, want 0", total)
	}
	// Exactly at the floor succeeds.
	if _, err := f.vault.Deposit(ctx, holderA, assets.Native, big.NewInt(100), false); err != nil {
		t.Fatalf("at floor: %v", err)
	}

	// A refusal against a seeded pool does not absorb the funds either:
	// the strategy never sees a deposit the vault will not mint for.
	if _, err := f.vault.Deposit(ctx, holderB, assets.Native, big.NewInt(50), false); !errors.Is(err, ErrTooSmall) {
		t.Fatalf("seeded below floor: %v, want ErrTooSmall", err)
	}
	if got := f.strat.Reserves(assets.Native); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("reserve after refusal = %s, want 100", got)
	}
	if got := f.vault.BalanceOf(holderB); got.Sign() != 0 {
		t.Fatalf("holderB shares = %s, want 0", got)
	}
}

func TestWithdrawLockUp(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()
	f.vault.Deposit(ctx, holderA, assets.Native, big.NewInt(1000), false)

	if _, _, err := f.vault.Withdraw(ctx, holderA, big.NewInt(500), holderA); !errors.Is(err, ErrComeBackLater) {
		t.Fatalf("locked withdraw: %v, want ErrComeBackLater", err)
	}
	// A fresh deposit refreshes the lock for the whole position.
	f.clock.Advance(23 * time.Hour)
	f.vault.Deposit(ctx, holderA, assets.Native, big.NewInt(1000), false)
	f.clock.Advance(2 * time.Hour)
	if _, _, err := f.vault.Withdraw(ctx, holderA, big.NewInt(500), holderA); !errors.Is(err, ErrComeBackLater) {
		t.Fatalf("refreshed lock: %v, want ErrComeBackLater", err)
	}
	// Exactly at expiry is permitted.
	f.clock.Advance(22 * time.Hour)
	if _, nativeOut, err := f.vault.Withdraw(ctx, holderA, big.NewInt(500), holderA); err != nil {
		t.Fatalf("unlocked withdraw: %v", err)
	} else if nativeOut.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("nativeOut = %s, want 500", nativeOut)
	}
}

func TestWithdrawValidation(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()
	f.vault.Deposit(ctx, holderA, assets.Native, big.NewInt(1000), false)
	f.clock.Advance(25 * time.Hour)

	if _, _, err := f.vault.Withdraw(ctx, holderA, big.NewInt(500), common.Address{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("zero recipient: %v, want ErrZeroAddress", err)
	}
	if _, _, err := f.vault.Withdraw(ctx, holderB, big.NewInt(1), holderB); !errors.Is(err, ErrUnknownHolder) {
		t.Fatalf("no position: %v, want ErrUnknownHolder", err)
	}
	if _, _, err := f.vault.Withdraw(ctx, holderA, big.NewInt(1001), holderA); !errors.Is(err, ErrInvalidShares) {
		t.Fatalf("over balance: %v, want ErrInvalidShares", err)
	}
}

func TestFailedNativeLegKeepsShares(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()
	f.vault.Deposit(ctx, holderA, assets.Native, big.NewInt(1000), false)
	f.clock.Advance(25 * time.Hour)

	f.bank.failNative = true
	if _, _, err := f.vault.Withdraw(ctx, holderA, big.NewInt(500), holderA); !errors.Is(err, strategy.ErrFailedToSendNative) {
		t.Fatalf("refused send: %v, want ErrFailedToSendNative", err)
	}
	if got := f.vault.BalanceOf(holderA); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("shares after failed withdraw = %s, want 1000", got)
	}

	// Once the recipient can take native coin again the identical call goes
	// through and burns as usual.
	f.bank.failNative = false
	if _, _, err := f.vault.Withdraw(ctx, holderA, big.NewInt(500), holderA); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := f.vault.BalanceOf(holderA); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("shares after retry = %s, want 500", got)
	}
}

// Two holders deposit 0.02 unit each; a donation sent straight to the
// strategy address never touches the ledger, so it neither moves totalAssets
// nor dilutes the second depositor.
func TestTwoDepositorFairness(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	small := new(big.Int).Quo(unit, big.NewInt(50)) // 0.02 unit

	if _, err := f.vault.Deposit(ctx, holderA, assets.Native, small, false); err != nil {
		t.Fatalf("deposit A: %v", err)
	}
	total, err := f.vault.TotalAssets()
	if err != nil {
		t.Fatalf("total assets: %v", err)
	}
	if total.Cmp(small) != 0 {
		t.Fatalf("total = %s, want %s", total, small)
	}

	// Attacker donation: a raw transfer that bypasses Deposit. Accounted
	// reserves are the ground truth, so valuation is unchanged.
	f.bank.tokenSends = append(f.bank.tokenSends, bankSend{settlementAddr, stratAddrA, new(big.Int).Mul(unit, big.NewInt(100))})
	afterDonation, err := f.vault.TotalAssets()
	if err != nil {
		t.Fatalf("total assets: %v", err)
	}
	if afterDonation.Cmp(total) != 0 {
		t.Fatalf("donation moved total: %s -> %s", total, afterDonation)
	}

	mintedB, err := f.vault.Deposit(ctx, holderB, assets.Native, small, false)
	if err != nil {
		t.Fatalf("deposit B: %v", err)
	}
	f.clock.Advance(25 * time.Hour)
	_, nativeOut, err := f.vault.Withdraw(ctx, holderB, mintedB, holderB)
	if err != nil {
		t.Fatalf("withdraw B: %v", err)
	}
	// B gets their 0.02 back to within rounding dust.
	diff := new(big.Int).Sub(small, nativeOut)
	if diff.Sign() < 0 || diff.Cmp(big.NewInt(2)) > 0 {
		t.Fatalf("B received %s for %s in", nativeOut, small)
	}
}

func TestSwitchStrategy(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()
	f.vault.Deposit(ctx, holderA, assets.Native, big.NewInt(1000), false)
	f.vault.Deposit(ctx, holderA, settlementAddr, big.NewInt(500), false)

	next := newStrategy(t, stratAddrB, f.oracle, f.reg, f.bank)

	if err := f.vault.SwitchStrategy(ctx, holderA, next); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner switch: %v, want ErrUnauthorized", err)
	}
	if err := f.vault.SwitchStrategy(ctx, ownerAddr, next); err != nil {
		t.Fatalf("switch: %v", err)
	}

	// Old strategy drained, successor carries the full reserves.
	for _, asset := range f.strat.HoldingAssets() {
		if got := f.strat.Reserves(asset); got.Sign() != 0 {
			t.Fatalf("old reserve %s = %s, want 0", asset.Hex(), got)
		}
	}
	if got := next.Reserves(assets.Native); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("migrated native = %s, want 1000", got)
	}
	if got := next.Reserves(receiptAddr); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("migrated receipts = %s, want 500", got)
	}
	// Registry ownership follows the reserves: the successor can redeem, the
	// retiring strategy cannot.
	if err := f.reg.CanWithdraw(ctx, stratAddrB, big.NewInt(500)); err != nil {
		t.Fatalf("successor receipt eligibility: %v", err)
	}
	if err := f.reg.CanWithdraw(ctx, stratAddrA, big.NewInt(1)); !errors.Is(err, registry.ErrNotEligible) {
		t.Fatalf("retired strategy eligibility: %v, want ErrNotEligible", err)
	}
	// Shares are untouched by migration.
	if got := f.vault.BalanceOf(holderA); got.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("shares = %s, want 1500", got)
	}
}

func TestVaultSnapshotRoundTrip(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()
	f.vault.Deposit(ctx, holderA, assets.Native, big.NewInt(1000), false)
	f.vault.Deposit(ctx, holderB, assets.Native, big.NewInt(500), false)

	snap := f.vault.Export()
	restored := newVaultFixture(t)
	if err := restored.vault.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := restored.vault.TotalSupply(); got.Cmp(f.vault.TotalSupply()) != 0 {
		t.Fatalf("supply = %s, want %s", got, f.vault.TotalSupply())
	}
	for _, holder := range []common.Address{holderA, holderB} {
		if restored.vault.BalanceOf(holder).Cmp(f.vault.BalanceOf(holder)) != 0 {
			t.Fatalf("balance %s diverged", holder.Hex())
		}
		if !restored.vault.LockedUntil(holder).Equal(f.vault.LockedUntil(holder).Truncate(time.Second)) {
			t.Fatalf("lock %s diverged", holder.Hex())
		}
	}

	if err := restored.vault.Restore(Snapshot{TotalSupply: "100"}); err == nil {
		t.Fatal("restore with mismatched supply should fail")
	}
}
