package strategy

import (
	"context"
	"fmt"
	"math/big"

	"lsd-vault-node/internal/assets"
	"lsd-vault-node/internal/guard"
	"lsd-vault-node/internal/rates"
	"lsd-vault-node/internal/registry"
	"lsd-vault-node/internal/swap"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type route struct {
	in  common.Address
	out common.Address
}

// UnderlyingConfig gates acceptance of a depositable asset independently of
// whether a reserve entry already exists. A nil or zero ceiling means no
// ceiling.
type UnderlyingConfig struct {
	MinDeposit     *big.Int
	DepositCeiling *big.Int
}

// Config carries the identities and bindings fixed at construction.
type Config struct {
	Address    common.Address
	Owner      common.Address
	Manager    common.Address
	Vault      common.Address
	Settlement common.Address
	Receipt    common.Address
	DustFloor  *big.Int
}

// Strategy owns the reserve ledger and swap bindings for the vault. All
// mutating entry points are atomic: any failure restores the ledger to its
// state at entry. Calls are serialized by the operation submitter; the guard
// rejects re-entry from external capabilities.
type Strategy struct {
	guard guard.Guard
	log   *zap.Logger

	valuator rates.Valuator
	registry registry.Registry
	bank     Bank

	addr       common.Address
	owner      common.Address
	manager    common.Address
	vault      common.Address
	settlement common.Address
	receipt    common.Address
	dustFloor  *big.Int

	ledger      *Ledger
	underlyings map[common.Address]UnderlyingConfig
	wrappers    map[common.Address]Wrapper
	swappers    map[route]map[string]swap.Swapper
	defaults    map[route]string
}

func New(cfg Config, valuator rates.Valuator, reg registry.Registry, bank Bank, log *zap.Logger) (*Strategy, error) {
	if cfg.Address == (common.Address{}) || cfg.Owner == (common.Address{}) || cfg.Vault == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if cfg.Settlement == (common.Address{}) || cfg.Receipt == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	dust := big.NewInt(0)
	if cfg.DustFloor != nil {
		dust = new(big.Int).Set(cfg.DustFloor)
	}
	// Enumeration order is load-bearing: settlement first, then the registry
	// receipt, then underlyings in registration order.
	return &Strategy{
		log:         log,
		valuator:    valuator,
		registry:    reg,
		bank:        bank,
		addr:        cfg.Address,
		owner:       cfg.Owner,
		manager:     cfg.Manager,
		vault:       cfg.Vault,
		settlement:  cfg.Settlement,
		receipt:     cfg.Receipt,
		dustFloor:   dust,
		ledger:      NewLedger(cfg.Settlement, cfg.Receipt),
		underlyings: make(map[common.Address]UnderlyingConfig),
		wrappers:    make(map[common.Address]Wrapper),
		swappers:    make(map[route]map[string]swap.Swapper),
		defaults:    make(map[route]string),
	}, nil
}

func (s *Strategy) Address() common.Address { return s.addr }

// Reserves returns the accounted balance for one asset.
func (s *Strategy) Reserves(asset common.Address) *big.Int {
	return s.ledger.Reserve(asset)
}

// HoldingAssets returns every tracked asset in enumeration order.
func (s *Strategy) HoldingAssets() []common.Address {
	return s.ledger.Assets()
}

// TotalAssets values every holding at live conversion rates. Nothing is
// cached: rates accrue yield, so the sum is recomputed on every call.
func (s *Strategy) TotalAssets() (*big.Int, error) {
	total := big.NewInt(0)
	for _, asset := range s.ledger.Assets() {
		reserve := s.ledger.Reserve(asset)
		if reserve.Sign() == 0 {
			continue
		}
		value, err := s.valuator.Value(asset, reserve)
		if err != nil {
			return nil, fmt.Errorf("value %s: %w", asset.Hex(), err)
		}
		total.Add(total, value)
	}
	return total, nil
}

// PreviewDeposit prices a prospective deposit without touching any state:
// the settlement-equivalent value the deposit would contribute, after any
// wrapper conversion. Callers use it to decide acceptance before handing
// funds over.
func (s *Strategy) PreviewDeposit(asset common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrTooSmall
	}
	if wrapper, ok := s.wrappers[asset]; ok {
		converted, err := wrapper.Preview(amount)
		if err != nil {
			return nil, fmt.Errorf("preview wrap %s: %w", asset.Hex(), err)
		}
		asset = wrapper.Canonical()
		amount = converted
	}
	if _, accepted := s.underlyings[asset]; !accepted {
		return nil, ErrUnknownAsset
	}
	return s.valuator.Value(asset, amount)
}

// Deposit credits the converted amount to the ledger, validates acceptance,
// and routes settlement-bound flows into the registry. It returns the
// settlement-equivalent value contributed, measured before any internal swap.
// Vault-only.
func (s *Strategy) Deposit(ctx context.Context, caller, asset common.Address, amount *big.Int, sellForSettlement bool) (value *big.Int, err error) {
	if caller != s.vault {
		return nil, ErrUnauthorized
	}
	if !s.guard.Enter() {
		return nil, ErrReentrantCall
	}
	defer s.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrTooSmall
	}
	checkpoint := s.ledger.Clone()
	defer func() {
		if err != nil {
			s.ledger = checkpoint
		}
	}()

	// Non-canonical wrapped forms are converted to canonical form first.
	if wrapper, ok := s.wrappers[asset]; ok {
		converted, werr := wrapper.Wrap(ctx, amount)
		if werr != nil {
			return nil, fmt.Errorf("wrap %s: %w", asset.Hex(), werr)
		}
		asset = wrapper.Canonical()
		amount = converted
	}

	// Credit before validating; a failing deposit rolls everything back.
	s.ledger.Credit(asset, amount)

	cfg, accepted := s.underlyings[asset]
	if !accepted {
		return nil, ErrUnknownAsset
	}
	if cfg.MinDeposit != nil && amount.Cmp(cfg.MinDeposit) < 0 {
		return nil, ErrTooSmall
	}
	if cfg.DepositCeiling != nil && cfg.DepositCeiling.Sign() > 0 {
		if s.ledger.Reserve(asset).Cmp(cfg.DepositCeiling) > 0 {
			return nil, ErrExceedsDepositCeiling
		}
	}

	value, err = s.valuator.Value(asset, amount)
	if err != nil {
		return nil, fmt.Errorf("value %s: %w", asset.Hex(), err)
	}

	switch {
	case asset == s.settlement:
		if err = s.forwardToRegistry(ctx, amount); err != nil {
			return nil, err
		}
	case sellForSettlement:
		out, serr := s.swapTokenForToken(ctx, asset, amount, s.settlement)
		if serr != nil {
			return nil, serr
		}
		if err = s.forwardToRegistry(ctx, out); err != nil {
			return nil, err
		}
	}

	if s.log != nil {
		s.log.Info("strategy deposit",
			zap.String("asset", asset.Hex()),
			zap.String("amount", amount.String()),
			zap.String("value", value.String()),
			zap.Bool("sell_for_settlement", sellForSettlement),
		)
	}
	return value, nil
}

// Withdraw realizes the holder's proportional slice of every holding asset,
// in the ledger's fixed enumeration order, and delivers the accumulated
// settlement and native outputs to the recipient. Vault-only. The whole call
// fails with no partial credit if any leg fails.
func (s *Strategy) Withdraw(ctx context.Context, caller common.Address, shares, totalSupply *big.Int, recipient common.Address) (settlementOut, nativeOut *big.Int, err error) {
	if caller != s.vault {
		return nil, nil, ErrUnauthorized
	}
	if !s.guard.Enter() {
		return nil, nil, ErrReentrantCall
	}
	defer s.guard.Exit()
	if recipient == (common.Address{}) {
		return nil, nil, ErrZeroAddress
	}
	if shares == nil || totalSupply == nil || shares.Sign() <= 0 || shares.Cmp(totalSupply) > 0 {
		return nil, nil, ErrInvalidShares
	}
	checkpoint := s.ledger.Clone()
	defer func() {
		if err != nil {
			s.ledger = checkpoint
		}
	}()

	settlementOut = big.NewInt(0)
	nativeOut = big.NewInt(0)
	for _, asset := range s.ledger.Assets() {
		amt := new(big.Int).Mul(s.ledger.Reserve(asset), shares)
		amt.Quo(amt, totalSupply) // floor; rounding favors the pool
		if amt.Sign() == 0 {
			continue
		}
		switch {
		case asset == s.settlement:
			settlementOut.Add(settlementOut, amt)
		case asset == s.receipt:
			// Below the dust floor the slice stays in reserve.
			if amt.Cmp(s.dustFloor) < 0 {
				continue
			}
			if err = s.registry.CanWithdraw(ctx, s.addr, amt); err != nil {
				return nil, nil, fmt.Errorf("registry precheck: %w", err)
			}
			proceeds, werr := s.registry.Withdraw(ctx, s.addr, amt)
			if werr != nil {
				return nil, nil, fmt.Errorf("registry withdraw: %w", werr)
			}
			// Asymmetric by design: the settlement ledger is credited
			// with the measured proceeds while the receipt ledger is
			// decremented by the requested amount.
			s.ledger.Credit(s.settlement, proceeds)
			if err = s.ledger.Debit(s.receipt, amt); err != nil {
				return nil, nil, err
			}
			settlementOut.Add(settlementOut, proceeds)
		case assets.IsNative(asset):
			nativeOut.Add(nativeOut, amt)
		default:
			out, serr := s.swapTokenForToken(ctx, asset, amt, assets.Native)
			if serr != nil {
				return nil, nil, serr
			}
			nativeOut.Add(nativeOut, out)
		}
	}

	if settlementOut.Sign() > 0 {
		if err = s.ledger.Debit(s.settlement, settlementOut); err != nil {
			return nil, nil, err
		}
		if err = s.bank.SendToken(ctx, s.settlement, recipient, settlementOut); err != nil {
			return nil, nil, fmt.Errorf("send settlement: %w", err)
		}
	}
	if nativeOut.Sign() > 0 {
		if err = s.ledger.Debit(assets.Native, nativeOut); err != nil {
			return nil, nil, err
		}
		if serr := s.bank.SendNative(ctx, recipient, nativeOut); serr != nil {
			err = fmt.Errorf("%w: %v", ErrFailedToSendNative, serr)
			return nil, nil, err
		}
	}

	if s.log != nil {
		s.log.Info("strategy withdraw",
			zap.String("shares", shares.String()),
			zap.String("settlement_out", settlementOut.String()),
			zap.String("native_out", nativeOut.String()),
			zap.String("recipient", recipient.Hex()),
		)
	}
	return settlementOut, nativeOut, nil
}

// InvokeSwap routes a manager-directed swap through an explicitly enabled
// swapper, honoring the caller's minimum output. Settlement-asset proceeds
// are forwarded into the registry.
func (s *Strategy) InvokeSwap(ctx context.Context, caller common.Address, swapperID string, tokenIn common.Address, amountIn *big.Int, tokenOut common.Address, minOut *big.Int) (out *big.Int, err error) {
	if caller != s.manager {
		return nil, ErrUnauthorized
	}
	if !s.guard.Enter() {
		return nil, ErrReentrantCall
	}
	defer s.guard.Exit()
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	enabled, ok := s.swappers[route{tokenIn, tokenOut}]
	if !ok {
		return nil, ErrInvalidSwapper
	}
	swapper, ok := enabled[swapperID]
	if !ok {
		return nil, ErrInvalidSwapper
	}
	checkpoint := s.ledger.Clone()
	defer func() {
		if err != nil {
			s.ledger = checkpoint
		}
	}()
	if err = s.ledger.Debit(tokenIn, amountIn); err != nil {
		return nil, err
	}
	out, err = swapper.Swap(ctx, tokenIn, amountIn, tokenOut, minOut)
	if err != nil {
		return nil, fmt.Errorf("swap %s: %w", swapperID, err)
	}
	s.ledger.Credit(tokenOut, out)
	if tokenOut == s.settlement {
		if err = s.forwardToRegistry(ctx, out); err != nil {
			return nil, err
		}
	}
	if s.log != nil {
		s.log.Info("manager swap",
			zap.String("swapper", swapperID),
			zap.String("token_in", tokenIn.Hex()),
			zap.String("amount_in", amountIn.String()),
			zap.String("token_out", tokenOut.Hex()),
			zap.String("amount_out", out.String()),
		)
	}
	return out, nil
}

// MigrateFunds transfers the full reserve of every holding asset to the
// successor strategy. Vault-only; the vault swaps its strategy pointer only
// after this returns, so the retiring strategy sees no new activity.
func (s *Strategy) MigrateFunds(ctx context.Context, caller common.Address, target MigrationTarget) (err error) {
	if caller != s.vault {
		return ErrUnauthorized
	}
	if !s.guard.Enter() {
		return ErrReentrantCall
	}
	defer s.guard.Exit()
	if target == nil || target.Address() == (common.Address{}) {
		return ErrZeroAddress
	}
	checkpoint := s.ledger.Clone()
	defer func() {
		if err != nil {
			s.ledger = checkpoint
		}
	}()

	receiptMoved := big.NewInt(0)
	for _, asset := range s.ledger.Assets() {
		amount := s.ledger.Reserve(asset)
		if amount.Sign() == 0 {
			continue
		}
		if asset == s.receipt {
			if err = s.registry.CanWithdraw(ctx, s.addr, amount); err != nil {
				return fmt.Errorf("registry precheck: %w", err)
			}
			receiptMoved = amount
		}
		if err = s.ledger.Debit(asset, amount); err != nil {
			return err
		}
		if assets.IsNative(asset) {
			if serr := s.bank.SendNative(ctx, target.Address(), amount); serr != nil {
				err = fmt.Errorf("%w: %v", ErrFailedToSendNative, serr)
				return err
			}
		} else {
			if err = s.bank.SendToken(ctx, asset, target.Address(), amount); err != nil {
				return fmt.Errorf("migrate %s: %w", asset.Hex(), err)
			}
		}
		if err = target.ReceiveAsset(asset, amount); err != nil {
			return fmt.Errorf("target credit %s: %w", asset.Hex(), err)
		}
	}
	// Receipt ownership moves with the tokens, inside the same call, so a
	// successful migration never leaves receipts registered to the retiring
	// strategy.
	if receiptMoved.Sign() > 0 {
		if err = s.registry.Transfer(s.addr, target.Address(), receiptMoved); err != nil {
			return fmt.Errorf("registry transfer: %w", err)
		}
	}
	if s.log != nil {
		s.log.Info("funds migrated", zap.String("target", target.Address().Hex()))
	}
	return nil
}

// AcceptMigration is the receiving-side hook. Base behavior is acknowledgment
// only; reserves arrive through ReceiveAsset. Vault-only.
func (s *Strategy) AcceptMigration(caller, prev common.Address) error {
	if caller != s.vault {
		return ErrUnauthorized
	}
	if s.log != nil {
		s.log.Info("migration accepted", zap.String("previous", prev.Hex()))
	}
	return nil
}

// ReceiveAsset credits a migrated reserve. The vault sequences migration so
// only the retiring strategy's MigrateFunds reaches this.
func (s *Strategy) ReceiveAsset(asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	s.ledger.Credit(asset, amount)
	return nil
}

// forwardToRegistry moves settlement reserve into the external value-accruing
// registry, crediting the receipt asset with what was actually minted.
func (s *Strategy) forwardToRegistry(ctx context.Context, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := s.ledger.Debit(s.settlement, amount); err != nil {
		return err
	}
	minted, err := s.registry.Deposit(ctx, s.addr, amount)
	if err != nil {
		return fmt.Errorf("registry deposit: %w", err)
	}
	s.ledger.Credit(s.receipt, minted)
	return nil
}

// swapTokenForToken is the automatic routing used by deposit and withdraw: it
// always takes the default swapper with a zero minimum output. Automated
// swaps carry no slippage protection; only manager-directed InvokeSwap does.
func (s *Strategy) swapTokenForToken(ctx context.Context, tokenIn common.Address, amountIn *big.Int, tokenOut common.Address) (*big.Int, error) {
	r := route{tokenIn, tokenOut}
	id, ok := s.defaults[r]
	if !ok {
		return nil, ErrSetDefaultSwapperBefore
	}
	swapper, ok := s.swappers[r][id]
	if !ok {
		return nil, ErrInvalidSwapper
	}
	if err := s.ledger.Debit(tokenIn, amountIn); err != nil {
		return nil, err
	}
	out, err := swapper.Swap(ctx, tokenIn, amountIn, tokenOut, big.NewInt(0))
	if err != nil {
		return nil, fmt.Errorf("swap %s: %w", id, err)
	}
	s.ledger.Credit(tokenOut, out)
	return out, nil
}
