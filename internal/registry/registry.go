package registry

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"lsd-vault-node/internal/rates"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	ErrInvalidAmount  = errors.New("registry amount must be positive")
	ErrNotEligible    = errors.New("registry withdrawal not eligible")
	ErrNoReceiptRate  = errors.New("registry receipt asset has no rate")
	ErrExceedsReceipt = errors.New("registry withdrawal exceeds outstanding receipts")
)

// Registry is the external custodian that mints a yield-bearing receipt asset
// against settlement-asset deposits. CanWithdraw is the eligibility precheck
// the caller must satisfy before Withdraw.
type Registry interface {
	Deposit(ctx context.Context, owner common.Address, amount *big.Int) (*big.Int, error)
	Withdraw(ctx context.Context, recipient common.Address, amount *big.Int) (*big.Int, error)
	CanWithdraw(ctx context.Context, owner common.Address, amount *big.Int) error
	Transfer(from, to common.Address, amount *big.Int) error
}

// Accruing is a registry adapter that prices receipts off the live oracle
// rate for the receipt asset. As the rate appreciates, outstanding receipts
// redeem for more settlement asset, which is how yield reaches the vault.
type Accruing struct {
	mu          sync.Mutex
	valuator    rates.Valuator
	receipt     common.Address
	outstanding map[common.Address]*big.Int
	log         *zap.Logger
}

func NewAccruing(valuator rates.Valuator, receipt common.Address, log *zap.Logger) *Accruing {
	return &Accruing{
		valuator:    valuator,
		receipt:     receipt,
		outstanding: make(map[common.Address]*big.Int),
		log:         log,
	}
}

// Deposit accepts settlement asset and mints receipts at the current rate,
// rounding the minted amount down.
func (r *Accruing) Deposit(ctx context.Context, owner common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	rate, ok := r.valuator.Rate(r.receipt)
	if !ok {
		return nil, ErrNoReceiptRate
	}
	minted := new(big.Int).Mul(amount, rates.Ray)
	minted.Quo(minted, rate)
	r.mu.Lock()
	r.credit(owner, minted)
	r.mu.Unlock()
	if r.log != nil {
		r.log.Debug("registry deposit",
			zap.String("owner", owner.Hex()),
			zap.String("amount", amount.String()),
			zap.String("minted", minted.String()),
		)
	}
	return minted, nil
}

// Withdraw burns receipts and pays out settlement asset at the current rate,
// rounding proceeds down; the difference is the registry's rounding dust.
func (r *Accruing) Withdraw(ctx context.Context, recipient common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	rate, ok := r.valuator.Rate(r.receipt)
	if !ok {
		return nil, ErrNoReceiptRate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	held := r.held(recipient)
	if held.Cmp(amount) < 0 {
		return nil, ErrExceedsReceipt
	}
	proceeds := new(big.Int).Mul(amount, rate)
	proceeds.Quo(proceeds, rates.Ray)
	r.outstanding[recipient] = held.Sub(held, amount)
	return proceeds, nil
}

func (r *Accruing) CanWithdraw(ctx context.Context, owner common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held(owner).Cmp(amount) < 0 {
		return ErrNotEligible
	}
	return nil
}

// Transfer moves outstanding receipts between owners; used when a strategy
// migrates its receipt balance to a successor.
func (r *Accruing) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	held := r.held(from)
	if held.Cmp(amount) < 0 {
		return ErrExceedsReceipt
	}
	r.outstanding[from] = held.Sub(held, amount)
	r.credit(to, amount)
	return nil
}

func (r *Accruing) held(owner common.Address) *big.Int {
	held, ok := r.outstanding[owner]
	if !ok {
		held = big.NewInt(0)
		r.outstanding[owner] = held
	}
	return held
}

func (r *Accruing) credit(owner common.Address, amount *big.Int) {
	r.outstanding[owner] = new(big.Int).Add(r.held(owner), amount)
}
