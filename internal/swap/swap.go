package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"lsd-vault-node/internal/rates"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrOutputBelowMinimum = errors.New("swap output below caller minimum")
	ErrInvalidAmount      = errors.New("swap amount must be positive")
)

// Swapper executes one atomic asset exchange. Implementations must fail when
// the realized output is below minOut, and must accept the native sentinel as
// tokenIn where the venue supports it.
type Swapper interface {
	Swap(ctx context.Context, tokenIn common.Address, amountIn *big.Int, tokenOut common.Address, minOut *big.Int) (*big.Int, error)
}

// OracleVenue prices swaps off the live oracle cross rate, charging a fixed
// slippage in basis points. It stands in for an external venue adapter; the
// engine treats it as an opaque capability either way.
type OracleVenue struct {
	valuator    rates.Valuator
	slippageBps int64
}

func NewOracleVenue(valuator rates.Valuator, slippageBps int64) *OracleVenue {
	return &OracleVenue{valuator: valuator, slippageBps: slippageBps}
}

func (v *OracleVenue) Swap(ctx context.Context, tokenIn common.Address, amountIn *big.Int, tokenOut common.Address, minOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	inValue, err := v.valuator.Value(tokenIn, amountIn)
	if err != nil {
		return nil, fmt.Errorf("value %s: %w", tokenIn.Hex(), err)
	}
	outRate, ok := v.valuator.Rate(tokenOut)
	if !ok {
		return nil, fmt.Errorf("value %s: %w", tokenOut.Hex(), rates.ErrNoRate)
	}
	out := new(big.Int).Mul(inValue, rates.Ray)
	out.Quo(out, outRate)
	if v.slippageBps > 0 {
		keep := big.NewInt(10_000 - v.slippageBps)
		out.Mul(out, keep)
		out.Quo(out, big.NewInt(10_000))
	}
	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("%w: got %s want at least %s", ErrOutputBelowMinimum, out, minOut)
	}
	return out, nil
}
