package strategy

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Bank delivers asset balances to external recipients. The fungible-token
// transfer mechanism itself is an external collaborator; the engine only
// observes success or refusal.
type Bank interface {
	SendToken(ctx context.Context, token, to common.Address, amount *big.Int) error
	SendNative(ctx context.Context, to common.Address, amount *big.Int) error
}

// Wrapper converts a non-canonical deposited form of an asset into its
// canonical wrapped form, returning the converted quantity. Preview quotes
// the conversion without performing it, so callers can price a deposit
// before committing anything.
type Wrapper interface {
	Canonical() common.Address
	Preview(amount *big.Int) (*big.Int, error)
	Wrap(ctx context.Context, amount *big.Int) (*big.Int, error)
}

// MigrationTarget receives the full reserve balances of a retiring strategy.
// Credits are sequenced by the vault, which guarantees the retiring strategy
// is never invoked for new activity once its funds have left.
type MigrationTarget interface {
	Address() common.Address
	ReceiveAsset(asset common.Address, amount *big.Int) error
}
