// Package bank is the delivery rail for outbound balances. The accounting
// engines only observe success or refusal of a transfer; the book keeps a
// double-entry record of everything delivered so operators can reconcile
// accounted reserves against realized payouts.
package bank

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"lsd-vault-node/internal/assets"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	ErrInvalidAmount   = errors.New("transfer amount must be positive")
	ErrTransferRefused = errors.New("recipient refused transfer")
)

// Transfer is one completed outbound delivery.
type Transfer struct {
	Token  common.Address
	To     common.Address
	Amount *big.Int
}

// Book records deliveries per recipient. Recipients listed as refusing native
// coin reject the native leg, which is how a contract without a payable
// fallback behaves on the settlement rail.
type Book struct {
	mu        sync.Mutex
	log       *zap.Logger
	transfers []Transfer
	delivered map[common.Address]map[common.Address]*big.Int
	refusing  map[common.Address]bool
}

func NewBook(log *zap.Logger) *Book {
	return &Book{
		log:       log,
		delivered: make(map[common.Address]map[common.Address]*big.Int),
		refusing:  make(map[common.Address]bool),
	}
}

// SetNativeRefusal marks whether the recipient rejects native-coin transfers.
func (b *Book) SetNativeRefusal(recipient common.Address, refusing bool) {
	b.mu.Lock()
	b.refusing[recipient] = refusing
	b.mu.Unlock()
}

func (b *Book) SendToken(ctx context.Context, token, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.record(token, to, amount)
	return nil
}

func (b *Book) SendNative(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	refused := b.refusing[to]
	b.mu.Unlock()
	if refused {
		if b.log != nil {
			b.log.Warn("native transfer refused", zap.String("to", to.Hex()), zap.String("amount", amount.String()))
		}
		return ErrTransferRefused
	}
	b.record(assets.Native, to, amount)
	return nil
}

// Delivered returns the cumulative amount of one token sent to the recipient.
func (b *Book) Delivered(token, to common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	byToken, ok := b.delivered[to]
	if !ok {
		return big.NewInt(0)
	}
	total, ok := byToken[token]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(total)
}

// Transfers returns the delivery log in order.
func (b *Book) Transfers() []Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Transfer, len(b.transfers))
	copy(out, b.transfers)
	return out
}

func (b *Book) record(token, to common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.delivered[to] == nil {
		b.delivered[to] = make(map[common.Address]*big.Int)
	}
	prev, ok := b.delivered[to][token]
	if !ok {
		prev = big.NewInt(0)
	}
	b.delivered[to][token] = new(big.Int).Add(prev, amount)
	b.transfers = append(b.transfers, Transfer{Token: token, To: to, Amount: new(big.Int).Set(amount)})
}
