package rates

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Ray is the fixed-point scale for conversion rates: a rate of Ray means one
// unit of the asset is worth exactly one unit of the settlement asset.
var Ray = big.NewInt(1_000_000_000_000_000_000)

var ErrNoRate = errors.New("no conversion rate for asset")

// Valuator converts asset quantities to settlement-asset-equivalent value at
// live rates. Callers must not cache results: underlying rates accrue yield
// over time, so every valuation is recomputed on demand.
type Valuator interface {
	Value(asset common.Address, amount *big.Int) (*big.Int, error)
	Rate(asset common.Address) (*big.Int, bool)
}

// Oracle holds the current ray-scaled settlement conversion rate per asset.
// Rates arrive from the REST snapshot at startup and the websocket stream
// afterwards; reads always see the latest value.
type Oracle struct {
	mu    sync.RWMutex
	rates map[common.Address]*big.Int
	log   *zap.Logger
}

func NewOracle(log *zap.Logger) *Oracle {
	return &Oracle{rates: make(map[common.Address]*big.Int), log: log}
}

func (o *Oracle) SetRate(asset common.Address, ray *big.Int) {
	if ray == nil || ray.Sign() <= 0 {
		if o.log != nil {
			o.log.Warn("ignoring non-positive rate", zap.String("asset", asset.Hex()))
		}
		return
	}
	o.mu.Lock()
	o.rates[asset] = new(big.Int).Set(ray)
	o.mu.Unlock()
}

func (o *Oracle) Rate(asset common.Address) (*big.Int, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rate, ok := o.rates[asset]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(rate), true
}

// Value returns floor(amount * rate / Ray) in settlement base units.
func (o *Oracle) Value(asset common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	rate, ok := o.Rate(asset)
	if !ok {
		return nil, ErrNoRate
	}
	value := new(big.Int).Mul(amount, rate)
	return value.Quo(value, Ray), nil
}
