package strategy

import (
	"math/big"

	"lsd-vault-node/internal/swap"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Administrative surface. Owner-only; capability checks come first and the
// setters fail before mutating anything, so no checkpoint is needed.

func (s *Strategy) SetManager(caller, manager common.Address) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	if manager == (common.Address{}) {
		return ErrZeroAddress
	}
	s.manager = manager
	return nil
}

func (s *Strategy) SetDustFloor(caller common.Address, floor *big.Int) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	if floor == nil || floor.Sign() < 0 {
		return ErrInvalidAmount
	}
	s.dustFloor = new(big.Int).Set(floor)
	return nil
}

// AddUnderlying accepts an asset for direct deposits and registers it in the
// ledger's enumeration order.
func (s *Strategy) AddUnderlying(caller, asset common.Address, cfg UnderlyingConfig) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	normalized := UnderlyingConfig{MinDeposit: big.NewInt(0), DepositCeiling: big.NewInt(0)}
	if cfg.MinDeposit != nil {
		normalized.MinDeposit = new(big.Int).Set(cfg.MinDeposit)
	}
	if cfg.DepositCeiling != nil {
		normalized.DepositCeiling = new(big.Int).Set(cfg.DepositCeiling)
	}
	s.underlyings[asset] = normalized
	s.ledger.Track(asset)
	return nil
}

// RemoveUnderlying stops accepting new deposits of the asset. The ledger
// entry stays: reserves are never deleted and keep their enumeration slot.
func (s *Strategy) RemoveUnderlying(caller, asset common.Address) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	if _, ok := s.underlyings[asset]; !ok {
		return ErrUnknownAsset
	}
	delete(s.underlyings, asset)
	return nil
}

func (s *Strategy) SetMinDeposit(caller, asset common.Address, min *big.Int) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	cfg, ok := s.underlyings[asset]
	if !ok {
		return ErrUnknownAsset
	}
	if min == nil || min.Sign() < 0 {
		return ErrInvalidAmount
	}
	cfg.MinDeposit = new(big.Int).Set(min)
	s.underlyings[asset] = cfg
	return nil
}

func (s *Strategy) SetDepositCeiling(caller, asset common.Address, ceiling *big.Int) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	cfg, ok := s.underlyings[asset]
	if !ok {
		return ErrUnknownAsset
	}
	if ceiling == nil || ceiling.Sign() < 0 {
		return ErrInvalidAmount
	}
	cfg.DepositCeiling = new(big.Int).Set(ceiling)
	s.underlyings[asset] = cfg
	return nil
}

// AddSwapper enables a swapper for one directed pair.
func (s *Strategy) AddSwapper(caller common.Address, id string, swapper swap.Swapper, tokenIn, tokenOut common.Address) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	if id == "" || swapper == nil {
		return ErrNotSupportedSwapper
	}
	r := route{tokenIn, tokenOut}
	if s.swappers[r] == nil {
		s.swappers[r] = make(map[string]swap.Swapper)
	}
	s.swappers[r][id] = swapper
	return nil
}

// RemoveSwapper disables a binding. A default pointing at it is cleared so
// automatic routing fails loudly instead of using a disabled swapper.
func (s *Strategy) RemoveSwapper(caller common.Address, id string, tokenIn, tokenOut common.Address) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	r := route{tokenIn, tokenOut}
	if _, ok := s.swappers[r][id]; !ok {
		return ErrNotSupportedSwapper
	}
	delete(s.swappers[r], id)
	if s.defaults[r] == id {
		delete(s.defaults, r)
		if s.log != nil {
			s.log.Warn("default swapper cleared",
				zap.String("swapper", id),
				zap.String("token_in", tokenIn.Hex()),
				zap.String("token_out", tokenOut.Hex()),
			)
		}
	}
	return nil
}

// SetDefaultSwapper designates the unattended route for a pair. The binding
// must already be enabled.
func (s *Strategy) SetDefaultSwapper(caller common.Address, id string, tokenIn, tokenOut common.Address) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	r := route{tokenIn, tokenOut}
	if _, ok := s.swappers[r][id]; !ok {
		return ErrNotSupportedSwapper
	}
	s.defaults[r] = id
	return nil
}

// RegisterWrapper maps a non-canonical deposited form to its conversion
// capability.
func (s *Strategy) RegisterWrapper(caller, asset common.Address, wrapper Wrapper) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	if wrapper == nil {
		return ErrUnknownAsset
	}
	s.wrappers[asset] = wrapper
	return nil
}

func (s *Strategy) Manager() common.Address { return s.manager }
