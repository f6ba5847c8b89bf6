package vault

import "errors"

var (
	ErrZeroAddress    = errors.New("zero address")
	ErrTooSmall       = errors.New("deposit too small")
	ErrComeBackLater  = errors.New("shares still locked")
	ErrInvalidShares  = errors.New("share amount out of range")
	ErrUnauthorized   = errors.New("unauthorized caller")
	ErrReentrantCall  = errors.New("reentrant call rejected")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrUnknownHolder  = errors.New("holder has no position")
	ErrNoStrategySet  = errors.New("no strategy configured")
	ErrSameStrategy   = errors.New("successor is the current strategy")
	ErrInsufficientAsset = errors.New("insufficient backstop reserve")
)
