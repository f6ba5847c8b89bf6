package strategy

import "errors"

var (
	ErrZeroAddress             = errors.New("zero address")
	ErrTooSmall                = errors.New("deposit below minimum")
	ErrExceedsDepositCeiling   = errors.New("deposit ceiling exceeded")
	ErrUnknownAsset            = errors.New("asset not accepted")
	ErrFailedToSendNative      = errors.New("failed to send native coin")
	ErrInvalidSwapper          = errors.New("swapper not enabled for pair")
	ErrNotSupportedSwapper     = errors.New("swapper not supported")
	ErrSetDefaultSwapperBefore = errors.New("no default swapper for pair")
	ErrUnauthorized            = errors.New("unauthorized caller")
	ErrInsufficientReserve     = errors.New("insufficient reserve")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInvalidShares           = errors.New("share amount out of range")
	ErrReentrantCall           = errors.New("reentrant call rejected")
)
