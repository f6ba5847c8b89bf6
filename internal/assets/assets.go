package assets

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Native is the sentinel identifier for the chain's native coin.
var Native = common.Address{}

var ErrInvalidAddress = errors.New("invalid asset address")

func IsNative(asset common.Address) bool {
	return asset == Native
}

// Parse decodes a hex asset identifier. The empty string and "native" both
// map to the native sentinel.
func Parse(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "native") {
		return Native, nil
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, ErrInvalidAddress
	}
	return common.HexToAddress(trimmed), nil
}
