package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// ParseAmount parses a base-10 amount that must fit in 256 unsigned bits.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return value.ToBig(), nil
}

// CheckAmount reports an error when v is negative or wider than 256 bits.
func CheckAmount(v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("amount must not be negative")
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return fmt.Errorf("amount exceeds 256 bits")
	}
	return nil
}
