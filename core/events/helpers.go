package events

import (
	"math/big"
	"strconv"

	"deedescrow/crypto"
)

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

// FormatAddress renders a state address in its bech32 form.
func FormatAddress(addr [20]byte) string {
	return crypto.FromArray(addr).String()
}

func formatAssetID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
