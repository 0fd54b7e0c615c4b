package model

import (
	"math/big"
	"strings"
)

// MaxUint256 is the canonical unlimited-approval sentinel (2^256 - 1).
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// unlimitedThreshold marks amounts within 0.1% of MaxUint256. Some contracts
// approve slightly below the max and treat it the same way.
var unlimitedThreshold = new(big.Int).Sub(MaxUint256, new(big.Int).Div(MaxUint256, big.NewInt(1000)))

// IsUnlimited reports whether an approval amount is the max-uint256 sentinel
// or close enough to it to act as a practical infinity.
func IsUnlimited(amount *big.Int) bool {
	if amount == nil {
		return false
	}
	return amount.Cmp(MaxUint256) == 0 || amount.Cmp(unlimitedThreshold) > 0
}

// NormalizeAddress lowercases a hex address and ensures the 0x prefix.
// Addresses are compared case-insensitively throughout, so the normalized
// form is the only one used as a map key.
func NormalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return ""
	}
	if !strings.HasPrefix(addr, "0x") {
		addr = "0x" + addr
	}
	return addr
}

// FormatAmount renders an integer token amount scaled down by decimals,
// keeping at most four fractional digits.
func FormatAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	if decimals == 0 {
		return amount.String()
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(amount, scale, frac)
	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := frac.String()
	for len(fracStr) < int(decimals) {
		fracStr = "0" + fracStr
	}
	if len(fracStr) > 4 {
		fracStr = fracStr[:4]
	}
	fracStr = strings.TrimRight(fracStr, "0")
	if fracStr == "" {
		return whole.String()
	}
	return whole.String() + "." + fracStr
}
