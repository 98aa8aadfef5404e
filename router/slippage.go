package router

import (
	"fmt"
	"math"
	"math/big"
)

const (
	// DefaultSlippagePercent is applied when a request leaves slippage unset.
	DefaultSlippagePercent = 2.0
	// MinSlippagePercent is the smallest accepted tolerance.
	MinSlippagePercent = 0.01
	// MaxSlippagePercent is the largest accepted tolerance.
	MaxSlippagePercent = 50.0
)

var bpsDenominator = big.NewInt(10_000)

// ValidateSlippage rejects tolerances outside [MinSlippagePercent,
// MaxSlippagePercent] before any quote or network call happens.
func ValidateSlippage(percent float64) error {
	if math.IsNaN(percent) || percent < MinSlippagePercent || percent > MaxSlippagePercent {
		return &ValidationError{Field: "slippagePercent", Reason: fmt.Sprintf("must be between %.2f and %.0f", MinSlippagePercent, MaxSlippagePercent)}
	}
	return nil
}

func slippageBps(percent float64) *big.Int {
	return big.NewInt(int64(math.Round(percent * 100)))
}

// MinimumOutput applies the tolerance to an expected output and floors the
// result: expected x (100 - slippage) / 100.
func MinimumOutput(expected *big.Int, slippagePercent float64) *big.Int {
	if expected == nil {
		return big.NewInt(0)
	}
	factor := new(big.Int).Sub(bpsDenominator, slippageBps(slippagePercent))
	out := new(big.Int).Mul(expected, factor)
	return out.Quo(out, bpsDenominator)
}

// MaximumInput is the symmetric bound for exact-output swaps and rounds up:
// ceil(estimated x (100 + slippage) / 100).
func MaximumInput(estimated *big.Int, slippagePercent float64) *big.Int {
	if estimated == nil {
		return big.NewInt(0)
	}
	factor := new(big.Int).Add(bpsDenominator, slippageBps(slippagePercent))
	in := new(big.Int).Mul(estimated, factor)
	in.Add(in, new(big.Int).Sub(bpsDenominator, big.NewInt(1)))
	return in.Quo(in, bpsDenominator)
}
