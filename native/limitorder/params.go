package limitorder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Params tunes order admission and execution authorization. Executor and
// PublicExecution are mutable at runtime through the admin surface; fee and
// minimum order size only through the same capability.
type Params struct {
	// ExecutionFee is retained from each executed order's escrow.
	ExecutionFee *big.Int
	// MinOrderAmount is the smallest tradable deposit accepted at creation,
	// excluding the execution fee.
	MinOrderAmount *big.Int
	// Executor is the address allowed to settle matured orders.
	Executor common.Address
	// PublicExecution opens executeOrder to any caller when set.
	PublicExecution bool
}

// Validate checks the parameter set before the engine accepts it.
func (p Params) Validate() error {
	if p.ExecutionFee == nil || p.ExecutionFee.Sign() < 0 {
		return fmt.Errorf("limitorder: execution fee must be non-negative")
	}
	if p.MinOrderAmount == nil || p.MinOrderAmount.Sign() <= 0 {
		return fmt.Errorf("limitorder: min order amount must be positive")
	}
	if !p.PublicExecution && p.Executor == (common.Address{}) {
		return fmt.Errorf("limitorder: executor required unless public execution is enabled")
	}
	return nil
}

// MinimumDeposit is the smallest deposit createOrder accepts: the minimum
// order size plus the execution fee.
func (p Params) MinimumDeposit() *big.Int {
	return new(big.Int).Add(cloneBigInt(p.MinOrderAmount), cloneBigInt(p.ExecutionFee))
}

// Authorized reports whether the caller may settle orders under the supplied
// parameters. Kept a pure function of (caller, params) so the predicate is
// testable in isolation.
func Authorized(caller common.Address, p Params) bool {
	if p.PublicExecution {
		return true
	}
	return caller == p.Executor
}

// Clone returns an independent copy of the parameter set.
func (p Params) Clone() Params {
	clone := p
	clone.ExecutionFee = cloneBigInt(p.ExecutionFee)
	clone.MinOrderAmount = cloneBigInt(p.MinOrderAmount)
	return clone
}
