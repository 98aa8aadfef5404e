package router

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DeadlineBuffer is added to the current time when a request does not carry
// an explicit deadline.
const DeadlineBuffer = 600 * time.Second

// ValidationError reports a malformed swap request. Validation happens before
// any ledger or network interaction, so a failed request has no side effects.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("router: invalid %s: %s", e.Field, e.Reason)
}

// Request is the swap parameter contract accepted by the builder.
type Request struct {
	Operation Operation
	// AmountIn is required for exact-input operations, in the asset's
	// smallest unit.
	AmountIn *big.Int
	// AmountOut is required for exact-output operations.
	AmountOut *big.Int
	// TokenPath is the ordered hop route. The native currency travels as its
	// wrapped token address; the operation records which leg is native.
	TokenPath []common.Address
	// SlippagePercent tolerates quote drift; zero means DefaultSlippagePercent.
	SlippagePercent float64
	// Deadline is a unix timestamp; zero means now + DeadlineBuffer.
	Deadline uint64
	// RecipientAccount optionally names the registry account that should
	// receive the output. Empty falls back to Recipient.
	RecipientAccount string
	// Recipient receives the swap output when no account id is given.
	Recipient common.Address
}

// Validate checks the request shape. It is the only admission gate: a request
// that passes is dispatchable once a quote and recipient are available.
func (r *Request) Validate() error {
	if !r.Operation.Valid() {
		return &ValidationError{Field: "operation", Reason: fmt.Sprintf("unknown operation %q", string(r.Operation))}
	}
	if r.Operation.ExactInput() {
		if r.AmountIn == nil || r.AmountIn.Sign() <= 0 {
			return &ValidationError{Field: "amountIn", Reason: "required for exact input operations"}
		}
	} else {
		if r.AmountOut == nil || r.AmountOut.Sign() <= 0 {
			return &ValidationError{Field: "amountOut", Reason: "required for exact output operations"}
		}
	}
	if len(r.TokenPath) < 2 {
		return &ValidationError{Field: "tokenPath", Reason: "must contain at least 2 tokens"}
	}
	for i, hop := range r.TokenPath {
		if hop == (common.Address{}) {
			return &ValidationError{Field: "tokenPath", Reason: fmt.Sprintf("hop %d is the zero address", i)}
		}
	}
	if r.SlippagePercent != 0 {
		if err := ValidateSlippage(r.SlippagePercent); err != nil {
			return err
		}
	}
	return nil
}

// Slippage resolves the effective tolerance for the request.
func (r *Request) Slippage() float64 {
	if r.SlippagePercent == 0 {
		return DefaultSlippagePercent
	}
	return r.SlippagePercent
}

// EffectiveDeadline resolves the deadline against the supplied clock.
func (r *Request) EffectiveDeadline(now time.Time) uint64 {
	if r.Deadline != 0 {
		return r.Deadline
	}
	return uint64(now.Add(DeadlineBuffer).Unix())
}
