package router

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Call is a fully assembled router invocation: target, packed calldata and
// the payable value. Value is non-zero only when the input asset is native.
type Call struct {
	To     common.Address
	Method string
	Data   []byte
	Value  *big.Int
}

// Bounds carries the amounts for one swap: the fixed leg plus the
// slippage-derived bound on the floating leg. Exact-input swaps set In and
// OutMin; exact-output swaps set Out and InMax.
type Bounds struct {
	In     *big.Int
	Out    *big.Int
	OutMin *big.Int
	InMax  *big.Int
}

// PackSwap assembles the calldata for one of the six swap variants. The
// parameter order and payable value are fixed per variant; centralising the
// dispatch here keeps the six near-duplicates from drifting apart.
func PackSwap(routerAddr common.Address, op Operation, bounds Bounds, path []common.Address, recipient common.Address, deadline uint64) (Call, error) {
	method, err := op.Method()
	if err != nil {
		return Call{}, err
	}
	if len(path) < 2 {
		return Call{}, &ValidationError{Field: "tokenPath", Reason: "must contain at least 2 tokens"}
	}
	ddl := new(big.Int).SetUint64(deadline)
	value := big.NewInt(0)

	var args []interface{}
	switch op {
	case OpExactNativeForTokens:
		if bounds.In == nil || bounds.OutMin == nil {
			return Call{}, fmt.Errorf("router: %s requires amountIn and amountOutMin", method)
		}
		args = []interface{}{bounds.OutMin, path, recipient, ddl}
		value = new(big.Int).Set(bounds.In)
	case OpExactTokensForNative, OpExactTokensForTokens:
		if bounds.In == nil || bounds.OutMin == nil {
			return Call{}, fmt.Errorf("router: %s requires amountIn and amountOutMin", method)
		}
		args = []interface{}{bounds.In, bounds.OutMin, path, recipient, ddl}
	case OpNativeForExactTokens:
		if bounds.Out == nil || bounds.InMax == nil {
			return Call{}, fmt.Errorf("router: %s requires amountOut and amountInMax", method)
		}
		args = []interface{}{bounds.Out, path, recipient, ddl}
		value = new(big.Int).Set(bounds.InMax)
	case OpTokensForExactNative, OpTokensForExactTokens:
		if bounds.Out == nil || bounds.InMax == nil {
			return Call{}, fmt.Errorf("router: %s requires amountOut and amountInMax", method)
		}
		args = []interface{}{bounds.Out, bounds.InMax, path, recipient, ddl}
	default:
		return Call{}, fmt.Errorf("router: unsupported operation %q", string(op))
	}

	data, err := routerABI.Pack(method, args...)
	if err != nil {
		return Call{}, fmt.Errorf("router: pack %s: %w", method, err)
	}
	return Call{To: routerAddr, Method: method, Data: data, Value: value}, nil
}
