package router

import "fmt"

// Operation selects one of the six router swap entry points. The set is
// closed: direction (exact input vs exact output) crossed with the asset
// position of the native currency.
type Operation string

const (
	OpExactNativeForTokens Operation = "swap_exact_native_for_tokens"
	OpExactTokensForNative Operation = "swap_exact_tokens_for_native"
	OpExactTokensForTokens Operation = "swap_exact_tokens_for_tokens"
	OpNativeForExactTokens Operation = "swap_native_for_exact_tokens"
	OpTokensForExactNative Operation = "swap_tokens_for_exact_native"
	OpTokensForExactTokens Operation = "swap_tokens_for_exact_tokens"
)

// Operations lists every supported variant in a stable order.
func Operations() []Operation {
	return []Operation{
		OpExactNativeForTokens,
		OpExactTokensForNative,
		OpExactTokensForTokens,
		OpNativeForExactTokens,
		OpTokensForExactNative,
		OpTokensForExactTokens,
	}
}

// Valid reports whether the operation names a supported variant.
func (op Operation) Valid() bool {
	switch op {
	case OpExactNativeForTokens, OpExactTokensForNative, OpExactTokensForTokens,
		OpNativeForExactTokens, OpTokensForExactNative, OpTokensForExactTokens:
		return true
	}
	return false
}

// ExactInput reports whether the fixed leg of the swap is the input amount.
func (op Operation) ExactInput() bool {
	switch op {
	case OpExactNativeForTokens, OpExactTokensForNative, OpExactTokensForTokens:
		return true
	}
	return false
}

// NativeInput reports whether the input asset is the native currency, which
// is the only case where the router call carries a payable value.
func (op Operation) NativeInput() bool {
	return op == OpExactNativeForTokens || op == OpNativeForExactTokens
}

// NativeOutput reports whether the swap unwinds into the native currency.
func (op Operation) NativeOutput() bool {
	return op == OpExactTokensForNative || op == OpTokensForExactNative
}

// Method resolves the router function the operation dispatches to.
func (op Operation) Method() (string, error) {
	switch op {
	case OpExactNativeForTokens:
		return "swapExactETHForTokens", nil
	case OpExactTokensForNative:
		return "swapExactTokensForETH", nil
	case OpExactTokensForTokens:
		return "swapExactTokensForTokens", nil
	case OpNativeForExactTokens:
		return "swapETHForExactTokens", nil
	case OpTokensForExactNative:
		return "swapTokensForExactETH", nil
	case OpTokensForExactTokens:
		return "swapTokensForExactTokens", nil
	}
	return "", fmt.Errorf("router: unsupported operation %q", string(op))
}
