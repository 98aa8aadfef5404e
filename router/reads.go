package router

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// ContractCaller is the read-only execution surface the reader needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader wraps the router's read-only entry points.
type Reader struct {
	caller ContractCaller
	router common.Address
}

func NewReader(caller ContractCaller, routerAddr common.Address) *Reader {
	return &Reader{caller: caller, router: routerAddr}
}

// Router reports the address the reader is bound to.
func (r *Reader) Router() common.Address { return r.router }

func (r *Reader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := routerABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("router: pack %s: %w", method, err)
	}
	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.router, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("router: call %s: %w", method, err)
	}
	out, err := routerABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("router: decode %s: %w", method, err)
	}
	return out, nil
}

// AmountsOut returns the chained output amounts for an exact input over the
// path; the last element is the final output estimate.
func (r *Reader) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	out, err := r.call(ctx, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	return decodeAmounts(out)
}

// AmountsIn returns the chained input amounts required to obtain an exact
// output over the path; the first element is the required input estimate.
func (r *Reader) AmountsIn(ctx context.Context, amountOut *big.Int, path []common.Address) ([]*big.Int, error) {
	out, err := r.call(ctx, "getAmountsIn", amountOut, path)
	if err != nil {
		return nil, err
	}
	return decodeAmounts(out)
}

// WrappedNative resolves the router's wrapped native token address.
func (r *Reader) WrappedNative(ctx context.Context) (common.Address, error) {
	return r.readAddress(ctx, "WETH")
}

// Factory resolves the pool factory behind the router.
func (r *Reader) Factory(ctx context.Context) (common.Address, error) {
	return r.readAddress(ctx, "factory")
}

func (r *Reader) readAddress(ctx context.Context, method string) (common.Address, error) {
	out, err := r.call(ctx, method)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("router: unexpected %s result arity %d", method, len(out))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("router: unexpected %s result type %T", method, out[0])
	}
	return addr, nil
}

func decodeAmounts(out []interface{}) ([]*big.Int, error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("router: unexpected result arity %d", len(out))
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("router: unexpected result type %T", out[0])
	}
	return amounts, nil
}
