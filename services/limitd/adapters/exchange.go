// Package adapters binds the order engine's collaborator interfaces to the
// chain client and the operator's payout bookkeeping.
package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"swaplimit/router"
)

// RouterExchange dispatches prepared swaps against the exchange router and
// serves its read-only estimates. Calls run through the node's call endpoint
// with the executor as sender; a revert surfaces as an error and the engine
// rolls the attempt back.
type RouterExchange struct {
	caller router.ContractCaller
	reader *router.Reader
	from   common.Address
	logger *slog.Logger
}

func NewRouterExchange(caller router.ContractCaller, routerAddr, from common.Address, logger *slog.Logger) *RouterExchange {
	if logger == nil {
		logger = slog.Default()
	}
	return &RouterExchange{
		caller: caller,
		reader: router.NewReader(caller, routerAddr),
		from:   from,
		logger: logger,
	}
}

// Execute submits the packed swap call.
func (x *RouterExchange) Execute(ctx context.Context, call router.Call) error {
	msg := ethereum.CallMsg{
		From:  x.from,
		To:    &call.To,
		Data:  call.Data,
		Value: call.Value,
	}
	if _, err := x.caller.CallContract(ctx, msg, nil); err != nil {
		return fmt.Errorf("adapters: router %s: %w", call.Method, err)
	}
	x.logger.Info("swap dispatched", "method", call.Method, "to", call.To.Hex(), "value", call.Value.String())
	return nil
}

// AmountsOut proxies the router's chained output estimate.
func (x *RouterExchange) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	return x.reader.AmountsOut(ctx, amountIn, path)
}
