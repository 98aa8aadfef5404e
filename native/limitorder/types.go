package limitorder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Order is the persistent record held by the ledger for every escrowed swap
// order. Records are append-only: ids are never reused and an executed order's
// monetary fields never change again.
type Order struct {
	ID           uint64
	Owner        common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	TriggerPrice *big.Int
	CreatedAt    uint64
	ExpiresAt    uint64
	Active       bool
	Executed     bool
}

// Clone returns a deep copy so callers cannot mutate ledger state through a
// returned snapshot.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.AmountIn = cloneBigInt(o.AmountIn)
	clone.MinAmountOut = cloneBigInt(o.MinAmountOut)
	clone.TriggerPrice = cloneBigInt(o.TriggerPrice)
	return &clone
}

// Tradable reports the portion of the escrow that is routed through the
// exchange, i.e. the deposit net of the execution fee.
func (o *Order) Tradable(executionFee *big.Int) *big.Int {
	return new(big.Int).Sub(cloneBigInt(o.AmountIn), cloneBigInt(executionFee))
}

// Config is the snapshot returned by the configuration read. It mirrors the
// tuple the contract surface exposes.
type Config struct {
	ExecutionFee    *big.Int
	MinOrderAmount  *big.Int
	Executor        common.Address
	NextOrderID     uint64
	PublicExecution bool
}

// RouterInfo describes the exchange wiring the engine executes against.
type RouterInfo struct {
	Router              common.Address
	WrappedNative       common.Address
	Factory             common.Address
	Intermediate        common.Address
	DirectPathThreshold *big.Int
}

// Balances reports the funds under ledger custody.
type Balances struct {
	Escrowed    *big.Int
	FeesAccrued *big.Int
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
