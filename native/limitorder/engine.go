package limitorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"swaplimit/quote"
	"swaplimit/router"
)

var (
	errNilLedger   = errors.New("limitorder: ledger not configured")
	errNilExchange = errors.New("limitorder: exchange not configured")
	errNilQuoter   = errors.New("limitorder: quoter not configured")
	errNilPayout   = errors.New("limitorder: payout sink not configured")
)

// Exchange submits prepared router calls and serves the router's read-only
// estimates. The engine never talks to the chain directly.
type Exchange interface {
	Execute(ctx context.Context, call router.Call) error
	AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
}

// Quoter supplies the advisory output estimate used to derive the slippage
// bound at execution time.
type Quoter interface {
	QuoteExactInput(ctx context.Context, path []common.Address, amountIn *big.Int) (quote.Quote, error)
}

// PayoutSink receives native currency leaving ledger custody: cancellation
// refunds and fee withdrawals.
type PayoutSink interface {
	Pay(ctx context.Context, to common.Address, amount *big.Int) error
}

// RouteConfig describes the exchange wiring and the hop-route policy.
type RouteConfig struct {
	Router        common.Address
	WrappedNative common.Address
	Factory       common.Address
	// Intermediate is the token multi-hop routes travel through when a
	// direct pool is not preferred.
	Intermediate common.Address
	// DirectPathThreshold is the tradable amount at which routing switches
	// from the multi-hop route to the direct pool. Zero keeps every route
	// direct when no intermediate is configured.
	DirectPathThreshold *big.Int
}

// Validate checks the route wiring before the engine accepts it.
func (rc RouteConfig) Validate() error {
	if rc.Router == (common.Address{}) {
		return fmt.Errorf("limitorder: router address required")
	}
	if rc.WrappedNative == (common.Address{}) {
		return fmt.Errorf("limitorder: wrapped native address required")
	}
	return nil
}

// Engine enforces the order lifecycle: create -> active, active -> cancelled,
// active -> executed, both terminal. All mutations are serialized behind the
// engine mutex, which is the only shared mutable resource; an execution
// attempt commits no state unless the exchange call succeeds.
type Engine struct {
	mu       sync.Mutex
	ledger   *Ledger
	params   Params
	route    RouteConfig
	admin    common.Address
	quoter   Quoter
	exchange Exchange
	payout   PayoutSink
	emitter  Emitter
	logger   *slog.Logger

	slippagePercent float64
	nowFn           func() int64
}

// NewEngine validates the configuration and returns an engine with a no-op
// emitter. Collaborators are wired through the setters before first use.
func NewEngine(ledger *Ledger, params Params, route RouteConfig, admin common.Address) (*Engine, error) {
	if ledger == nil {
		return nil, errNilLedger
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := route.Validate(); err != nil {
		return nil, err
	}
	if admin == (common.Address{}) {
		return nil, fmt.Errorf("limitorder: admin address required")
	}
	return &Engine{
		ledger:          ledger,
		params:          params.Clone(),
		route:           route,
		admin:           admin,
		emitter:         NoopEmitter{},
		logger:          slog.Default(),
		slippagePercent: router.DefaultSlippagePercent,
		nowFn:           func() int64 { return time.Now().Unix() },
	}, nil
}

// SetQuoter configures the quote source used at execution time.
func (e *Engine) SetQuoter(q Quoter) { e.quoter = q }

// SetExchange configures the router client executions dispatch through.
func (e *Engine) SetExchange(x Exchange) { e.exchange = x }

// SetPayoutSink configures where refunds and fee withdrawals are sent.
func (e *Engine) SetPayoutSink(p PayoutSink) { e.payout = p }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter Emitter) {
	if emitter == nil {
		e.emitter = NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetSlippagePercent overrides the tolerance applied to execution quotes.
func (e *Engine) SetSlippagePercent(percent float64) error {
	if err := router.ValidateSlippage(percent); err != nil {
		return err
	}
	e.slippagePercent = percent
	return nil
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 { return e.nowFn() }

func (e *Engine) emit(evt Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

// CreateOrder validates the deposit and deadline, allocates the next id and
// escrows the full deposit under ledger custody. Nothing is escrowed when a
// check fails.
func (e *Engine) CreateOrder(owner, tokenOut common.Address, minAmountOut, triggerPrice *big.Int, expiresAt uint64, deposit *big.Int) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if owner == (common.Address{}) {
		return 0, fmt.Errorf("limitorder: owner address required")
	}
	if tokenOut == (common.Address{}) {
		return 0, fmt.Errorf("limitorder: token out address required")
	}
	if minAmountOut == nil || minAmountOut.Sign() <= 0 {
		return 0, fmt.Errorf("limitorder: min amount out must be positive")
	}
	if triggerPrice == nil || triggerPrice.Sign() <= 0 {
		return 0, fmt.Errorf("limitorder: trigger price must be positive")
	}
	now := e.now()
	if expiresAt <= uint64(now) {
		return 0, ErrInvalidExpiration
	}
	if deposit == nil || deposit.Cmp(e.params.MinimumDeposit()) < 0 {
		return 0, ErrInsufficientDeposit
	}

	order := &Order{
		Owner:        owner,
		TokenOut:     tokenOut,
		AmountIn:     cloneBigInt(deposit),
		MinAmountOut: cloneBigInt(minAmountOut),
		TriggerPrice: cloneBigInt(triggerPrice),
		CreatedAt:    uint64(now),
		ExpiresAt:    expiresAt,
		Active:       true,
		Executed:     false,
	}
	id, err := e.ledger.Append(order)
	if err != nil {
		return 0, err
	}
	if err := e.ledger.CreditEscrow(order.AmountIn); err != nil {
		return 0, err
	}
	e.emit(newOrderEvent(EventTypeOrderCreated, order))
	e.logger.Info("order created",
		"id", id, "owner", owner.Hex(), "tokenOut", tokenOut.Hex(),
		"amountIn", order.AmountIn.String(), "expiresAt", expiresAt)
	return id, nil
}

// CancelOrder refunds the full escrow to the owner and retires the order.
// Only the owner may cancel; a second cancel fails cleanly with no double
// refund. Expired orders remain cancellable.
func (e *Engine) CancelOrder(ctx context.Context, id uint64, caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.payout == nil {
		return errNilPayout
	}

	order, err := e.ledger.Get(id)
	if err != nil {
		return err
	}
	if caller != order.Owner {
		return ErrNotOwner
	}
	if !order.Active {
		return ErrOrderNotActive
	}

	if err := e.payout.Pay(ctx, order.Owner, order.AmountIn); err != nil {
		return fmt.Errorf("limitorder: refund payout: %w", err)
	}
	order.Active = false
	if err := e.ledger.Update(order); err != nil {
		return err
	}
	if err := e.ledger.DebitEscrow(order.AmountIn); err != nil {
		return err
	}
	e.emit(newOrderEvent(EventTypeOrderCancelled, order))
	e.logger.Info("order cancelled", "id", id, "owner", order.Owner.Hex(), "refund", order.AmountIn.String())
	return nil
}

// ExecuteOrder settles an order through the exchange. Gates are evaluated in
// a fixed sequence: authorization, existence, lifecycle state, expiry, price.
// The tradable amount is the deposit net of the execution fee; the order's
// minAmountOut stays the hard floor regardless of the quote. When the
// exchange call fails the order remains active and no funds move.
func (e *Engine) ExecuteOrder(ctx context.Context, id uint64, attestedPrice *big.Int, caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exchange == nil {
		return errNilExchange
	}
	if e.quoter == nil {
		return errNilQuoter
	}

	if !Authorized(caller, e.params) {
		return ErrNotAuthorized
	}
	order, err := e.ledger.Get(id)
	if err != nil {
		return err
	}
	if order.Executed {
		return ErrOrderExecuted
	}
	if !order.Active {
		return ErrOrderNotActive
	}
	now := e.now()
	if uint64(now) >= order.ExpiresAt {
		return ErrOrderExpired
	}
	if attestedPrice == nil || attestedPrice.Cmp(order.TriggerPrice) < 0 {
		return ErrPriceBelowTrigger
	}

	tradable := order.Tradable(e.params.ExecutionFee)
	path, _ := e.optimalPath(order.TokenOut, tradable)

	q, err := e.quoter.QuoteExactInput(ctx, path, tradable)
	if err != nil {
		return fmt.Errorf("limitorder: quote for order %d: %w", id, err)
	}
	outMin := router.MinimumOutput(q.AmountOut, e.slippagePercent)
	if outMin.Cmp(order.MinAmountOut) < 0 {
		outMin = cloneBigInt(order.MinAmountOut)
	}
	deadline := uint64(now) + uint64(router.DeadlineBuffer/time.Second)
	call, err := router.PackSwap(e.route.Router, router.OpExactNativeForTokens,
		router.Bounds{In: tradable, OutMin: outMin}, path, order.Owner, deadline)
	if err != nil {
		return err
	}

	if err := e.exchange.Execute(ctx, call); err != nil {
		e.emit(newExecutionFailedEvent(order, err))
		e.logger.Error("swap execution reverted; order stays active",
			"id", id, "err", err, "quoteSource", string(q.Source))
		return fmt.Errorf("%w: %v", ErrExecutionReverted, err)
	}

	order.Active = false
	order.Executed = true
	if err := e.ledger.Update(order); err != nil {
		return err
	}
	if err := e.ledger.DebitEscrow(order.AmountIn); err != nil {
		return err
	}
	if err := e.ledger.CreditFees(e.params.ExecutionFee); err != nil {
		return err
	}
	e.emit(newOrderEvent(EventTypeOrderExecuted, order))
	e.logger.Info("order executed",
		"id", id, "caller", caller.Hex(), "tradable", tradable.String(),
		"amountOutMin", outMin.String(), "quoteSource", string(q.Source))
	return nil
}

// CanExecute is the read-only eligibility probe. It evaluates the lifecycle
// and expiry gates only; the price gate needs the attested price supplied at
// execution time, which this probe does not receive.
func (e *Engine) CanExecute(id uint64) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, err := e.ledger.Get(id)
	if err != nil {
		return false, "order not found"
	}
	if order.Executed {
		return false, "order already executed"
	}
	if !order.Active {
		return false, "order is not active"
	}
	if uint64(e.now()) >= order.ExpiresAt {
		return false, "order has expired"
	}
	return true, "executable"
}

// OrderDetails returns a snapshot of the order, read-consistent with the most
// recent committed mutation.
func (e *Engine) OrderDetails(id uint64) (*Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, err := e.ledger.Get(id)
	if err != nil {
		return nil, err
	}
	return order.Clone(), nil
}

// UserOrders lists every order id the owner ever created, oldest first.
func (e *Engine) UserOrders(owner common.Address) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.OrdersByOwner(owner)
}

// NextOrderID reports the id the next creation will receive.
func (e *Engine) NextOrderID() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.NextOrderID()
}

// Config returns the current configuration snapshot.
func (e *Engine) Config() (Config, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := e.ledger.NextOrderID()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ExecutionFee:    cloneBigInt(e.params.ExecutionFee),
		MinOrderAmount:  cloneBigInt(e.params.MinOrderAmount),
		Executor:        e.params.Executor,
		NextOrderID:     next,
		PublicExecution: e.params.PublicExecution,
	}, nil
}

// Balances reports the funds under ledger custody.
func (e *Engine) Balances() (Balances, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	escrowed, err := e.ledger.EscrowBalance()
	if err != nil {
		return Balances{}, err
	}
	fees, err := e.ledger.FeeBalance()
	if err != nil {
		return Balances{}, err
	}
	return Balances{Escrowed: escrowed, FeesAccrued: fees}, nil
}

// RouterInfo reports the exchange wiring the engine executes against.
func (e *Engine) RouterInfo() RouterInfo {
	return RouterInfo{
		Router:              e.route.Router,
		WrappedNative:       e.route.WrappedNative,
		Factory:             e.route.Factory,
		Intermediate:        e.route.Intermediate,
		DirectPathThreshold: cloneBigInt(e.route.DirectPathThreshold),
	}
}

// OptimalPath previews the hop route an execution would take for the token
// and tradable amount, with a human readable description.
func (e *Engine) OptimalPath(tokenOut common.Address, amount *big.Int) ([]common.Address, string) {
	return e.optimalPath(tokenOut, amount)
}

// optimalPath picks between the direct pool and the multi-hop route through
// the intermediate. Large orders take the direct pool to avoid paying the
// pool fee twice; small ones route through the intermediate where pooled
// liquidity is deeper.
func (e *Engine) optimalPath(tokenOut common.Address, amount *big.Int) ([]common.Address, string) {
	direct := []common.Address{e.route.WrappedNative, tokenOut}
	if e.route.Intermediate == (common.Address{}) || tokenOut == e.route.Intermediate {
		return direct, "direct path: wrapped native -> token out"
	}
	if e.route.DirectPathThreshold != nil && e.route.DirectPathThreshold.Sign() > 0 &&
		amount != nil && amount.Cmp(e.route.DirectPathThreshold) >= 0 {
		return direct, "direct path: wrapped native -> token out"
	}
	return []common.Address{e.route.WrappedNative, e.route.Intermediate, tokenOut},
		"multi-hop path: wrapped native -> intermediate -> token out"
}

// EstimatedAmountOut previews the router output for swapping amountIn of
// native currency into tokenOut over the optimal path. The estimate is
// advisory: missing liquidity or a transport failure yields zero, not an
// error.
func (e *Engine) EstimatedAmountOut(ctx context.Context, tokenOut common.Address, amountIn *big.Int) (*big.Int, []common.Address) {
	path, _ := e.optimalPath(tokenOut, amountIn)
	if e.exchange == nil {
		return big.NewInt(0), path
	}
	amounts, err := e.exchange.AmountsOut(ctx, amountIn, path)
	if err != nil || len(amounts) == 0 {
		if err != nil {
			e.logger.Warn("amounts-out estimate unavailable", "tokenOut", tokenOut.Hex(), "err", err)
		}
		return big.NewInt(0), path
	}
	return cloneBigInt(amounts[len(amounts)-1]), path
}

// SetExecutor rotates the settlement executor. Admin capability only.
func (e *Engine) SetExecutor(caller, executor common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.admin {
		return ErrNotAuthorized
	}
	if executor == (common.Address{}) && !e.params.PublicExecution {
		return fmt.Errorf("limitorder: executor required unless public execution is enabled")
	}
	e.params.Executor = executor
	return nil
}

// SetPublicExecution toggles open settlement. Admin capability only.
func (e *Engine) SetPublicExecution(caller common.Address, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.admin {
		return ErrNotAuthorized
	}
	e.params.PublicExecution = enabled
	return nil
}

// SetExecutionFee updates the fee retained per execution. Admin capability
// only; existing orders keep their original deposit requirement.
func (e *Engine) SetExecutionFee(caller common.Address, fee *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.admin {
		return ErrNotAuthorized
	}
	if fee == nil || fee.Sign() < 0 {
		return fmt.Errorf("limitorder: execution fee must be non-negative")
	}
	e.params.ExecutionFee = cloneBigInt(fee)
	return nil
}

// SetMinOrderAmount updates the smallest accepted tradable deposit. Admin
// capability only.
func (e *Engine) SetMinOrderAmount(caller common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.admin {
		return ErrNotAuthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("limitorder: min order amount must be positive")
	}
	e.params.MinOrderAmount = cloneBigInt(amount)
	return nil
}

// WithdrawFees pays accrued execution fees out to the treasury address.
// Admin capability only.
func (e *Engine) WithdrawFees(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.admin {
		return ErrNotAuthorized
	}
	if e.payout == nil {
		return errNilPayout
	}
	if to == (common.Address{}) {
		return fmt.Errorf("limitorder: treasury address required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("limitorder: withdrawal amount must be positive")
	}
	accrued, err := e.ledger.FeeBalance()
	if err != nil {
		return err
	}
	if accrued.Cmp(amount) < 0 {
		return fmt.Errorf("limitorder: withdrawal exceeds accrued fees")
	}
	if err := e.payout.Pay(ctx, to, amount); err != nil {
		return fmt.Errorf("limitorder: fee payout: %w", err)
	}
	return e.ledger.DebitFees(amount)
}
