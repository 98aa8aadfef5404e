package limitorder

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"swaplimit/quote"
	"swaplimit/router"
	"swaplimit/storage"
)

var (
	testAdmin    = common.HexToAddress("0xAd00000000000000000000000000000000000001")
	testExecutor = common.HexToAddress("0xE200000000000000000000000000000000000001")
	testOwner    = common.HexToAddress("0x0000000000000000000000000000000000001234")
	testStranger = common.HexToAddress("0x00000000000000000000000000000000000Beef")
	testTokenOut = common.HexToAddress("0x0000000000000000000000000000000000120f46")
	testWrapped  = common.HexToAddress("0x0000000000000000000000000000000000003aD2")
	testUSD      = common.HexToAddress("0x0000000000000000000000000000000000001549")
	testRouter   = common.HexToAddress("0x0000000000000000000000000000000000004b40")
)

type fakeQuoter struct {
	amountOut *big.Int
	source    quote.Source
	err       error
}

func (q *fakeQuoter) QuoteExactInput(_ context.Context, path []common.Address, amountIn *big.Int) (quote.Quote, error) {
	if q.err != nil {
		return quote.Quote{}, q.err
	}
	out := q.amountOut
	if out == nil {
		out = new(big.Int).Set(amountIn)
	}
	source := q.source
	if source == "" {
		source = quote.SourceLive
	}
	return quote.Quote{Path: path, AmountIn: amountIn, AmountOut: out, Source: source}, nil
}

type fakeExchange struct {
	calls      []router.Call
	executeErr error
	amountsOut []*big.Int
	amountsErr error
}

func (x *fakeExchange) Execute(_ context.Context, call router.Call) error {
	if x.executeErr != nil {
		return x.executeErr
	}
	x.calls = append(x.calls, call)
	return nil
}

func (x *fakeExchange) AmountsOut(_ context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if x.amountsErr != nil {
		return nil, x.amountsErr
	}
	if x.amountsOut != nil {
		return x.amountsOut, nil
	}
	out := make([]*big.Int, len(path))
	for i := range out {
		out[i] = new(big.Int).Set(amountIn)
	}
	return out, nil
}

type recordingSink struct {
	payments map[common.Address]*big.Int
	err      error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{payments: make(map[common.Address]*big.Int)}
}

func (s *recordingSink) Pay(_ context.Context, to common.Address, amount *big.Int) error {
	if s.err != nil {
		return s.err
	}
	total, ok := s.payments[to]
	if !ok {
		total = big.NewInt(0)
		s.payments[to] = total
	}
	total.Add(total, amount)
	return nil
}

type testClock struct {
	now int64
}

func (c *testClock) fn() func() int64 { return func() int64 { return c.now } }

func newTestEngine(t *testing.T) (*Engine, *fakeExchange, *recordingSink, *testClock) {
	t.Helper()
	ledger := NewLedger(storage.NewMemDB())
	params := Params{
		ExecutionFee:   big.NewInt(10_000_000),
		MinOrderAmount: big.NewInt(1_000_000),
		Executor:       testExecutor,
	}
	route := RouteConfig{
		Router:              testRouter,
		WrappedNative:       testWrapped,
		Intermediate:        testUSD,
		DirectPathThreshold: big.NewInt(1_000_000_000),
	}
	engine, err := NewEngine(ledger, params, route, testAdmin)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	exchange := &fakeExchange{}
	sink := newRecordingSink()
	clock := &testClock{now: 1_700_000_000}
	engine.SetQuoter(&fakeQuoter{})
	engine.SetExchange(exchange)
	engine.SetPayoutSink(sink)
	engine.SetNowFunc(clock.fn())
	return engine, exchange, sink, clock
}

func mustCreate(t *testing.T, e *Engine, deposit int64) uint64 {
	t.Helper()
	id, err := e.CreateOrder(testOwner, testTokenOut, big.NewInt(1), big.NewInt(1_000), 1_700_003_600, big.NewInt(deposit))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return id
}

func TestCreateOrderAllocatesSequentialIDs(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	for want := uint64(1); want <= 3; want++ {
		before, err := engine.NextOrderID()
		if err != nil {
			t.Fatalf("next order id: %v", err)
		}
		id := mustCreate(t, engine, 15_000_000)
		if id != want || before != want {
			t.Fatalf("expected id %d, got %d (sequence was %d)", want, id, before)
		}
		order, err := engine.OrderDetails(id)
		if err != nil {
			t.Fatalf("order details: %v", err)
		}
		if !order.Active || order.Executed {
			t.Fatalf("new order must be active and non-executed, got %+v", order)
		}
	}
}

func TestCreateOrderRejectsUndersizedDeposit(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	// Minimum deposit is minOrderAmount + executionFee = 11_000_000.
	if _, err := engine.CreateOrder(testOwner, testTokenOut, big.NewInt(1), big.NewInt(1_000), 1_700_003_600, big.NewInt(10_999_999)); !errors.Is(err, ErrInsufficientDeposit) {
		t.Fatalf("expected ErrInsufficientDeposit, got %v", err)
	}
	escrowed, err := engine.Balances()
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if escrowed.Escrowed.Sign() != 0 {
		t.Fatalf("failed creation must escrow nothing, got %s", escrowed.Escrowed)
	}
	next, _ := engine.NextOrderID()
	if next != 1 {
		t.Fatalf("failed creation must not advance the sequence, got %d", next)
	}
}

func TestCreateOrderRejectsPastExpiration(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)
	if _, err := engine.CreateOrder(testOwner, testTokenOut, big.NewInt(1), big.NewInt(1_000), uint64(clock.now), big.NewInt(15_000_000)); !errors.Is(err, ErrInvalidExpiration) {
		t.Fatalf("expected ErrInvalidExpiration, got %v", err)
	}
}

func TestCancelOrderRefundsExactlyOnce(t *testing.T) {
	engine, _, sink, _ := newTestEngine(t)
	id := mustCreate(t, engine, 15_000_000)

	if err := engine.CancelOrder(context.Background(), id, testStranger); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := engine.CancelOrder(context.Background(), id, testOwner); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if refund := sink.payments[testOwner]; refund == nil || refund.Cmp(big.NewInt(15_000_000)) != 0 {
		t.Fatalf("expected full escrow refund, got %v", refund)
	}
	order, err := engine.OrderDetails(id)
	if err != nil {
		t.Fatalf("order details: %v", err)
	}
	if order.Active || order.Executed {
		t.Fatalf("cancelled order must be inactive and non-executed, got %+v", order)
	}

	if err := engine.CancelOrder(context.Background(), id, testOwner); !errors.Is(err, ErrOrderNotActive) {
		t.Fatalf("second cancel must fail cleanly, got %v", err)
	}
	if refund := sink.payments[testOwner]; refund.Cmp(big.NewInt(15_000_000)) != 0 {
		t.Fatalf("second cancel must not refund again, got %s", refund)
	}
}

func TestExecuteOrderAuthorization(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	id := mustCreate(t, engine, 15_000_000)

	if err := engine.ExecuteOrder(context.Background(), id, big.NewInt(2_000), testStranger); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := engine.SetPublicExecution(testAdmin, true); err != nil {
		t.Fatalf("enable public execution: %v", err)
	}
	if err := engine.ExecuteOrder(context.Background(), id, big.NewInt(2_000), testStranger); err != nil {
		t.Fatalf("public execution should admit any caller: %v", err)
	}
}

func TestExecuteOrderGates(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)
	id := mustCreate(t, engine, 15_000_000)

	if err := engine.ExecuteOrder(context.Background(), id, big.NewInt(999), testExecutor); !errors.Is(err, ErrPriceBelowTrigger) {
		t.Fatalf("expected ErrPriceBelowTrigger, got %v", err)
	}
	order, _ := engine.OrderDetails(id)
	if !order.Active || order.Executed {
		t.Fatalf("failed gate must leave the order untouched, got %+v", order)
	}

	clock.now = 1_700_003_600
	if err := engine.ExecuteOrder(context.Background(), id, big.NewInt(2_000), testExecutor); !errors.Is(err, ErrOrderExpired) {
		t.Fatalf("expected ErrOrderExpired, got %v", err)
	}

	if err := engine.ExecuteOrder(context.Background(), 99, big.NewInt(2_000), testExecutor); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestExecuteOrderSuccess(t *testing.T) {
	engine, exchange, _, _ := newTestEngine(t)
	id := mustCreate(t, engine, 15_000_000)

	if err := engine.ExecuteOrder(context.Background(), id, big.NewInt(1_000), testExecutor); err != nil {
		t.Fatalf("execute: %v", err)
	}
	order, err := engine.OrderDetails(id)
	if err != nil {
		t.Fatalf("order details: %v", err)
	}
	if order.Active || !order.Executed {
		t.Fatalf("executed order must be inactive and executed, got %+v", order)
	}

	if len(exchange.calls) != 1 {
		t.Fatalf("expected one router call, got %d", len(exchange.calls))
	}
	call := exchange.calls[0]
	if call.Method != "swapExactETHForTokens" {
		t.Fatalf("unexpected router method %q", call.Method)
	}
	// Tradable amount is the deposit net of the execution fee.
	if call.Value.Cmp(big.NewInt(5_000_000)) != 0 {
		t.Fatalf("expected payable value 5000000, got %s", call.Value)
	}

	balances, err := engine.Balances()
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if balances.Escrowed.Sign() != 0 {
		t.Fatalf("execution must release the escrow, got %s", balances.Escrowed)
	}
	if balances.FeesAccrued.Cmp(big.NewInt(10_000_000)) != 0 {
		t.Fatalf("expected fee accrual 10000000, got %s", balances.FeesAccrued)
	}

	if err := engine.ExecuteOrder(context.Background(), id, big.NewInt(1_000), testExecutor); !errors.Is(err, ErrOrderExecuted) {
		t.Fatalf("second execution must fail, got %v", err)
	}
}

func TestExecuteOrderRollsBackOnRevert(t *testing.T) {
	engine, exchange, _, _ := newTestEngine(t)
	id := mustCreate(t, engine, 15_000_000)

	exchange.executeErr = fmt.Errorf("INSUFFICIENT_LIQUIDITY")
	err := engine.ExecuteOrder(context.Background(), id, big.NewInt(1_000), testExecutor)
	if !errors.Is(err, ErrExecutionReverted) {
		t.Fatalf("expected ErrExecutionReverted, got %v", err)
	}

	order, _ := engine.OrderDetails(id)
	if !order.Active || order.Executed {
		t.Fatalf("reverted execution must leave the order active, got %+v", order)
	}
	balances, _ := engine.Balances()
	if balances.Escrowed.Cmp(big.NewInt(15_000_000)) != 0 {
		t.Fatalf("reverted execution must not move funds, got %s", balances.Escrowed)
	}
	if balances.FeesAccrued.Sign() != 0 {
		t.Fatalf("reverted execution must not accrue fees, got %s", balances.FeesAccrued)
	}

	// The order stays eligible for a later retry.
	exchange.executeErr = nil
	if err := engine.ExecuteOrder(context.Background(), id, big.NewInt(1_000), testExecutor); err != nil {
		t.Fatalf("retry after revert: %v", err)
	}
}

func TestExecuteOrderHonorsHardFloor(t *testing.T) {
	engine, exchange, _, _ := newTestEngine(t)
	minOut := big.NewInt(900_000_000)
	id, err := engine.CreateOrder(testOwner, testTokenOut, minOut, big.NewInt(1_000), 1_700_003_600, big.NewInt(15_000_000))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	// Quote of 5_000_000 with 2% slippage yields 4_900_000, below the
	// order's floor; the floor must win.
	if err := engine.ExecuteOrder(context.Background(), id, big.NewInt(1_000), testExecutor); err != nil {
		t.Fatalf("execute: %v", err)
	}
	call := exchange.calls[0]
	decoded, err := decodeSwapExactNative(call.Data)
	if err != nil {
		t.Fatalf("decode calldata: %v", err)
	}
	if decoded.amountOutMin.Cmp(minOut) != 0 {
		t.Fatalf("expected amountOutMin to be the order floor %s, got %s", minOut, decoded.amountOutMin)
	}
}

func TestCanExecuteReasons(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)

	if ok, reason := engine.CanExecute(7); ok || reason != "order not found" {
		t.Fatalf("unexpected probe result (%v, %q)", ok, reason)
	}

	id := mustCreate(t, engine, 15_000_000)
	if ok, reason := engine.CanExecute(id); !ok || reason != "executable" {
		t.Fatalf("unexpected probe result (%v, %q)", ok, reason)
	}

	clock.now = 1_700_003_600
	if ok, reason := engine.CanExecute(id); ok || reason != "order has expired" {
		t.Fatalf("unexpected probe result (%v, %q)", ok, reason)
	}
	clock.now = 1_700_000_000

	if err := engine.CancelOrder(context.Background(), id, testOwner); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if ok, reason := engine.CanExecute(id); ok || reason != "order is not active" {
		t.Fatalf("unexpected probe result (%v, %q)", ok, reason)
	}

	executed := mustCreate(t, engine, 15_000_000)
	if err := engine.ExecuteOrder(context.Background(), executed, big.NewInt(1_000), testExecutor); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if ok, reason := engine.CanExecute(executed); ok || reason != "order already executed" {
		t.Fatalf("unexpected probe result (%v, %q)", ok, reason)
	}
}

func TestOrderDetailsIsARepeatableRead(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	id := mustCreate(t, engine, 15_000_000)

	first, err := engine.OrderDetails(id)
	if err != nil {
		t.Fatalf("order details: %v", err)
	}
	second, err := engine.OrderDetails(id)
	if err != nil {
		t.Fatalf("order details: %v", err)
	}
	if first.ID != second.ID || first.Owner != second.Owner ||
		first.AmountIn.Cmp(second.AmountIn) != 0 ||
		first.Active != second.Active || first.Executed != second.Executed {
		t.Fatalf("consecutive reads disagree: %+v vs %+v", first, second)
	}

	// Mutating the snapshot must not leak into the ledger.
	first.AmountIn.SetInt64(1)
	third, _ := engine.OrderDetails(id)
	if third.AmountIn.Cmp(big.NewInt(15_000_000)) != 0 {
		t.Fatalf("snapshot mutation leaked into the ledger")
	}
}

func TestUserOrders(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	first := mustCreate(t, engine, 15_000_000)
	second := mustCreate(t, engine, 15_000_000)

	ids, err := engine.UserOrders(testOwner)
	if err != nil {
		t.Fatalf("user orders: %v", err)
	}
	if len(ids) != 2 || ids[0] != first || ids[1] != second {
		t.Fatalf("unexpected user orders %v", ids)
	}
}

func TestOptimalPathPolicy(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	path, desc := engine.OptimalPath(testTokenOut, big.NewInt(1_000))
	if len(path) != 3 || path[0] != testWrapped || path[1] != testUSD || path[2] != testTokenOut {
		t.Fatalf("expected multi-hop path, got %v (%s)", path, desc)
	}

	path, _ = engine.OptimalPath(testTokenOut, big.NewInt(1_000_000_000))
	if len(path) != 2 || path[0] != testWrapped || path[1] != testTokenOut {
		t.Fatalf("expected direct path above the threshold, got %v", path)
	}

	path, _ = engine.OptimalPath(testUSD, big.NewInt(1))
	if len(path) != 2 {
		t.Fatalf("expected direct path for the intermediate itself, got %v", path)
	}
}

func TestEstimatedAmountOutDegradesToZero(t *testing.T) {
	engine, exchange, _, _ := newTestEngine(t)

	exchange.amountsOut = []*big.Int{big.NewInt(5_000_000), big.NewInt(123_456)}
	out, path := engine.EstimatedAmountOut(context.Background(), testTokenOut, big.NewInt(5_000_000))
	if out.Cmp(big.NewInt(123_456)) != 0 {
		t.Fatalf("expected estimate 123456, got %s", out)
	}
	if len(path) == 0 {
		t.Fatalf("expected a path alongside the estimate")
	}

	exchange.amountsErr = fmt.Errorf("no pool")
	out, _ = engine.EstimatedAmountOut(context.Background(), testTokenOut, big.NewInt(5_000_000))
	if out.Sign() != 0 {
		t.Fatalf("expected zero estimate on failure, got %s", out)
	}
}

func TestAdminCapability(t *testing.T) {
	engine, _, sink, _ := newTestEngine(t)

	if err := engine.SetExecutor(testStranger, testStranger); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := engine.SetExecutor(testAdmin, testStranger); err != nil {
		t.Fatalf("set executor: %v", err)
	}
	cfg, err := engine.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Executor != testStranger {
		t.Fatalf("executor rotation not applied")
	}

	if err := engine.SetExecutionFee(testAdmin, big.NewInt(5)); err != nil {
		t.Fatalf("set execution fee: %v", err)
	}
	if err := engine.SetMinOrderAmount(testAdmin, big.NewInt(7)); err != nil {
		t.Fatalf("set min order amount: %v", err)
	}
	cfg, _ = engine.Config()
	if cfg.ExecutionFee.Cmp(big.NewInt(5)) != 0 || cfg.MinOrderAmount.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("parameter updates not applied: %+v", cfg)
	}

	// Fees can only leave custody after they accrued.
	if err := engine.WithdrawFees(context.Background(), testAdmin, testAdmin, big.NewInt(1)); err == nil {
		t.Fatalf("expected withdrawal to fail with no accrued fees")
	}
	if total := sink.payments[testAdmin]; total != nil {
		t.Fatalf("failed withdrawal must not pay out, got %s", total)
	}
}

func TestAuthorizedPredicate(t *testing.T) {
	params := Params{ExecutionFee: big.NewInt(1), MinOrderAmount: big.NewInt(1), Executor: testExecutor}
	if !Authorized(testExecutor, params) {
		t.Fatalf("executor must be authorized")
	}
	if Authorized(testStranger, params) {
		t.Fatalf("stranger must not be authorized")
	}
	params.PublicExecution = true
	if !Authorized(testStranger, params) {
		t.Fatalf("public execution must admit any caller")
	}
}

type swapExactNativeArgs struct {
	amountOutMin *big.Int
	path         []common.Address
	to           common.Address
	deadline     *big.Int
}

func decodeSwapExactNative(data []byte) (swapExactNativeArgs, error) {
	parsed, err := abi.JSON(strings.NewReader(`[
	  {"type":"function","name":"swapExactETHForTokens","stateMutability":"payable","inputs":[
	    {"name":"amountOutMin","type":"uint256"},
	    {"name":"path","type":"address[]"},
	    {"name":"to","type":"address"},
	    {"name":"deadline","type":"uint256"}],
	   "outputs":[{"name":"amounts","type":"uint256[]"}]}
	]`))
	if err != nil {
		return swapExactNativeArgs{}, err
	}
	method := parsed.Methods["swapExactETHForTokens"]
	if len(data) < 4 {
		return swapExactNativeArgs{}, fmt.Errorf("calldata too short")
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return swapExactNativeArgs{}, err
	}
	return swapExactNativeArgs{
		amountOutMin: values[0].(*big.Int),
		path:         values[1].([]common.Address),
		to:           values[2].(common.Address),
		deadline:     values[3].(*big.Int),
	}, nil
}
