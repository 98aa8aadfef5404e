package quote

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Source records which branch produced a quote. The distinction matters to
// callers: a fallback estimate is advisory and deliberately pessimistic.
type Source string

const (
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
)

// DefaultFeeTier is the pool fee (in hundredths of a bip) encoded into the
// quoting path when the caller does not override it. 3000 = 0.30%.
const DefaultFeeTier uint32 = 3000

// Quote is the ephemeral result of one quoting attempt. It is never
// persisted; executions recompute it per attempt.
type Quote struct {
	Path      []common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	Source    Source
}

// Live reports whether the quote came from the quoter rather than the
// conservative heuristic.
func (q Quote) Live() bool { return q.Source == SourceLive }

const quoterABIJSON = `[
  {"type":"function","name":"quoteExactInput","stateMutability":"nonpayable","inputs":[
    {"name":"path","type":"bytes"},
    {"name":"amountIn","type":"uint256"}],
   "outputs":[{"name":"amountOut","type":"uint256"}]}
]`

var quoterABI = mustParseABI(quoterABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractCaller is the read-only execution surface the adapter needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Adapter obtains expected output amounts from the exchange quoter. Unless
// configured strict, any failure degrades to FallbackEstimate instead of
// surfacing an error: the estimate only feeds the slippage bound, and the
// hard floor is still enforced by the router call itself, so a pessimistic
// number cannot cause an unsafe trade.
type Adapter struct {
	caller  ContractCaller
	quoter  common.Address
	feeTier uint32
	strict  bool
	logger  *slog.Logger
}

// Option tunes the adapter.
type Option func(*Adapter)

// WithFeeTier overrides the pool fee tier encoded into quoting paths.
func WithFeeTier(tier uint32) Option {
	return func(a *Adapter) { a.feeTier = tier }
}

// WithStrict makes quoting failures surface as errors instead of silently
// downgrading to the heuristic estimate.
func WithStrict(strict bool) Option {
	return func(a *Adapter) { a.strict = strict }
}

// WithLogger attaches a logger for degradation warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

func NewAdapter(caller ContractCaller, quoterAddr common.Address, opts ...Option) *Adapter {
	a := &Adapter{caller: caller, quoter: quoterAddr, feeTier: DefaultFeeTier, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// QuoteExactInput obtains the expected output for swapping amountIn along the
// hop route.
func (a *Adapter) QuoteExactInput(ctx context.Context, path []common.Address, amountIn *big.Int) (Quote, error) {
	result := Quote{Path: path, AmountIn: amountIn}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return result, fmt.Errorf("quote: amountIn must be positive")
	}
	if len(path) < 2 {
		return result, fmt.Errorf("quote: path must contain at least 2 tokens")
	}
	out, err := a.fetch(ctx, path, amountIn)
	if err != nil {
		if a.strict {
			return result, fmt.Errorf("quote: quoter call failed: %w", err)
		}
		a.logger.Warn("quoter unavailable, using conservative estimate",
			"err", err, "amountIn", amountIn.String())
		result.AmountOut = FallbackEstimate(amountIn)
		result.Source = SourceFallback
		return result, nil
	}
	result.AmountOut = out
	result.Source = SourceLive
	return result, nil
}

func (a *Adapter) fetch(ctx context.Context, path []common.Address, amountIn *big.Int) (*big.Int, error) {
	encoded, err := EncodePath(path, a.feeTier)
	if err != nil {
		return nil, err
	}
	data, err := quoterABI.Pack("quoteExactInput", encoded, amountIn)
	if err != nil {
		return nil, fmt.Errorf("pack quoteExactInput: %w", err)
	}
	raw, err := a.caller.CallContract(ctx, ethereum.CallMsg{To: &a.quoter, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	out, err := quoterABI.Unpack("quoteExactInput", raw)
	if err != nil {
		return nil, fmt.Errorf("decode quoteExactInput: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty quoteExactInput result")
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected quoteExactInput result type %T", out[0])
	}
	return amountOut, nil
}

// FallbackEstimate is the conservative heuristic substituted when the quoter
// is unreachable: floor(amountIn x 0.95).
func FallbackEstimate(amountIn *big.Int) *big.Int {
	out := new(big.Int).Mul(amountIn, big.NewInt(95))
	return out.Quo(out, big.NewInt(100))
}

// EncodePath packs the hop route into the quoter's byte form: each address is
// followed by a 3-byte big-endian fee tier, except the last.
func EncodePath(path []common.Address, feeTier uint32) ([]byte, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("quote: path must contain at least 2 tokens")
	}
	if feeTier >= 1<<24 {
		return nil, fmt.Errorf("quote: fee tier %d does not fit in 3 bytes", feeTier)
	}
	encoded := make([]byte, 0, len(path)*common.AddressLength+(len(path)-1)*3)
	for i, hop := range path {
		encoded = append(encoded, hop.Bytes()...)
		if i < len(path)-1 {
			encoded = append(encoded, byte(feeTier>>16), byte(feeTier>>8), byte(feeTier))
		}
	}
	return encoded, nil
}
