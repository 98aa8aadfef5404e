package router

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"swaplimit/quote"
	"swaplimit/registry"
)

// Quoter supplies the advisory output estimate for an exact-input swap.
type Quoter interface {
	QuoteExactInput(ctx context.Context, path []common.Address, amountIn *big.Int) (quote.Quote, error)
}

// Resolver maps a registry account id to its on-chain address.
type Resolver interface {
	Resolve(ctx context.Context, accountID string) (registry.Resolution, error)
}

// InputEstimator estimates the input required for an exact-output swap.
// *Reader satisfies it through getAmountsIn.
type InputEstimator interface {
	AmountsIn(ctx context.Context, amountOut *big.Int, path []common.Address) ([]*big.Int, error)
}

// Prepared is a fully assembled swap: the router call plus everything a
// caller needs to present or audit it.
type Prepared struct {
	Call      Call
	Operation Operation
	Bounds    Bounds
	Path      []common.Address
	Quote     quote.Quote
	Recipient registry.Resolution
	Deadline  uint64
	Slippage  float64
}

// Builder assembles swap requests into dispatchable router calls: it
// validates, quotes, derives the slippage bound, resolves the recipient and
// packs the variant-specific calldata.
type Builder struct {
	router    common.Address
	quoter    Quoter
	estimator InputEstimator
	resolver  Resolver
	logger    *slog.Logger
	nowFn     func() time.Time
}

func NewBuilder(routerAddr common.Address, quoter Quoter, estimator InputEstimator, resolver Resolver, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		router:    routerAddr,
		quoter:    quoter,
		estimator: estimator,
		resolver:  resolver,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// SetNowFunc overrides the clock, for deterministic deadlines in tests.
func (b *Builder) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	b.nowFn = now
}

// Prepare turns a validated request into a dispatchable call. No network
// interaction happens before validation passes.
func (b *Builder) Prepare(ctx context.Context, req Request) (Prepared, error) {
	if err := req.Validate(); err != nil {
		return Prepared{}, err
	}
	slippage := req.Slippage()
	deadline := req.EffectiveDeadline(b.nowFn())

	recipient, err := b.resolveRecipient(ctx, req)
	if err != nil {
		return Prepared{}, err
	}

	bounds := Bounds{}
	var q quote.Quote
	if req.Operation.ExactInput() {
		q, err = b.quoter.QuoteExactInput(ctx, req.TokenPath, req.AmountIn)
		if err != nil {
			return Prepared{}, err
		}
		bounds.In = new(big.Int).Set(req.AmountIn)
		bounds.OutMin = MinimumOutput(q.AmountOut, slippage)
	} else {
		amounts, err := b.estimator.AmountsIn(ctx, req.AmountOut, req.TokenPath)
		if err != nil {
			return Prepared{}, fmt.Errorf("router: estimate required input: %w", err)
		}
		if len(amounts) == 0 {
			return Prepared{}, fmt.Errorf("router: empty getAmountsIn result")
		}
		estimated := amounts[0]
		q = quote.Quote{Path: req.TokenPath, AmountIn: estimated, AmountOut: new(big.Int).Set(req.AmountOut), Source: quote.SourceLive}
		bounds.Out = new(big.Int).Set(req.AmountOut)
		bounds.InMax = MaximumInput(estimated, slippage)
	}

	call, err := PackSwap(b.router, req.Operation, bounds, req.TokenPath, recipient.Address, deadline)
	if err != nil {
		return Prepared{}, err
	}
	b.logger.Debug("prepared swap",
		"operation", string(req.Operation),
		"method", call.Method,
		"recipient", recipient.Address.Hex(),
		"recipientSource", string(recipient.Source),
		"quoteSource", string(q.Source))
	return Prepared{
		Call:      call,
		Operation: req.Operation,
		Bounds:    bounds,
		Path:      req.TokenPath,
		Quote:     q,
		Recipient: recipient,
		Deadline:  deadline,
		Slippage:  slippage,
	}, nil
}

func (b *Builder) resolveRecipient(ctx context.Context, req Request) (registry.Resolution, error) {
	if req.RecipientAccount != "" {
		if b.resolver == nil {
			return registry.Resolution{}, fmt.Errorf("router: no resolver configured for recipient account %q", req.RecipientAccount)
		}
		return b.resolver.Resolve(ctx, req.RecipientAccount)
	}
	if req.Recipient == (common.Address{}) {
		return registry.Resolution{}, &ValidationError{Field: "recipient", Reason: "recipient address or account id required"}
	}
	return registry.Resolution{Address: req.Recipient, Source: registry.SourceCanonical}, nil
}
