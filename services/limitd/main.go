package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"swaplimit/native/limitorder"
	"swaplimit/observability"
	"swaplimit/observability/logging"
	telemetry "swaplimit/observability/otel"
	"swaplimit/quote"
	"swaplimit/registry"
	"swaplimit/router"
	"swaplimit/services/limitd/adapters"
	"swaplimit/services/limitd/config"
	"swaplimit/services/limitd/server"
	"swaplimit/storage"
)

// meterEmitter bridges engine lifecycle events into the prometheus registry.
type meterEmitter struct{}

func (meterEmitter) Emit(evt limitorder.Event) {
	observability.Orders().RecordLifecycle(evt.Type)
}

// meteredQuoter counts each quote by source so fallback drift is visible.
type meteredQuoter struct {
	inner *quote.Adapter
}

func (m meteredQuoter) QuoteExactInput(ctx context.Context, path []common.Address, amountIn *big.Int) (quote.Quote, error) {
	q, err := m.inner.QuoteExactInput(ctx, path, amountIn)
	if err == nil {
		observability.Quotes().RecordQuote(string(q.Source))
	}
	return q, err
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/limitd/config.yaml", "path to limitd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SWAPLIMIT_ENV"))
	logger := logging.Setup("limitd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "limitd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("limitd: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("limitd: load config: %v", err)
	}
	logger.Info("configuration loaded",
		"listen", cfg.ListenAddress,
		"database", cfg.DatabasePath,
		logging.MaskField("rpc_url", cfg.RPCURL))

	db, err := storage.NewLevelDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("limitd: open database: %v", err)
	}
	defer db.Close()

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		log.Fatalf("limitd: dial rpc: %v", err)
	}
	defer client.Close()

	routerAddr := cfg.Chain.RouterAddress()
	reader := router.NewReader(client, routerAddr)
	factory, err := reader.Factory(context.Background())
	if err != nil {
		logger.Warn("factory lookup failed; router info reports the zero address", "err", err)
	}

	route := limitorder.RouteConfig{
		Router:              routerAddr,
		WrappedNative:       cfg.Chain.WrappedNativeAddress(),
		Factory:             factory,
		Intermediate:        cfg.Chain.IntermediateAddress(),
		DirectPathThreshold: cfg.Chain.Threshold(),
	}
	params := limitorder.Params{
		ExecutionFee:    cfg.Orders.Fee(),
		MinOrderAmount:  cfg.Orders.MinAmount(),
		Executor:        cfg.Orders.ExecutorAddress(),
		PublicExecution: cfg.Orders.PublicExecution,
	}

	engine, err := limitorder.NewEngine(limitorder.NewLedger(db), params, route, cfg.Orders.AdminAddress())
	if err != nil {
		log.Fatalf("limitd: order engine: %v", err)
	}
	if err := engine.SetSlippagePercent(cfg.Orders.SlippagePercent); err != nil {
		log.Fatalf("limitd: slippage: %v", err)
	}

	quoteOpts := []quote.Option{
		quote.WithFeeTier(cfg.Orders.FeeTier),
		quote.WithStrict(cfg.Orders.StrictQuotes),
		quote.WithLogger(logger.With("component", "quote")),
	}
	quoter := meteredQuoter{inner: quote.NewAdapter(client, cfg.Chain.QuoterAddress(), quoteOpts...)}

	engine.SetQuoter(quoter)
	engine.SetExchange(adapters.NewRouterExchange(client, routerAddr, cfg.Orders.ExecutorAddress(), logger.With("component", "exchange")))
	engine.SetPayoutSink(adapters.NewAuditPayoutSink(logger.With("component", "payout")))
	engine.SetEmitter(meterEmitter{})
	engine.SetLogger(logger.With("component", "engine"))

	var resolver router.Resolver
	if strings.TrimSpace(cfg.Registry.BaseURL) != "" {
		registryClient, err := registry.NewClient(registry.Config{
			BaseURL: cfg.Registry.BaseURL,
			Timeout: cfg.Registry.Timeout.Duration,
		}, logger.With("component", "registry"))
		if err != nil {
			log.Fatalf("limitd: registry client: %v", err)
		}
		resolver = registryClient
	}

	builder := router.NewBuilder(routerAddr, quoter, reader, resolver, logger.With("component", "builder"))

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		DefaultExpiry: cfg.Orders.DefaultExpiry.Duration,
	}, engine, builder, logger.With("component", "http"))
	if err != nil {
		log.Fatalf("limitd: server: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http server error", "err", err)
		os.Exit(1)
	}
}
