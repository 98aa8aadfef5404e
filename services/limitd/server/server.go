package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"swaplimit/native/limitorder"
	"swaplimit/router"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	// DefaultExpiry is applied when an order creation request omits the
	// expiry timestamp.
	DefaultExpiry time.Duration
}

// Server hosts the order lifecycle and swap-building surface for limitd.
type Server struct {
	cfg     Config
	engine  *limitorder.Engine
	builder *router.Builder
	logger  *slog.Logger
	nowFn   func() time.Time
}

// New constructs the HTTP server around the order engine and swap builder.
func New(cfg Config, engine *limitorder.Engine, builder *router.Builder, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("server: order engine required")
	}
	if builder == nil {
		return nil, fmt.Errorf("server: swap builder required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.DefaultExpiry <= 0 {
		cfg.DefaultExpiry = 24 * time.Hour
	}
	return &Server{
		cfg:     cfg,
		engine:  engine,
		builder: builder,
		logger:  logger,
		nowFn:   time.Now,
	}, nil
}

// SetNowFunc overrides the clock used for default expiries in tests.
func (s *Server) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.nowFn = now
}

// Handler assembles the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(apiMetrics)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/orders", s.handleCreateOrder)
		v1.Get("/orders", s.handleUserOrders)
		v1.Get("/orders/{id}", s.handleOrderDetails)
		v1.Get("/orders/{id}/eligibility", s.handleEligibility)
		v1.Post("/orders/{id}/cancel", s.handleCancelOrder)
		v1.Post("/orders/{id}/execute", s.handleExecuteOrder)
		v1.Get("/config", s.handleConfig)
		v1.Get("/router", s.handleRouterInfo)
		v1.Get("/balance", s.handleBalance)
		v1.Get("/estimate", s.handleEstimate)
		v1.Post("/swap", s.handleBuildSwap)
	})
	return r
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddress,
		Handler: otelhttp.NewHandler(s.Handler(), "limitd"),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "addr", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}
