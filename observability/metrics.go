package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type apiMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

type orderMetrics struct {
	lifecycle     *prometheus.CounterVec
	execLatency   prometheus.Histogram
	execFailures  *prometheus.CounterVec
	escrowBalance prometheus.Gauge
	feesAccrued   prometheus.Gauge
}

type quoteMetrics struct {
	requests *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiRegistry    *apiMetrics

	orderMetricsOnce sync.Once
	orderRegistry    *orderMetrics

	quoteMetricsOnce sync.Once
	quoteRegistry    *quoteMetrics
)

// API returns the lazily-initialised registry used to record HTTP handler
// activity.
func API() *apiMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &apiMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swaplimit",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by route, method and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swaplimit",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total HTTP errors segmented by route, method and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "swaplimit",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.errors,
			apiRegistry.latency,
		)
	})
	return apiRegistry
}

// Observe records the outcome of one HTTP request. The status code should be
// the one ultimately written to the response writer.
func (m *apiMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// Orders returns the registry tracking order lifecycle health.
func Orders() *orderMetrics {
	orderMetricsOnce.Do(func() {
		orderRegistry = &orderMetrics{
			lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swaplimit",
				Subsystem: "orders",
				Name:      "lifecycle_total",
				Help:      "Count of order lifecycle transitions segmented by event type.",
			}, []string{"event"}),
			execLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "swaplimit",
				Subsystem: "orders",
				Name:      "execution_duration_seconds",
				Help:      "Latency distribution for order execution attempts.",
				Buckets:   prometheus.DefBuckets,
			}),
			execFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swaplimit",
				Subsystem: "orders",
				Name:      "execution_failures_total",
				Help:      "Count of failed execution attempts segmented by reason.",
			}, []string{"reason"}),
			escrowBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "swaplimit",
				Subsystem: "orders",
				Name:      "escrow_balance",
				Help:      "Native currency currently held in escrow for active orders.",
			}),
			feesAccrued: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "swaplimit",
				Subsystem: "orders",
				Name:      "fees_accrued",
				Help:      "Execution fees accrued and not yet withdrawn.",
			}),
		}
		prometheus.MustRegister(
			orderRegistry.lifecycle,
			orderRegistry.execLatency,
			orderRegistry.execFailures,
			orderRegistry.escrowBalance,
			orderRegistry.feesAccrued,
		)
	})
	return orderRegistry
}

// RecordLifecycle increments the lifecycle counter for the supplied event
// type. Event types should be the stable dotted names emitted by the engine.
func (m *orderMetrics) RecordLifecycle(event string) {
	if m == nil {
		return
	}
	event = strings.TrimSpace(event)
	if event == "" {
		event = "unknown"
	}
	m.lifecycle.WithLabelValues(event).Inc()
}

// ObserveExecution records the duration of one execution attempt and, when it
// failed, the failure reason.
func (m *orderMetrics) ObserveExecution(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.execLatency.Observe(duration.Seconds())
	if err != nil {
		reason := strings.TrimSpace(err.Error())
		if reason == "" {
			reason = "unknown"
		}
		m.execFailures.WithLabelValues(reason).Inc()
	}
}

// RecordBalances updates the escrow and fee gauges.
func (m *orderMetrics) RecordBalances(escrowed, fees *big.Int) {
	if m == nil {
		return
	}
	m.escrowBalance.Set(bigToFloat(escrowed))
	m.feesAccrued.Set(bigToFloat(fees))
}

// Quotes returns the registry tracking quoter health.
func Quotes() *quoteMetrics {
	quoteMetricsOnce.Do(func() {
		quoteRegistry = &quoteMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swaplimit",
				Subsystem: "quotes",
				Name:      "requests_total",
				Help:      "Count of quote attempts segmented by source (live or fallback).",
			}, []string{"source"}),
		}
		prometheus.MustRegister(quoteRegistry.requests)
	})
	return quoteRegistry
}

// RecordQuote increments the quote counter for the supplied source.
func (m *quoteMetrics) RecordQuote(source string) {
	if m == nil {
		return
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = "unknown"
	}
	m.requests.WithLabelValues(source).Inc()
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
