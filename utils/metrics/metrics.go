package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// DefaultNamespace prefixes every metric exported by solarb
const DefaultNamespace = "solarb"

// Quote attempt outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeTransport = "transport_failure"
	OutcomeService   = "service_error"
	OutcomeNoRoute   = "no_route"
)

// Cycle evaluation results
const (
	ResultOpportunity    = "opportunity"
	ResultBelowThreshold = "below_threshold"
	ResultNoQuote        = "no_quote"
)

// NewRegistry returns a registry carrying the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes the registry in the Prometheus text format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// QuoteMetrics tracks requests made to the quoting service
type QuoteMetrics struct {
	Attempts  *prometheus.CounterVec
	Retries   prometheus.Counter
	Exhausted prometheus.Counter
	Latency   prometheus.Histogram
}

func NewQuoteMetrics(reg prometheus.Registerer, namespace string) *QuoteMetrics {
	factory := promauto.With(reg)
	return &QuoteMetrics{
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_attempts_total",
			Help:      "Quote request attempts by outcome",
		}, []string{"outcome"}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_retries_total",
			Help:      "Retry delays awaited between quote attempts",
		}),
		Exhausted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_exhausted_total",
			Help:      "Quote requests that ran out of attempts",
		}),
		Latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_request_duration_seconds",
			Help:      "Round-trip time of a single quote attempt",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms .. ~5s
		}),
	}
}

// ArbitrageMetrics tracks cycle evaluations and the monitor loop
type ArbitrageMetrics struct {
	Iterations        prometheus.Counter
	IterationFailures prometheus.Counter
	Cycles            *prometheus.CounterVec
	ProfitPercent     prometheus.Histogram
	LastProfitPercent prometheus.Gauge
	EvaluationTime    prometheus.Histogram
}

func NewArbitrageMetrics(reg prometheus.Registerer, namespace string) *ArbitrageMetrics {
	factory := promauto.With(reg)
	return &ArbitrageMetrics{
		Iterations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_iterations_total",
			Help:      "Completed monitor loop passes",
		}),
		IterationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_iteration_failures_total",
			Help:      "Monitor loop passes that ended in an unexpected failure",
		}),
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_evaluated_total",
			Help:      "Round-trip cycle evaluations by result",
		}, []string{"result"}),
		ProfitPercent: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_profit_percent",
			Help:      "Profit percentage of fully evaluated cycles",
			Buckets:   prometheus.LinearBuckets(-2, 0.25, 17), // -2% .. +2%
		}),
		LastProfitPercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycle_last_profit_percent",
			Help:      "Profit percentage of the most recent fully evaluated cycle",
		}),
		EvaluationTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_evaluation_duration_seconds",
			Help:      "Wall time spent evaluating one cycle",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

// Snapshot is a point-in-time read of the loop counters
type Snapshot struct {
	Iterations        uint64
	IterationFailures uint64
	Opportunities     uint64
	BelowThreshold    uint64
	NoQuote           uint64
}

// Snapshot reads the current counter values
func (m *ArbitrageMetrics) Snapshot() Snapshot {
	return Snapshot{
		Iterations:        counterValue(m.Iterations),
		IterationFailures: counterValue(m.IterationFailures),
		Opportunities:     counterValue(m.Cycles.WithLabelValues(ResultOpportunity)),
		BelowThreshold:    counterValue(m.Cycles.WithLabelValues(ResultBelowThreshold)),
		NoQuote:           counterValue(m.Cycles.WithLabelValues(ResultNoQuote)),
	}
}

func counterValue(c prometheus.Counter) uint64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return uint64(m.GetCounter().GetValue())
}
