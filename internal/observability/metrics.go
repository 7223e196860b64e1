// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Instruction metrics
	InstructionsTotal   *prometheus.CounterVec
	InstructionDuration *prometheus.HistogramVec

	// Money movement
	SwapsTotal         *prometheus.CounterVec
	SwapVolume         prometheus.Counter
	ProceedsWithdrawn  prometheus.Counter
	ProceedsWithdrawal prometheus.Counter

	// Journal metrics
	EventsJournaled     prometheus.Counter
	EventJournalErrors  prometheus.Counter
	StreamSubscribers   prometheus.Gauge
	StreamDroppedEvents prometheus.Counter

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "sai_swap"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Instruction metrics
		InstructionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "instructions_total",
			Help:      "Total number of instructions processed by name and result code",
		}, []string{"instruction", "code"}),
		InstructionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "instruction_duration_seconds",
			Help:      "Instruction processing latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"instruction"}),

		// Money movement
		SwapsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "swaps_total",
			Help:      "Total number of successful swaps by asset",
		}, []string{"asset"}),
		SwapVolume: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "swap_volume_base_units_total",
			Help:      "Settlement units paid into proceeds vaults",
		}),
		ProceedsWithdrawn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "proceeds_withdrawn_base_units_total",
			Help:      "Settlement units withdrawn from proceeds vaults",
		}),
		ProceedsWithdrawal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "proceeds_withdrawals_total",
			Help:      "Total number of successful proceeds withdrawals",
		}),

		// Journal metrics
		EventsJournaled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "events_total",
			Help:      "Total number of events written to the journal",
		}),
		EventJournalErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "errors_total",
			Help:      "Total number of events that failed to journal",
		}),
		StreamSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Connected websocket event subscribers",
		}),
		StreamDroppedEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "dropped_events_total",
			Help:      "Events dropped because a subscriber was too slow",
		}),

		// API metrics
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler exposing the metrics of g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// The Record* methods are safe to call on a nil *Metrics.

// RecordInstruction records one instruction outcome.
func (m *Metrics) RecordInstruction(instruction, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.InstructionsTotal.WithLabelValues(instruction, code).Inc()
	m.InstructionDuration.WithLabelValues(instruction).Observe(d.Seconds())
}

// RecordSwap records a successful swap.
func (m *Metrics) RecordSwap(asset string, paid uint64) {
	if m == nil {
		return
	}
	m.SwapsTotal.WithLabelValues(asset).Inc()
	m.SwapVolume.Add(float64(paid))
}

// RecordWithdrawal records a successful proceeds withdrawal.
func (m *Metrics) RecordWithdrawal(amount uint64) {
	if m == nil {
		return
	}
	m.ProceedsWithdrawal.Inc()
	m.ProceedsWithdrawn.Add(float64(amount))
}

// RecordJournal records the outcome of writing one event.
func (m *Metrics) RecordJournal(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.EventJournalErrors.Inc()
		return
	}
	m.EventsJournaled.Inc()
}

// RecordHTTP records an HTTP request.
func (m *Metrics) RecordHTTP(route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// SetSubscribers updates the websocket subscriber gauge.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.StreamSubscribers.Set(float64(n))
}

// RecordDroppedEvent counts an event not delivered to a slow subscriber.
func (m *Metrics) RecordDroppedEvent() {
	if m == nil {
		return
	}
	m.StreamDroppedEvents.Inc()
}
