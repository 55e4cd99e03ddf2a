// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crowdsale-engine/internal/domain"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Sale metrics
	PurchasesTotal     prometheus.Counter
	PurchaseErrors     *prometheus.CounterVec
	TokensSold         prometheus.Gauge
	CurrencyRaised     prometheus.Gauge
	RefundsTotal       prometheus.Counter
	FinalizationsTotal prometheus.Counter
	EventsEmitted      *prometheus.CounterVec

	// Whitelist metrics
	WhitelistPending prometheus.Gauge
	WhitelistChanges *prometheus.CounterVec

	// Transport metrics
	HTTPRequestDuration *prometheus.HistogramVec
	WSClientsConnected  prometheus.Gauge
	WSMessagesSent      prometheus.Counter
	WSClientsEvicted    prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastPurchaseTimestamp prometheus.Gauge
	UptimeSeconds         prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "crowdsale_engine"
	}

	return &Metrics{
		// Sale metrics
		PurchasesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "purchases_total",
			Help:      "Total number of successful purchases",
		}),
		PurchaseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "purchase_errors_total",
			Help:      "Total number of rejected purchases by reason",
		}, []string{"reason"}),
		TokensSold: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "tokens_sold_units",
			Help:      "Whole asset units sold so far",
		}),
		CurrencyRaised: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "currency_raised_units",
			Help:      "Whole currency units held by the sale",
		}),
		RefundsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "refunds_total",
			Help:      "Total number of refunds paid out",
		}),
		FinalizationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "finalizations_total",
			Help:      "Total number of finalize operations",
		}),
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "events_emitted_total",
			Help:      "Total number of events emitted by type",
		}, []string{"type"}),

		// Whitelist metrics
		WhitelistPending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "whitelist",
			Name:      "pending_requests",
			Help:      "Current number of pending whitelist requests",
		}),
		WhitelistChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "whitelist",
			Name:      "changes_total",
			Help:      "Total number of whitelist status changes by resulting status",
		}, []string{"status"}),

		// Transport metrics
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
		WSClientsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients_connected",
			Help:      "Current number of connected WebSocket clients",
		}),
		WSMessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "messages_sent_total",
			Help:      "Total number of WebSocket messages sent",
		}),
		WSClientsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients_evicted_total",
			Help:      "Total number of WebSocket clients evicted for slow reads",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastPurchaseTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_purchase_timestamp",
			Help:      "Unix timestamp of the last successful purchase",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPurchaseError records a rejected purchase by reason.
func RecordPurchaseError(reason string) {
	DefaultMetrics.PurchaseErrors.WithLabelValues(reason).Inc()
}

// RecordDBError records a database query error.
func RecordDBError(database, operation string) {
	DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
}

// EventSink feeds emitted sale events into a Metrics instance. It plugs
// into the event fanout alongside the journal and WebSocket sinks.
type EventSink struct {
	m *Metrics
}

// NewEventSink creates a sink updating m, or DefaultMetrics if m is nil.
func NewEventSink(m *Metrics) *EventSink {
	if m == nil {
		m = DefaultMetrics
	}
	return &EventSink{m: m}
}

// Emit updates counters from the event stream.
func (s *EventSink) Emit(_ context.Context, e *domain.SaleEvent) {
	s.m.EventsEmitted.WithLabelValues(string(e.Type)).Inc()

	switch e.Type {
	case domain.EventBuy:
		s.m.PurchasesTotal.Inc()
		s.m.LastPurchaseTimestamp.Set(float64(e.Timestamp) / 1000)
	case domain.EventRefund:
		s.m.RefundsTotal.Inc()
	case domain.EventFinalize:
		s.m.FinalizationsTotal.Inc()
	case domain.EventWhitelistChanged:
		s.m.WhitelistChanges.WithLabelValues(string(e.Status)).Inc()
	}
}
