// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for the ledger daemon.
package observability

import (
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jetton-ledger/internal/channel"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/vm"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Channel metrics
	MessagesEnqueued prometheus.Counter
	MailboxPending   prometheus.Gauge
	DeliveryLatency  prometheus.Histogram

	// Execution metrics
	TransactionsProcessed *prometheus.CounterVec
	TransactionsAborted   *prometheus.CounterVec
	BouncesReceived       prometheus.Counter
	Deployments           prometheus.Counter
	ProcessingLatency     *prometheus.HistogramVec
	FeesCollected         *prometheus.CounterVec

	// Ledger metrics
	TotalSupply        *prometheus.GaugeVec
	InvariantChecks    *prometheus.CounterVec
	InvariantWalletSum *prometheus.GaugeVec

	// API metrics
	HTTPRequests      *prometheus.CounterVec
	HTTPLatency       *prometheus.HistogramVec
	FeedSubscribers   prometheus.Gauge
	FeedDroppedEvents prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the Prometheus default registry.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "jetton_ledger"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Channel metrics
		MessagesEnqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "messages_enqueued_total",
			Help:      "Total number of messages accepted by the channel",
		}),
		MailboxPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "pending_messages",
			Help:      "Messages queued or being delivered",
		}),
		DeliveryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "delivery_latency_seconds",
			Help:      "Time spent delivering one message",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),

		// Execution metrics
		TransactionsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "transactions_total",
			Help:      "Total number of processed messages by opcode",
		}, []string{"opcode"}),
		TransactionsAborted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "transactions_aborted_total",
			Help:      "Total number of aborted messages by exit code",
		}, []string{"exit_code"}),
		BouncesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "bounces_total",
			Help:      "Total number of bounced messages processed",
		}),
		Deployments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "deployments_total",
			Help:      "Total number of accounts materialized from a state init",
		}),
		ProcessingLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "processing_latency_seconds",
			Help:      "Message processing latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"opcode"}),
		FeesCollected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vm",
			Name:      "fees_nano_total",
			Help:      "Fees charged in nano units by kind",
		}, []string{"kind"}),

		// Ledger metrics
		TotalSupply: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jetton",
			Name:      "total_supply",
			Help:      "Last observed total supply per master, in base units",
		}, []string{"master"}),
		InvariantChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jetton",
			Name:      "invariant_checks_total",
			Help:      "Supply invariant checks by result",
		}, []string{"result"}),
		InvariantWalletSum: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jetton",
			Name:      "wallet_balance_sum",
			Help:      "Sum of wallet balances at the last invariant check",
		}, []string{"master"}),

		// API metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		FeedSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "feed_subscribers",
			Help:      "Connected trace feed subscribers",
		}),
		FeedDroppedEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "feed_dropped_total",
			Help:      "Trace events dropped for slow subscribers",
		}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"store", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a /metrics handler serving the metrics gathered by g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// MessageEnqueued implements channel.Observer.
func (m *Metrics) MessageEnqueued(pending int) {
	m.MessagesEnqueued.Inc()
	m.MailboxPending.Set(float64(pending))
}

// MessageDelivered implements channel.Observer.
func (m *Metrics) MessageDelivered(pending int, took time.Duration) {
	m.MailboxPending.Set(float64(pending))
	m.DeliveryLatency.Observe(took.Seconds())
}

// TransactionProcessed implements vm.Observer.
func (m *Metrics) TransactionProcessed(tx *domain.Transaction, took time.Duration) {
	op := opcodeLabel(tx.Opcode)
	m.TransactionsProcessed.WithLabelValues(op).Inc()
	m.ProcessingLatency.WithLabelValues(op).Observe(took.Seconds())

	if tx.Aborted {
		m.TransactionsAborted.WithLabelValues(strconv.Itoa(int(tx.ExitCode))).Inc()
	}
	if tx.Bounced {
		m.BouncesReceived.Inc()
	}
	if tx.Deployed && !tx.Aborted {
		m.Deployments.Inc()
	}
	if fee, ok := tx.ComputeFee.Uint64(); ok {
		m.FeesCollected.WithLabelValues("compute").Add(float64(fee))
	}
	if fee, ok := tx.ForwardFees.Uint64(); ok {
		m.FeesCollected.WithLabelValues("forward").Add(float64(fee))
	}
}

// RecordSupply records the result of a supply invariant check.
func (m *Metrics) RecordSupply(master domain.Address, supply, walletSum domain.Coins, consistent bool) {
	label := master.String()
	m.TotalSupply.WithLabelValues(label).Set(coinsFloat(supply))
	m.InvariantWalletSum.WithLabelValues(label).Set(coinsFloat(walletSum))

	result := "consistent"
	if !consistent {
		result = "violated"
	}
	m.InvariantChecks.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an API request.
func (m *Metrics) RecordHTTPRequest(route string, status int, took time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(took.Seconds())
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(store, operation string, took time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(store, operation).Observe(took.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(store, operation).Inc()
	}
}

// opcodeLabel bounds label cardinality: raw messages may carry any opcode.
func opcodeLabel(op uint32) string {
	if op == 0 {
		return "none"
	}
	name := domain.Opcode(op).String()
	if strings.HasPrefix(name, "0x") {
		return "other"
	}
	return name
}

func coinsFloat(c domain.Coins) float64 {
	f, _ := new(big.Float).SetInt(c.Big()).Float64()
	return f
}

var (
	_ channel.Observer = (*Metrics)(nil)
	_ vm.Observer      = (*Metrics)(nil)
)
