package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davidleathers/auction-ledger/internal/domain/values"
)

const namespace = "auction"

// etherDecimals converts smallest units into ether for float metrics
const etherDecimals = 18

// Prometheus collects ledger and HTTP metrics on its own registry so tests
// can build as many as they like.
type Prometheus struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bidDeposits       prometheus.Counter
	bidsAccepted      prometheus.Counter
	payouts           *prometheus.CounterVec
	auctions          prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	wsClients    prometheus.Gauge
}

// NewPrometheus registers every collector, plus Go runtime and process
// collectors, on a fresh registry
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations by outcome code",
			},
			[]string{"operation", "code"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Ledger operation latency including outbound transfers",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 18), // 10µs to ~1.3s
			},
			[]string{"operation"},
		),
		bidDeposits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "bid_deposits_ether_total",
				Help:      "Value deposited with accepted bids",
			},
		),
		bidsAccepted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "bids_accepted_total",
				Help:      "Number of accepted bids",
			},
		),
		payouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "payouts_ether_total",
				Help:      "Value paid out of the ledger by kind",
			},
			[]string{"kind"},
		),
		auctions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "auctions",
				Help:      "Auctions created since the ledger started",
			},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "handler", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			},
			[]string{"method", "handler"},
		),
		wsClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ws",
				Name:      "clients",
				Help:      "Connected WebSocket clients",
			},
		),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.operations,
		p.operationDuration,
		p.bidDeposits,
		p.bidsAccepted,
		p.payouts,
		p.auctions,
		p.httpRequests,
		p.httpDuration,
		p.wsClients,
	)
	return p
}

// Registry exposes the underlying registry for gathering in tests
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) RecordOperation(op string, code string, duration time.Duration) {
	p.operations.WithLabelValues(op, code).Inc()
	p.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (p *Prometheus) RecordBid(deposit values.Amount) {
	p.bidsAccepted.Inc()
	p.bidDeposits.Add(ether(deposit))
}

func (p *Prometheus) RecordPayout(kind string, amount values.Amount) {
	p.payouts.WithLabelValues(kind).Add(ether(amount))
}

func (p *Prometheus) SetAuctions(total int) {
	p.auctions.Set(float64(total))
}

// RecordHTTP records one served request. handler should be the route
// pattern, not the raw path, to keep label cardinality bounded.
func (p *Prometheus) RecordHTTP(method, handler string, status int, duration time.Duration) {
	p.httpRequests.WithLabelValues(method, handler, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, handler).Observe(duration.Seconds())
}

// SetWebSocketClients reports the hub's client count
func (p *Prometheus) SetWebSocketClients(n int) {
	p.wsClients.Set(float64(n))
}

func ether(a values.Amount) float64 {
	return a.Decimal().Shift(-etherDecimals).InexactFloat64()
}
