// Package metrics exposes the bot's Prometheus metrics on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ats"

// Symbol outcomes recorded per scan.
const (
	OutcomeCandidate = "candidate"
	OutcomeNotAPlus  = "not_aplus"
	OutcomeRejected  = "gate_rejected"
	OutcomePlanned   = "planned"
	OutcomeError     = "error"
)

// Metrics holds all Prometheus metrics for the bot
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal       *prometheus.CounterVec
	ScanDuration     prometheus.Histogram
	SymbolsTotal     *prometheus.CounterVec
	GateRejections   *prometheus.CounterVec
	PlansTotal       *prometheus.CounterVec
	OrdersTotal      *prometheus.CounterVec
	ExchangeRequests *prometheus.CounterVec
	ExchangeLatency  *prometheus.HistogramVec
	ExchangeRetries  *prometheus.CounterVec
	PoolSize         prometheus.Gauge
	OverlaySize      prometheus.Gauge
	Scanning         prometheus.Gauge
	LastScan         prometheus.Gauge
}

// New creates the metrics and registers them, with the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Total number of scan passes by result",
			},
			[]string{"result"},
		),

		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scan_duration_seconds",
				Help:      "Duration of a full scan pass in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		SymbolsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "symbols_total",
				Help:      "Symbols evaluated by outcome",
			},
			[]string{"outcome"},
		),

		GateRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_rejections_total",
				Help:      "Candidates rejected by each gate",
			},
			[]string{"gate"},
		),

		PlansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plans_total",
				Help:      "Plans recorded by mode",
			},
			[]string{"mode"},
		),

		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_total",
				Help:      "Ladder legs by result (placed, dry, skipped, failed)",
			},
			[]string{"result"},
		),

		ExchangeRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchange_requests_total",
				Help:      "Exchange REST requests by endpoint and HTTP status",
			},
			[]string{"endpoint", "status"},
		),

		ExchangeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "exchange_request_duration_seconds",
				Help:      "Exchange REST request latency",
				Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint"},
		),

		ExchangeRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchange_retries_total",
				Help:      "Exchange request retries by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),

		PoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_size",
			Help:      "Symbols in the last scanned pool",
		}),

		OverlaySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overlay_size",
			Help:      "Overlay symbols above the minimum heat",
		}),

		Scanning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scanning",
			Help:      "1 while a scan pass is running, 0 while sleeping",
		}),

		LastScan: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_scan_timestamp_seconds",
			Help:      "Unix time of the last completed scan",
		}),
	}

	m.registry.MustRegister(
		m.ScansTotal,
		m.ScanDuration,
		m.SymbolsTotal,
		m.GateRejections,
		m.PlansTotal,
		m.OrdersTotal,
		m.ExchangeRequests,
		m.ExchangeLatency,
		m.ExchangeRetries,
		m.PoolSize,
		m.OverlaySize,
		m.Scanning,
		m.LastScan,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest implements binance.Observer.
func (m *Metrics) ObserveRequest(endpoint string, status int, d time.Duration) {
	m.ExchangeRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.ExchangeLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveRetry implements binance.Observer.
func (m *Metrics) ObserveRetry(endpoint string, outcome string) {
	m.ExchangeRetries.WithLabelValues(endpoint, outcome).Inc()
}

// ScanFinished records a completed or failed pass.
func (m *Metrics) ScanFinished(ok bool, d time.Duration, at time.Time) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.ScansTotal.WithLabelValues(result).Inc()
	m.ScanDuration.Observe(d.Seconds())
	m.LastScan.Set(float64(at.Unix()))
}

// SetScanning flips the state gauge.
func (m *Metrics) SetScanning(on bool) {
	if on {
		m.Scanning.Set(1)
		return
	}
	m.Scanning.Set(0)
}

func (m *Metrics) Symbol(outcome string) {
	m.SymbolsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GateRejected(gate string) {
	m.GateRejections.WithLabelValues(gate).Inc()
}

func (m *Metrics) Plan(mode string) {
	m.PlansTotal.WithLabelValues(mode).Inc()
}

func (m *Metrics) Order(result string) {
	m.OrdersTotal.WithLabelValues(result).Inc()
}
