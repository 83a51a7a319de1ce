package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi dan ledger.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	postings        *prometheus.CounterVec
	aggregations    *prometheus.CounterVec
	conflictRetries *prometheus.CounterVec
	inventory       *prometheus.CounterVec
	amortization    *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_postings_total",
		Help: "Permintaan posting jurnal berdasarkan modul dan hasil.",
	}, []string{"module", "outcome"})
	aggregations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_aggregations_total",
		Help: "Agregasi saldo periode berdasarkan efek dan hasil.",
	}, []string{"effect", "outcome"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_conflict_retries_total",
		Help: "Retry akibat konflik update saldo bersamaan.",
	}, []string{"component"})
	inventory := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_events_total",
		Help: "Kejadian costing persediaan berdasarkan jenis.",
	}, []string{"event"})
	amortization := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_amortization_occurrences_total",
		Help: "Okurensi amortisasi berdasarkan hasil.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, postings, aggregations, retries, inventory, amortization)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		postings:        postings,
		aggregations:    aggregations,
		conflictRetries: retries,
		inventory:       inventory,
		amortization:    amortization,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Jobs mengembalikan metrik job latar belakang yang terdaftar pada registry yang sama.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// ObservePosting mencatat hasil posting jurnal.
func (m *Metrics) ObservePosting(module, outcome string) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(module, outcome).Inc()
}

// ObserveAggregation mencatat hasil agregasi.
func (m *Metrics) ObserveAggregation(effect, outcome string) {
	if m == nil {
		return
	}
	m.aggregations.WithLabelValues(effect, outcome).Inc()
}

// ObserveConflictRetries menambah jumlah retry konflik.
func (m *Metrics) ObserveConflictRetries(component string, retries int) {
	if m == nil || retries <= 0 {
		return
	}
	m.conflictRetries.WithLabelValues(component).Add(float64(retries))
}

// ObserveInventory mencatat kejadian costing persediaan.
func (m *Metrics) ObserveInventory(event string) {
	if m == nil {
		return
	}
	m.inventory.WithLabelValues(event).Inc()
}

// ObserveAmortization menambah okurensi amortisasi per hasil.
func (m *Metrics) ObserveAmortization(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.amortization.WithLabelValues(outcome).Add(float64(n))
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
