// Package observability exposes Prometheus metrics for the service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	unitsSold       prometheus.Counter
	sellRejections  *prometheus.CounterVec
	productsIngest  prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "picklane_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "picklane_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	unitsSold := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "picklane_units_sold_total",
		Help: "Units allocated to orders.",
	})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "picklane_sell_rejections_total",
		Help: "Sell requests rejected before commit, by reason.",
	}, []string{"reason"})
	ingested := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "picklane_products_ingested_total",
		Help: "Product lines inserted through the ingest endpoint.",
	})
	registry.MustRegister(requests, duration, unitsSold, rejections, ingested)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		unitsSold:       unitsSold,
		sellRejections:  rejections,
		productsIngest:  ingested,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
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

// RecordSale counts units allocated by a committed sale.
func (m *Metrics) RecordSale(quantity int) {
	if m == nil {
		return
	}
	m.unitsSold.Add(float64(quantity))
}

// RecordSellRejection counts a sell request that was rejected before commit.
func (m *Metrics) RecordSellRejection(reason string) {
	if m == nil {
		return
	}
	m.sellRejections.WithLabelValues(reason).Inc()
}

// RecordIngest counts product lines accepted by the ingest path.
func (m *Metrics) RecordIngest(inserted int) {
	if m == nil {
		return
	}
	m.productsIngest.Add(float64(inserted))
}

// Registerer exposes the registry for registering custom metrics.
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
