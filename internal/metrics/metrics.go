package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Solves counts instance solves by algorithm and outcome (optimal, no_solution, invalid)
	Solves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ottoroute_solves_total", Help: "Instance solves by algorithm and outcome."},
		[]string{"algorithm", "outcome"},
	)
	// SolveDuration records per-instance solve time in seconds
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "ottoroute_solve_duration_seconds", Help: "Per-instance solve time in seconds.", Buckets: []float64{.0001, .001, .01, .1, .5, 1, 5, 30}},
		[]string{"algorithm"},
	)
	// Waypoints tracks instance sizes
	Waypoints = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "ottoroute_instance_waypoints", Help: "Waypoints per solved instance.", Buckets: prometheus.ExponentialBuckets(1, 2, 10)},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers every collector on Registry. Safe to call more than once.
func RegisterDefault() {
	regOnce.Do(func(){
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Solves)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(Waypoints)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// ObserveSolve records one instance outcome.
func ObserveSolve(algorithm, outcome string, seconds float64, waypoints int) {
	Solves.WithLabelValues(algorithm, outcome).Inc()
	SolveDuration.WithLabelValues(algorithm).Observe(seconds)
	Waypoints.Observe(float64(waypoints))
}
