package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry holds all Prometheus metrics for noticerun
type Registry struct {
	gatherer prometheus.Gatherer

	// Gateway metrics
	InFlight    prometheus.Gauge
	Requests    *prometheus.CounterVec
	Throttled   *prometheus.CounterVec
	RequestTime *prometheus.HistogramVec

	// Upload metrics
	Uploads *prometheus.CounterVec

	// Orchestrator metrics
	LeasesProcessed  prometheus.Counter
	BuildingDuration *prometheus.HistogramVec

	// Trigger metrics
	Events *prometheus.CounterVec
}

// NewRegistry creates every metric and registers it on reg. A nil reg gets
// a fresh private registry.
func NewRegistry(reg *prometheus.Registry) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Registry{
		gatherer: reg,

		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "noticerun_gateway_in_flight",
			Help: "Requests currently holding a gateway slot",
		}),

		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noticerun_gateway_requests_total",
				Help: "Upstream requests by method and status code",
			},
			[]string{"method", "status"},
		),

		Throttled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noticerun_gateway_throttled_total",
				Help: "HTTP 429 responses by method",
			},
			[]string{"method"},
		),

		RequestTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "noticerun_gateway_request_seconds",
				Help:    "Upstream request latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"method"},
		),

		Uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noticerun_uploads_total",
				Help: "Presigned uploads by target and result",
			},
			[]string{"target", "result"},
		),

		LeasesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "noticerun_leases_processed_total",
			Help: "Lease notices successfully uploaded",
		}),

		BuildingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "noticerun_building_seconds",
				Help:    "Time spent on one building",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"result"},
		),

		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noticerun_trigger_events_total",
				Help: "Webhook events by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.InFlight, m.Requests, m.Throttled, m.RequestTime,
		m.Uploads, m.LeasesProcessed, m.BuildingDuration, m.Events,
	)
	return m
}

// RequestStarted marks a request as holding a gateway slot.
func (m *Registry) RequestStarted() {
	m.InFlight.Inc()
}

// RequestFinished records the outcome of one upstream attempt. A status of
// zero means a transport failure.
func (m *Registry) RequestFinished(method string, status int, d time.Duration) {
	m.InFlight.Dec()
	m.Requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RequestTime.WithLabelValues(method).Observe(d.Seconds())
}

// Throttle records a 429 from the upstream.
func (m *Registry) Throttle(method string) {
	m.Throttled.WithLabelValues(method).Inc()
}

// UploadResult records one presigned upload outcome.
func (m *Registry) UploadResult(target, result string) {
	m.Uploads.WithLabelValues(target, result).Inc()
}

// LeaseUploaded counts one lease notice delivered.
func (m *Registry) LeaseUploaded() {
	m.LeasesProcessed.Inc()
}

// BuildingFinished records the time spent on one building.
func (m *Registry) BuildingFinished(result string, d time.Duration) {
	m.BuildingDuration.WithLabelValues(result).Observe(d.Seconds())
	log.Debug().
		Str("result", result).
		Dur("duration", d).
		Msg("Building completed")
}

// Event records a webhook outcome.
func (m *Registry) Event(outcome string) {
	m.Events.WithLabelValues(outcome).Inc()
}

// Handler returns an HTTP handler for Prometheus metrics
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
