package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements core.MetricsRecorder on a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	BatchesTotal      *prometheus.CounterVec
	BatchSize         prometheus.Histogram
	DeliveriesStarted prometheus.Counter
	DeliveriesTotal   *prometheus.CounterVec
	DeliveryDuration  *prometheus.HistogramVec
	TracksDelivered   prometheus.Counter
	RateLimitRetries  prometheus.Counter
	DeliveryActive    prometheus.Gauge
}

func NewMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartshuffle_batches_total",
				Help: "Total number of shuffle batches computed",
			},
			[]string{"cycle_complete"},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "smartshuffle_batch_size",
				Help:    "Number of tracks selected per batch",
				Buckets: []float64{1, 10, 50, 100, 150, 250, 400},
			},
		),
		DeliveriesStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "smartshuffle_deliveries_started_total",
				Help: "Total number of queue deliveries started",
			},
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartshuffle_deliveries_total",
				Help: "Total number of finished queue deliveries by outcome",
			},
			[]string{"outcome"},
		),
		DeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smartshuffle_delivery_duration_seconds",
				Help:    "Time from delivery start to its outcome",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"outcome"},
		),
		TracksDelivered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "smartshuffle_tracks_delivered_total",
				Help: "Total number of tracks enqueued on a playback device",
			},
		),
		RateLimitRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "smartshuffle_rate_limit_retries_total",
				Help: "Total number of enqueue retries after a rate limit response",
			},
		),
		DeliveryActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "smartshuffle_delivery_active",
				Help: "Whether a queue delivery is running (1) or idle (0)",
			},
		),
	}

	metrics.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.BatchesTotal,
		metrics.BatchSize,
		metrics.DeliveriesStarted,
		metrics.DeliveriesTotal,
		metrics.DeliveryDuration,
		metrics.TracksDelivered,
		metrics.RateLimitRetries,
		metrics.DeliveryActive,
	)

	return metrics
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordBatch(size int, cycleComplete bool) {
	m.BatchesTotal.WithLabelValues(strconv.FormatBool(cycleComplete)).Inc()
	m.BatchSize.Observe(float64(size))
}

func (m *Metrics) RecordDeliveryStarted() {
	m.DeliveriesStarted.Inc()
}

func (m *Metrics) RecordDeliveryOutcome(outcome string, duration time.Duration) {
	m.DeliveriesTotal.WithLabelValues(outcome).Inc()
	m.DeliveryDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *Metrics) RecordTrackDelivered() {
	m.TracksDelivered.Inc()
}

func (m *Metrics) RecordRateLimitRetry() {
	m.RateLimitRetries.Inc()
}

func (m *Metrics) SetDeliveryActive(active bool) {
	if active {
		m.DeliveryActive.Set(1)
		return
	}
	m.DeliveryActive.Set(0)
}
