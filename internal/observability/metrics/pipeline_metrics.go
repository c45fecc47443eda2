package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks the sale-detection and delisting pipeline.
type PipelineMetrics struct {
	webhookEvents      *prometheus.CounterVec
	saleEvents         *prometheus.CounterVec
	pollListings       *prometheus.CounterVec
	pollSalesDetected  *prometheus.CounterVec
	delistAttempts     *prometheus.CounterVec
	delistDuration     *prometheus.HistogramVec
	jobsFinished       *prometheus.CounterVec
	jobsStuck          prometheus.Gauge
	breakerTransitions *prometheus.CounterVec
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

// Pipeline returns the singleton pipeline metrics registry.
func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

// PipelineWithConfig returns the singleton pipeline metrics registry using config labels.
func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pipelineMetrics
}

// ResetPipelineMetricsForTest resets the pipeline metrics singleton for tests.
func ResetPipelineMetricsForTest() {
	pipelineMetricsOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "crosslist_webhook_events_total",
		Help:        "Inbound webhook events by marketplace and result.",
		ConstLabels: labels,
	}, []string{"marketplace", "result"})
	saleEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "crosslist_sale_events_total",
		Help:        "Recorded sale events by marketplace, source and dedup result.",
		ConstLabels: labels,
	}, []string{"marketplace", "source", "result"})
	pollListings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "crosslist_poll_listings_checked_total",
		Help:        "Listings checked by the sale poller.",
		ConstLabels: labels,
	}, []string{"marketplace"})
	pollSalesDetected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "crosslist_poll_sales_detected_total",
		Help:        "Sales the poller discovered.",
		ConstLabels: labels,
	}, []string{"marketplace"})
	delistAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "crosslist_delist_attempts_total",
		Help:        "Per-marketplace delist attempts by outcome.",
		ConstLabels: labels,
	}, []string{"marketplace", "outcome"})
	delistDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "crosslist_delist_duration_seconds",
		Help:        "Per-marketplace delist call latency.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		ConstLabels: labels,
	}, []string{"marketplace"})
	jobsFinished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "crosslist_delisting_jobs_finished_total",
		Help:        "Delisting jobs by terminal status.",
		ConstLabels: labels,
	}, []string{"status"})
	jobsStuck := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "crosslist_delisting_jobs_stuck",
		Help:        "Jobs observed in processing beyond the recovery threshold.",
		ConstLabels: labels,
	})
	breakerTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "crosslist_circuit_breaker_transitions_total",
		Help:        "Circuit breaker state transitions by key.",
		ConstLabels: labels,
	}, []string{"key", "state"})

	registerer.MustRegister(
		webhookEvents,
		saleEvents,
		pollListings,
		pollSalesDetected,
		delistAttempts,
		delistDuration,
		jobsFinished,
		jobsStuck,
		breakerTransitions,
	)

	return &PipelineMetrics{
		webhookEvents:      webhookEvents,
		saleEvents:         saleEvents,
		pollListings:       pollListings,
		pollSalesDetected:  pollSalesDetected,
		delistAttempts:     delistAttempts,
		delistDuration:     delistDuration,
		jobsFinished:       jobsFinished,
		jobsStuck:          jobsStuck,
		breakerTransitions: breakerTransitions,
	}
}

func (m *PipelineMetrics) IncWebhookEvent(marketplace, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(marketplace, result).Inc()
}

func (m *PipelineMetrics) IncSaleEvent(marketplace, source, result string) {
	if m == nil {
		return
	}
	m.saleEvents.WithLabelValues(marketplace, source, result).Inc()
}

func (m *PipelineMetrics) AddPollListingsChecked(marketplace string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.pollListings.WithLabelValues(marketplace).Add(float64(count))
}

func (m *PipelineMetrics) IncPollSaleDetected(marketplace string) {
	if m == nil {
		return
	}
	m.pollSalesDetected.WithLabelValues(marketplace).Inc()
}

func (m *PipelineMetrics) IncDelistAttempt(marketplace, outcome string) {
	if m == nil {
		return
	}
	m.delistAttempts.WithLabelValues(marketplace, outcome).Inc()
}

func (m *PipelineMetrics) ObserveDelistDuration(marketplace string, d time.Duration) {
	if m == nil {
		return
	}
	m.delistDuration.WithLabelValues(marketplace).Observe(d.Seconds())
}

func (m *PipelineMetrics) IncJobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) SetJobsStuck(count int) {
	if m == nil {
		return
	}
	m.jobsStuck.Set(float64(count))
}

func (m *PipelineMetrics) IncBreakerTransition(key, state string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(key, state).Inc()
}
