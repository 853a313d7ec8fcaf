package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the ingestion metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	fetchFailures *prometheus.CounterVec
	candidates    prometheus.Counter
	dropped       *prometheus.CounterVec
	persisted     *prometheus.CounterVec
	auditFailures prometheus.Counter
	subscribers   prometheus.Gauge
	feedDelivered prometheus.Counter
}

// New registers all collectors on a private registry.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timeline",
		Name:      "ingest_runs_total",
		Help:      "Ingestion runs by outcome",
	}, []string{"outcome"})
	r.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "timeline",
		Name:      "ingest_run_duration_seconds",
		Help:      "Wall time of one ingestion run",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	r.fetchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timeline",
		Name:      "fetch_failures_total",
		Help:      "Generator requests that failed, by locale",
	}, []string{"locale"})
	r.candidates = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timeline",
		Name:      "candidates_total",
		Help:      "Validated candidate records",
	})
	r.dropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timeline",
		Name:      "candidates_dropped_total",
		Help:      "Generated items rejected by validation, by reason",
	}, []string{"reason"})
	r.persisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timeline",
		Name:      "developments_persisted_total",
		Help:      "Development writes by result",
	}, []string{"result"})
	r.auditFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timeline",
		Name:      "audit_write_failures_total",
		Help:      "Audit log writes that failed",
	})
	r.subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timeline",
		Name:      "feed_subscribers",
		Help:      "Active change feed subscriptions",
	})
	r.feedDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timeline",
		Name:      "feed_entries_delivered_total",
		Help:      "Audit entries delivered to subscribers",
	})

	r.registry.MustRegister(
		r.runs, r.runDuration, r.fetchFailures, r.candidates, r.dropped,
		r.persisted, r.auditFailures, r.subscribers, r.feedDelivered,
		collectors.NewGoCollector(),
	)
	return r
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) RunFinished(outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome).Inc()
	r.runDuration.Observe(took.Seconds())
}

func (r *Recorder) FetchFailed(locale string) {
	if r == nil {
		return
	}
	r.fetchFailures.WithLabelValues(locale).Inc()
}

func (r *Recorder) CandidatesValidated(n int) {
	if r == nil {
		return
	}
	r.candidates.Add(float64(n))
}

func (r *Recorder) CandidateDropped(reason string) {
	if r == nil {
		return
	}
	r.dropped.WithLabelValues(reason).Inc()
}

func (r *Recorder) DevelopmentPersisted(ok bool) {
	if r == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	r.persisted.WithLabelValues(result).Inc()
}

func (r *Recorder) AuditWriteFailed() {
	if r == nil {
		return
	}
	r.auditFailures.Inc()
}

func (r *Recorder) SubscriberAdded() {
	if r == nil {
		return
	}
	r.subscribers.Inc()
}

func (r *Recorder) SubscriberRemoved() {
	if r == nil {
		return
	}
	r.subscribers.Dec()
}

func (r *Recorder) EntryDelivered() {
	if r == nil {
		return
	}
	r.feedDelivered.Inc()
}
