package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	initOnce sync.Once

	notesCreatedCounter       prometheus.Counter
	cacheLookupsCounter       *prometheus.CounterVec
	cacheInvalidationFailures prometheus.Counter
	publishAttemptsCounter    *prometheus.CounterVec
	publishRetriesCounter     prometheus.Counter
	publishExhaustedCounter   prometheus.Counter
	publishDurationMetric     prometheus.Histogram
	outboxRedeliveriesCounter *prometheus.CounterVec
	processedEventsCounter    *prometheus.CounterVec
	httpRequestsCounter       *prometheus.CounterVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		notesCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notes_created_total",
			Help: "Total number of notes persisted.",
		})
		cacheLookupsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notes_cache_lookups_total",
			Help: "Note listing cache lookups by result.",
		}, []string{"result"})
		cacheInvalidationFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notes_cache_invalidation_failures_total",
			Help: "Cache invalidations that failed after a successful write.",
		})
		publishAttemptsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notes_event_publish_attempts_total",
			Help: "Stream append attempts by appender mode and outcome.",
		}, []string{"mode", "outcome"})
		publishRetriesCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notes_event_publish_retries_total",
			Help: "Publish attempts that reused a trace id after a transient failure.",
		})
		publishExhaustedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notes_event_publish_exhausted_total",
			Help: "Events whose inline publish retries were exhausted.",
		})
		publishDurationMetric = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notes_event_publish_duration_seconds",
			Help:    "Duration of single stream append calls in seconds.",
			Buckets: prometheus.DefBuckets,
		})
		outboxRedeliveriesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notes_outbox_redeliveries_total",
			Help: "Outbox redelivery attempts by outcome.",
		}, []string{"outcome"})
		processedEventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notes_processor_events_total",
			Help: "Stream entries handled by the processor by result.",
		}, []string{"result"})
		httpRequestsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notes_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status"})

		prometheus.MustRegister(
			notesCreatedCounter,
			cacheLookupsCounter,
			cacheInvalidationFailures,
			publishAttemptsCounter,
			publishRetriesCounter,
			publishExhaustedCounter,
			publishDurationMetric,
			outboxRedeliveriesCounter,
			processedEventsCounter,
			httpRequestsCounter,
		)

		for _, result := range []string{"hit", "miss"} {
			cacheLookupsCounter.WithLabelValues(result)
		}
		for _, outcome := range []string{OutcomeSuccess, OutcomeFailure} {
			outboxRedeliveriesCounter.WithLabelValues(outcome)
		}
	})
}

func IncNotesCreated() {
	Init()
	notesCreatedCounter.Inc()
}

func IncCacheHit() {
	Init()
	cacheLookupsCounter.WithLabelValues("hit").Inc()
}

func IncCacheMiss() {
	Init()
	cacheLookupsCounter.WithLabelValues("miss").Inc()
}

func IncCacheInvalidationFailure() {
	Init()
	cacheInvalidationFailures.Inc()
}

func ObservePublish(mode, outcome string, d time.Duration) {
	Init()
	publishAttemptsCounter.WithLabelValues(mode, outcome).Inc()
	publishDurationMetric.Observe(d.Seconds())
}

func IncPublishRetries() {
	Init()
	publishRetriesCounter.Inc()
}

func IncPublishExhausted() {
	Init()
	publishExhaustedCounter.Inc()
}

func IncOutboxRedelivery(outcome string) {
	Init()
	outboxRedeliveriesCounter.WithLabelValues(outcome).Inc()
}

func IncProcessedEvent(result string) {
	Init()
	processedEventsCounter.WithLabelValues(result).Inc()
}

func IncHTTPRequest(method, status string) {
	Init()
	httpRequestsCounter.WithLabelValues(method, status).Inc()
}
