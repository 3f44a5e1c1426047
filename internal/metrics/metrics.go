package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "booksync"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_sync_tasks_total",
			Help:      "Processed calendar sync tasks by event type and result.",
		},
		[]string{"event_type", "result"},
	)

	remoteCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_api_calls_total",
			Help:      "Calendar API calls by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	remoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calendar_api_call_seconds",
			Help:      "Calendar API call latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	fanoutFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_failures_total",
			Help:      "Swallowed realtime fan-out failures by path.",
		},
		[]string{"path"},
	)

	wakeSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_signals_total",
			Help:      "Wake signals raised by transport.",
		},
		[]string{"transport"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, syncTasks, remoteCalls, remoteLatency, fanoutFailures, wakeSignals)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncSyncTask counts a finished processing attempt. result is one of done,
// retry, failed, skipped.
func IncSyncTask(eventType, result string) {
	syncTasks.WithLabelValues(eventType, result).Inc()
}

func ObserveRemoteCall(method, outcome string, elapsed time.Duration) {
	remoteCalls.WithLabelValues(method, outcome).Inc()
	remoteLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// IncFanoutFailure counts an error swallowed on a fan-out path ("redis" or
// "broadcast").
func IncFanoutFailure(path string) {
	fanoutFailures.WithLabelValues(path).Inc()
}

func IncWakeSignal(transport string) {
	wakeSignals.WithLabelValues(transport).Inc()
}
