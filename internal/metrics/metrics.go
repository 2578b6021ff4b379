/*
 * @module internal/metrics
 * @description Prometheus counters/histograms for the ranker, event
 *   consumer and background workers, exposed at /metrics. The source's
 *   MetricsCollector polls gorm for point-in-time snapshots; this service's
 *   hot path is a request/event pipeline, which prometheus/client_golang's
 *   push-style counters and histograms fit more directly than a polling
 *   collector would.
 * @architecture Observability
 * @dependencies github.com/prometheus/client_golang
 */
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FeedRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedranker_feed_requests_total",
		Help: "Feed requests served, partitioned by result.",
	}, []string{"result"})

	FeedLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedranker_feed_latency_seconds",
		Help:    "Time to build one feed response.",
		Buckets: prometheus.DefBuckets,
	})

	CandidateCount = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedranker_candidate_count",
		Help:    "Number of candidates surfaced by each generation phase before fusion.",
		Buckets: []float64{0, 10, 50, 100, 200, 400},
	}, []string{"phase"})

	BanditDraws = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedranker_bandit_draws_total",
		Help: "Bandit outcomes recorded by the event consumer, partitioned by namespace; ranker-side Thompson draws are not counted.",
	}, []string{"namespace"})

	EventsConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedranker_events_consumed_total",
		Help: "Events popped off the queue, partitioned by outcome.",
	}, []string{"outcome"})

	EventQueueIdle = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feedranker_event_queue_idle_total",
		Help: "Consumer loop iterations that timed out waiting for an event.",
	})

	WorkerRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedranker_worker_run_duration_seconds",
		Help:    "Duration of a completed background worker run.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"job"})
)

func init() {
	prometheus.MustRegister(FeedRequests, FeedLatency, CandidateCount, BanditDraws, EventsConsumed, EventQueueIdle, WorkerRunDuration)
}

// Timer measures elapsed time and records it into a histogram on Stop.
type Timer struct {
	start time.Time
	obs   prometheus.Observer
}

func StartTimer(obs prometheus.Observer) *Timer { return &Timer{start: time.Now(), obs: obs} }

func (t *Timer) Stop() { t.obs.Observe(time.Since(t.start).Seconds()) }
