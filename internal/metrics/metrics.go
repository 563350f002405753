// Package metrics holds the Prometheus collectors for voting, ranking and change notifications.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "qalink"

// Vote results.
const (
	ResultCast     = "cast"
	ResultFlipped  = "flipped"
	ResultRemoved  = "removed"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	VotesProcessed    *prometheus.CounterVec
	VoteDuration      prometheus.Histogram
	RankingRecomputes *prometheus.CounterVec
	RankingDuration   prometheus.Histogram
	RankingQueueDrops prometheus.Counter
	Notifications     *prometheus.CounterVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		VotesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_processed_total",
			Help:      "Total number of vote operations, by votable type and result.",
		}, []string{"votable", "result"}),
		VoteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vote_duration_seconds",
			Help:      "Duration of vote transactions in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		RankingRecomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_recomputes_total",
			Help:      "Total number of topic ranking recomputes, by result.",
		}, []string{"result"}),
		RankingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ranking_duration_seconds",
			Help:      "Duration of topic ranking recomputes in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		RankingQueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_queue_drops_total",
			Help:      "Ranking updates dropped because the queue was full.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Change notifications published, by kind and result.",
		}, []string{"kind", "result"}),
	}

	reg.MustRegister(m.VotesProcessed, m.VoteDuration, m.RankingRecomputes, m.RankingDuration,
		m.RankingQueueDrops, m.Notifications)
	return m
}

func (m *Metrics) ObserveVote(votable, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.VotesProcessed.WithLabelValues(votable, result).Inc()
	m.VoteDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveRanking(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.RankingRecomputes.WithLabelValues(result).Inc()
	m.RankingDuration.Observe(d.Seconds())
}

func (m *Metrics) RankingDropped() {
	if m == nil {
		return
	}
	m.RankingQueueDrops.Inc()
}

func (m *Metrics) ObserveNotification(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Notifications.WithLabelValues(kind, result).Inc()
}
