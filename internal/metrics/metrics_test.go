package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveVote("post", ResultCast, time.Millisecond)
		m.ObserveRanking(true, time.Millisecond)
		m.RankingDropped()
		m.ObserveNotification("vote", nil)
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveVote("post", ResultCast, 3*time.Millisecond)
	m.ObserveVote("post", ResultCast, time.Millisecond)
	m.ObserveVote("comment", ResultRejected, time.Millisecond)
	m.ObserveRanking(false, time.Millisecond)
	m.RankingDropped()
	m.ObserveNotification("comment", errors.New("redis down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.VotesProcessed.WithLabelValues("post", ResultCast)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VotesProcessed.WithLabelValues("comment", ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RankingRecomputes.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RankingQueueDrops))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("comment", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.VoteDuration))

	assert.Panics(t, func() { New(reg) }, "collectors register once per registry")
}
