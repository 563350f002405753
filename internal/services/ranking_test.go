package services_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qalink/internal/logging"
	"qalink/internal/metrics"
	"qalink/internal/services"
)

type fakeRecomputer struct {
	mu      sync.Mutex
	calls   []uint
	err     error
	started chan uint
	release chan struct{}
}

func (f *fakeRecomputer) Recompute(ctx context.Context, topicID uint) error {
	if f.started != nil {
		f.started <- topicID
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, topicID)
	return f.err
}

func (f *fakeRecomputer) Calls() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func TestRankingService_DedupAndTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &fakeRecomputer{}
	svc := services.NewRankingService(rec, services.RankingOptions{Clock: clock, Logger: logging.Discard()})
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	svc.ScheduleUpdate(7)
	svc.ScheduleUpdate(7)
	svc.ScheduleUpdate(8)

	assert.Eventually(t, func() bool {
		clock.Advance(500 * time.Millisecond)
		calls := rec.Calls()
		slices.Sort(calls)
		return slices.Equal(calls, []uint{7, 8})
	}, 2*time.Second, 10*time.Millisecond)

	// once processed the topic can be queued again
	svc.ScheduleUpdate(7)
	assert.Eventually(t, func() bool {
		clock.Advance(500 * time.Millisecond)
		return len(rec.Calls()) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRankingService_FullBatchRunsImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &fakeRecomputer{}
	svc := services.NewRankingService(rec, services.RankingOptions{BatchSize: 2, Clock: clock, Logger: logging.Discard()})
	defer svc.Stop()

	svc.ScheduleUpdate(1)
	svc.ScheduleUpdate(2)

	assert.Eventually(t, func() bool { return len(rec.Calls()) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestRankingService_DropsWhenQueueFull(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	rec := &fakeRecomputer{started: make(chan uint, 4), release: make(chan struct{})}
	svc := services.NewRankingService(rec, services.RankingOptions{
		QueueSize: 1,
		BatchSize: 1,
		Clock:     clockwork.NewFakeClock(),
		Metrics:   m,
		Logger:    logging.Discard(),
	})

	svc.ScheduleUpdate(1)
	select {
	case id := <-rec.started:
		require.Equal(t, uint(1), id)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not pick up the first topic")
	}

	svc.ScheduleUpdate(2) // waits in the queue
	svc.ScheduleUpdate(3) // queue full
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RankingQueueDrops))

	close(rec.release)
	svc.Stop()
	assert.Equal(t, []uint{1, 2}, rec.Calls())
}

func TestRankingService_StopDrainsQueue(t *testing.T) {
	rec := &fakeRecomputer{}
	svc := services.NewRankingService(rec, services.RankingOptions{
		Interval: time.Hour,
		Clock:    clockwork.NewFakeClock(),
		Logger:   logging.Discard(),
	})

	svc.ScheduleUpdate(5)
	svc.ScheduleUpdate(6)
	svc.Stop()

	assert.ElementsMatch(t, []uint{5, 6}, rec.Calls())
}

func TestRankingService_FailuresAreDropped(t *testing.T) {
	rec := &fakeRecomputer{err: errors.New("db down")}
	svc := services.NewRankingService(rec, services.RankingOptions{BatchSize: 1, Logger: logging.Discard()})

	svc.ScheduleUpdate(1)
	svc.ScheduleUpdate(2)
	svc.Stop()

	assert.ElementsMatch(t, []uint{1, 2}, rec.Calls())
	assert.EqualError(t, svc.RecomputeNow(context.Background(), 3), "db down")
}
