package services

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"qalink/internal/metrics"
)

// Recomputer rebuilds the display order of one topic.
type Recomputer interface {
	Recompute(ctx context.Context, topicID uint) error
}

// RankingOptions tunes the background worker. Zero values take the defaults.
type RankingOptions struct {
	QueueSize int
	BatchSize int
	Interval  time.Duration
	Timeout   time.Duration
	Clock     clockwork.Clock
	Metrics   *metrics.Metrics
	Logger    *logrus.Entry
}

// RankingService 异步重算话题内帖子顺序，同一话题在队列里只保留一份
type RankingService struct {
	ranker  Recomputer
	queue   chan uint // 待重算的话题 ID 队列
	pending map[uint]bool
	mu      sync.Mutex
	opts    RankingOptions
	log     *logrus.Entry

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRankingService 创建服务并启动后台 worker，调用方负责 Stop
func NewRankingService(ranker Recomputer, opts RankingOptions) *RankingService {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000 // 缓冲队列，防止阻塞
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &RankingService{
		ranker:  ranker,
		queue:   make(chan uint, opts.QueueSize),
		pending: make(map[uint]bool),
		opts:    opts,
		log:     log,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.worker()
	return s
}

// ScheduleUpdate 将话题加入重算队列（异步）
// 使用去重机制避免短时间内重复计算同一话题
func (s *RankingService) ScheduleUpdate(topicID uint) {
	s.mu.Lock()
	if s.pending[topicID] {
		// 已在队列中，跳过
		s.mu.Unlock()
		return
	}
	s.pending[topicID] = true
	s.mu.Unlock()

	// 非阻塞发送到队列
	select {
	case s.queue <- topicID:
	default:
		// 队列满了，移除 pending 标记
		s.mu.Lock()
		delete(s.pending, topicID)
		s.mu.Unlock()
		s.opts.Metrics.RankingDropped()
		s.log.WithField("topic_id", topicID).Warn("ranking queue full, update dropped")
	}
}

// RecomputeNow 同步重算（用于需要立即生效的场景）
func (s *RankingService) RecomputeNow(ctx context.Context, topicID uint) error {
	return s.recompute(ctx, topicID)
}

// Stop 处理完已收集的批次后退出 worker
func (s *RankingService) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

// worker 后台处理队列中的更新请求
func (s *RankingService) worker() {
	defer close(s.done)

	// 批量处理：收集一批请求后统一处理
	batch := make([]uint, 0, s.opts.BatchSize)
	ticker := s.opts.Clock.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case topicID := <-s.queue:
			batch = append(batch, topicID)
			// 如果达到批量大小，立即处理
			if len(batch) >= s.opts.BatchSize {
				s.processBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.Chan():
			// 定时处理剩余的
			if len(batch) > 0 {
				s.processBatch(batch)
				batch = batch[:0]
			}
		case <-s.stop:
		drain:
			for {
				select {
				case topicID := <-s.queue:
					batch = append(batch, topicID)
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				s.processBatch(batch)
			}
			return
		}
	}
}

// processBatch 先清除 pending 再重算，重算期间到达的投票会再次入队
func (s *RankingService) processBatch(topicIDs []uint) {
	for _, topicID := range topicIDs {
		s.mu.Lock()
		delete(s.pending, topicID)
		s.mu.Unlock()

		if err := s.recompute(context.Background(), topicID); err != nil {
			s.log.WithError(err).WithField("topic_id", topicID).Warn("recompute topic order failed")
		}
	}
}

func (s *RankingService) recompute(ctx context.Context, topicID uint) error {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	return s.ranker.Recompute(ctx, topicID)
}
