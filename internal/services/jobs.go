package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// TopicLister lists topic ids, optionally restricted to a category.
type TopicLister interface {
	TopicIDs(ctx context.Context, categoryID *uint) ([]uint, error)
}

// Jobs 定时任务和后台重排任务
type Jobs struct {
	cron    *cron.Cron
	topics  TopicLister
	ranker  Recomputer
	ranking *RankingService
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewJobs(topics TopicLister, ranker Recomputer, ranking *RankingService, log *logrus.Entry) *Jobs {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Jobs{
		cron:    cron.New(),
		topics:  topics,
		ranker:  ranker,
		ranking: ranking,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start 按 cron 表达式注册全量重排任务并启动调度，表达式为空时不注册
func (j *Jobs) Start(schedule string) error {
	if schedule != "" {
		_, err := j.cron.AddFunc(schedule, func() {
			if _, err := j.RebuildAllTopics(j.ctx); err != nil {
				j.log.WithError(err).Error("rebuild all topics failed")
			}
		})
		if err != nil {
			return fmt.Errorf("schedule topic rebuild %q: %w", schedule, err)
		}
	}
	j.cron.Start()
	return nil
}

// Stop 停止调度并等待正在运行的任务
func (j *Jobs) Stop() {
	<-j.cron.Stop().Done()
	j.cancel()
	j.wg.Wait()
}

// RebuildAllTopics 同步重排所有话题，单个失败不影响其它
func (j *Jobs) RebuildAllTopics(ctx context.Context) (int, error) {
	return j.reorder(ctx, nil)
}

// ReorderCategory 同步重排某分类下的所有话题
func (j *Jobs) ReorderCategory(ctx context.Context, categoryID uint) (int, error) {
	return j.reorder(ctx, &categoryID)
}

// ReorderCategoryAsync 在后台重排分类，Stop 会等待它结束
func (j *Jobs) ReorderCategoryAsync(categoryID uint) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		if _, err := j.ReorderCategory(j.ctx, categoryID); err != nil {
			j.log.WithError(err).WithField("category_id", categoryID).Error("reorder category failed")
		}
	}()
}

// ReorderTopic 把话题交给排名队列
func (j *Jobs) ReorderTopic(topicID uint) {
	j.ranking.ScheduleUpdate(topicID)
}

func (j *Jobs) reorder(ctx context.Context, categoryID *uint) (int, error) {
	ids, err := j.topics.TopicIDs(ctx, categoryID)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := j.ranker.Recompute(ctx, id); err != nil {
			j.log.WithError(err).WithField("topic_id", id).Warn("reorder topic failed")
			continue
		}
		done++
	}
	j.log.WithFields(logrus.Fields{"topics": len(ids), "reordered": done}).Info("topic reorder finished")
	return done, nil
}
