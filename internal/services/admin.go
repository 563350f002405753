package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"qalink/internal/models"
	"qalink/internal/qa"
)

// AdminService 管理员切换分类和话题的问答开关
type AdminService struct {
	store AdminStore
	cache TopicCache
	jobs  *Jobs
	log   *logrus.Entry
}

func NewAdminService(store AdminStore, cache TopicCache, jobs *Jobs, log *logrus.Entry) *AdminService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &AdminService{store: store, cache: cache, jobs: jobs, log: log}
}

// SetCategoryQA toggles the category flag and queues a reorder of its topics.
func (s *AdminService) SetCategoryQA(ctx context.Context, actor qa.Actor, categoryID uint, enabled bool) error {
	if !actor.Staff {
		return qa.ErrInvalidAccess
	}
	if err := s.store.SetCategoryQA(ctx, categoryID, enabled); err != nil {
		return err
	}
	// 分类下话题很多，直接清空缓存
	if s.cache != nil {
		s.cache.Purge()
	}
	s.log.WithFields(logrus.Fields{
		"category_id": categoryID,
		"qa_enabled":  enabled,
		"by":          actor.ID,
	}).Info("category qa flag changed")
	s.jobs.ReorderCategoryAsync(categoryID)
	return nil
}

// SetCategoryFlags updates the like-suppression flags. They do not change Q&A status, so nothing is reordered.
func (s *AdminService) SetCategoryFlags(ctx context.Context, actor qa.Actor, categoryID uint, flags models.CategoryFlags) error {
	if !actor.Staff {
		return qa.ErrInvalidAccess
	}
	return s.store.UpdateCategoryFlags(ctx, categoryID, flags)
}

// UpdateTopicQA changes subtype and/or tags and queues a reorder of the topic.
func (s *AdminService) UpdateTopicQA(ctx context.Context, actor qa.Actor, topicID uint, subtype *string, tags []string) error {
	if !actor.Staff {
		return qa.ErrInvalidAccess
	}
	if err := s.store.UpdateTopicQA(ctx, topicID, subtype, tags); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(topicID)
	}
	s.jobs.ReorderTopic(topicID)
	return nil
}
