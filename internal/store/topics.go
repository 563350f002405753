package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"qalink/internal/models"
	"qalink/internal/qa"
	"qalink/internal/utils"
)

// Topics resolves topic Q&A status from the database.
type Topics struct {
	db     *gorm.DB
	policy qa.Policy
}

func NewTopics(db *gorm.DB, policy qa.Policy) *Topics {
	return &Topics{db: db, policy: policy}
}

func (t *Topics) Topic(ctx context.Context, topicID uint) (*qa.TopicInfo, error) {
	var topic models.Topic
	err := t.db.WithContext(ctx).Preload("Tags").Preload("Category").First(&topic, topicID).Error
	if err != nil {
		return nil, notFound(err, qa.ErrTopicNotFound)
	}
	attrs := qa.TopicAttrs{
		IsCategoryTopic: topic.IsCategoryTopic,
		Tags:            topic.TagNames(),
		Subtype:         topic.Subtype,
	}
	if topic.Category != nil {
		attrs.CategoryQAEnabled = topic.Category.QAEnabled
	}
	return &qa.TopicInfo{
		ID:         topic.ID,
		UserID:     topic.UserID,
		CategoryID: topic.CategoryID,
		QAEnabled:  t.policy.TopicEnabled(attrs),
	}, nil
}

// CachedTopics keeps resolved topics in a TTL LRU. Admin changes invalidate entries.
// A lookup that overlaps an Invalidate or Purge is returned but not cached.
type CachedTopics struct {
	next  qa.TopicLookup
	cache *utils.TTLCache[uint, qa.TopicInfo]

	mu  sync.Mutex
	gen uint64 // 每次失效 +1
}

func NewCachedTopics(next qa.TopicLookup, size int, ttl time.Duration, clock clockwork.Clock) (*CachedTopics, error) {
	cache, err := utils.NewTTLCache[uint, qa.TopicInfo](size, ttl, clock)
	if err != nil {
		return nil, fmt.Errorf("create topic cache: %w", err)
	}
	return &CachedTopics{next: next, cache: cache}, nil
}

func (c *CachedTopics) Topic(ctx context.Context, topicID uint) (*qa.TopicInfo, error) {
	if info, ok := c.cache.Get(topicID); ok {
		return &info, nil
	}
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	info, err := c.next.Topic(ctx, topicID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.cache.Set(topicID, *info)
	}
	c.mu.Unlock()
	return info, nil
}

func (c *CachedTopics) Invalidate(topicID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Delete(topicID)
}

func (c *CachedTopics) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Purge()
}
