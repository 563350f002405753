package qa

import (
	"context"
)

// RequestCache memoizes topic lookups for the lifetime of one operation.
// It is not safe for concurrent use and must not outlive the request.
type RequestCache struct {
	topics TopicLookup
	byID   map[uint]*TopicInfo
}

func NewRequestCache(topics TopicLookup) *RequestCache {
	return &RequestCache{topics: topics, byID: make(map[uint]*TopicInfo)}
}

func (c *RequestCache) Topic(ctx context.Context, topicID uint) (*TopicInfo, error) {
	if t, ok := c.byID[topicID]; ok {
		return t, nil
	}
	t, err := c.topics.Topic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	c.byID[topicID] = t
	return t, nil
}
