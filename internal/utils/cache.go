package utils

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

// CacheItem 包装缓存数据和过期时间
type CacheItem[V any] struct {
	Data      V
	ExpiresAt time.Time
}

// TTLCache 带过期时间的本地 LRU 缓存
type TTLCache[K comparable, V any] struct {
	lruCache *lru.Cache[K, CacheItem[V]]
	ttl      time.Duration
	clock    clockwork.Clock
}

// NewTTLCache 创建容量为 size 的缓存，条目在 ttl 后过期
func NewTTLCache[K comparable, V any](size int, ttl time.Duration, clock clockwork.Clock) (*TTLCache[K, V], error) {
	l, err := lru.New[K, CacheItem[V]](size)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TTLCache[K, V]{lruCache: l, ttl: ttl, clock: clock}, nil
}

// Set 设置缓存
func (c *TTLCache[K, V]) Set(key K, data V) {
	c.lruCache.Add(key, CacheItem[V]{
		Data:      data,
		ExpiresAt: c.clock.Now().Add(c.ttl),
	})
}

// Get 获取缓存，若不存在或已过期则返回 false
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	val, ok := c.lruCache.Get(key)
	if !ok {
		var zero V
		return zero, false
	}

	// 检查过期
	if !c.clock.Now().Before(val.ExpiresAt) {
		c.lruCache.Remove(key)
		var zero V
		return zero, false
	}

	return val.Data, true
}

// Delete 删除指定缓存
func (c *TTLCache[K, V]) Delete(key K) {
	c.lruCache.Remove(key)
}

// Purge 清空缓存
func (c *TTLCache[K, V]) Purge() {
	c.lruCache.Purge()
}
