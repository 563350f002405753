package middleware

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// RateLimiter 按用户（未登录按 IP）限制写请求频率
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter allows perMinute requests per key with the given burst.
// At most size keys are tracked; the least recently seen are forgotten.
func NewRateLimiter(perMinute, burst, size int) (*RateLimiter, error) {
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, err
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		limiters: cache,
	}, nil
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(r.limit, r.burst)
	r.limiters.Add(key, l)
	return l
}

// Middleware rejects requests over the limit with 429.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if user, ok := CurrentUser(c); ok {
			key = fmt.Sprintf("user:%d", user.ID)
		}
		if !r.get(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"errors":     []string{"You are doing that too often. Please wait a moment."},
				"error_type": "rate_limit",
			})
			return
		}
		c.Next()
	}
}
