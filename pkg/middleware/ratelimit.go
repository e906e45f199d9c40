package middleware

import (
	"sync"
	"time"

	"smallbiznis-rewards/pkg/errutil"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter hands out one token bucket per key and forgets keys idle for longer than ttl.
type KeyedLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

func NewKeyedLimiter(perMinute, burst int) *KeyedLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &KeyedLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		ttl:     10 * time.Minute,
		now:     time.Now,
	}
}

func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > l.ttl {
			delete(l.entries, k)
		}
	}

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// RateLimit rejects requests with 429 once the key's bucket is empty.
// A limiter with a zero rate lets every request through.
func RateLimit(l *KeyedLimiter, key func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.limit == 0 {
			c.Next()
			return
		}
		if !l.Allow(key(c)) {
			_ = c.Error(errutil.TooManyRequest("too many requests, slow down", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

// ParamKey keys the limiter on a route parameter.
func ParamKey(name string) func(c *gin.Context) string {
	return func(c *gin.Context) string {
		return c.Param(name)
	}
}
