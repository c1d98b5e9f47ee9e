package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/regwatch/regcore/internal/pkg/errcode"
	"github.com/regwatch/regcore/internal/pkg/response"
)

type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket
}

type bucket struct {
	windowStart time.Time
	count       int
}

// RateLimit caps requests per client ip and route within a fixed window.
// limit <= 0 disables the middleware.
func RateLimit(limit int, window time.Duration) gin.HandlerFunc {
	limiter := &rateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
	}
	return limiter.handle
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.limit <= 0 || l.window <= 0 {
		c.Next()
		return
	}
	ip := c.ClientIP()
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	key := strings.Join([]string{ip, path}, "|")

	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= l.window {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}
	b.count++
	over := b.count > l.limit
	l.mu.Unlock()

	if over {
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("ip", ip),
			zap.String("path", path),
		)
		response.Error(c, http.StatusTooManyRequests, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
		c.Abort()
		return
	}
	c.Next()
}
