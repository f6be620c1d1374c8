package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"licensegate/backend/internal/storage"
)

// IPRateLimiter 按客户端 IP 的令牌桶限流器
//
// 单实例部署够用；多实例部署用 DistributedRateLimit 走 Redis
// 计数窗口。条目定期回收，避免被海量一次性 IP 撑爆内存。
type IPRateLimiter struct {
	limiters map[string]*ipLimiterEntry
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter 创建限流器，perMinute 为每 IP 每分钟允许的请求数。
func NewIPRateLimiter(perMinute int) *IPRateLimiter {
	l := &IPRateLimiter{
		limiters: make(map[string]*ipLimiterEntry),
		rps:      rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
	}

	go l.cleanupLoop()

	return l
}

// Allow 判断该 IP 的本次请求是否放行。
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

func (l *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		l.mu.Lock()
		for ip, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, ip)
			}
		}
		l.mu.Unlock()
	}
}

// Middleware 返回 gin 限流中间件。
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// DistributedRateLimit 基于共享存储的固定窗口限流中间件
//
// 计数键为 "ratelimit:<scope>:<ip>"，多实例共享同一份计数。
func DistributedRateLimit(repo storage.RateLimitRepository, scope string, limit int64, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:%s:%s", scope, c.ClientIP())

		count, err := repo.IncrementRateLimit(key, window)
		if err != nil {
			// 限流器故障时放行，不让存储抖动放大为全站不可用
			log.Error("rate limit increment failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if count > limit {
			c.Header("Retry-After", fmt.Sprintf("%.0f", window.Seconds()))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
