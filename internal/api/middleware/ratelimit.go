package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled   bool
	PerSecond float64
	Burst     int
}

// NewRateLimitConfig perSecond<=0 时不限流
func NewRateLimitConfig(perSecond float64, burst int) RateLimitConfig {
	if burst <= 0 {
		burst = 1
	}
	return RateLimitConfig{Enabled: perSecond > 0, PerSecond: perSecond, Burst: burst}
}

// clientLimiters 按客户端区分的令牌桶，长时间未使用的定期清理
type clientLimiters struct {
	mu       sync.Mutex
	cfg      RateLimitConfig
	limiters map[string]*clientLimiter
	lastGC   time.Time
}

type clientLimiter struct {
	l    *rate.Limiter
	seen time.Time
}

const limiterIdle = 10 * time.Minute

func (cl *clientLimiters) get(key string, now time.Time) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if now.Sub(cl.lastGC) > limiterIdle {
		for k, v := range cl.limiters {
			if now.Sub(v.seen) > limiterIdle {
				delete(cl.limiters, k)
			}
		}
		cl.lastGC = now
	}
	v, ok := cl.limiters[key]
	if !ok {
		v = &clientLimiter{l: rate.NewLimiter(rate.Limit(cl.cfg.PerSecond), cl.cfg.Burst)}
		cl.limiters[key] = v
	}
	v.seen = now
	return v.l
}

// RateLimit 限流中间件，已认证请求按 API Key 计，否则按客户端 IP 计
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	cl := &clientLimiters{cfg: cfg, limiters: make(map[string]*clientLimiter), lastGC: time.Now()}

	return func(c *gin.Context) {
		key := c.GetString("api_key")
		if key == "" {
			key = c.ClientIP()
		}
		if !cl.get(key, time.Now()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "请求过于频繁",
			})
			return
		}
		c.Next()
	}
}
