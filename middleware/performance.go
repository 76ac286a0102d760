package middleware

import (
	"log"
	"sync"
	"time"

	"nasa-go-affiliate/pkg/monitoring"
	"nasa-go-affiliate/pkg/response"

	"github.com/gin-gonic/gin"
)

// PerformanceConfig 慢请求阈值
type PerformanceConfig struct {
	SlowThreshold time.Duration
	SkipPaths     []string
}

func DefaultPerformanceConfig() PerformanceConfig {
	return PerformanceConfig{
		SlowThreshold: 500 * time.Millisecond,
		SkipPaths:     []string{"/health", "/ready", "/metrics"},
	}
}

// Performance 记录慢请求，并把请求耗时写入 MongoDB
func Performance(config ...PerformanceConfig) gin.HandlerFunc {
	cfg := DefaultPerformanceConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		c.Header("X-Response-Time", latency.String())
		if latency > cfg.SlowThreshold {
			log.Printf("[SLOW REQUEST] %s %s - Status: %d, Latency: %v",
				c.Request.Method, c.Request.URL.Path, c.Writer.Status(), latency)
		}
		monitoring.SaveHTTPMetric(c, latency.Seconds())
	}
}

// RateLimit 按 IP 的每分钟请求数限制，rpm <= 0 时不限制
func RateLimit(rpm int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		requests = make(map[string][]time.Time)
	)

	return func(c *gin.Context) {
		if rpm <= 0 {
			c.Next()
			return
		}

		ip := c.ClientIP()
		now := time.Now()
		cutoff := now.Add(-time.Minute)

		mu.Lock()
		valid := requests[ip][:0]
		for _, ts := range requests[ip] {
			if ts.After(cutoff) {
				valid = append(valid, ts)
			}
		}
		if len(valid) >= rpm {
			requests[ip] = valid
			mu.Unlock()
			c.Header("Retry-After", "60")
			response.Abort(c, response.TOO_MANY_REQUESTS)
			return
		}
		requests[ip] = append(valid, now)
		mu.Unlock()

		c.Next()
	}
}
