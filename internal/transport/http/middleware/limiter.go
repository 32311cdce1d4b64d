// Package middleware file: internal/transport/http/middleware/limiter.go
package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// IPRateLimiter 按客户端 IP 做令牌桶限流。
// 限制器实例存放在带过期时间的缓存里，不活跃的 IP 条目自动被清理。
type IPRateLimiter struct {
	entries *cache.Cache
	rate    rate.Limit
	burst   int
}

// NewIPRateLimiter 创建一个新的IP速率限制器
func NewIPRateLimiter(r rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		entries: cache.New(15*time.Minute, 10*time.Minute),
		rate:    r,
		burst:   burst,
	}
}

// getClientIP 从请求中获取客户端IP地址，考虑代理情况
func getClientIP(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	ip = strings.TrimSpace(strings.Split(ip, ",")[0])
	if ip != "" {
		return ip
	}
	ip = r.Header.Get("X-Real-IP")
	if ip != "" {
		return ip
	}
	ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	return ip
}

// getLimiter 返回或创建指定IP的速率限制器
func (l *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	if entry, found := l.entries.Get(ip); found {
		if limiter, ok := entry.(*rate.Limiter); ok {
			l.entries.SetDefault(ip, limiter)
			return limiter
		}
	}
	limiter := rate.NewLimiter(l.rate, l.burst)
	l.entries.SetDefault(ip, limiter)
	return limiter
}

// Middleware 返回对应的 gin 中间件。
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := getClientIP(c.Request)
		if !l.getLimiter(ip).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后再试"})
			return
		}
		c.Next()
	}
}
