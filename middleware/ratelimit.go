package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"crowpro-api/config"
	"crowpro-api/helper"
)

// RateLimiter throttles requests per client IP through Redis. When Redis is
// unreachable it falls back to an in-process token bucket.
type RateLimiter struct {
	limiter  *redis_rate.Limiter
	fallback *localLimiter
	limit    redis_rate.Limit
	prefix   string
	helper   *helper.HTTPHelper
	log      *slog.Logger
}

func NewRateLimiter(rdb *redis.Client, cfg config.RateLimitConfig, prefix string, h *helper.HTTPHelper, log *slog.Logger) *RateLimiter {
	return &RateLimiter{
		limiter:  redis_rate.NewLimiter(rdb),
		fallback: &localLimiter{},
		limit: redis_rate.Limit{
			Rate:   cfg.Requests,
			Burst:  cfg.Burst,
			Period: cfg.Window,
		},
		prefix: prefix,
		helper: h,
		log:    log,
	}
}

func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:%s:ip:%s", rl.prefix, c.ClientIP())

		res := rl.allow(c.Request.Context(), key)
		setRateLimitHeaders(c, res, rl.limit)

		if res.Allowed == 0 {
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			rl.helper.SendError(c,
				fmt.Sprintf("rate limit exceeded, retry after %d seconds", retryAfter),
				rl.helper.EmptyJsonMap(), http.StatusTooManyRequests, `tooManyRequests`)
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) allow(ctx context.Context, key string) *redis_rate.Result {
	res, err := rl.limiter.Allow(ctx, key, rl.limit)
	if err != nil {
		rl.log.WarnContext(ctx, "rate limiter unavailable, using local limiter", "error", err)
		return rl.fallback.allow(key, rl.limit)
	}
	return res
}

func setRateLimitHeaders(c *gin.Context, res *redis_rate.Result, limit redis_rate.Limit) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.ResetAfter).Unix(), 10))
}

type localLimiter struct {
	limiters sync.Map
}

func (l *localLimiter) allow(key string, limit redis_rate.Limit) *redis_rate.Result {
	ratePerSec := float64(limit.Rate) / limit.Period.Seconds()

	v, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(ratePerSec), limit.Burst))
	limiter := v.(*rate.Limiter)

	allowed := 0
	retryAfter := time.Duration(-1)
	if limiter.Allow() {
		allowed = 1
	} else {
		retryAfter = time.Duration(float64(time.Second) / ratePerSec)
	}

	remaining := int(limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	return &redis_rate.Result{
		Limit:      limit,
		Allowed:    allowed,
		Remaining:  remaining,
		RetryAfter: retryAfter,
		ResetAfter: time.Duration(float64(time.Second) / ratePerSec),
	}
}
