package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/errs"
)

// slidingWindow trims the window, counts what is left and admits the request
// if there is room. Members are made unique with a per-key counter.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local current = redis.call('ZCARD', key)

	if current < limit then
		local counter = redis.call('INCR', key .. ':counter')
		redis.call('ZADD', key, now, now .. ':' .. counter)
		local expire_seconds = math.ceil(window_ms / 1000)
		redis.call('EXPIRE', key, expire_seconds)
		redis.call('EXPIRE', key .. ':counter', expire_seconds)
		return {1, limit - current - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local reset_at = 0
	if oldest and #oldest >= 2 then
		reset_at = tonumber(oldest[2]) + window_ms
	end
	return {0, 0, reset_at}
`)

// Limiter is a sliding-window rate limiter over Redis sorted sets.
type Limiter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewLimiter(client *redis.Client, prefix string, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{client: client, prefix: prefix + "ratelimit:", now: now}
}

type LimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Limit     int
}

// Allow records one request for key if fewer than limit were recorded in
// the trailing window.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (LimitResult, error) {
	now := l.now()
	res, err := slidingWindow.Run(ctx, l.client, []string{l.prefix + key},
		now.UnixMilli(), now.Add(-window).UnixMilli(), limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return LimitResult{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return LimitResult{}, fmt.Errorf("rate limit script: unexpected reply length %d", len(res))
	}

	out := LimitResult{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
		ResetAt:   now.Add(window),
		Limit:     limit,
	}
	if res[2] > 0 {
		out.ResetAt = time.UnixMilli(res[2])
	}
	return out, nil
}

// Reset forgets every request recorded for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key, l.prefix+key+":counter").Err()
}

// RateLimit admits at most limit requests per user per window. It must run
// after AuthMiddleware. A limit of zero or a nil limiter disables it. Redis
// failures let the request through.
func RateLimit(limiter *Limiter, scope string, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}

		key := scope + ":" + GetUserID(c).String()
		res, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retry := int(res.ResetAt.Sub(limiter.now()).Seconds()) + 1
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": errs.Message(errs.ErrRateLimited),
			})
			return
		}
		c.Next()
	}
}
