package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway-go/internal/config"
	redisclient "github.com/openclaw/session-gateway-go/internal/redis"
)

const rateLimitWindow = 60 * time.Second

var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

local remaining = limit - count - 1
local resetAt = now + window

return {1, remaining, resetAt}
`)

type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   int64
}

// SendRateLimiter is a sliding-window limiter on outbound messages, keyed by
// session. Redis errors fail open.
type SendRateLimiter struct {
	client redis.Scripter
	limit  int
}

func NewSendRateLimiter(client redis.Scripter, limit int) *SendRateLimiter {
	if limit <= 0 {
		limit = config.DefaultSendRateLimitPerMin
	}
	return &SendRateLimiter{client: client, limit: limit}
}

func (rl *SendRateLimiter) Check(ctx context.Context, sessionID string) RateLimitResult {
	now := time.Now().Unix()
	window := int64(rateLimitWindow.Seconds())
	allowAll := RateLimitResult{Allowed: true, Limit: rl.limit, Remaining: rl.limit - 1, ResetAt: now + window}

	result, err := rateLimitScript.Run(ctx, rl.client, []string{redisclient.SendRateLimitKey(sessionID)}, now, window, rl.limit).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("redis rate limit check failed, allowing request")
		return allowAll
	}
	if len(result) != 3 {
		log.Warn().Str("sessionId", sessionID).Msg("unexpected redis rate limit result")
		return allowAll
	}

	return RateLimitResult{
		Allowed:   result[0] == 1,
		Limit:     rl.limit,
		Remaining: int(result[1]),
		ResetAt:   result[2],
	}
}

func SetRateLimitHeaders(w http.ResponseWriter, res RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt, 10))
	if !res.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(rateLimitWindow.Seconds())))
	}
}
