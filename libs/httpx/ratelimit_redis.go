package httpx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares quotas between replicas.
type RedisLimiter struct {
	rdb    redis.Scripter
	window time.Duration
	prefix string
}

// Returns {count, pttl}. The expiry is set only by the first hit of a window.
var fixedWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

func NewRedisLimiter(rdb redis.Scripter, window time.Duration, prefix string) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{rdb: rdb, window: window, prefix: prefix}
}

func (l *RedisLimiter) Hit(ctx context.Context, key string, limit int) (Decision, error) {
	res, err := fixedWindow.Run(ctx, l.rdb, []string{l.prefix + ":" + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	resetIn := time.Duration(res[1]) * time.Millisecond
	if resetIn < 0 {
		resetIn = l.window
	}
	return decide(res[0], limit, resetIn), nil
}
