package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/songsb13/arbot/internal/domain"
)

// RateLimiter implements domain.RateLimiter with a fixed-window counter per
// key. Venue REST budgets are coarse enough that window boundary effects do
// not matter here.
type RateLimiter struct {
	rdb *redis.Client
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying()}
}

func rateLimitKey(key string, windowSec int) string {
	// The window index in the key makes INCR atomic per window without a
	// script: a new window starts as a fresh key.
	bucket := time.Now().Unix() / int64(windowSec)
	return fmt.Sprintf("ratelimit:%s:%d", key, bucket)
}

// Allow checks whether a request for the given key is permitted under the
// limit for the current window. Allowed requests are counted.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, windowSec int) (bool, error) {
	if windowSec <= 0 {
		windowSec = 1
	}
	bucketKey := rateLimitKey(key, windowSec)

	pipe := rl.rdb.TxPipeline()
	count := pipe.Incr(ctx, bucketKey)
	pipe.Expire(ctx, bucketKey, time.Duration(2*windowSec)*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}

	return count.Val() <= int64(limit), nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
