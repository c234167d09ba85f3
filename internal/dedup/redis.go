package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const checkedKeyPrefix = "nnfix:checked:"

// Redis shares the dedup window between processes. Expiry is delegated to
// the key TTL, which gives the same lazy semantics as Memory. Redis errors
// are logged and answered as "not checked", so an outage costs extra
// identification calls and nothing else.
type Redis struct {
	client *redis.Client
	window time.Duration
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, window time.Duration) *Redis {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Redis{client: client, window: window}
}

func (r *Redis) key(page string) string {
	h := sha256.Sum256([]byte(page))
	return checkedKeyPrefix + hex.EncodeToString(h[:])
}

func (r *Redis) IsRecentlyChecked(ctx context.Context, key string) bool {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("dedup lookup failed")
		return false
	}
	return n == 1
}

func (r *Redis) MarkChecked(ctx context.Context, key string) {
	if err := r.client.Set(ctx, r.key(key), "1", r.window).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("dedup mark failed")
	}
}
