package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultReplyTTL is how long an answered notification stays claimed
const DefaultReplyTTL = 72 * time.Hour

// Redis is the Redis client
type Redis struct{ c *redis.Client }

// NewRedis creates a new Redis client
func NewRedis(addr string, db int) *Redis {
	return &Redis{c: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

// Close closes the Redis client
func (r *Redis) Close() error { return r.c.Close() }

// Ping checks the connection
func (r *Redis) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

// ReplyKey returns the claim key for a platform notification
func ReplyKey(platform, notificationID string) string {
	return "reply:" + platform + ":" + notificationID
}

// ClaimReply records that a notification is being answered. It returns
// false when the notification was already claimed.
func (r *Redis) ClaimReply(ctx context.Context, platform, notificationID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultReplyTTL
	}
	return r.c.SetNX(ctx, ReplyKey(platform, notificationID), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
}
