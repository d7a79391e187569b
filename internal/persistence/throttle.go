package persistence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle allows one action per key within a fixed window, backed by Redis SET NX.
type Throttle struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewThrottle builds a throttle. A nil client or non-positive window allows everything.
func NewThrottle(client *redis.Client, prefix string, window time.Duration) *Throttle {
	return &Throttle{client: client, prefix: prefix, window: window}
}

// Allow reports whether the action for key may proceed now and, if so,
// starts a new window for it.
func (t *Throttle) Allow(ctx context.Context, key string) (bool, error) {
	if t == nil || t.client == nil || t.window <= 0 {
		return true, nil
	}
	return t.client.SetNX(ctx, t.prefix+key, 1, t.window).Result()
}
