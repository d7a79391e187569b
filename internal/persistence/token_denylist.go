package persistence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenDenylist keeps revoked token ids in Redis. Each entry expires together
// with the token it denies.
type TokenDenylist struct {
	client *redis.Client
	prefix string
}

// NewTokenDenylist builds a denylist. A nil client reports nothing as revoked.
func NewTokenDenylist(client *redis.Client, prefix string) *TokenDenylist {
	return &TokenDenylist{client: client, prefix: prefix}
}

// Revoke denies tokenID until the given expiry. Already expired tokens are skipped.
func (d *TokenDenylist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if d == nil || d.client == nil {
		return errRedisNotConfigured
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, d.prefix+tokenID, 1, ttl).Err()
}

// IsRevoked reports whether tokenID was revoked.
func (d *TokenDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if d == nil || d.client == nil || tokenID == "" {
		return false, nil
	}
	n, err := d.client.Exists(ctx, d.prefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
