package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/config"
)

const redisStartupPing = 3 * time.Second

var errRedisNotConfigured = errors.New("redis client not configured")

// Redis holds the client shared by the reset throttle and the token denylist.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds the client and checks it within a short startup window.
// An unreachable server is only logged: the reset throttle fails open and
// /health/ready reports the outage.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisStartupPing)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable at startup", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}

	return &Redis{Client: client}
}

// Throttle returns a per-key window limiter stored under prefix.
func (r *Redis) Throttle(prefix string, window time.Duration) *Throttle {
	return NewThrottle(r.client(), prefix, window)
}

// Denylist returns the revoked token store kept under prefix.
func (r *Redis) Denylist(prefix string) *TokenDenylist {
	return NewTokenDenylist(r.client(), prefix)
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r.client() == nil {
		return errRedisNotConfigured
	}
	return r.Client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() {
	if c := r.client(); c != nil {
		_ = c.Close()
	}
}

func (r *Redis) client() *redis.Client {
	if r == nil {
		return nil
	}
	return r.Client
}
