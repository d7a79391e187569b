package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredTokenClearer removes reset tokens whose expiry is at or before a cutoff.
type ExpiredTokenClearer interface {
	ClearExpiredResetTokens(ctx context.Context, before time.Time) (int64, error)
}

// ResetTokenSweeper periodically clears expired password reset tokens so the
// token and expiry columns never hold stale pairs.
type ResetTokenSweeper struct {
	store    ExpiredTokenClearer
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewResetTokenSweeper builds a sweeper; a non-positive interval defaults to five minutes.
func NewResetTokenSweeper(store ExpiredTokenClearer, interval time.Duration, logger *zap.Logger) *ResetTokenSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResetTokenSweeper{store: store, interval: interval, logger: logger, now: time.Now}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *ResetTokenSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce clears expired tokens and returns how many were cleared.
func (s *ResetTokenSweeper) SweepOnce(ctx context.Context) int64 {
	cleared, err := s.store.ClearExpiredResetTokens(ctx, s.now())
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("reset token sweep failed", zap.Error(err))
		}
		return 0
	}
	if cleared > 0 {
		s.logger.Info("expired reset tokens cleared", zap.Int64("count", cleared))
	}
	return cleared
}
