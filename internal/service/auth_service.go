package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

// ResetThrottle limits how often a reset can be requested for one email.
type ResetThrottle interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// AuthService coordinates login and password flows.
type AuthService struct {
	accounts   repository.AccountRepository
	hasher     PasswordHasher
	tokenMgr   *auth.TokenManager
	throttle   ResetThrottle
	revoked    auth.RevocationList
	dispatcher events.Dispatcher
	logger     *zap.Logger
	resetTTL   time.Duration
	now        func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	AccountRepo repository.AccountRepository
	Hasher      PasswordHasher
	Throttle    ResetThrottle
	Revocations auth.RevocationList
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		accounts:   deps.AccountRepo,
		hasher:     deps.Hasher,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		throttle:   deps.Throttle,
		revoked:    deps.Revocations,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		resetTTL:   cfg.Auth.PasswordResetTTL(),
		now:        time.Now,
	}
}

// Login authenticates an account by email and password. Inactive and
// soft-deleted accounts are rejected with the same error as a bad password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Account, string, time.Time, error) {
	invalid := apperrors.NewUnauthorized("invalid credentials")

	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, invalid
		}
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	if !account.CanAuthenticate() {
		return nil, "", time.Time{}, invalid
	}
	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, invalid
	}

	token, exp, err := s.tokenMgr.GenerateToken(account)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return account, token, exp, nil
}

// Logout revokes the presented token until its expiry. Other sessions of the
// same account stay valid.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if s.revoked == nil {
		return apperrors.NewInternalError(errors.New("token revocation not configured"))
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return apperrors.NewInternalError(err)
	}
	s.logger.Info("account logged out", zap.String("account_id", claims.AccountID))
	return nil
}

// RequestPasswordReset stores a fresh reset token on the account and emits
// EventPasswordResetRequested. Unknown, inactive or deleted emails succeed
// silently so callers cannot probe which addresses exist.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return apperrors.NewValidationError("email cannot be empty", map[string]any{"field": "email"})
	}

	if s.throttle != nil {
		allowed, err := s.throttle.Allow(ctx, strings.ToLower(email))
		if err != nil {
			s.logger.Warn("reset throttle unavailable", zap.Error(err))
		} else if !allowed {
			return apperrors.NewTooManyRequests("password reset already requested, try again later")
		}
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return apperrors.MapError(err)
	}
	if !account.CanAuthenticate() {
		return nil
	}

	token := uuid.NewString()
	expiresAt := s.now().Add(s.resetTTL)
	if err := s.accounts.SetPasswordResetToken(ctx, account.ID, token, expiresAt); err != nil {
		return apperrors.MapError(err)
	}

	s.publish(ctx, events.NewEvent(events.EventPasswordResetRequested, account.ID, nil, events.PasswordResetRequestedPayload{
		Email:     account.Email,
		FirstName: account.FirstName,
		Token:     token,
		ExpiresAt: expiresAt,
	}))
	return nil
}

// ConfirmPasswordReset validates the reset token and sets the new password.
// The token is consumed in the same write that stores the hash, so it can be
// redeemed once even under concurrent requests.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return apperrors.NewValidationError("new password required", map[string]any{"field": "new_password"})
	}
	invalid := apperrors.NewValidationError("reset token invalid or expired", nil)

	account, err := s.accounts.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invalid
		}
		return apperrors.MapError(err)
	}
	now := s.now()
	if !account.HasValidResetToken(token, now) {
		if account.ResetPasswordToken != "" && account.ResetPasswordTokenExpiry != nil {
			if err := s.accounts.ClearPasswordResetToken(ctx, account.ID); err != nil {
				s.logger.Warn("clear expired reset token", zap.String("account_id", account.ID), zap.Error(err))
			}
		}
		return invalid
	}

	hash, err := hashPassword(s.hasher, newPassword, "new_password")
	if err != nil {
		return err
	}
	account, err = s.accounts.ResetPassword(ctx, token, hash, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invalid
		}
		return apperrors.MapError(err)
	}

	s.publish(ctx, events.NewEvent(events.EventPasswordChanged, account.ID, nil, events.PasswordChangedPayload{
		Email: account.Email,
		Reset: true,
	}))
	return nil
}

// ChangePassword verifies current password before updating to new hash.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if newPassword == "" {
		return apperrors.NewValidationError("new password required", map[string]any{"field": "new_password"})
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !account.CanAuthenticate() {
		return apperrors.NewUnauthorized("account disabled")
	}
	if err := s.hasher.Compare(account.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	hash, err := hashPassword(s.hasher, newPassword, "new_password")
	if err != nil {
		return err
	}
	if err := s.accounts.SetPassword(ctx, account.ID, hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("account disabled")
		}
		return apperrors.MapError(err)
	}

	actor := account.ID
	s.publish(ctx, events.NewEvent(events.EventPasswordChanged, account.ID, &actor, events.PasswordChangedPayload{
		Email: account.Email,
	}))
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
