package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

// AccountService handles reads and mutations of existing accounts.
type AccountService struct {
	accounts   repository.AccountRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// AccountListFilters define listing parameters.
type AccountListFilters struct {
	IsStaff        *bool
	IsActive       *bool
	IncludeDeleted bool
	Search         string
	Limit          int
	Offset         int
}

// ProfileUpdate carries the self-service profile fields; nil means unchanged.
type ProfileUpdate struct {
	FirstName   *string
	LastName    *string
	Photo       *string
	DateOfBirth *time.Time
	PhoneNumber *string
}

// FlagsUpdate carries administrative flag changes; nil means unchanged.
type FlagsUpdate struct {
	IsStaff     *bool
	IsSuperuser *bool
	IsActive    *bool
	Permissions []string
}

// NewAccountService constructs the service.
func NewAccountService(accounts repository.AccountRepository, dispatcher events.Dispatcher, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{accounts: accounts, dispatcher: dispatcher, logger: logger}
}

// Get returns an account by id, including soft-deleted ones.
func (s *AccountService) Get(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, id)
	}
	return account, nil
}

// List returns accounts matching filters. Deleted accounts are only included on request.
func (s *AccountService) List(ctx context.Context, filters AccountListFilters) ([]domain.Account, error) {
	accounts, err := s.accounts.List(ctx, repository.AccountFilter{
		IsStaff:        filters.IsStaff,
		IsActive:       filters.IsActive,
		IncludeDeleted: filters.IncludeDeleted,
		Search:         filters.Search,
		Limit:          filters.Limit,
		Offset:         filters.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return accounts, nil
}

// UpdateProfile applies self-service profile changes. Only the given fields
// are written, and a deleted account is reported as missing.
func (s *AccountService) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*domain.Account, error) {
	account, err := s.accounts.UpdateProfile(ctx, id, repository.ProfileChanges{
		FirstName:   trimmed(update.FirstName),
		LastName:    trimmed(update.LastName),
		Photo:       update.Photo,
		DateOfBirth: update.DateOfBirth,
		PhoneNumber: trimmed(update.PhoneNumber),
	})
	if err != nil {
		return nil, notFoundOr(err, id)
	}
	return account, nil
}

// SetFlags changes staff, superuser, active and permission settings on behalf
// of actor. Only superusers may touch is_superuser; other actors may only
// move permissions they hold themselves and cannot edit their own grants.
func (s *AccountService) SetFlags(ctx context.Context, actor *domain.Account, id string, update FlagsUpdate) (*domain.Account, error) {
	if !auth.HasPermission(actor, domain.PermAccountsChange) {
		return nil, apperrors.NewForbidden("insufficient permissions")
	}
	if update.IsSuperuser != nil && !actor.IsSuperuser {
		return nil, apperrors.NewForbidden("superuser required to change is_superuser")
	}
	for _, perm := range update.Permissions {
		if !domain.IsKnownPermission(perm) {
			return nil, apperrors.NewValidationError("unknown permission", map[string]any{"permission": perm})
		}
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, id)
	}
	if account.IsDeleted {
		return nil, apperrors.NewNotFound("account", map[string]any{"id": id})
	}
	if account.ID == actor.ID {
		if isFalse(update.IsActive) || isFalse(update.IsSuperuser) || isFalse(update.IsStaff) {
			return nil, apperrors.NewForbidden("cannot revoke your own privileges")
		}
		if !actor.IsSuperuser && (update.Permissions != nil || update.IsStaff != nil) {
			return nil, apperrors.NewForbidden("cannot change your own privileges")
		}
	}
	if update.Permissions != nil {
		for _, perm := range changedPermissions(account.Permissions, update.Permissions) {
			if !auth.HasPermission(actor, domain.Permission(perm)) {
				return nil, apperrors.NewForbidden("cannot assign a permission you do not hold")
			}
		}
	}

	next := *account
	if update.IsStaff != nil {
		next.IsStaff = *update.IsStaff
	}
	if update.IsSuperuser != nil {
		next.IsSuperuser = *update.IsSuperuser
	}
	if update.IsActive != nil {
		next.IsActive = *update.IsActive
	}
	if err := checkSuperuserFlags(&next); err != nil {
		return nil, err
	}

	changes := repository.FlagChanges{
		IsStaff:     update.IsStaff,
		IsSuperuser: update.IsSuperuser,
		IsActive:    update.IsActive,
	}
	if update.Permissions != nil {
		changes.Permissions = append([]string{}, update.Permissions...)
	}
	updated, err := s.accounts.UpdateFlags(ctx, account.ID, changes)
	if err != nil {
		if errors.Is(err, repository.ErrSuperuserFlags) {
			return nil, apperrors.NewValidationError("superuser must be staff and active", map[string]any{"field": "is_superuser"})
		}
		return nil, notFoundOr(err, id)
	}
	s.logger.Info("account flags changed",
		zap.String("account_id", updated.ID),
		zap.String("actor_id", actor.ID),
		zap.Bool("is_staff", updated.IsStaff),
		zap.Bool("is_superuser", updated.IsSuperuser),
		zap.Bool("is_active", updated.IsActive),
		zap.Strings("permissions", updated.Permissions))
	return updated, nil
}

// SoftDelete marks the account deleted. The row is kept for audit and the
// call is idempotent.
func (s *AccountService) SoftDelete(ctx context.Context, actor *domain.Account, id string) (*domain.Account, error) {
	if !auth.HasPermission(actor, domain.PermAccountsDelete) {
		return nil, apperrors.NewForbidden("insufficient permissions")
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, id)
	}
	if account.IsDeleted {
		return account, nil
	}
	if account.ID == actor.ID {
		return nil, apperrors.NewForbidden("cannot delete your own account")
	}

	if err := s.accounts.SoftDelete(ctx, account.ID); err != nil {
		return nil, notFoundOr(err, id)
	}
	account.IsDeleted = true
	account.ClearResetToken()

	s.logger.Info("account soft deleted", zap.String("account_id", account.ID), zap.String("actor_id", actor.ID))
	actorID := actor.ID
	s.publish(ctx, events.NewEvent(events.EventAccountDeleted, account.ID, &actorID, events.AccountDeletedPayload{Email: account.Email}))
	return account, nil
}

func (s *AccountService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func notFoundOr(err error, id string) error {
	mapped := apperrors.ToDomainError(err)
	if mapped.Code == "NOT_FOUND" {
		return apperrors.NewNotFound("account", map[string]any{"id": id})
	}
	return mapped
}

func isFalse(b *bool) bool {
	return b != nil && !*b
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// changedPermissions returns the permissions present in exactly one of before and after.
func changedPermissions(before, after []string) []string {
	seen := make(map[string]int, len(before)+len(after))
	for _, p := range before {
		seen[p] |= 1
	}
	for _, p := range after {
		seen[p] |= 2
	}
	var changed []string
	for p, mask := range seen {
		if mask != 3 {
			changed = append(changed, p)
		}
	}
	return changed
}
