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

// PasswordHasher turns plaintext passwords into their stored form and back-checks them.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashed, plain string) error
}

// ExtraFields are the optional attributes accepted at account creation.
// Flags are pointers so an explicit false can be told apart from "not given".
type ExtraFields struct {
	FirstName   string
	LastName    string
	Photo       string
	DateOfBirth time.Time
	PhoneNumber string
	IsStaff     *bool
	IsSuperuser *bool
	IsActive    *bool
	Permissions []string
}

// AccountFactory validates input and persists new accounts.
type AccountFactory struct {
	accounts   repository.AccountRepository
	hasher     PasswordHasher
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAccountFactory builds the factory around an account store.
func NewAccountFactory(accounts repository.AccountRepository, hasher PasswordHasher, dispatcher events.Dispatcher, logger *zap.Logger) *AccountFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountFactory{accounts: accounts, hasher: hasher, dispatcher: dispatcher, logger: logger}
}

// NormalizeEmail trims surrounding space and lowercases the domain part.
// The local part keeps its case.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// CreateUser creates and stores a regular account.
func (f *AccountFactory) CreateUser(ctx context.Context, email, password string, fields ExtraFields) (*domain.Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, apperrors.NewValidationError("email cannot be empty", map[string]any{"field": "email"})
	}
	for _, perm := range fields.Permissions {
		if !domain.IsKnownPermission(perm) {
			return nil, apperrors.NewValidationError("unknown permission", map[string]any{"permission": perm})
		}
	}

	hash, err := hashPassword(f.hasher, password, "password")
	if err != nil {
		return nil, err
	}

	account := &domain.Account{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(fields.FirstName),
		LastName:     strings.TrimSpace(fields.LastName),
		Photo:        fields.Photo,
		DateOfBirth:  fields.DateOfBirth,
		PhoneNumber:  strings.TrimSpace(fields.PhoneNumber),
		IsStaff:      boolValue(fields.IsStaff),
		IsSuperuser:  boolValue(fields.IsSuperuser),
		IsActive:     boolValue(fields.IsActive),
		Permissions:  fields.Permissions,
	}
	if err := checkSuperuserFlags(account); err != nil {
		return nil, err
	}

	if err := f.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
		}
		return nil, apperrors.MapError(err)
	}

	f.logger.Info("account created",
		zap.String("account_id", account.ID),
		zap.Bool("is_staff", account.IsStaff),
		zap.Bool("is_superuser", account.IsSuperuser))
	f.publish(ctx, events.NewEvent(events.EventAccountCreated, account.ID, nil, events.AccountCreatedPayload{
		Email:       account.Email,
		IsStaff:     account.IsStaff,
		IsSuperuser: account.IsSuperuser,
	}))
	return account, nil
}

// CreateSuperuser creates an account with staff, superuser and active set.
// Passing IsStaff or IsSuperuser explicitly false is a contradiction and fails.
func (f *AccountFactory) CreateSuperuser(ctx context.Context, email, password string, fields ExtraFields) (*domain.Account, error) {
	if fields.IsStaff == nil {
		fields.IsStaff = boolPtr(true)
	}
	if fields.IsSuperuser == nil {
		fields.IsSuperuser = boolPtr(true)
	}
	if !*fields.IsStaff {
		return nil, apperrors.NewValidationError("superuser must have is_staff=true", map[string]any{"field": "is_staff"})
	}
	if !*fields.IsSuperuser {
		return nil, apperrors.NewValidationError("superuser must have is_superuser=true", map[string]any{"field": "is_superuser"})
	}
	fields.IsActive = boolPtr(true)

	return f.CreateUser(ctx, email, password, fields)
}

func (f *AccountFactory) publish(ctx context.Context, event events.Event) {
	if f.dispatcher == nil {
		return
	}
	if err := f.dispatcher.Publish(ctx, event); err != nil {
		f.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

// hashPassword maps an over-long password to a validation error on field.
func hashPassword(hasher PasswordHasher, password, field string) (string, error) {
	hash, err := hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", apperrors.NewValidationError("password is too long", map[string]any{
				"field":     field,
				"max_bytes": auth.MaxPasswordBytes,
			})
		}
		return "", apperrors.NewInternalError(err)
	}
	return hash, nil
}

// checkSuperuserFlags enforces that a superuser is always staff and active.
func checkSuperuserFlags(account *domain.Account) error {
	if !account.IsSuperuser {
		return nil
	}
	if !account.IsStaff {
		return apperrors.NewValidationError("superuser must have is_staff=true", map[string]any{"field": "is_staff"})
	}
	if !account.IsActive {
		return apperrors.NewValidationError("superuser must have is_active=true", map[string]any{"field": "is_active"})
	}
	return nil
}

func boolValue(b *bool) bool {
	return b != nil && *b
}

func boolPtr(b bool) *bool {
	return &b
}
