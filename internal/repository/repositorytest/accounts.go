// Package repositorytest provides an in-memory AccountRepository for tests.
package repositorytest

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/repository"
)

// Accounts mimics the Postgres store, including the LOWER(email) unique index
// and the soft-delete filters on reset token lookups.
type Accounts struct {
	mu     sync.Mutex
	byID   map[string]*domain.Account
	nextID int
}

// NewAccounts returns an empty store.
func NewAccounts() *Accounts {
	return &Accounts{byID: make(map[string]*domain.Account)}
}

func (m *Accounts) Create(_ context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if strings.EqualFold(existing.Email, account.Email) {
			return repository.ErrEmailTaken
		}
	}
	m.nextID++
	now := time.Now()
	account.ID = "acc-" + strconv.Itoa(m.nextID)
	account.CreatedAt = now
	account.UpdatedAt = now
	clone := *account
	m.byID[account.ID] = &clone
	return nil
}

func (m *Accounts) UpdateProfile(_ context.Context, id string, changes repository.ProfileChanges) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[id]
	if !ok || acc.IsDeleted {
		return nil, pgx.ErrNoRows
	}
	if changes.FirstName != nil {
		acc.FirstName = *changes.FirstName
	}
	if changes.LastName != nil {
		acc.LastName = *changes.LastName
	}
	if changes.Photo != nil {
		acc.Photo = *changes.Photo
	}
	if changes.DateOfBirth != nil {
		acc.DateOfBirth = *changes.DateOfBirth
	}
	if changes.PhoneNumber != nil {
		acc.PhoneNumber = *changes.PhoneNumber
	}
	acc.UpdatedAt = time.Now()
	clone := *acc
	return &clone, nil
}

func (m *Accounts) UpdateFlags(_ context.Context, id string, changes repository.FlagChanges) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[id]
	if !ok || acc.IsDeleted {
		return nil, pgx.ErrNoRows
	}
	next := *acc
	if changes.IsStaff != nil {
		next.IsStaff = *changes.IsStaff
	}
	if changes.IsSuperuser != nil {
		next.IsSuperuser = *changes.IsSuperuser
	}
	if changes.IsActive != nil {
		next.IsActive = *changes.IsActive
	}
	if changes.Permissions != nil {
		next.Permissions = append([]string(nil), changes.Permissions...)
	}
	if next.IsSuperuser && !(next.IsStaff && next.IsActive) {
		return nil, repository.ErrSuperuserFlags
	}
	next.UpdatedAt = time.Now()
	m.byID[id] = &next
	clone := next
	return &clone, nil
}

func (m *Accounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *acc
	return &clone, nil
}

func (m *Accounts) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.byID {
		if strings.EqualFold(acc.Email, email) {
			clone := *acc
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *Accounts) List(_ context.Context, filter repository.AccountFilter) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Account
	for _, acc := range m.byID {
		if acc.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		if filter.IsStaff != nil && acc.IsStaff != *filter.IsStaff {
			continue
		}
		if filter.IsActive != nil && acc.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, *acc)
	}
	return out, nil
}

func (m *Accounts) SoftDelete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	acc.IsDeleted = true
	acc.ClearResetToken()
	return nil
}

func (m *Accounts) SetPasswordResetToken(_ context.Context, id, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[id]
	if !ok || acc.IsDeleted {
		return pgx.ErrNoRows
	}
	acc.ResetPasswordToken = token
	acc.ResetPasswordTokenExpiry = &expiresAt
	return nil
}

func (m *Accounts) GetByResetToken(_ context.Context, token string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "" {
		return nil, pgx.ErrNoRows
	}
	for _, acc := range m.byID {
		if acc.ResetPasswordToken == token && !acc.IsDeleted {
			clone := *acc
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *Accounts) ClearPasswordResetToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.byID[id]; ok {
		acc.ClearResetToken()
	}
	return nil
}

func (m *Accounts) SetPassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[id]
	if !ok || acc.IsDeleted {
		return pgx.ErrNoRows
	}
	acc.PasswordHash = hash
	acc.ClearResetToken()
	acc.UpdatedAt = time.Now()
	return nil
}

func (m *Accounts) ResetPassword(_ context.Context, token, hash string, now time.Time) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "" {
		return nil, pgx.ErrNoRows
	}
	for _, acc := range m.byID {
		if acc.IsDeleted || acc.ResetPasswordToken != token || acc.ResetPasswordTokenExpiry == nil || !acc.ResetPasswordTokenExpiry.After(now) {
			continue
		}
		acc.PasswordHash = hash
		acc.ClearResetToken()
		acc.UpdatedAt = time.Now()
		clone := *acc
		return &clone, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *Accounts) ClearExpiredResetTokens(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, acc := range m.byID {
		if acc.ResetPasswordTokenExpiry != nil && !acc.ResetPasswordTokenExpiry.After(before) {
			acc.ClearResetToken()
			n++
		}
	}
	return n, nil
}

// Stored returns a copy of the row as persisted, including the password hash.
func (m *Accounts) Stored(id string) domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byID[id]
}

var _ repository.AccountRepository = (*Accounts)(nil)
