package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/account-service/internal/domain"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)
	assert.NotContains(t, hash, "s3cret-pass")

	assert.NoError(t, h.Compare(hash, "s3cret-pass"))
	assert.ErrorIs(t, h.Compare(hash, "wrong"), ErrPasswordMismatch)
}

func TestBcryptHasherEmptyPasswordIsUnusable(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, domain.UnusablePasswordPrefix))
	assert.ErrorIs(t, h.Compare(hash, ""), ErrPasswordMismatch)
	assert.ErrorIs(t, h.Compare("", ""), ErrPasswordMismatch)
}

func TestBcryptHasherCountsBytes(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	_, err := h.Hash(strings.Repeat("é", 72))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	_, err = h.Hash(strings.Repeat("é", 36))
	assert.NoError(t, err)
}

func TestNewBcryptHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).cost)
	assert.Equal(t, 12, NewBcryptHasher(12).cost)
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	acc := &domain.Account{ID: "acc-1", IsStaff: true}

	token, exp, err := tm.GenerateToken(acc)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), exp, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.True(t, claims.Staff)
	assert.False(t, claims.Superuser)
	assert.NotEmpty(t, claims.ID)

	other, _, err := tm.GenerateToken(acc)
	require.NoError(t, err)
	otherClaims, err := tm.ParseToken(other)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, otherClaims.ID)
}

func TestTokenRejectsOtherSecretAndExpiry(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	token, _, err := tm.GenerateToken(&domain.Account{ID: "acc-1"})
	require.NoError(t, err)

	_, err = NewTokenManager("other", 1).ParseToken(token)
	assert.Error(t, err)

	tm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tm.ParseToken(token)
	assert.Error(t, err)
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name string
		acc  *domain.Account
		perm domain.Permission
		want bool
	}{
		{"nil account", nil, domain.PermAccountsView, false},
		{"inactive superuser", &domain.Account{IsSuperuser: true, IsStaff: true}, domain.PermAccountsView, false},
		{"active superuser", &domain.Account{IsSuperuser: true, IsStaff: true, IsActive: true}, domain.PermAccountsDelete, true},
		{"deleted superuser", &domain.Account{IsSuperuser: true, IsStaff: true, IsActive: true, IsDeleted: true}, domain.PermAccountsView, false},
		{"granted", &domain.Account{IsActive: true, Permissions: []string{"accounts.view"}}, domain.PermAccountsView, true},
		{"not granted", &domain.Account{IsActive: true, Permissions: []string{"accounts.view"}}, domain.PermAccountsDelete, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.acc, tt.perm))
		})
	}

	staff := &domain.Account{IsActive: true, IsStaff: true, Permissions: []string{"accounts.view", "accounts.change"}}
	assert.True(t, HasAllPermissions(staff, domain.PermAccountsView, domain.PermAccountsChange))
	assert.False(t, HasAllPermissions(staff, domain.PermAccountsView, domain.PermAccountsDelete))
}

type stubLoader struct {
	accounts map[string]*domain.Account
}

func (s *stubLoader) GetByID(_ context.Context, id string) (*domain.Account, error) {
	acc, ok := s.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return acc, nil
}

func newProtectedApp(tm *TokenManager, loader AccountLoader, guards ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	handlers := append([]fiber.Handler{NewAuthMiddleware(tm, loader, nil).Handle}, guards...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		acc, _ := PrincipalFromContext(c)
		return c.SendString(acc.Email)
	})
	app.Get("/me", handlers...)
	return app
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	loader := &stubLoader{accounts: map[string]*domain.Account{
		"active":  {ID: "active", Email: "a@example.com", IsActive: true},
		"deleted": {ID: "deleted", Email: "d@example.com", IsActive: true, IsDeleted: true},
		"staff":   {ID: "staff", Email: "s@example.com", IsActive: true, IsStaff: true, Permissions: []string{"accounts.view"}},
	}}

	tokenFor := func(id string) string {
		tok, _, err := tm.GenerateToken(&domain.Account{ID: id})
		require.NoError(t, err)
		return "Bearer " + tok
	}

	tests := []struct {
		name   string
		header string
		guards []fiber.Handler
		status int
	}{
		{"missing header", "", nil, http.StatusUnauthorized},
		{"bad scheme", "Basic abc", nil, http.StatusUnauthorized},
		{"garbage token", "Bearer abc", nil, http.StatusUnauthorized},
		{"unknown account", tokenFor("ghost"), nil, http.StatusUnauthorized},
		{"soft deleted account", tokenFor("deleted"), nil, http.StatusUnauthorized},
		{"active account", tokenFor("active"), nil, http.StatusOK},
		{"staff guard rejects non staff", tokenFor("active"), []fiber.Handler{RequireStaff()}, http.StatusForbidden},
		{"staff guard passes staff", tokenFor("staff"), []fiber.Handler{RequireStaff()}, http.StatusOK},
		{"superuser guard", tokenFor("staff"), []fiber.Handler{RequireSuperuser()}, http.StatusForbidden},
		{"permission granted", tokenFor("staff"), []fiber.Handler{RequirePermission(domain.PermAccountsView)}, http.StatusOK},
		{"permission missing", tokenFor("staff"), []fiber.Handler{RequirePermission(domain.PermAccountsDelete)}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newProtectedApp(tm, loader, tt.guards...)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

type memoryRevocations struct {
	ids map[string]bool
	err error
}

func (m *memoryRevocations) Revoke(_ context.Context, id string, _ time.Time) error {
	m.ids[id] = true
	return nil
}

func (m *memoryRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	return m.ids[id], m.err
}

func TestAuthMiddlewareRevokedTokens(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	loader := &stubLoader{accounts: map[string]*domain.Account{
		"active": {ID: "active", Email: "a@example.com", IsActive: true},
	}}
	revoked := &memoryRevocations{ids: map[string]bool{}}

	var seen *Claims
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	app.Get("/me", NewAuthMiddleware(tm, loader, revoked).Handle, func(c *fiber.Ctx) error {
		seen, _ = ClaimsFromContext(c)
		return c.SendStatus(http.StatusOK)
	})

	token, _, err := tm.GenerateToken(&domain.Account{ID: "active"})
	require.NoError(t, err)
	call := func() int {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	require.Equal(t, http.StatusOK, call())
	require.NotNil(t, seen)
	assert.Equal(t, "active", seen.AccountID)

	revoked.ids[seen.ID] = true
	assert.Equal(t, http.StatusUnauthorized, call())

	revoked.ids = map[string]bool{}
	revoked.err = assert.AnError
	assert.Equal(t, http.StatusInternalServerError, call(), "revocation lookups fail closed")
}
