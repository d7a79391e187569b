package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/account-service/internal/domain"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

const (
	principalKey = "auth_principal"
	claimsKey    = "auth_claims"
)

// AccountLoader is the lookup the middleware needs to resolve a token subject.
type AccountLoader interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
}

// RevocationList records logged-out token ids until their natural expiry.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthMiddleware validates bearer tokens and loads the calling account.
type AuthMiddleware struct {
	tokens   *TokenManager
	accounts AccountLoader
	revoked  RevocationList
}

// NewAuthMiddleware constructs middleware. A nil revocation list skips the logout check.
func NewAuthMiddleware(tokens *TokenManager, accounts AccountLoader, revoked RevocationList) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, accounts: accounts, revoked: revoked}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if m.revoked != nil {
		revoked, err := m.revoked.IsRevoked(c.UserContext(), claims.ID)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		if revoked {
			return apperrors.NewUnauthorized("token revoked")
		}
	}

	account, err := m.accounts.GetByID(c.UserContext(), claims.AccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("account not found")
		}
		return apperrors.MapError(err)
	}
	if !account.CanAuthenticate() {
		return apperrors.NewUnauthorized("account disabled")
	}

	c.Locals(principalKey, account)
	c.Locals(claimsKey, claims)
	return c.Next()
}

// ClaimsFromContext returns the verified token claims of the current request.
func ClaimsFromContext(c *fiber.Ctx) (*Claims, bool) {
	claims, ok := c.Locals(claimsKey).(*Claims)
	return claims, ok
}

// PrincipalFromContext retrieves the authenticated account.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Account, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	account, ok := val.(*domain.Account)
	return account, ok
}
