package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/domain"
)

// RequireAuthenticated ensures an account was loaded by AuthMiddleware.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		return c.Next()
	}
}

// RequireStaff ensures the caller has staff privileges.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		account, ok := PrincipalFromContext(c)
		if !ok || !account.IsStaff {
			return fiber.NewError(http.StatusForbidden, "staff required")
		}
		return c.Next()
	}
}

// RequireSuperuser ensures the caller is a superuser.
func RequireSuperuser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		account, ok := PrincipalFromContext(c)
		if !ok || !account.IsSuperuser {
			return fiber.NewError(http.StatusForbidden, "superuser required")
		}
		return c.Next()
	}
}

// RequirePermission ensures the caller holds every listed permission.
func RequirePermission(perms ...domain.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		account, ok := PrincipalFromContext(c)
		if !ok || !HasAllPermissions(account, perms...) {
			return fiber.NewError(http.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
