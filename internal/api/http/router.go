package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/observability"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Accounts       *handlers.AccountsHandler
	Auth           *handlers.AuthHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
	// LoginRateLimit caps credential attempts per client IP per minute; zero disables it.
	LoginRateLimit int
}

// RegisterRoutes wires HTTP routes. Account routes live under /api/v1.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", func(c *fiber.Ctx) error {
		return c.JSON(cfg.Metrics.Snapshot())
	})

	v1 := app.Group("/api/v1")
	authenticated := cfg.AuthMiddleware.Handle

	attempts := credentialLimiter(cfg.LoginRateLimit)

	authGroup := v1.Group("/auth")
	authGroup.Post("/login", attempts, cfg.Auth.Login)
	authGroup.Post("/logout", authenticated, auth.RequireAuthenticated(), cfg.Auth.Logout)
	authGroup.Post("/password/reset/request", attempts, cfg.Auth.RequestPasswordReset)
	authGroup.Post("/password/reset/confirm", cfg.Auth.ConfirmPasswordReset)
	authGroup.Post("/password/change", authenticated, auth.RequireAuthenticated(), cfg.Auth.ChangePassword)

	accounts := v1.Group("/accounts")
	accounts.Post("", cfg.Accounts.Register)

	accounts.Get("/me", authenticated, auth.RequireAuthenticated(), cfg.Accounts.Me)
	accounts.Patch("/me", authenticated, auth.RequireAuthenticated(), cfg.Accounts.UpdateMe)

	accounts.Post("/superusers", authenticated, auth.RequireSuperuser(), cfg.Accounts.CreateSuperuser)
	accounts.Get("/permissions", authenticated, auth.RequireStaff(), cfg.Accounts.Permissions)

	accounts.Get("", authenticated, auth.RequirePermission(domain.PermAccountsView), cfg.Accounts.List)
	accounts.Get("/:id", authenticated, auth.RequirePermission(domain.PermAccountsView), cfg.Accounts.Get)
	accounts.Patch("/:id/flags", authenticated, auth.RequirePermission(domain.PermAccountsChange), cfg.Accounts.SetFlags)
	accounts.Delete("/:id", authenticated, auth.RequirePermission(domain.PermAccountsDelete), cfg.Accounts.Delete)
}

func credentialLimiter(perMinute int) fiber.Handler {
	if perMinute <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return apperrors.NewTooManyRequests("too many attempts, try again later")
		},
	})
}
