package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/persistence"
	"github.com/spec-kit/account-service/internal/repository/repositorytest"
	"github.com/spec-kit/account-service/internal/service"
)

type testServer struct {
	app     *fiber.App
	store   *repositorytest.Accounts
	factory *service.AccountFactory
	redis   *miniredis.Miniredis
	resets  []string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newLimitedTestServer(t, 0)
}

func newLimitedTestServer(t *testing.T, loginLimit int) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := repositorytest.NewAccounts()
	dispatcher := events.NewInMemoryDispatcher()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 5, PasswordResetTTLMinutes: 30}}

	factory := service.NewAccountFactory(store, hasher, dispatcher, nil)
	accounts := service.NewAccountService(store, dispatcher, nil)
	revoked := persistence.NewTokenDenylist(client, "revoked:")
	authService := service.NewAuthService(cfg, service.AuthDependencies{
		AccountRepo: store,
		Hasher:      hasher,
		Throttle:    persistence.NewThrottle(client, "pwreset:", time.Minute),
		Revocations: revoked,
		Dispatcher:  dispatcher,
	})

	srv := &testServer{store: store, factory: factory, redis: mr}
	dispatcher.Subscribe(events.EventPasswordResetRequested, func(_ context.Context, e events.Event) error {
		srv.resets = append(srv.resets, e.Payload.(events.PasswordResetRequestedPayload).Token)
		return nil
	})

	metrics := observability.NewMetrics()
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("account-service", "test", handlers.Dependency{Name: "redis", Pinger: &persistence.Redis{Client: client}}),
		Accounts:       handlers.NewAccountsHandler(factory, accounts, true),
		Auth:           handlers.NewAuthHandler(authService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), store, revoked),
		Metrics:        metrics,
		LoginRateLimit: loginLimit,
	})
	srv.app = app
	return srv
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	status, body := s.do(t, fiber.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": password}, "")
	require.Equal(t, fiber.StatusOK, status, body)
	return body["data"].(map[string]any)["auth"].(map[string]any)["token"].(string)
}

func (s *testServer) superuser(t *testing.T) string {
	t.Helper()
	_, err := s.factory.CreateSuperuser(context.Background(), "root@example.com", "root-password", service.ExtraFields{})
	require.NoError(t, err)
	return s.login(t, "root@example.com", "root-password")
}

func registration(email string) map[string]string {
	return map[string]string{
		"email":         email,
		"password":      "correct-horse",
		"first_name":    "Jane",
		"last_name":     "Doe",
		"photo":         "photos/jane.png",
		"date_of_birth": "1990-05-17",
		"phone_number":  "+15550100",
	}
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func TestRegisterAndLogin(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, fiber.MethodPost, "/api/v1/accounts", registration("Jane@Example.COM"), "")
	require.Equal(t, fiber.StatusCreated, status, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Jane@example.com", data["email"])
	assert.Equal(t, "1990-05-17", data["date_of_birth"])
	assert.Equal(t, true, data["is_active"])
	assert.NotContains(t, data, "password")
	assert.NotContains(t, data, "password_hash")

	status, body = srv.do(t, fiber.MethodPost, "/api/v1/accounts", registration("jane@example.com"), "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))

	token := srv.login(t, "JANE@example.com", "correct-horse")
	status, body = srv.do(t, fiber.MethodGet, "/api/v1/accounts/me", nil, token)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Jane Doe", body["data"].(map[string]any)["full_name"])

	status, body = srv.do(t, fiber.MethodPost, "/api/v1/auth/login", map[string]string{"email": "jane@example.com", "password": "wrong"}, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	req := registration("not-an-email")
	delete(req, "first_name")
	req["password"] = "short"
	status, body := srv.do(t, fiber.MethodPost, "/api/v1/accounts", req, "")
	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "first_name")
	assert.Contains(t, details, "password")

	req = registration("ok@example.com")
	req["date_of_birth"] = "17/05/1990"
	status, _ = srv.do(t, fiber.MethodPost, "/api/v1/accounts", req, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestUpdateMe(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, fiber.MethodPost, "/api/v1/accounts", registration("me@example.com"), "")
	token := srv.login(t, "me@example.com", "correct-horse")

	status, body := srv.do(t, fiber.MethodPatch, "/api/v1/accounts/me", map[string]string{"first_name": "Janet", "date_of_birth": "1991-01-02"}, token)
	require.Equal(t, fiber.StatusOK, status, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Janet", data["first_name"])
	assert.Equal(t, "Doe", data["last_name"])
	assert.Equal(t, "1991-01-02", data["date_of_birth"])

	status, _ = srv.do(t, fiber.MethodPatch, "/api/v1/accounts/me", map[string]string{"first_name": "x"}, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAdminRoutes(t *testing.T) {
	srv := newTestServer(t)
	rootToken := srv.superuser(t)

	_, body := srv.do(t, fiber.MethodPost, "/api/v1/accounts", registration("user@example.com"), "")
	userID := body["data"].(map[string]any)["id"].(string)
	userToken := srv.login(t, "user@example.com", "correct-horse")

	status, _ := srv.do(t, fiber.MethodGet, "/api/v1/accounts", nil, userToken)
	assert.Equal(t, fiber.StatusForbidden, status)
	status, _ = srv.do(t, fiber.MethodPost, "/api/v1/accounts/superusers", map[string]string{"email": "x@example.com", "password": "longenough"}, userToken)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = srv.do(t, fiber.MethodPost, "/api/v1/accounts/superusers", map[string]string{"email": "admin2@example.com", "password": "longenough"}, rootToken)
	require.Equal(t, fiber.StatusCreated, status, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["is_staff"])
	assert.Equal(t, true, data["is_superuser"])
	assert.Equal(t, true, data["is_active"])

	status, body = srv.do(t, fiber.MethodPost, "/api/v1/accounts/superusers", map[string]any{"email": "admin3@example.com", "password": "longenough", "is_staff": false}, rootToken)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = srv.do(t, fiber.MethodPatch, "/api/v1/accounts/"+userID+"/flags", map[string]any{"is_staff": true, "permissions": []string{"accounts.view"}}, rootToken)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, []any{"accounts.view"}, body["data"].(map[string]any)["permissions"])

	status, body = srv.do(t, fiber.MethodGet, "/api/v1/accounts?is_staff=true", nil, userToken)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Len(t, body["data"].([]any), 3)

	status, _ = srv.do(t, fiber.MethodGet, "/api/v1/accounts?limit=-1", nil, userToken)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = srv.do(t, fiber.MethodDelete, "/api/v1/accounts/"+userID, nil, userToken)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = srv.do(t, fiber.MethodDelete, "/api/v1/accounts/"+userID, nil, rootToken)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, body["data"].(map[string]any)["is_deleted"])

	status, _ = srv.do(t, fiber.MethodGet, "/api/v1/accounts/me", nil, userToken)
	assert.Equal(t, fiber.StatusUnauthorized, status, "deleted accounts lose their sessions")

	status, body = srv.do(t, fiber.MethodGet, "/api/v1/accounts/"+userID, nil, rootToken)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]any)["is_deleted"])

	status, body = srv.do(t, fiber.MethodGet, "/api/v1/accounts/missing", nil, rootToken)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestRegisterRejectsPasswordOverBcryptLimit(t *testing.T) {
	srv := newTestServer(t)

	req := registration("wide@example.com")
	req["password"] = strings.Repeat("é", 72)
	status, body := srv.do(t, fiber.MethodPost, "/api/v1/accounts", req, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "password", details["field"])

	req["password"] = strings.Repeat("é", 36)
	status, body = srv.do(t, fiber.MethodPost, "/api/v1/accounts", req, "")
	assert.Equal(t, fiber.StatusCreated, status, body)
}

func TestSetFlagsCannotEscalate(t *testing.T) {
	srv := newTestServer(t)
	rootToken := srv.superuser(t)

	changer, err := srv.factory.CreateUser(context.Background(), "changer@example.com", "changer-pass", service.ExtraFields{
		IsStaff:     boolPtr(true),
		IsActive:    boolPtr(true),
		Permissions: []string{"accounts.change"},
	})
	require.NoError(t, err)
	changerToken := srv.login(t, "changer@example.com", "changer-pass")

	_, body := srv.do(t, fiber.MethodPost, "/api/v1/accounts", registration("target@example.com"), "")
	targetID := body["data"].(map[string]any)["id"].(string)

	all := []string{"accounts.change", "accounts.view", "accounts.delete"}
	status, body := srv.do(t, fiber.MethodPatch, "/api/v1/accounts/"+changer.ID+"/flags", map[string]any{"permissions": all}, changerToken)
	assert.Equal(t, fiber.StatusForbidden, status, body)
	assert.Equal(t, []string{"accounts.change"}, srv.store.Stored(changer.ID).Permissions)

	status, _ = srv.do(t, fiber.MethodPatch, "/api/v1/accounts/"+targetID+"/flags", map[string]any{"permissions": []string{"accounts.delete"}}, changerToken)
	assert.Equal(t, fiber.StatusForbidden, status, "cannot hand out permissions the caller lacks")
	assert.Empty(t, srv.store.Stored(targetID).Permissions)

	status, body = srv.do(t, fiber.MethodPatch, "/api/v1/accounts/"+targetID+"/flags", map[string]any{"permissions": []string{"accounts.change"}}, changerToken)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, []any{"accounts.change"}, body["data"].(map[string]any)["permissions"])

	status, body = srv.do(t, fiber.MethodPatch, "/api/v1/accounts/"+targetID+"/flags", map[string]any{"permissions": all}, rootToken)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Len(t, body["data"].(map[string]any)["permissions"], 3)

	status, _ = srv.do(t, fiber.MethodPatch, "/api/v1/accounts/"+targetID+"/flags", map[string]any{"permissions": []string{"accounts.change"}}, changerToken)
	assert.Equal(t, fiber.StatusForbidden, status, "cannot revoke permissions the caller lacks")
}

func TestLogout(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, fiber.MethodPost, "/api/v1/accounts", registration("bye@example.com"), "")
	first := srv.login(t, "bye@example.com", "correct-horse")
	second := srv.login(t, "bye@example.com", "correct-horse")

	status, body := srv.do(t, fiber.MethodPost, "/api/v1/auth/logout", nil, first)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "logged_out", body["data"].(map[string]any)["status"])

	status, body = srv.do(t, fiber.MethodGet, "/api/v1/accounts/me", nil, first)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, _ = srv.do(t, fiber.MethodGet, "/api/v1/accounts/me", nil, second)
	assert.Equal(t, fiber.StatusOK, status, "other sessions stay valid")

	status, _ = srv.do(t, fiber.MethodPost, "/api/v1/auth/logout", nil, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func boolPtr(b bool) *bool {
	return &b
}

func TestPasswordResetRoutes(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, fiber.MethodPost, "/api/v1/accounts", registration("reset@example.com"), "")

	status, _ := srv.do(t, fiber.MethodPost, "/api/v1/auth/password/reset/request", map[string]string{"email": "reset@example.com"}, "")
	require.Equal(t, fiber.StatusAccepted, status)
	require.Len(t, srv.resets, 1)

	status, body := srv.do(t, fiber.MethodPost, "/api/v1/auth/password/reset/request", map[string]string{"email": "reset@example.com"}, "")
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, "TOO_MANY_REQUESTS", errorCode(body))

	status, _ = srv.do(t, fiber.MethodPost, "/api/v1/auth/password/reset/request", map[string]string{"email": "ghost@example.com"}, "")
	assert.Equal(t, fiber.StatusAccepted, status, "unknown emails look identical")

	status, _ = srv.do(t, fiber.MethodPost, "/api/v1/auth/password/reset/confirm", map[string]string{"token": srv.resets[0], "new_password": "brand-new-pass"}, "")
	require.Equal(t, fiber.StatusOK, status)
	token := srv.login(t, "reset@example.com", "brand-new-pass")

	status, body = srv.do(t, fiber.MethodPost, "/api/v1/auth/password/reset/confirm", map[string]string{"token": srv.resets[0], "new_password": "another-pass"}, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, _ = srv.do(t, fiber.MethodPost, "/api/v1/auth/password/change", map[string]string{"current_password": "brand-new-pass", "new_password": "brand-new-pass"}, token)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = srv.do(t, fiber.MethodPost, "/api/v1/auth/password/change", map[string]string{"current_password": "brand-new-pass", "new_password": "changed-pass"}, token)
	require.Equal(t, fiber.StatusOK, status)
	srv.login(t, "reset@example.com", "changed-pass")
}

func TestLoginRateLimit(t *testing.T) {
	srv := newLimitedTestServer(t, 2)
	creds := map[string]string{"email": "ghost@example.com", "password": "whatever"}

	for i := 0; i < 2; i++ {
		status, _ := srv.do(t, fiber.MethodPost, "/api/v1/auth/login", creds, "")
		assert.Equal(t, fiber.StatusUnauthorized, status)
	}
	status, body := srv.do(t, fiber.MethodPost, "/api/v1/auth/login", creds, "")
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, "TOO_MANY_REQUESTS", errorCode(body))
}

func TestHealthAndFallbacks(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, fiber.MethodGet, "/health/live", nil, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	resp, err := srv.app.Test(httptest.NewRequest(fiber.MethodGet, "/health/ready", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))

	status, body = srv.do(t, fiber.MethodGet, "/api/v1/nope", nil, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = srv.do(t, fiber.MethodGet, "/health/metrics", nil, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, "requests")

	srv.redis.Close()
	status, body = srv.do(t, fiber.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(body))
}
