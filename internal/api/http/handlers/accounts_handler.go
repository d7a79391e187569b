package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/dto"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/service"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

// AccountsHandler exposes account registration and management endpoints.
type AccountsHandler struct {
	factory            *service.AccountFactory
	accounts           *service.AccountService
	activateOnRegister bool
}

// NewAccountsHandler constructs handler.
func NewAccountsHandler(factory *service.AccountFactory, accounts *service.AccountService, activateOnRegister bool) *AccountsHandler {
	return &AccountsHandler{factory: factory, accounts: accounts, activateOnRegister: activateOnRegister}
}

// Register POST /api/v1/accounts.
func (h *AccountsHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	dob, err := dto.ParseDate(req.DateOfBirth)
	if err != nil {
		return apperrors.NewValidationError("invalid date_of_birth", map[string]any{"field": "date_of_birth"})
	}

	account, err := h.factory.CreateUser(c.UserContext(), req.Email, req.Password, service.ExtraFields{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Photo:       req.Photo,
		DateOfBirth: dob,
		PhoneNumber: req.PhoneNumber,
		IsActive:    &h.activateOnRegister,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// CreateSuperuser POST /api/v1/accounts/superusers.
func (h *AccountsHandler) CreateSuperuser(c *fiber.Ctx) error {
	var req dto.CreateSuperuserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	dob, err := dto.ParseDate(req.DateOfBirth)
	if err != nil {
		return apperrors.NewValidationError("invalid date_of_birth", map[string]any{"field": "date_of_birth"})
	}

	account, err := h.factory.CreateSuperuser(c.UserContext(), req.Email, req.Password, service.ExtraFields{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Photo:       req.Photo,
		DateOfBirth: dob,
		PhoneNumber: req.PhoneNumber,
		IsStaff:     req.IsStaff,
		IsSuperuser: req.IsSuperuser,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// Me GET /api/v1/accounts/me.
func (h *AccountsHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(principal)})
}

// UpdateMe PATCH /api/v1/accounts/me.
func (h *AccountsHandler) UpdateMe(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ProfileUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	update := service.ProfileUpdate{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Photo:       req.Photo,
		PhoneNumber: req.PhoneNumber,
	}
	if req.DateOfBirth != nil {
		dob, err := dto.ParseDate(*req.DateOfBirth)
		if err != nil {
			return apperrors.NewValidationError("invalid date_of_birth", map[string]any{"field": "date_of_birth"})
		}
		update.DateOfBirth = &dob
	}

	account, err := h.accounts.UpdateProfile(c.UserContext(), principal.ID, update)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// List GET /api/v1/accounts.
func (h *AccountsHandler) List(c *fiber.Ctx) error {
	filters, err := parseListQuery(c)
	if err != nil {
		return err
	}
	accounts, err := h.accounts.List(c.UserContext(), filters)
	if err != nil {
		return err
	}
	items := make([]dto.AccountResponse, 0, len(accounts))
	for i := range accounts {
		items = append(items, dto.NewAccountResponse(&accounts[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /api/v1/accounts/:id.
func (h *AccountsHandler) Get(c *fiber.Ctx) error {
	account, err := h.accounts.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// SetFlags PATCH /api/v1/accounts/:id/flags.
func (h *AccountsHandler) SetFlags(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.FlagsUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	account, err := h.accounts.SetFlags(c.UserContext(), principal, c.Params("id"), service.FlagsUpdate{
		IsStaff:     req.IsStaff,
		IsSuperuser: req.IsSuperuser,
		IsActive:    req.IsActive,
		Permissions: req.Permissions,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// Delete DELETE /api/v1/accounts/:id. The account is soft deleted.
func (h *AccountsHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	account, err := h.accounts.SoftDelete(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}

// Permissions GET /api/v1/accounts/permissions lists grantable permissions.
func (h *AccountsHandler) Permissions(c *fiber.Ctx) error {
	perms := make([]string, 0, len(domain.KnownPermissions))
	for _, p := range domain.KnownPermissions {
		perms = append(perms, string(p))
	}
	return c.JSON(fiber.Map{"data": perms})
}

func parseListQuery(c *fiber.Ctx) (service.AccountListFilters, error) {
	filters := service.AccountListFilters{
		Search:         c.Query("search"),
		IncludeDeleted: c.QueryBool("include_deleted", false),
	}
	var err error
	if filters.IsStaff, err = optionalBool(c, "is_staff"); err != nil {
		return filters, err
	}
	if filters.IsActive, err = optionalBool(c, "is_active"); err != nil {
		return filters, err
	}
	if filters.Limit, err = nonNegativeInt(c, "limit"); err != nil {
		return filters, err
	}
	if filters.Offset, err = nonNegativeInt(c, "offset"); err != nil {
		return filters, err
	}
	return filters, nil
}

func optionalBool(c *fiber.Ctx, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid query parameter", map[string]any{key: raw})
	}
	return &v, nil
}

func nonNegativeInt(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperrors.NewValidationError("invalid query parameter", map[string]any{key: raw})
	}
	return v, nil
}
