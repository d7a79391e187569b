package dto

import (
	"time"

	"github.com/spec-kit/account-service/internal/domain"
)

// DateLayout is the wire format of date_of_birth.
const DateLayout = "2006-01-02"

// RegisterRequest payload for self-service sign up.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	FirstName   string `json:"first_name" validate:"required,max=255"`
	LastName    string `json:"last_name" validate:"required,max=255"`
	Photo       string `json:"photo" validate:"required,max=512"`
	DateOfBirth string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	PhoneNumber string `json:"phone_number" validate:"required,max=20"`
}

// CreateSuperuserRequest payload for POST /accounts/superusers. Flags are
// optional; an explicit false is rejected by the factory.
type CreateSuperuserRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	FirstName   string `json:"first_name" validate:"max=255"`
	LastName    string `json:"last_name" validate:"max=255"`
	Photo       string `json:"photo" validate:"max=512"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	PhoneNumber string `json:"phone_number" validate:"max=20"`
	IsStaff     *bool  `json:"is_staff"`
	IsSuperuser *bool  `json:"is_superuser"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PasswordResetRequest starts a reset.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required"`
}

// PasswordResetConfirmRequest finishes a reset.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// PasswordChangeRequest changes the caller's password.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72,nefield=CurrentPassword"`
}

// ProfileUpdateRequest is a partial update of the caller's profile.
type ProfileUpdateRequest struct {
	FirstName   *string `json:"first_name" validate:"omitempty,min=1,max=255"`
	LastName    *string `json:"last_name" validate:"omitempty,min=1,max=255"`
	Photo       *string `json:"photo" validate:"omitempty,max=512"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
}

// FlagsUpdateRequest changes administrative flags. A present but empty
// permissions array revokes all permissions.
type FlagsUpdateRequest struct {
	IsStaff     *bool    `json:"is_staff"`
	IsSuperuser *bool    `json:"is_superuser"`
	IsActive    *bool    `json:"is_active"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,required"`
}

// AccountResponse is the public view of an account. Secrets never appear.
type AccountResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	FullName    string    `json:"full_name"`
	Photo       string    `json:"photo"`
	DateOfBirth string    `json:"date_of_birth,omitempty"`
	PhoneNumber string    `json:"phone_number"`
	IsStaff     bool      `json:"is_staff"`
	IsSuperuser bool      `json:"is_superuser"`
	IsActive    bool      `json:"is_active"`
	IsDeleted   bool      `json:"is_deleted"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewAccountResponse maps a domain account to its response.
func NewAccountResponse(a *domain.Account) AccountResponse {
	resp := AccountResponse{
		ID:          a.ID,
		Email:       a.Email,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		FullName:    a.FullName(),
		Photo:       a.Photo,
		PhoneNumber: a.PhoneNumber,
		IsStaff:     a.IsStaff,
		IsSuperuser: a.IsSuperuser,
		IsActive:    a.IsActive,
		IsDeleted:   a.IsDeleted,
		Permissions: a.Permissions,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if !a.DateOfBirth.IsZero() {
		resp.DateOfBirth = a.DateOfBirth.Format(DateLayout)
	}
	if resp.Permissions == nil {
		resp.Permissions = []string{}
	}
	return resp
}

// ParseDate parses an optional date_of_birth value. Empty yields the zero time.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, value)
}
