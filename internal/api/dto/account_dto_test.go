package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/account-service/internal/domain"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

func TestValidateReportsJSONFieldNames(t *testing.T) {
	err := Validate(&RegisterRequest{Email: "nope", Password: "short"})
	require.Error(t, err)

	de := apperrors.ToDomainError(err)
	assert.Equal(t, "VALIDATION_FAILED", de.Code)
	assert.Equal(t, "must be a valid email address", de.Details["email"])
	assert.Equal(t, "must be at least 8 characters", de.Details["password"])
	assert.Equal(t, "is required", de.Details["date_of_birth"])
	assert.NotContains(t, de.Details, "DateOfBirth")
}

func TestValidateOptionalFields(t *testing.T) {
	assert.NoError(t, Validate(&ProfileUpdateRequest{}))

	bad := "1990-13-40"
	err := Validate(&ProfileUpdateRequest{DateOfBirth: &bad})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	assert.NoError(t, Validate(&CreateSuperuserRequest{Email: "root@example.com", Password: "longenough"}))
	assert.Error(t, Validate(&PasswordChangeRequest{CurrentPassword: "same-password", NewPassword: "same-password"}))
	assert.Error(t, Validate(&FlagsUpdateRequest{Permissions: []string{""}}))
}

func TestNewAccountResponseHidesSecrets(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	acc := &domain.Account{
		ID:                       "acc-1",
		Email:                    "jane@example.com",
		PasswordHash:             "$2a$10$secret",
		FirstName:                "Jane",
		DateOfBirth:              time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC),
		ResetPasswordToken:       "reset-secret",
		ResetPasswordTokenExpiry: &expiry,
	}
	raw, err := json.Marshal(NewAccountResponse(acc))
	require.NoError(t, err)

	assert.NotContains(t, string(raw), "secret")
	assert.Contains(t, string(raw), `"date_of_birth":"1990-05-17"`)
	assert.Contains(t, string(raw), `"permissions":[]`)
	assert.Contains(t, string(raw), `"full_name":"Jane"`)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = ParseDate("2001-02-03")
	require.NoError(t, err)
	assert.Equal(t, time.February, d.Month())

	_, err = ParseDate("03/02/2001")
	assert.Error(t, err)
}
