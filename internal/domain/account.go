package domain

import "time"

// Account is a persisted user identity record. Email is the login identifier.
type Account struct {
	ID           string
	Email        string
	PasswordHash string `json:"-"`
	FirstName    string
	LastName     string
	Photo        string
	DateOfBirth  time.Time
	PhoneNumber  string

	IsSuperuser bool
	IsStaff     bool
	IsActive    bool
	IsDeleted   bool
	Permissions []string

	ResetPasswordToken       string     `json:"-"`
	ResetPasswordTokenExpiry *time.Time `json:"-"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// String returns the account email.
func (a *Account) String() string {
	if a == nil {
		return ""
	}
	return a.Email
}

// FullName joins first and last name.
func (a *Account) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// CanAuthenticate reports whether the account may log in or hold a session.
// Soft-deleted accounts stay readable for audit but never authenticate.
func (a *Account) CanAuthenticate() bool {
	return a != nil && a.IsActive && !a.IsDeleted
}

// HasUsablePassword is false for accounts created without a password.
func (a *Account) HasUsablePassword() bool {
	return a != nil && a.PasswordHash != "" && a.PasswordHash[0] != UnusablePasswordPrefix[0]
}

// HasValidResetToken checks token equality and expiry at now.
func (a *Account) HasValidResetToken(token string, now time.Time) bool {
	if a == nil || token == "" || a.ResetPasswordToken == "" || a.ResetPasswordTokenExpiry == nil {
		return false
	}
	if a.ResetPasswordToken != token {
		return false
	}
	return now.Before(*a.ResetPasswordTokenExpiry)
}

// ClearResetToken drops both reset token fields together.
func (a *Account) ClearResetToken() {
	a.ResetPasswordToken = ""
	a.ResetPasswordTokenExpiry = nil
}

// UnusablePasswordPrefix marks a hash that no password can match.
const UnusablePasswordPrefix = "!"
