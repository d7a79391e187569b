package auth

import "github.com/spec-kit/account-service/internal/domain"

// HasPermission is the single authorization check for accounts. Inactive or
// deleted accounts hold nothing, active superusers hold everything, everyone
// else needs the permission granted explicitly.
func HasPermission(account *domain.Account, perm domain.Permission) bool {
	if !account.CanAuthenticate() {
		return false
	}
	if account.IsSuperuser {
		return true
	}
	for _, granted := range account.Permissions {
		if granted == string(perm) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether account holds every perm.
func HasAllPermissions(account *domain.Account, perms ...domain.Permission) bool {
	for _, perm := range perms {
		if !HasPermission(account, perm) {
			return false
		}
	}
	return true
}
