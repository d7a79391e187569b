package domain

// Permission names a capability that can be granted to an account.
type Permission string

const (
	PermAccountsView   Permission = "accounts.view"
	PermAccountsChange Permission = "accounts.change"
	PermAccountsDelete Permission = "accounts.delete"
)

// KnownPermissions lists every permission the service checks.
var KnownPermissions = []Permission{PermAccountsView, PermAccountsChange, PermAccountsDelete}

// IsKnownPermission reports whether p is one of KnownPermissions.
func IsKnownPermission(p string) bool {
	for _, known := range KnownPermissions {
		if string(known) == p {
			return true
		}
	}
	return false
}
