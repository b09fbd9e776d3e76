package identity

// UserRole is the user's effective role. Exactly two roles exist; elevation
// happens only through the admin-gated registration path.
type UserRole = string

const (
	// RoleUser is a regular account (view, like, comment).
	RoleUser UserRole = "user"
	// RoleAdmin is an administrator account (content management).
	RoleAdmin UserRole = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// RolePrivilege returns the privilege level used to order role probes,
// higher is more privileged. Unknown roles rank below everything.
func RolePrivilege(r UserRole) int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// ParseRole safely parses a string into a UserRole
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}

// AllRoles returns the predefined roles in ascending privilege order
func AllRoles() []UserRole {
	return []UserRole{RoleUser, RoleAdmin}
}
