package auth

// Role is the closed set of capabilities a credential can carry.
type Role string

const (
	RoleViewer    Role = "viewer"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole maps a role claim onto the closed role set. Unknown values
// degrade to viewer; legacy "super_admin" collapses into admin.
func ParseRole(s string) Role {
	switch s {
	case "moderator":
		return RoleModerator
	case "admin", "super_admin":
		return RoleAdmin
	default:
		return RoleViewer
	}
}

// CanModerate reports whether the role may delete messages and bypass
// message moderation.
func (r Role) CanModerate() bool {
	return r == RoleModerator || r == RoleAdmin
}

// IsAdmin reports whether the role may change stream settings and read
// chat statistics.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}
