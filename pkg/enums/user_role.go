package enums

// UserRole is the platform-level role carried in access tokens.
type UserRole string

const (
	UserRoleMember UserRole = "member"
	UserRoleAdmin  UserRole = "admin"
)

var userRoles = values[UserRole]{
	UserRoleMember,
	UserRoleAdmin,
}

func (u UserRole) String() string { return string(u) }

func (u UserRole) IsValid() bool { return userRoles.has(u) }

func ParseUserRole(value string) (UserRole, error) {
	return userRoles.parse("user role", value)
}
