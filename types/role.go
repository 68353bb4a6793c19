package types

// Role is a user's network-wide permission level. Exactly one role per user,
// "owner" is a singleton that is never assigned by command.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// ParseRole maps a stored role string to a Role, defaulting to RoleUser.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleOwner, RoleAdmin, RoleModerator:
		return Role(s)
	default:
		return RoleUser
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// Rank orders roles for hierarchy comparisons, higher is more privileged.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleModerator:
		return 1
	default:
		return 0
	}
}

func (r Role) String() string {
	return string(r)
}
