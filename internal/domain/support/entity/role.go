package entity

// Role is the marketplace role of a user
type Role string

const (
	RoleStudent    Role = "student"
	RoleTutor      Role = "tutor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
	RoleManager    Role = "manager"
)

// IsStaff reports whether the role can act as a support counterpart
func (r Role) IsStaff() bool {
	switch r {
	case RoleAdmin, RoleSuperAdmin, RoleManager:
		return true
	default:
		return false
	}
}

// CanStartConversation reports whether the role may open a chat with an administrator
func (r Role) CanStartConversation() bool {
	return r == RoleStudent || r == RoleTutor
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r.CanStartConversation() || r.IsStaff()
}
