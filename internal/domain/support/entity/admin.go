package entity

import "time"

// UserStatus is the account status of a user
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// AdminUser is an entry of the administrator directory used by the "start new chat" picker
type AdminUser struct {
	ID        string     `json:"id"`
	FullName  string     `json:"fullName"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	AvatarURL string     `json:"avatarUrl,omitempty"`
	Status    UserStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}

// User is any marketplace account as seen by the support backend
type User struct {
	ID        string
	FullName  string
	Email     string
	Role      Role
	AvatarURL string
	Status    UserStatus
	CreatedAt time.Time
}

// AsAdmin converts a staff user into a directory entry
func (u *User) AsAdmin() AdminUser {
	return AdminUser{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		Role:      u.Role,
		AvatarURL: u.AvatarURL,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}

// MinAdminSearchLength is the shortest query that triggers a directory lookup
const MinAdminSearchLength = 2
