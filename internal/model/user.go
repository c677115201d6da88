package model

import "time"

// Role is the authorization level of a user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleRegular Role = "regular"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleRegular
}

// InitialAdminUsername is the account created at bootstrap. Its username and
// role never change.
const InitialAdminUsername = "admin"

// User represents an authenticated user in the system.
type User struct {
	Username       string    `json:"username" gorm:"primaryKey;size:255"`
	HashedPassword string    `json:"-" gorm:"size:255;not null"` // Never expose in JSON
	Role           Role      `json:"role" gorm:"size:20;not null;default:'regular'"`
	Phone          string    `json:"phone" gorm:"size:32"`
	CreatedAt      time.Time `json:"-"`
	UpdatedAt      time.Time `json:"-"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserPublic is the externally visible part of a user.
type UserPublic struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Phone    string `json:"phone"`
}

// Public strips the private fields.
func (u *User) Public() UserPublic {
	return UserPublic{Username: u.Username, Role: u.Role, Phone: u.Phone}
}
