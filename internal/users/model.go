package users

import "strings"

// Role is the capability level of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is a persisted account.
type User struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Username         string `gorm:"column:username;size:190;not null;uniqueIndex:idx_users_username"`
	PasswordHash     string `gorm:"column:password_hash;size:255;not null"`
	Role             Role   `gorm:"column:role;size:16;not null;default:user;index"`
	SessionVersion   int64  `gorm:"column:session_version;not null;default:0"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName exposes the table backing accounts.
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the account holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Credentials is a username and password pair for registration.
type Credentials struct {
	Username string `json:"username" validate:"required,max=190"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginAttempt is a username and password pair presented at login.
type LoginAttempt struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ProfileUpdate changes the caller's username and/or password.
type ProfileUpdate struct {
	Username *string
	Password *string
}

// Summary is an account with its note count for administrative listings.
type Summary struct {
	User       User
	NotesCount int64
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
