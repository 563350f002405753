package models

import (
	"time"
)

const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Username   string    `gorm:"uniqueIndex;not null" json:"username"`
	Email      string    `gorm:"uniqueIndex;not null" json:"-"`
	Password   string    `gorm:"not null" json:"-"`                           // bcrypt hash
	TrustLevel int       `gorm:"default:1;not null" json:"trust_level"`       // 0-4
	Role       string    `gorm:"size:20;default:'user';not null" json:"role"` // user, moderator, admin
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsStaff reports whether the user is an admin or moderator.
func (u *User) IsStaff() bool {
	return u.Role == RoleAdmin || u.Role == RoleModerator
}
