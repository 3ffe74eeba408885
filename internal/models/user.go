package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the principal backing all auth flows. Password fields are
// never serialized.
type User struct {
	ID                   string         `gorm:"primaryKey;size:36" json:"id"`
	Email                string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password             string         `gorm:"size:255;not null" json:"-"` // argon2id PHC string
	Name                 string         `gorm:"size:200" json:"name,omitempty"`
	FirstName            string         `gorm:"size:100" json:"first_name,omitempty"`
	LastName             string         `gorm:"size:100" json:"last_name,omitempty"`
	Role                 string         `gorm:"size:50;default:therapist" json:"role"` // owner, manager, therapist
	Active               bool           `gorm:"default:true" json:"active"`
	LastLogin            *time.Time     `json:"last_login,omitempty"`
	PasswordChangedAt    *time.Time     `json:"-"`
	PasswordResetToken   string         `gorm:"size:64;index" json:"-"` // sha256 hex of the reset token
	PasswordResetExpires *time.Time     `json:"-"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }

// PasswordChangedAfter reports whether the password was changed after
// the given token issue time. JWT iat claims have second precision, so
// both sides are truncated before comparing.
func (u *User) PasswordChangedAfter(iat time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Truncate(time.Second).After(iat.Truncate(time.Second))
}
