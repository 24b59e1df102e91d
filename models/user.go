package models

import (
	"time"
)

// User model. CurrentRefreshToken holds the single live refresh token for
// the account (null when logged out); it is overwritten on every login and
// rotation, so an old token can never rotate twice.
type User struct {
	ID                  uint `gorm:"primaryKey"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           *time.Time `gorm:"index"`
	Username            string     `gorm:"size:255;not null;unique"`
	Email               string     `gorm:"size:255;not null;uniqueIndex"`
	FullName            string     `gorm:"size:255"`
	HashedPassword      []byte     `gorm:"not null"`
	CurrentRefreshToken *string    `gorm:"size:1024"`
	RoleID              *uint      `gorm:"index"`
	Role                Role       `gorm:"foreignKey:RoleID;references:ID"`
}

// PublicUser is the response shape for user payloads: credentials and the
// stored refresh token are stripped.
type PublicUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullname"`
}

// Sanitized returns the user with password and refresh token fields removed.
func (u *User) Sanitized() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
	}
}
