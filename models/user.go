package models

import (
	"time"
)

type UserRole string

const (
	RoleAuthor    UserRole = "author"
	RoleEditor    UserRole = "editor"
	RoleModerator UserRole = "moderator"
	RoleAdmin     UserRole = "admin"
	RoleReader    UserRole = "reader"
)

// Valid reports whether r is one of the five known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAuthor, RoleEditor, RoleModerator, RoleAdmin, RoleReader:
		return true
	}
	return false
}

type User struct {
	ID             uint       `json:"id" gorm:"primarykey"`
	Email          string     `json:"email" gorm:"uniqueIndex;not null"`
	Password       string     `json:"-" gorm:"not null"`
	FirstName      string     `json:"first_name" gorm:"size:255"`
	LastName       string     `json:"last_name" gorm:"size:255"`
	DisplayName    string     `json:"display_name,omitempty" gorm:"size:255"`
	ProfileImage   string     `json:"-"`
	ProfileURL     string     `json:"profile_img,omitempty" gorm:"-"`
	Role           UserRole   `json:"role" gorm:"size:16;index;default:'reader'"`
	IsActive       bool       `json:"is_active" gorm:"index;default:true"`
	IsStaff        bool       `json:"is_staff"`
	IsSuperuser    bool       `json:"is_superuser"`
	TokenVersion   int        `json:"-" gorm:"default:0"`
	LastLogin      *time.Time `json:"last_login"`
	CurrentLoginIP string     `json:"-"`
	LastLoginIP    string     `json:"-"`
	CreatedAt      time.Time  `json:"date_joined"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// SetRole assigns the role and recomputes the flags derived from it.
func (u *User) SetRole(role UserRole) {
	u.Role = role
	u.IsStaff = role == RoleModerator || role == RoleAdmin
	u.IsSuperuser = role == RoleAdmin
}

// CanAuthor reports whether the user may be listed as an author of content.
func (u *User) CanAuthor() bool {
	return u.Role == RoleAuthor || u.Role == RoleEditor
}

func (u *User) GetDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.FirstName
}

// RecordLogin shifts the previous login address and stamps the new one.
func (u *User) RecordLogin(ip string, at time.Time) {
	u.LastLoginIP = u.CurrentLoginIP
	u.CurrentLoginIP = ip
	u.LastLogin = &at
}
