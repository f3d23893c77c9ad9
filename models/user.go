package models

import (
	"time"

	"gorm.io/gorm"
)

// Roles a profile can hold. Teachers share the admin area with admins.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// User is the learner/teacher profile. The ID is owned by the identity provider
// that issues our JWTs; this service only references it.
type User struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	Username        string    `gorm:"size:64" json:"username"`
	FullName        string    `gorm:"size:128" json:"full_name"`
	AvatarURL       string    `gorm:"size:512" json:"avatar_url"`
	Bio             string    `gorm:"size:255" json:"bio"`
	Role            string    `gorm:"size:16;index;not null;default:student" json:"role"`
	Points          int       `gorm:"not null;default:0" json:"points"`
	Streak          int       `gorm:"not null;default:0" json:"streak"`
	LastCheckInDate *string   `gorm:"size:10" json:"last_check_in_date"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Role == "" {
		u.Role = RoleStudent
	}
	return nil
}

// IsStaff reports whether the profile may use the admin area.
func (u *User) IsStaff() bool {
	return u.Role == RoleAdmin || u.Role == RoleTeacher
}

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}
