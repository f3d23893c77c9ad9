package models

import "time"

// Class groups materials, quizzes and a discussion forum.
type Class struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedBy   string    `gorm:"size:36;index" json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ClassMember records that a user joined a class.
type ClassMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ClassID   uint      `gorm:"not null;uniqueIndex:idx_class_member,priority:1" json:"class_id"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_class_member,priority:2" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Material is a lesson item. Finishing it grants XPReward once.
type Material struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ClassID   uint      `gorm:"index;not null" json:"class_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Type      string    `gorm:"size:16" json:"type"` // video | text | pdf
	Content   string    `gorm:"type:text" json:"content"`
	URL       string    `gorm:"size:1024" json:"url"`
	XPReward  int       `gorm:"not null;default:50" json:"xp_reward"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
