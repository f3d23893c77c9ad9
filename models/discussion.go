package models

import "time"

// Discussion is a thread opened inside a class forum.
type Discussion struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	ClassID   uint              `gorm:"index;not null" json:"class_id"`
	UserID    string            `gorm:"size:36;index;not null" json:"user_id"`
	Content   string            `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	User      User              `gorm:"foreignKey:UserID" json:"author"`
	Replies   []DiscussionReply `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"replies"`
}

// DiscussionReply represents a reply to a discussion.
type DiscussionReply struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	DiscussionID uint      `gorm:"index;not null" json:"discussion_id"`
	UserID       string    `gorm:"size:36;index;not null" json:"user_id"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	User         User      `gorm:"foreignKey:UserID" json:"author"`
}
