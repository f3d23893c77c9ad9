package models

import "time"

// AttendanceStatusPresent is the only status a self check-in produces.
const AttendanceStatusPresent = "present"

// Attendance stores one daily check-in per user. The (user_id, date) unique
// index is what rejects double check-ins from concurrent tabs.
type Attendance struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_attendance_user_date,priority:1" json:"user_id"`
	Date      string    `gorm:"size:10;not null;uniqueIndex:idx_attendance_user_date,priority:2" json:"date"`
	Status    string    `gorm:"size:16;not null;default:present" json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// PointLog is an immutable XP award. At most one row exists per (user, source),
// which makes material and quiz rewards safe to request repeatedly.
type PointLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_point_log_user_source,priority:1" json:"user_id"`
	Source    string    `gorm:"size:128;not null;uniqueIndex:idx_point_log_user_source,priority:2" json:"source"`
	Points    int       `gorm:"not null" json:"points"`
	Note      string    `gorm:"size:255" json:"note,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
