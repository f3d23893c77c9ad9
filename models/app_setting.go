package models

import "time"

// AppSettingID is the primary key of the single settings row.
const AppSettingID = 1

// AppSetting holds the system-wide toggles admins flip from the settings page.
type AppSetting struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	IsAttendanceOpen   bool      `gorm:"not null;default:false" json:"is_attendance_open"`
	IsRegistrationOpen bool      `gorm:"not null;default:true" json:"is_registration_open"`
	UpdatedAt          time.Time `json:"updated_at"`
}
