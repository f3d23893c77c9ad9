package gamification

import (
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the calendar-date format stored in attendance rows and profiles.
const DateLayout = "2006-01-02"

// Source prefixes of point-log rows.
const (
	sourceAttendance = "attendance_"
	sourceMaterial   = "material_"
	sourceQuiz       = "quiz_"
	sourceCorrection = "correction_"
)

// AttendanceSource is the point-log source of a daily check-in.
func AttendanceSource(date string) string { return sourceAttendance + date }

// MaterialSource is the point-log source of a finished material.
func MaterialSource(id uint) string { return sourceMaterial + strconv.FormatUint(uint64(id), 10) }

// QuizSource is the point-log source of a completed quiz.
func QuizSource(id uint) string { return sourceQuiz + strconv.FormatUint(uint64(id), 10) }

// DateIn formats t as a calendar date in loc.
func DateIn(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// ParseDate validates a YYYY-MM-DD string.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}

// Yesterday returns the calendar day before date. It returns "" for a malformed date.
func Yesterday(date string) string {
	t, err := ParseDate(date)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(DateLayout)
}

// NextStreak computes the streak after a check-in on today.
func NextStreak(current int, last *string, today string) int {
	if last != nil && *last == Yesterday(today) {
		return current + 1
	}
	return 1
}

// EffectiveStreak is the streak as it should be displayed on today:
// a run that missed yesterday is already broken even though the stored value has not been reset.
func EffectiveStreak(stored int, last *string, today string) int {
	if last == nil {
		return 0
	}
	if *last == today || *last == Yesterday(today) {
		return stored
	}
	return 0
}
