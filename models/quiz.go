package models

import (
	"time"

	"gorm.io/datatypes"
)

// Quiz is a timed, single-attempt multiple-choice test.
type Quiz struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ClassID          uint      `gorm:"index;not null" json:"class_id"`
	Title            string    `gorm:"size:255;not null" json:"title"`
	TimeLimitSeconds int       `gorm:"not null" json:"time_limit_seconds"`
	XPReward         int       `gorm:"not null;default:100" json:"xp_reward"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// QuizOption is one answer choice of a question.
type QuizOption struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// QuizQuestion belongs to a quiz and is shown in OrderIndex order.
type QuizQuestion struct {
	ID         uint                            `gorm:"primaryKey" json:"id"`
	QuizID     uint                            `gorm:"index;not null" json:"quiz_id"`
	Question   string                          `gorm:"type:text;not null" json:"question"`
	Options    datatypes.JSONSlice[QuizOption] `json:"options"`
	OrderIndex int                             `gorm:"not null;default:0" json:"order_index"`
	CreatedAt  time.Time                       `json:"created_at"`
}

// QuizAttempt is the single recorded attempt of a user on a quiz.
// Answers maps question id to the chosen option index.
type QuizAttempt struct {
	ID          uint                             `gorm:"primaryKey" json:"id"`
	QuizID      uint                             `gorm:"not null;uniqueIndex:idx_attempt_user_quiz,priority:2" json:"quiz_id"`
	UserID      string                           `gorm:"size:36;not null;uniqueIndex:idx_attempt_user_quiz,priority:1" json:"user_id"`
	Score       int                              `gorm:"not null" json:"score"`
	Answers     datatypes.JSONType[map[uint]int] `json:"answers"`
	CompletedAt time.Time                        `json:"completed_at"`
}
