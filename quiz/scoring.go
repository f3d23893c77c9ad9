// Package quiz runs timed, single-attempt quizzes: scoring, the per-user
// session state machine with its countdown, atomic submission and authoring.
package quiz

import (
	"math"

	"github.com/cppla/eduxp/gamification"
	"github.com/cppla/eduxp/models"
)

// PassingScore only changes the result message; XP is never gated on it.
const PassingScore = 60

// IsCorrect reports whether option index choice is a correct option of q.
func IsCorrect(q models.QuizQuestion, choice int) bool {
	if choice < 0 || choice >= len(q.Options) {
		return false
	}
	return q.Options[choice].IsCorrect
}

// Score counts correct answers and converts them to a 0..100 score.
// Unanswered questions count as incorrect; an empty quiz scores 0.
func Score(questions []models.QuizQuestion, answers map[uint]int) (correct int, score int) {
	if len(questions) == 0 {
		return 0, 0
	}
	for _, q := range questions {
		choice, ok := answers[q.ID]
		if ok && IsCorrect(q, choice) {
			correct++
		}
	}
	return correct, int(math.Round(float64(100*correct) / float64(len(questions))))
}

// XPFor is the proportional reward of a score. A 0 score yields 0 XP.
func XPFor(score, reward int) int {
	return gamification.ScaledXP(score, reward)
}

// Passed reports whether score earns the congratulatory message.
func Passed(score int) bool {
	return score >= PassingScore
}

// ResultMessage is the encouragement text shown with a result.
func ResultMessage(score int) string {
	if Passed(score) {
		return "Great job, you passed!"
	}
	return "Keep practicing, you can do better next time."
}
