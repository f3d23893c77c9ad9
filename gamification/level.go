package gamification

import "math"

// PointsPerLevel is the width of one level band.
const PointsPerLevel = 100

// Level derives the level from a point total: 0..99 is level 1, 100..199 level 2, ...
func Level(points int) int {
	if points < 0 {
		points = 0
	}
	return points/PointsPerLevel + 1
}

// ProgressIntoLevel is how far the total sits inside its current band (0..99).
func ProgressIntoLevel(points int) int {
	if points < 0 {
		return 0
	}
	return points % PointsPerLevel
}

// PointsToNextLevel is the remaining points before the next level.
func PointsToNextLevel(points int) int {
	return PointsPerLevel - ProgressIntoLevel(points)
}

// ScaledXP grants the share of reward proportional to a 0..100 score, rounded half away from zero.
func ScaledXP(score, reward int) int {
	if score <= 0 || reward <= 0 {
		return 0
	}
	if score > 100 {
		score = 100
	}
	return int(math.Round(float64(score*reward) / 100))
}
