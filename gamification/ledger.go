// Package gamification is the points ledger: daily check-in with streaks,
// idempotent XP awards, administrative corrections, levels and the leaderboard.
package gamification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/eduxp/metrics"
	"github.com/cppla/eduxp/models"
	"github.com/cppla/eduxp/settings"
	"github.com/cppla/eduxp/utils"
)

var (
	ErrAttendanceClosed = errors.New("attendance is closed")
	ErrUserNotFound     = errors.New("user not found")
	ErrMaterialNotFound = errors.New("material not found")
	ErrInvalidSource    = errors.New("award source is required")
	ErrInvalidDelta     = errors.New("correction delta must not be zero")
)

const (
	// MaxLeaderboard caps leaderboard queries.
	MaxLeaderboard     = 50
	leaderboardPrefix  = "leaderboard:"
	defaultCheckInXP   = 10
	defaultMaterialXP  = 50
	defaultHistoryPage = 50
)

// Ledger owns every write to a profile's points and streak.
type Ledger struct {
	db         *gorm.DB
	settings   settings.Provider
	loc        *time.Location
	now        func() time.Time
	checkInXP  int
	materialXP int
	cacheTTL   time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLocation sets the time zone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithCheckInReward sets the points granted per daily check-in.
func WithCheckInReward(points int) Option {
	return func(l *Ledger) {
		if points > 0 {
			l.checkInXP = points
		}
	}
}

// WithDefaultMaterialXP sets the reward for materials that carry none.
func WithDefaultMaterialXP(points int) Option {
	return func(l *Ledger) {
		if points > 0 {
			l.materialXP = points
		}
	}
}

// WithLeaderboardTTL sets how long leaderboard pages stay cached in Redis.
func WithLeaderboardTTL(ttl time.Duration) Option {
	return func(l *Ledger) { l.cacheTTL = ttl }
}

// NewLedger builds a Ledger over db, asking provider whether attendance is open.
func NewLedger(db *gorm.DB, provider settings.Provider, opts ...Option) *Ledger {
	l := &Ledger{
		db:         db,
		settings:   provider,
		loc:        time.Local,
		now:        time.Now,
		checkInXP:  defaultCheckInXP,
		materialXP: defaultMaterialXP,
		cacheTTL:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DB exposes the handle so collaborators can join the ledger's transactions.
func (l *Ledger) DB() *gorm.DB { return l.db }

// Today is the current calendar date in the ledger's time zone.
func (l *Ledger) Today() string { return DateIn(l.now(), l.loc) }

// CheckInResult describes the outcome of a check-in request.
type CheckInResult struct {
	Date             string `json:"date"`
	AlreadyCheckedIn bool   `json:"already_checked_in"`
	PointsAwarded    int    `json:"points_awarded"`
	Points           int    `json:"points"`
	Streak           int    `json:"streak"`
}

// CheckIn records today's attendance for userID.
func (l *Ledger) CheckIn(ctx context.Context, userID string) (CheckInResult, error) {
	return l.CheckInOn(ctx, userID, l.Today())
}

// CheckInOn records attendance for the given calendar date. A second check-in on the
// same date is reported through AlreadyCheckedIn and is not an error.
func (l *Ledger) CheckInOn(ctx context.Context, userID, today string) (CheckInResult, error) {
	if _, err := ParseDate(today); err != nil {
		return CheckInResult{}, err
	}
	open, err := l.settings.IsAttendanceOpen(ctx)
	if err != nil {
		metrics.CheckIns.WithLabelValues("error").Inc()
		return CheckInResult{}, fmt.Errorf("read attendance toggle: %w", err)
	}
	if !open {
		metrics.CheckIns.WithLabelValues("closed").Inc()
		return CheckInResult{}, ErrAttendanceClosed
	}

	res := CheckInResult{Date: today}
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the profile first so concurrent check-ins of one user serialize here.
		var user models.User
		if err := lockRow(tx).Where("id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		inserted, err := insertOnce(tx, &models.Attendance{
			UserID: userID,
			Date:   today,
			Status: models.AttendanceStatusPresent,
		})
		if err != nil {
			return fmt.Errorf("insert attendance: %w", err)
		}
		if !inserted {
			res.AlreadyCheckedIn = true
			res.Points = user.Points
			res.Streak = user.Streak
			return nil
		}

		streak := NextStreak(user.Streak, user.LastCheckInDate, today)
		awarded, err := l.AwardTx(tx, userID, AttendanceSource(today), l.checkInXP)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"streak":             streak,
			"last_check_in_date": today,
			"updated_at":         l.now(),
		}).Error; err != nil {
			return fmt.Errorf("update streak: %w", err)
		}

		res.Streak = streak
		res.Points = user.Points
		if awarded {
			res.PointsAwarded = l.checkInXP
			res.Points += l.checkInXP
		}
		return nil
	})
	if err != nil {
		metrics.CheckIns.WithLabelValues("error").Inc()
		return CheckInResult{}, err
	}

	if res.AlreadyCheckedIn {
		metrics.CheckIns.WithLabelValues("already").Inc()
	} else {
		metrics.CheckIns.WithLabelValues("new").Inc()
		metrics.RecordAward(AttendanceSource(today), res.PointsAwarded, res.PointsAwarded > 0)
		l.invalidateLeaderboard()
		utils.Sugar.Infow("check-in recorded", "user_id", userID, "date", today, "streak", res.Streak)
	}
	return res, nil
}

// AwardOnce grants points for source at most once per user. It reports whether
// this call credited the points; a repeated source is not an error.
func (l *Ledger) AwardOnce(ctx context.Context, userID, source string, points int) (bool, error) {
	var awarded bool
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		awarded, err = l.AwardTx(tx, userID, source, points)
		return err
	})
	if err != nil {
		return false, err
	}
	metrics.RecordAward(source, points, awarded)
	if awarded {
		l.invalidateLeaderboard()
	}
	return awarded, nil
}

// AwardTx is AwardOnce for callers that already hold a transaction.
// Non-positive point amounts record nothing and report false.
func (l *Ledger) AwardTx(tx *gorm.DB, userID, source string, points int) (bool, error) {
	if source == "" {
		return false, ErrInvalidSource
	}
	if points <= 0 {
		return false, nil
	}
	inserted, err := insertOnce(tx, &models.PointLog{UserID: userID, Source: source, Points: points})
	if err != nil {
		return false, fmt.Errorf("insert point log %s: %w", source, err)
	}
	if !inserted {
		return false, nil
	}
	upd := tx.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("points", gorm.Expr("points + ?", points))
	if upd.Error != nil {
		return false, fmt.Errorf("increment points: %w", upd.Error)
	}
	if upd.RowsAffected == 0 {
		return false, ErrUserNotFound
	}
	return true, nil
}

// AfterAward runs the bookkeeping of awards committed through AwardTx by other packages.
func (l *Ledger) AfterAward(source string, points int, awarded bool) {
	metrics.RecordAward(source, points, awarded)
	if awarded {
		l.invalidateLeaderboard()
	}
}

// CompleteMaterial grants the XP of a finished material once.
func (l *Ledger) CompleteMaterial(ctx context.Context, userID string, materialID uint) (awarded bool, points int, err error) {
	var material models.Material
	if err := l.db.WithContext(ctx).First(&material, materialID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, 0, ErrMaterialNotFound
		}
		return false, 0, err
	}
	points = material.XPReward
	if points <= 0 {
		points = l.materialXP
	}
	awarded, err = l.AwardOnce(ctx, userID, MaterialSource(material.ID), points)
	return awarded, points, err
}

// CorrectionResult reports an administrative correction.
type CorrectionResult struct {
	Source  string `json:"source"`
	Applied int    `json:"applied"`
	Points  int    `json:"points"`
}

// Correct adjusts a user's points by delta. The total never drops below zero,
// so Applied may be smaller in magnitude than delta.
func (l *Ledger) Correct(ctx context.Context, userID string, delta int, note string) (CorrectionResult, error) {
	if delta == 0 {
		return CorrectionResult{}, ErrInvalidDelta
	}
	res := CorrectionResult{Source: sourceCorrection + uuid.NewString()}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := lockRow(tx).Where("id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		target := user.Points + delta
		if target < 0 {
			target = 0
		}
		res.Applied = target - user.Points
		res.Points = target
		if err := tx.Create(&models.PointLog{
			UserID: userID,
			Source: res.Source,
			Points: res.Applied,
			Note:   note,
		}).Error; err != nil {
			return fmt.Errorf("insert correction log: %w", err)
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).
			UpdateColumn("points", target).Error
	})
	if err != nil {
		return CorrectionResult{}, err
	}
	metrics.Awards.WithLabelValues("correction", "awarded").Inc()
	l.invalidateLeaderboard()
	utils.Sugar.Infow("points corrected", "user_id", userID, "applied", res.Applied, "note", note)
	return res, nil
}

// Progress is the read model behind the dashboard widgets.
type Progress struct {
	UserID            string  `json:"user_id"`
	Points            int     `json:"points"`
	Level             int     `json:"level"`
	ProgressIntoLevel int     `json:"progress_into_level"`
	PointsToNextLevel int     `json:"points_to_next_level"`
	Streak            int     `json:"streak"`
	StoredStreak      int     `json:"stored_streak"`
	LastCheckInDate   *string `json:"last_check_in_date"`
	CheckedInToday    bool    `json:"checked_in_today"`
	AttendanceOpen    bool    `json:"attendance_open"`
	Today             string  `json:"today"`
}

// Summary returns the profile's points, level and streak as of today.
func (l *Ledger) Summary(ctx context.Context, userID string) (Progress, error) {
	var user models.User
	if err := l.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Progress{}, ErrUserNotFound
		}
		return Progress{}, err
	}
	open, err := l.settings.IsAttendanceOpen(ctx)
	if err != nil {
		return Progress{}, fmt.Errorf("read attendance toggle: %w", err)
	}
	today := l.Today()
	return Progress{
		UserID:            user.ID,
		Points:            user.Points,
		Level:             Level(user.Points),
		ProgressIntoLevel: ProgressIntoLevel(user.Points),
		PointsToNextLevel: PointsToNextLevel(user.Points),
		Streak:            EffectiveStreak(user.Streak, user.LastCheckInDate, today),
		StoredStreak:      user.Streak,
		LastCheckInDate:   user.LastCheckInDate,
		CheckedInToday:    user.LastCheckInDate != nil && *user.LastCheckInDate == today,
		AttendanceOpen:    open,
		Today:             today,
	}, nil
}

// History lists the newest point-log rows of a user.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]models.PointLog, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultHistoryPage
	}
	var rows []models.PointLog
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// AttendanceHistory lists the newest attendance rows of a user.
func (l *Ledger) AttendanceHistory(ctx context.Context, userID string, limit int) ([]models.Attendance, error) {
	if limit <= 0 || limit > 366 {
		limit = 31
	}
	var rows []models.Attendance
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("date DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// LeaderboardEntry is one ranked student.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
	Points    int    `json:"points"`
	Level     int    `json:"level"`
}

// Leaderboard ranks students by points, highest first. limit is clamped to 1..50.
func (l *Ledger) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > MaxLeaderboard {
		limit = MaxLeaderboard
	}
	key := leaderboardPrefix + strconv.Itoa(limit)
	var cached []LeaderboardEntry
	if utils.CacheGetJSON(key, &cached) {
		return cached, nil
	}

	var users []models.User
	if err := l.db.WithContext(ctx).
		Where("role = ?", models.RoleStudent).
		Order("points DESC").Order("id ASC").
		Limit(limit).Find(&users).Error; err != nil {
		return nil, err
	}
	out := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		out = append(out, LeaderboardEntry{
			Rank:      i + 1,
			UserID:    u.ID,
			Username:  u.Username,
			FullName:  u.FullName,
			AvatarURL: u.AvatarURL,
			Points:    u.Points,
			Level:     Level(u.Points),
		})
	}
	utils.CacheSetJSON(key, out, l.cacheTTL)
	return out, nil
}

func (l *Ledger) invalidateLeaderboard() {
	utils.InvalidateByPrefix(leaderboardPrefix)
}

// insertOnce inserts row unless a unique constraint already holds an equal key.
func insertOnce(tx *gorm.DB, row interface{}) (bool, error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// InsertOnce is exported for other ledger writers (quiz attempts).
func InsertOnce(tx *gorm.DB, row interface{}) (bool, error) { return insertOnce(tx, row) }

// lockRow adds SELECT ... FOR UPDATE where the dialect supports row locks.
func lockRow(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
