package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cppla/eduxp/gamification"
	"github.com/cppla/eduxp/metrics"
	"github.com/cppla/eduxp/models"
	"github.com/cppla/eduxp/utils"
)

type sessionKey struct {
	userID string
	quizID uint
}

// Manager keeps at most one live session per (user, quiz) and persists submissions.
type Manager struct {
	catalog *Catalog
	ledger  *gamification.Ledger
	clock   Clock

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSessionClock sets the clock used by session countdowns.
func WithSessionClock(c Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// NewManager returns a Manager persisting through ledger.
func NewManager(catalog *Catalog, ledger *gamification.Ledger, opts ...ManagerOption) *Manager {
	m := &Manager{
		catalog:  catalog,
		ledger:   ledger,
		clock:    RealClock(),
		sessions: map[sessionKey]*Session{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open returns the live session for (userID, quizID), loading a new one when none exists.
// A user with a stored attempt gets a session already in the result phase.
func (m *Manager) Open(ctx context.Context, userID string, quizID uint) (*Session, error) {
	key := sessionKey{userID: userID, quizID: quizID}
	if s, ok := m.Get(userID, quizID); ok {
		return s, nil
	}

	quiz, err := m.catalog.Quiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	questions, err := m.catalog.Questions(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	prior, err := m.priorResult(ctx, userID, quiz, questions)
	if err != nil {
		return nil, err
	}

	s := NewSession(userID, m.clock, m)
	if err := s.Load(quiz, questions, prior); err != nil {
		return nil, err
	}
	if prior != nil {
		// nothing live to track; re-opening reads the stored attempt again
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[key]; ok {
		s.Close()
		return existing, nil
	}
	s.onFinish = func(done *Session) { m.release(key, done) }
	m.sessions[key] = s
	metrics.QuizSessions.Set(float64(len(m.sessions)))
	return s, nil
}

// Get returns the live session, if any.
func (m *Manager) Get(userID string, quizID uint) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey{userID: userID, quizID: quizID}]
	return s, ok
}

// Close tears down the live session; an unfinished attempt is discarded.
func (m *Manager) Close(userID string, quizID uint) bool {
	key := sessionKey{userID: userID, quizID: quizID}
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
		metrics.QuizSessions.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

// Shutdown closes every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	live := m.sessions
	m.sessions = map[sessionKey]*Session{}
	metrics.QuizSessions.Set(0)
	m.mu.Unlock()
	for _, s := range live {
		s.Close()
	}
}

func (m *Manager) release(key sessionKey, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[key] == s {
		delete(m.sessions, key)
		metrics.QuizSessions.Set(float64(len(m.sessions)))
	}
}

func (m *Manager) priorResult(ctx context.Context, userID string, quiz models.Quiz, questions []models.QuizQuestion) (*Result, error) {
	var attempt models.QuizAttempt
	err := m.ledger.DB().WithContext(ctx).
		Where("user_id = ? AND quiz_id = ?", userID, quiz.ID).First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	r, err := m.storedResult(m.ledger.DB().WithContext(ctx), attempt, quiz, questions)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// storedResult renders a persisted attempt without re-scoring it.
func (m *Manager) storedResult(db *gorm.DB, attempt models.QuizAttempt, quiz models.Quiz, questions []models.QuizQuestion) (Result, error) {
	answers := attempt.Answers.Data()
	correct := 0
	for _, q := range questions {
		if choice, ok := answers[q.ID]; ok && IsCorrect(q, choice) {
			correct++
		}
	}
	var log models.PointLog
	xp := 0
	err := db.Where("user_id = ? AND source = ?", attempt.UserID, gamification.QuizSource(quiz.ID)).
		Limit(1).Find(&log).Error
	if err != nil {
		return Result{}, fmt.Errorf("load quiz award: %w", err)
	}
	if log.ID != 0 {
		xp = log.Points
	}
	if answers == nil {
		answers = map[uint]int{}
	}
	return Result{
		AttemptID:   attempt.ID,
		Score:       attempt.Score,
		Correct:     correct,
		Total:       len(questions),
		XPAwarded:   xp,
		Passed:      Passed(attempt.Score),
		Message:     ResultMessage(attempt.Score),
		Answers:     answers,
		CompletedAt: attempt.CompletedAt,
	}, nil
}

// Submit records the attempt, its XP log row and the points increment in one
// transaction. When the attempt already exists the stored result is returned
// and nothing else is written.
func (m *Manager) Submit(ctx context.Context, a Attempt) (Result, error) {
	source := gamification.QuizSource(a.Quiz.ID)
	xp := XPFor(a.Score, a.Quiz.XPReward)
	var (
		res       Result
		duplicate bool
		awarded   bool
	)
	err := m.ledger.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt := models.QuizAttempt{
			QuizID:      a.Quiz.ID,
			UserID:      a.UserID,
			Score:       a.Score,
			Answers:     datatypes.NewJSONType(a.Answers),
			CompletedAt: time.Now(),
		}
		inserted, err := gamification.InsertOnce(tx, &attempt)
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		if !inserted {
			duplicate = true
			var stored models.QuizAttempt
			if err := tx.Where("user_id = ? AND quiz_id = ?", a.UserID, a.Quiz.ID).First(&stored).Error; err != nil {
				return fmt.Errorf("load existing attempt: %w", err)
			}
			res, err = m.storedResult(tx, stored, a.Quiz, a.Questions)
			res.Prior = true
			return err
		}
		awarded, err = m.ledger.AwardTx(tx, a.UserID, source, xp)
		if err != nil {
			return err
		}
		res = Result{
			AttemptID:   attempt.ID,
			Score:       a.Score,
			Correct:     a.Correct,
			Total:       len(a.Questions),
			Passed:      Passed(a.Score),
			Message:     ResultMessage(a.Score),
			Trigger:     a.Trigger,
			Answers:     a.Answers,
			CompletedAt: attempt.CompletedAt,
		}
		if awarded {
			res.XPAwarded = xp
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if duplicate {
		metrics.QuizSubmissions.WithLabelValues(string(a.Trigger), "duplicate").Inc()
		return res, nil
	}
	metrics.QuizSubmissions.WithLabelValues(string(a.Trigger), "recorded").Inc()
	m.ledger.AfterAward(source, xp, awarded)
	utils.Sugar.Infow("quiz submitted", "user_id", a.UserID, "quiz_id", a.Quiz.ID,
		"score", a.Score, "xp", res.XPAwarded, "trigger", a.Trigger)
	return res, nil
}
