package quiz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cppla/eduxp/metrics"
	"github.com/cppla/eduxp/models"
	"github.com/cppla/eduxp/utils"
)

// Phase is the state of a quiz session.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseIntro   Phase = "intro"
	PhasePlaying Phase = "playing"
	PhaseResult  Phase = "result"
)

// Trigger tells why a submission happened.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerTimer  Trigger = "timer"
)

var (
	ErrNoQuestions      = errors.New("quiz has no questions")
	ErrNotInIntro       = errors.New("quiz is not waiting to start")
	ErrNotPlaying       = errors.New("quiz is not in progress")
	ErrNotLastQuestion  = errors.New("submit is only available on the last question")
	ErrInvalidAnswer    = errors.New("invalid answer")
	ErrAnswersFrozen    = errors.New("answers are locked while the submission is pending")
	ErrSessionClosed    = errors.New("quiz session is closed")
	ErrAlreadyAttempted = errors.New("quiz already attempted")
)

// Attempt is what a session hands to the Submitter.
type Attempt struct {
	UserID    string
	Quiz      models.Quiz
	Questions []models.QuizQuestion
	Answers   map[uint]int
	Correct   int
	Score     int
	Trigger   Trigger
}

// Result is the outcome shown on the result screen.
type Result struct {
	AttemptID   uint         `json:"attempt_id"`
	Score       int          `json:"score"`
	Correct     int          `json:"correct"`
	Total       int          `json:"total"`
	XPAwarded   int          `json:"xp_awarded"`
	Passed      bool         `json:"passed"`
	Message     string       `json:"message"`
	Prior       bool         `json:"prior"`
	Trigger     Trigger      `json:"trigger,omitempty"`
	Answers     map[uint]int `json:"answers"`
	CompletedAt time.Time    `json:"completed_at"`
}

// Submitter persists a finished attempt. Implementations must be idempotent per (user, quiz).
type Submitter interface {
	Submit(ctx context.Context, a Attempt) (Result, error)
}

// Session drives one user through one attempt of one quiz.
type Session struct {
	mu sync.Mutex

	userID    string
	quiz      models.Quiz
	questions []models.QuizQuestion

	phase     Phase
	current   int
	answers   map[uint]int
	remaining int
	countdown *Countdown

	// frozen is set by the first submission; a failed write keeps it set so
	// the retry scores exactly the answers that were first submitted.
	frozen    bool
	trigger   Trigger
	submitErr error
	result    *Result
	closed    bool

	clock         Clock
	submitter     Submitter
	submitTimeout time.Duration
	onFinish      func(*Session)
}

// NewSession returns a session in the loading phase.
func NewSession(userID string, clock Clock, submitter Submitter) *Session {
	if clock == nil {
		clock = RealClock()
	}
	return &Session{
		userID:        userID,
		phase:         PhaseLoading,
		answers:       map[uint]int{},
		clock:         clock,
		submitter:     submitter,
		submitTimeout: 15 * time.Second,
	}
}

// Load completes the loading phase. A prior attempt moves straight to the result.
func (s *Session) Load(quiz models.Quiz, questions []models.QuizQuestion, prior *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.phase != PhaseLoading {
		return fmt.Errorf("load in phase %s", s.phase)
	}
	qs := append([]models.QuizQuestion(nil), questions...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].OrderIndex < qs[j].OrderIndex })
	s.quiz = quiz
	s.questions = qs
	s.remaining = quiz.TimeLimitSeconds
	if prior != nil {
		r := *prior
		r.Prior = true
		s.result = &r
		s.phase = PhaseResult
		return nil
	}
	s.phase = PhaseIntro
	return nil
}

// Start leaves the intro and starts the countdown.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	switch s.phase {
	case PhaseResult:
		return ErrAlreadyAttempted
	case PhaseIntro:
	default:
		return ErrNotInIntro
	}
	if len(s.questions) == 0 {
		return ErrNoQuestions
	}
	s.phase = PhasePlaying
	s.current = 0
	s.remaining = s.quiz.TimeLimitSeconds
	s.countdown = StartCountdown(s.clock, s.quiz.TimeLimitSeconds, s.tick, s.expire)
	return nil
}

// Answer records option for questionID, replacing any earlier choice.
func (s *Session) Answer(questionID uint, option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playableLocked(); err != nil {
		return err
	}
	if s.frozen {
		return ErrAnswersFrozen
	}
	for _, q := range s.questions {
		if q.ID == questionID {
			if option < 0 || option >= len(q.Options) {
				return fmt.Errorf("%w: option %d out of range", ErrInvalidAnswer, option)
			}
			s.answers[questionID] = option
			return nil
		}
	}
	return fmt.Errorf("%w: question %d is not part of this quiz", ErrInvalidAnswer, questionID)
}

// Next moves to the following question; it stays put on the last one.
func (s *Session) Next() error { return s.move(func(i int) int { return i + 1 }) }

// Prev moves to the previous question; it stays put on the first one.
func (s *Session) Prev() error { return s.move(func(i int) int { return i - 1 }) }

// Goto jumps to index, clamped to the question range.
func (s *Session) Goto(index int) error { return s.move(func(int) int { return index }) }

func (s *Session) move(to func(int) int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playableLocked(); err != nil {
		return err
	}
	i := to(s.current)
	if i < 0 {
		i = 0
	}
	if last := len(s.questions) - 1; i > last {
		i = last
	}
	s.current = i
	return nil
}

// Submit is the manual submission from the last question. After a failed
// write it retries the frozen answers from any position.
func (s *Session) Submit(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if err := s.playableLocked(); err != nil {
		if s.phase == PhaseResult && s.result != nil {
			r := *s.result
			s.mu.Unlock()
			return r, nil
		}
		s.mu.Unlock()
		return Result{}, err
	}
	if !s.frozen && s.current != len(s.questions)-1 {
		s.mu.Unlock()
		return Result{}, ErrNotLastQuestion
	}
	trigger := TriggerManual
	if s.frozen {
		trigger = s.trigger
	}
	res, err := s.submitLocked(ctx, trigger)
	finished := err == nil
	s.mu.Unlock()
	if finished {
		s.finish()
	}
	return res, err
}

// Close tears the session down. An unfinished attempt is discarded and nothing is recorded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancelCountdownLocked()
}

func (s *Session) tick(cd *Countdown, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countdown != cd || s.phase != PhasePlaying || s.closed {
		return
	}
	s.remaining = remaining
}

func (s *Session) expire(cd *Countdown) {
	s.mu.Lock()
	if s.countdown != cd || s.phase != PhasePlaying || s.closed || s.frozen {
		s.mu.Unlock()
		return
	}
	s.remaining = 0
	ctx, cancel := context.WithTimeout(context.Background(), s.submitTimeout)
	_, err := s.submitLocked(ctx, TriggerTimer)
	cancel()
	s.mu.Unlock()
	if err != nil {
		utils.Sugar.Warnw("timed quiz submission failed", "user_id", s.userID, "quiz_id", s.quiz.ID, "err", err)
		return
	}
	s.finish()
}

// submitLocked scores the frozen answers and persists them. On failure the
// session stays in playing with frozen answers so the caller can retry.
func (s *Session) submitLocked(ctx context.Context, trigger Trigger) (Result, error) {
	s.cancelCountdownLocked()
	if !s.frozen {
		s.frozen = true
		s.trigger = trigger
	}
	answers := make(map[uint]int, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	correct, score := Score(s.questions, answers)

	res, err := s.submitter.Submit(ctx, Attempt{
		UserID:    s.userID,
		Quiz:      s.quiz,
		Questions: s.questions,
		Answers:   answers,
		Correct:   correct,
		Score:     score,
		Trigger:   s.trigger,
	})
	if err != nil {
		s.submitErr = err
		metrics.QuizSubmissions.WithLabelValues(string(s.trigger), "failed").Inc()
		return Result{}, err
	}
	s.submitErr = nil
	s.result = &res
	s.phase = PhaseResult
	return res, nil
}

func (s *Session) cancelCountdownLocked() {
	if s.countdown != nil {
		s.countdown.Cancel()
		s.countdown = nil
	}
}

func (s *Session) playableLocked() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.phase != PhasePlaying {
		return ErrNotPlaying
	}
	return nil
}

func (s *Session) finish() {
	if s.onFinish != nil {
		s.onFinish(s)
	}
}

// QuestionView is a question without its answer key.
type QuestionView struct {
	ID       uint     `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// State is a point-in-time view of the session for rendering.
type State struct {
	Phase            Phase         `json:"phase"`
	QuizID           uint          `json:"quiz_id"`
	Title            string        `json:"title"`
	TimeLimitSeconds int           `json:"time_limit_seconds"`
	XPReward         int           `json:"xp_reward"`
	TotalQuestions   int           `json:"total_questions"`
	CurrentIndex     int           `json:"current_index"`
	IsFirst          bool          `json:"is_first"`
	IsLast           bool          `json:"is_last"`
	Question         *QuestionView `json:"question,omitempty"`
	Answers          map[uint]int  `json:"answers"`
	RemainingSeconds int           `json:"remaining_seconds"`
	SubmitPending    bool          `json:"submit_pending"`
	SubmitError      string        `json:"submit_error,omitempty"`
	Result           *Result       `json:"result,omitempty"`
	CanStart         bool          `json:"can_start"`
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Phase:            s.phase,
		QuizID:           s.quiz.ID,
		Title:            s.quiz.Title,
		TimeLimitSeconds: s.quiz.TimeLimitSeconds,
		XPReward:         s.quiz.XPReward,
		TotalQuestions:   len(s.questions),
		CurrentIndex:     s.current,
		IsFirst:          s.current == 0,
		IsLast:           s.current == len(s.questions)-1,
		Answers:          make(map[uint]int, len(s.answers)),
		RemainingSeconds: s.remaining,
		SubmitPending:    s.frozen && s.phase == PhasePlaying,
		CanStart:         s.phase == PhaseIntro && len(s.questions) > 0,
	}
	for k, v := range s.answers {
		st.Answers[k] = v
	}
	if s.submitErr != nil {
		st.SubmitError = s.submitErr.Error()
	}
	if s.result != nil {
		r := *s.result
		st.Result = &r
	}
	if s.phase == PhasePlaying && s.current < len(s.questions) {
		q := s.questions[s.current]
		view := QuestionView{ID: q.ID, Question: q.Question}
		for _, o := range q.Options {
			view.Options = append(view.Options, o.Text)
		}
		st.Question = &view
	}
	return st
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}
