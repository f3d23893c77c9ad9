package quiz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/eduxp/models"
)

// manualClock hands out tickers that only fire when Advance is called.
type manualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (c *manualClock) NewTicker(time.Duration) Ticker {
	t := &manualTicker{ch: make(chan time.Time, 1024)}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

// Advance delivers n ticks to every live ticker.
func (c *manualClock) Advance(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tickers {
		t.mu.Lock()
		if !t.stopped {
			for i := 0; i < n; i++ {
				t.ch <- time.Now()
			}
		}
		t.mu.Unlock()
	}
}

type fakeSubmitter struct {
	mu       sync.Mutex
	failures int
	calls    []Attempt
}

func (f *fakeSubmitter) Submit(_ context.Context, a Attempt) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, a)
	if f.failures > 0 {
		f.failures--
		return Result{}, errors.New("storage unavailable")
	}
	return Result{
		AttemptID: uint(len(f.calls)),
		Score:     a.Score,
		Correct:   a.Correct,
		Total:     len(a.Questions),
		XPAwarded: XPFor(a.Score, a.Quiz.XPReward),
		Passed:    Passed(a.Score),
		Trigger:   a.Trigger,
		Answers:   a.Answers,
	}, nil
}

func (f *fakeSubmitter) Calls() []Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Attempt(nil), f.calls...)
}

func fourQuestions() []models.QuizQuestion {
	qs := make([]models.QuizQuestion, 0, 4)
	for i := 0; i < 4; i++ {
		qs = append(qs, models.QuizQuestion{
			ID:         uint(i + 1),
			QuizID:     1,
			Question:   "q",
			OrderIndex: i,
			Options: []models.QuizOption{
				{Text: "a", IsCorrect: true},
				{Text: "b"},
				{Text: "c"},
			},
		})
	}
	return qs
}

func testQuiz(limit int) models.Quiz {
	return models.Quiz{ID: 1, ClassID: 1, Title: "Fractions", TimeLimitSeconds: limit, XPReward: 100}
}

func startedSession(t *testing.T, limit int) (*Session, *manualClock, *fakeSubmitter) {
	t.Helper()
	clock := &manualClock{}
	sub := &fakeSubmitter{}
	s := NewSession("u1", clock, sub)
	require.NoError(t, s.Load(testQuiz(limit), fourQuestions(), nil))
	require.Equal(t, PhaseIntro, s.Phase())
	require.NoError(t, s.Start())
	require.Equal(t, PhasePlaying, s.Phase())
	return s, clock, sub
}

func TestScoreDeterminism(t *testing.T) {
	qs := fourQuestions()
	correct, score := Score(qs, map[uint]int{1: 0, 2: 0, 3: 0, 4: 2})
	assert.Equal(t, 3, correct)
	assert.Equal(t, 75, score)

	_, score = Score(qs, map[uint]int{1: 9})
	assert.Equal(t, 0, score, "out of range choice is incorrect")

	correct, score = Score(nil, map[uint]int{1: 0})
	assert.Zero(t, correct)
	assert.Zero(t, score)

	// 2 of 3 correct is 66.67, rounded
	_, score = Score(qs[:3], map[uint]int{1: 0, 2: 0})
	assert.Equal(t, 67, score)
}

func TestXPAndPassed(t *testing.T) {
	assert.Equal(t, 75, XPFor(75, 100))
	assert.Equal(t, 0, XPFor(0, 100))
	assert.True(t, Passed(60))
	assert.False(t, Passed(59))
	assert.NotEqual(t, ResultMessage(60), ResultMessage(59))
}

func TestPriorAttemptGoesStraightToResult(t *testing.T) {
	sub := &fakeSubmitter{}
	s := NewSession("u1", &manualClock{}, sub)
	require.NoError(t, s.Load(testQuiz(60), fourQuestions(), &Result{Score: 50}))

	assert.Equal(t, PhaseResult, s.Phase())
	assert.ErrorIs(t, s.Start(), ErrAlreadyAttempted)
	st := s.Snapshot()
	require.NotNil(t, st.Result)
	assert.True(t, st.Result.Prior)
	assert.Equal(t, 50, st.Result.Score)
	assert.Empty(t, sub.Calls())
}

func TestZeroQuestionQuizCannotStart(t *testing.T) {
	s := NewSession("u1", &manualClock{}, &fakeSubmitter{})
	require.NoError(t, s.Load(testQuiz(60), nil, nil))

	assert.False(t, s.Snapshot().CanStart)
	assert.ErrorIs(t, s.Start(), ErrNoQuestions)
	assert.Equal(t, PhaseIntro, s.Phase())
}

func TestManualSubmitOnlyOnLastQuestion(t *testing.T) {
	s, clock, sub := startedSession(t, 60)

	require.NoError(t, s.Answer(1, 0))
	require.NoError(t, s.Answer(1, 1)) // overwrite
	require.NoError(t, s.Answer(1, 0))
	assert.ErrorIs(t, s.Answer(1, 5), ErrInvalidAnswer)
	assert.ErrorIs(t, s.Answer(99, 0), ErrInvalidAnswer)

	require.NoError(t, s.Prev())
	assert.Equal(t, 0, s.Snapshot().CurrentIndex, "no previous before the first question")

	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotLastQuestion)

	require.NoError(t, s.Next())
	require.NoError(t, s.Answer(2, 0))
	require.NoError(t, s.Goto(2))
	require.NoError(t, s.Answer(3, 0))
	require.NoError(t, s.Goto(10))
	st := s.Snapshot()
	assert.Equal(t, 3, st.CurrentIndex)
	assert.True(t, st.IsLast)
	require.NoError(t, s.Answer(4, 1))

	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 75, res.Score)
	assert.Equal(t, 3, res.Correct)
	assert.Equal(t, PhaseResult, s.Phase())

	// the countdown is gone: more ticks change nothing
	clock.Advance(120)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, sub.Calls(), 1)
	assert.Equal(t, TriggerManual, sub.Calls()[0].Trigger)

	// repeated submit returns the same result without writing again
	again, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.AttemptID, again.AttemptID)
	assert.Len(t, sub.Calls(), 1)
}

func TestCountdownTicksAndAutoSubmits(t *testing.T) {
	s, clock, sub := startedSession(t, 3)

	clock.Advance(1)
	assert.Eventually(t, func() bool { return s.Snapshot().RemainingSeconds == 2 }, time.Second, 5*time.Millisecond)

	clock.Advance(2)
	assert.Eventually(t, func() bool { return s.Phase() == PhaseResult }, time.Second, 5*time.Millisecond)

	calls := sub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, TriggerTimer, calls[0].Trigger)
	assert.Empty(t, calls[0].Answers)
	assert.Equal(t, 0, calls[0].Score)
	assert.Equal(t, 0, s.Snapshot().RemainingSeconds)
}

func TestCloseDiscardsAndStopsTimer(t *testing.T) {
	s, clock, sub := startedSession(t, 2)
	require.NoError(t, s.Answer(1, 0))

	s.Close()
	clock.Advance(5)
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, sub.Calls(), "an abandoned attempt records nothing")
	assert.ErrorIs(t, s.Answer(2, 0), ErrSessionClosed)
	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestFailedSubmitCanBeRetried(t *testing.T) {
	s, clock, sub := startedSession(t, 60)
	sub.failures = 1
	require.NoError(t, s.Answer(1, 0))
	require.NoError(t, s.Goto(3))

	_, err := s.Submit(context.Background())
	require.Error(t, err)

	st := s.Snapshot()
	assert.Equal(t, PhasePlaying, st.Phase)
	assert.True(t, st.SubmitPending)
	assert.NotEmpty(t, st.SubmitError)
	assert.ErrorIs(t, s.Answer(2, 0), ErrAnswersFrozen)

	// the countdown stays cancelled after the failed write
	clock.Advance(60)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, sub.Calls(), 1)

	require.NoError(t, s.Goto(0))
	res, err := s.Submit(context.Background())
	require.NoError(t, err, "retry is allowed from any position")
	assert.Equal(t, 25, res.Score)
	assert.Equal(t, PhaseResult, s.Phase())

	calls := sub.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].Answers, calls[1].Answers)
}

func TestTimerFailureKeepsTimerTriggerOnRetry(t *testing.T) {
	s, clock, sub := startedSession(t, 1)
	sub.failures = 1

	clock.Advance(1)
	assert.Eventually(t, func() bool { return len(sub.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return s.Snapshot().SubmitPending }, time.Second, 5*time.Millisecond)

	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TriggerTimer, res.Trigger)
}

func TestSnapshotHidesAnswerKey(t *testing.T) {
	s, _, _ := startedSession(t, 60)
	st := s.Snapshot()
	require.NotNil(t, st.Question)
	assert.Equal(t, []string{"a", "b", "c"}, st.Question.Options)
	assert.True(t, st.IsFirst)
	assert.Equal(t, 4, st.TotalQuestions)
}
