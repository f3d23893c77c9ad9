package gamification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/eduxp/models"
)

func TestReconcilerGrantsMissingQuizXP(t *testing.T) {
	l, db := newLedger(t, true)
	ctx := context.Background()
	newUser(t, db, "u1", models.RoleStudent, 0)
	newUser(t, db, "u2", models.RoleStudent, 0)

	quiz := models.Quiz{ClassID: 1, Title: "Q", TimeLimitSeconds: 60, XPReward: 100}
	require.NoError(t, db.Create(&quiz).Error)

	// u1: attempt without its point-log row; u2: already settled; zero score grants nothing
	require.NoError(t, db.Create(&models.QuizAttempt{QuizID: quiz.ID, UserID: "u1", Score: 75, CompletedAt: time.Now()}).Error)
	require.NoError(t, db.Create(&models.QuizAttempt{QuizID: quiz.ID, UserID: "u2", Score: 50, CompletedAt: time.Now()}).Error)
	_, err := l.AwardOnce(ctx, "u2", QuizSource(quiz.ID), 50)
	require.NoError(t, err)

	r := NewReconciler(l, time.Hour)
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 75, reload(t, db, "u1").Points)
	assert.Equal(t, 50, reload(t, db, "u2").Points)

	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second pass is a no-op")
}

func TestReconcilerStopWithoutStart(t *testing.T) {
	l, _ := newLedger(t, true)
	r := NewReconciler(l, time.Hour)
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked")
	}
}

func TestReconcilerStartStop(t *testing.T) {
	l, _ := newLedger(t, true)
	r := NewReconciler(l, 10*time.Millisecond)
	r.Start()
	time.Sleep(30 * time.Millisecond)
	r.Stop()
}
