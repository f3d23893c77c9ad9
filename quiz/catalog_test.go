package quiz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/eduxp/models"
)

func TestCreateQuizValidation(t *testing.T) {
	db := setupDB(t)
	c := NewCatalog(db, 100)
	ctx := context.Background()
	class := models.Class{Title: "Bio"}
	require.NoError(t, db.Create(&class).Error)

	_, err := c.CreateQuiz(ctx, class.ID, QuizInput{Title: "Cells", TimeLimitSeconds: 0})
	assert.ErrorIs(t, err, ErrInvalidQuiz)
	_, err = c.CreateQuiz(ctx, class.ID, QuizInput{Title: "  ", TimeLimitSeconds: 30})
	assert.ErrorIs(t, err, ErrInvalidQuiz)
	_, err = c.CreateQuiz(ctx, 999, QuizInput{Title: "Cells", TimeLimitSeconds: 30})
	assert.ErrorIs(t, err, ErrClassNotFound)

	q, err := c.CreateQuiz(ctx, class.ID, QuizInput{Title: "Cells", TimeLimitSeconds: 30, XPReward: 40})
	require.NoError(t, err)
	assert.Equal(t, 40, q.XPReward)
}

func TestAddQuestionRequiresExactlyOneCorrect(t *testing.T) {
	db := setupDB(t)
	c := NewCatalog(db, 100)
	ctx := context.Background()
	class := models.Class{Title: "Bio"}
	require.NoError(t, db.Create(&class).Error)
	quiz, err := c.CreateQuiz(ctx, class.ID, QuizInput{Title: "Cells", TimeLimitSeconds: 30})
	require.NoError(t, err)

	cases := map[string][]models.QuizOption{
		"one option":   {{Text: "a", IsCorrect: true}},
		"none correct": {{Text: "a"}, {Text: "b"}},
		"two correct":  {{Text: "a", IsCorrect: true}, {Text: "b", IsCorrect: true}},
		"empty option": {{Text: "a", IsCorrect: true}, {Text: " "}},
	}
	for name, opts := range cases {
		_, err := c.AddQuestion(ctx, quiz.ID, QuestionInput{Question: "?", Options: opts})
		assert.ErrorIs(t, err, ErrInvalidQuestion, name)
	}

	valid := []models.QuizOption{{Text: "a"}, {Text: "b", IsCorrect: true}}
	_, err = c.AddQuestion(ctx, 999, QuestionInput{Question: "?", Options: valid})
	assert.ErrorIs(t, err, ErrQuizNotFound)

	first, err := c.AddQuestion(ctx, quiz.ID, QuestionInput{Question: "first", Options: valid})
	require.NoError(t, err)
	second, err := c.AddQuestion(ctx, quiz.ID, QuestionInput{Question: "second", Options: valid})
	require.NoError(t, err)
	assert.Equal(t, first.OrderIndex+1, second.OrderIndex)

	qs, err := c.Questions(ctx, quiz.ID)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "first", qs[0].Question)
	assert.True(t, qs[0].Options[1].IsCorrect)

	require.NoError(t, c.DeleteQuestion(ctx, first.ID))
	assert.ErrorIs(t, c.DeleteQuestion(ctx, first.ID), ErrQuestionNotFound)
}

func TestByClassShowsAttempts(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()
	other, err := f.catalog.CreateQuiz(ctx, f.quiz.ClassID, QuizInput{Title: "Decimals", TimeLimitSeconds: 60})
	require.NoError(t, err)

	_, err = f.manager.Submit(ctx, Attempt{UserID: "u1", Quiz: f.quiz, Questions: f.qs, Answers: map[uint]int{}, Score: 0, Trigger: TriggerTimer})
	require.NoError(t, err)

	list, err := f.catalog.ByClass(ctx, f.quiz.ClassID, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	byID := map[uint]ClassQuiz{}
	for _, q := range list {
		byID[q.ID] = q
	}
	assert.True(t, byID[f.quiz.ID].Attempted)
	assert.EqualValues(t, 4, byID[f.quiz.ID].QuestionCount)
	require.NotNil(t, byID[f.quiz.ID].Score)
	assert.Equal(t, 0, *byID[f.quiz.ID].Score)
	assert.False(t, byID[other.ID].Attempted)
}
