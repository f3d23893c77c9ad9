package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/eduxp/quiz"
	"github.com/cppla/eduxp/utils"
)

// QuizAdminController lets staff author quizzes and their questions.
type QuizAdminController struct {
	catalog *quiz.Catalog
}

func NewQuizAdminController(catalog *quiz.Catalog) *QuizAdminController {
	return &QuizAdminController{catalog: catalog}
}

// CreateQuiz adds a quiz to a class.
func (a *QuizAdminController) CreateQuiz(ctx *gin.Context) {
	classID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	var in quiz.QuizInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40070, "invalid request payload")
		return
	}
	in.Title = utils.Sanitize(in.Title)
	q, err := a.catalog.CreateQuiz(ctx, classID, in)
	if err != nil {
		authoringError(ctx, err)
		return
	}
	utils.Created(ctx, q)
}

// ListQuestions returns every question including the answer key.
func (a *QuizAdminController) ListQuestions(ctx *gin.Context) {
	quizID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	if _, err := a.catalog.Quiz(ctx, quizID); err != nil {
		authoringError(ctx, err)
		return
	}
	qs, err := a.catalog.Questions(ctx, quizID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to list questions")
		return
	}
	utils.Success(ctx, gin.H{"items": qs})
}

// AddQuestion appends a question; exactly one option must be correct.
func (a *QuizAdminController) AddQuestion(ctx *gin.Context) {
	quizID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	var in quiz.QuestionInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40070, "invalid request payload")
		return
	}
	in.Question = utils.Sanitize(in.Question)
	for i := range in.Options {
		in.Options[i].Text = utils.Sanitize(in.Options[i].Text)
	}
	q, err := a.catalog.AddQuestion(ctx, quizID, in)
	if err != nil {
		authoringError(ctx, err)
		return
	}
	utils.Created(ctx, q)
}

// DeleteQuestion removes a question.
func (a *QuizAdminController) DeleteQuestion(ctx *gin.Context) {
	questionID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	if err := a.catalog.DeleteQuestion(ctx, questionID); err != nil {
		authoringError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "question deleted", gin.H{"id": questionID})
}

func authoringError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, quiz.ErrInvalidQuiz), errors.Is(err, quiz.ErrInvalidQuestion):
		utils.Error(ctx, http.StatusUnprocessableEntity, 42270, err.Error())
	case errors.Is(err, quiz.ErrClassNotFound):
		utils.Error(ctx, http.StatusNotFound, 40420, "class not found")
	case errors.Is(err, quiz.ErrQuizNotFound):
		utils.Error(ctx, http.StatusNotFound, 40450, "quiz not found")
	case errors.Is(err, quiz.ErrQuestionNotFound):
		utils.Error(ctx, http.StatusNotFound, 40470, "question not found")
	default:
		utils.Sugar.Errorw("quiz authoring failed", "path", ctx.FullPath(), "err", err)
		utils.Error(ctx, http.StatusInternalServerError, 50071, "failed to save quiz")
	}
}
