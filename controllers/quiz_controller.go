package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/eduxp/middleware"
	"github.com/cppla/eduxp/quiz"
	"github.com/cppla/eduxp/utils"
)

// QuizController drives a student's quiz session over HTTP. Every call
// returns the session snapshot so the client can render the current phase.
type QuizController struct {
	catalog *quiz.Catalog
	manager *quiz.Manager
}

// NewQuizController creates a new QuizController instance.
func NewQuizController(catalog *quiz.Catalog, manager *quiz.Manager) *QuizController {
	return &QuizController{catalog: catalog, manager: manager}
}

// ListByClass lists a class's quizzes with the caller's attempt status.
func (q *QuizController) ListByClass(ctx *gin.Context) {
	classID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	items, err := q.catalog.ByClass(ctx, classID, userID)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to list quizzes")
		return
	}
	utils.Success(ctx, gin.H{"items": items})
}

// Session opens (or resumes) the caller's session. A quiz already taken comes back in the result phase.
func (q *QuizController) Session(ctx *gin.Context) {
	s, ok := q.open(ctx)
	if !ok {
		return
	}
	utils.Success(ctx, s.Snapshot())
}

// Start leaves the intro and starts the countdown.
func (q *QuizController) Start(ctx *gin.Context) {
	s, ok := q.open(ctx)
	if !ok {
		return
	}
	if err := s.Start(); err != nil {
		quizError(ctx, err)
		return
	}
	utils.Success(ctx, s.Snapshot())
}

// Answer records the selected option for a question.
func (q *QuizController) Answer(ctx *gin.Context) {
	var req struct {
		QuestionID uint `json:"question_id" binding:"required"`
		Option     *int `json:"option" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid request payload")
		return
	}
	s, ok := q.live(ctx)
	if !ok {
		return
	}
	if err := s.Answer(req.QuestionID, *req.Option); err != nil {
		quizError(ctx, err)
		return
	}
	utils.Success(ctx, s.Snapshot())
}

// Navigate moves between questions: action is next, prev or goto (with index).
func (q *QuizController) Navigate(ctx *gin.Context) {
	var req struct {
		Action string `json:"action" binding:"required"`
		Index  int    `json:"index"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid request payload")
		return
	}
	s, ok := q.live(ctx)
	if !ok {
		return
	}
	var err error
	switch req.Action {
	case "next":
		err = s.Next()
	case "prev":
		err = s.Prev()
	case "goto":
		err = s.Goto(req.Index)
	default:
		utils.Error(ctx, http.StatusBadRequest, 40051, "action must be next, prev or goto")
		return
	}
	if err != nil {
		quizError(ctx, err)
		return
	}
	utils.Success(ctx, s.Snapshot())
}

// Submit finishes the attempt. Submitting a finished quiz returns the stored result.
func (q *QuizController) Submit(ctx *gin.Context) {
	s, ok := q.open(ctx)
	if !ok {
		return
	}
	if _, err := s.Submit(ctx); err != nil {
		quizError(ctx, err)
		return
	}
	utils.Success(ctx, s.Snapshot())
}

// Abandon discards the live session; nothing is recorded.
func (q *QuizController) Abandon(ctx *gin.Context) {
	quizID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	utils.Success(ctx, gin.H{"quiz_id": quizID, "closed": q.manager.Close(userID, quizID)})
}

func (q *QuizController) open(ctx *gin.Context) (*quiz.Session, bool) {
	quizID, ok := idParam(ctx, "id")
	if !ok {
		return nil, false
	}
	userID, ok := getUserID(ctx)
	if !ok {
		return nil, false
	}
	s, err := q.manager.Open(ctx, userID, quizID)
	if err != nil {
		quizError(ctx, err)
		return nil, false
	}
	return s, true
}

func (q *QuizController) live(ctx *gin.Context) (*quiz.Session, bool) {
	quizID, ok := idParam(ctx, "id")
	if !ok {
		return nil, false
	}
	userID, ok := getUserID(ctx)
	if !ok {
		return nil, false
	}
	s, found := q.manager.Get(userID, quizID)
	if !found {
		utils.Error(ctx, http.StatusNotFound, 40451, "no active quiz session")
		return nil, false
	}
	return s, true
}

func quizError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, quiz.ErrQuizNotFound):
		utils.Error(ctx, http.StatusNotFound, 40450, "quiz not found")
	case errors.Is(err, quiz.ErrNoQuestions):
		utils.Error(ctx, http.StatusUnprocessableEntity, 42250, err.Error())
	case errors.Is(err, quiz.ErrInvalidAnswer):
		utils.Error(ctx, http.StatusBadRequest, 40052, err.Error())
	case errors.Is(err, quiz.ErrAlreadyAttempted),
		errors.Is(err, quiz.ErrNotInIntro),
		errors.Is(err, quiz.ErrNotPlaying),
		errors.Is(err, quiz.ErrNotLastQuestion),
		errors.Is(err, quiz.ErrAnswersFrozen):
		utils.Error(ctx, http.StatusConflict, 40950, err.Error())
	case errors.Is(err, quiz.ErrSessionClosed):
		utils.Error(ctx, http.StatusGone, 41050, err.Error())
	default:
		utils.Sugar.Errorw("quiz request failed", "path", ctx.FullPath(), "user_id", middleware.CurrentUserID(ctx), "err", err)
		utils.Error(ctx, http.StatusInternalServerError, 50051, "failed to save quiz, please retry")
	}
}
