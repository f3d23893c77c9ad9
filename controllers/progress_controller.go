package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/eduxp/gamification"
	"github.com/cppla/eduxp/utils"
)

// ProgressController serves levels, point history and the leaderboard.
type ProgressController struct {
	ledger *gamification.Ledger
}

func NewProgressController(ledger *gamification.Ledger) *ProgressController {
	return &ProgressController{ledger: ledger}
}

// Progress returns points, level, progress into the level and the streak.
func (p *ProgressController) Progress(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	prog, err := p.ledger.Summary(ctx, userID)
	if err != nil {
		if errors.Is(err, gamification.ErrUserNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to load progress")
		return
	}
	utils.Success(ctx, prog)
}

// Points lists the caller's point log, newest first.
func (p *ProgressController) Points(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	logs, err := p.ledger.History(ctx, userID, parseLimit(ctx.Query("limit"), 50, 200))
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50033, "failed to load points history")
		return
	}
	utils.Success(ctx, gin.H{"items": logs})
}

func (p *ProgressController) Leaderboard(ctx *gin.Context) {
	entries, err := p.ledger.Leaderboard(ctx, parseLimit(ctx.Query("limit"), gamification.MaxLeaderboard, gamification.MaxLeaderboard))
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50034, "failed to load leaderboard")
		return
	}
	utils.Success(ctx, gin.H{"items": entries})
}
