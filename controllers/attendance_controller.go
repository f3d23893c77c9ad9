package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/eduxp/gamification"
	"github.com/cppla/eduxp/utils"
)

// AttendanceController handles the daily check-in endpoints.
type AttendanceController struct {
	ledger *gamification.Ledger
}

// NewAttendanceController creates a new controller instance.
func NewAttendanceController(ledger *gamification.Ledger) *AttendanceController {
	return &AttendanceController{ledger: ledger}
}

// CheckIn records today's attendance and extends the streak.
// Checking in twice on one day answers 200 with already_checked_in set.
func (a *AttendanceController) CheckIn(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}

	res, err := a.ledger.CheckIn(ctx, userID)
	if err != nil {
		switch {
		case errors.Is(err, gamification.ErrAttendanceClosed):
			utils.Error(ctx, http.StatusForbidden, 40330, "attendance is closed right now")
		case errors.Is(err, gamification.ErrUserNotFound):
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
		default:
			utils.Sugar.Errorw("check-in failed", "user_id", userID, "err", err)
			utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to record check-in, please retry")
		}
		return
	}

	msg := "check-in recorded"
	if res.AlreadyCheckedIn {
		msg = "already checked in today"
	}
	utils.SuccessMessage(ctx, msg, res)
}

// History lists the caller's recent attendance days.
func (a *AttendanceController) History(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	days, err := a.ledger.AttendanceHistory(ctx, userID, parseLimit(ctx.Query("limit"), 30, 366))
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to load attendance")
		return
	}
	utils.Success(ctx, gin.H{"items": days, "today": a.ledger.Today()})
}
