package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/eduxp/middleware"
	"github.com/cppla/eduxp/settings"
	"github.com/cppla/eduxp/utils"
)

// SettingsController exposes the global toggles to staff.
type SettingsController struct {
	store *settings.Store
}

func NewSettingsController(store *settings.Store) *SettingsController {
	return &SettingsController{store: store}
}

// Get returns the current toggles.
func (s *SettingsController) Get(ctx *gin.Context) {
	row, err := s.store.Get(ctx)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to load settings")
		return
	}
	utils.Success(ctx, row)
}

// Update flips any toggle present in the body.
func (s *SettingsController) Update(ctx *gin.Context) {
	var patch settings.Patch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40060, "invalid request payload")
		return
	}
	if patch.IsAttendanceOpen == nil && patch.IsRegistrationOpen == nil {
		utils.Error(ctx, http.StatusBadRequest, 40061, "nothing to update")
		return
	}
	row, err := s.store.Update(ctx, patch)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50061, "failed to update settings")
		return
	}
	utils.Sugar.Infow("settings updated", "by", middleware.CurrentUserID(ctx),
		"attendance_open", row.IsAttendanceOpen, "registration_open", row.IsRegistrationOpen)
	utils.Success(ctx, row)
}
