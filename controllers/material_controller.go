package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/eduxp/gamification"
	"github.com/cppla/eduxp/models"
	"github.com/cppla/eduxp/utils"
)

// MaterialController lists class materials and grants completion XP.
type MaterialController struct {
	db     *gorm.DB
	ledger *gamification.Ledger
}

// NewMaterialController creates a new MaterialController instance.
func NewMaterialController(db *gorm.DB, ledger *gamification.Ledger) *MaterialController {
	return &MaterialController{db: db, ledger: ledger}
}

type materialItem struct {
	models.Material
	Completed bool `json:"completed"`
}

// ListByClass returns a class's materials with the caller's completion flags.
func (m *MaterialController) ListByClass(ctx *gin.Context) {
	classID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	if !m.classExists(ctx, classID) {
		return
	}

	var materials []models.Material
	if err := m.db.WithContext(ctx).Where("class_id = ?", classID).Order("created_at ASC").Find(&materials).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to list materials")
		return
	}
	sources := make([]string, 0, len(materials))
	for _, mat := range materials {
		sources = append(sources, gamification.MaterialSource(mat.ID))
	}
	done := map[string]bool{}
	if len(sources) > 0 {
		var logs []models.PointLog
		if err := m.db.WithContext(ctx).Select("source").
			Where("user_id = ? AND source IN ?", userID, sources).Find(&logs).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to load completions")
			return
		}
		for _, l := range logs {
			done[l.Source] = true
		}
	}

	items := make([]materialItem, 0, len(materials))
	for _, mat := range materials {
		items = append(items, materialItem{Material: mat, Completed: done[gamification.MaterialSource(mat.ID)]})
	}
	utils.Success(ctx, gin.H{"items": items})
}

// JoinClass adds the caller to a class. Joining twice is harmless.
func (m *MaterialController) JoinClass(ctx *gin.Context) {
	classID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	if !m.classExists(ctx, classID) {
		return
	}
	member := models.ClassMember{ClassID: classID, UserID: userID}
	res := m.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member)
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to join class")
		return
	}
	utils.Success(ctx, gin.H{"class_id": classID, "joined": res.RowsAffected > 0})
}

// Complete marks a material finished and grants its XP the first time.
func (m *MaterialController) Complete(ctx *gin.Context) {
	materialID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	awarded, points, err := m.ledger.CompleteMaterial(ctx, userID, materialID)
	if err != nil {
		switch {
		case errors.Is(err, gamification.ErrMaterialNotFound):
			utils.Error(ctx, http.StatusNotFound, 40440, "material not found")
		case errors.Is(err, gamification.ErrUserNotFound):
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
		default:
			utils.Sugar.Errorw("material completion failed", "user_id", userID, "material_id", materialID, "err", err)
			utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to record completion, please retry")
		}
		return
	}
	xp := 0
	if awarded {
		xp = points
	}
	utils.Success(ctx, gin.H{"material_id": materialID, "awarded": awarded, "xp_awarded": xp})
}

func (m *MaterialController) classExists(ctx *gin.Context, classID uint) bool {
	var class models.Class
	if err := m.db.WithContext(ctx).Select("id").First(&class, classID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40420, "class not found")
			return false
		}
		utils.Error(ctx, http.StatusInternalServerError, 50044, "failed to load class")
		return false
	}
	return true
}
