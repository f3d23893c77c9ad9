package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/eduxp/gamification"
	"github.com/cppla/eduxp/middleware"
	"github.com/cppla/eduxp/models"
	"github.com/cppla/eduxp/utils"
)

// AdminUserController manages profiles on behalf of administrators.
type AdminUserController struct {
	db     *gorm.DB
	ledger *gamification.Ledger
}

// NewAdminUserController creates a new AdminUserController instance.
func NewAdminUserController(db *gorm.DB, ledger *gamification.Ledger) *AdminUserController {
	return &AdminUserController{db: db, ledger: ledger}
}

// ListUsers returns profiles, optionally filtered by role or a name search.
func (a *AdminUserController) ListUsers(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	query := a.db.WithContext(ctx).Model(&models.User{})
	if role := strings.TrimSpace(ctx.Query("role")); role != "" {
		if !models.ValidRole(role) {
			utils.Error(ctx, http.StatusBadRequest, 40090, "unknown role")
			return
		}
		query = query.Where("role = ?", role)
	}
	if search := strings.TrimSpace(ctx.Query("search")); search != "" {
		like := "%" + search + "%"
		query = query.Where("username LIKE ? OR full_name LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50000, "failed to count users")
		return
	}
	var users []models.User
	if err := query.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to retrieve users")
		return
	}

	utils.Success(ctx, gin.H{
		"items": users,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	})
}

// UpdateRole changes a profile's role. Admins cannot demote themselves.
func (a *AdminUserController) UpdateRole(ctx *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || !models.ValidRole(req.Role) {
		utils.Error(ctx, http.StatusBadRequest, 40091, "role must be admin, teacher or student")
		return
	}
	id := strings.TrimSpace(ctx.Param("id"))
	if id == middleware.CurrentUserID(ctx) && req.Role != models.RoleAdmin {
		utils.Error(ctx, http.StatusBadRequest, 40092, "you cannot change your own role")
		return
	}

	res := a.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("role", req.Role)
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to update role")
		return
	}
	if res.RowsAffected == 0 {
		var n int64
		a.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&n)
		if n == 0 {
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
			return
		}
	}
	utils.Sugar.Infow("role changed", "user_id", id, "role", req.Role, "by", middleware.CurrentUserID(ctx))
	utils.Success(ctx, gin.H{"id": id, "role": req.Role})
}

// AdjustPoints applies an administrative point correction.
func (a *AdminUserController) AdjustPoints(ctx *gin.Context) {
	var req struct {
		Delta int    `json:"delta" binding:"required"`
		Note  string `json:"note"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40093, "delta must be a non-zero integer")
		return
	}
	note := utils.Sanitize(req.Note)
	if r := []rune(note); len(r) > 255 {
		note = string(r[:255])
	}
	id := strings.TrimSpace(ctx.Param("id"))
	res, err := a.ledger.Correct(ctx, id, req.Delta, note)
	if err != nil {
		switch {
		case errors.Is(err, gamification.ErrUserNotFound):
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
		case errors.Is(err, gamification.ErrInvalidDelta):
			utils.Error(ctx, http.StatusBadRequest, 40093, "delta must be a non-zero integer")
		default:
			utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to adjust points")
		}
		return
	}
	utils.Success(ctx, res)
}
