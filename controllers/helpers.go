package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/eduxp/middleware"
	"github.com/cppla/eduxp/models"
	"github.com/cppla/eduxp/utils"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func parseLimit(raw string, def, top int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return def
	}
	if n > top {
		return top
	}
	return n
}

func getUserID(ctx *gin.Context) (string, bool) {
	id := middleware.CurrentUserID(ctx)
	if id == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return "", false
	}
	return id, true
}

// idParam reads a positive numeric path parameter, answering 400 when it is not one.
func idParam(ctx *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 64)
	if err != nil || n == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid "+name)
		return 0, false
	}
	return uint(n), true
}

func isStaff(ctx *gin.Context) bool {
	u := middleware.CurrentUser(ctx)
	return u != nil && u.IsStaff()
}

func isAdmin(ctx *gin.Context) bool {
	u := middleware.CurrentUser(ctx)
	return u != nil && u.Role == models.RoleAdmin
}
