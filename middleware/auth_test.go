package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/eduxp/config"
	"github.com/cppla/eduxp/models"
	"github.com/cppla/eduxp/settings"
	"github.com/cppla/eduxp/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
	config.Set(config.AppConfig{JWTSecret: "middleware-test-secret"})
	utils.SetRedis(nil)
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newRouter(db *gorm.DB, reg settings.Provider, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{AuthRequired(db, reg)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		utils.Success(c, gin.H{"user_id": CurrentUserID(c), "role": CurrentUser(c).Role})
	})
	r.GET("/me", handlers...)
	return r
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok, err := utils.GenerateToken(sub, "ana", time.Hour)
	require.NoError(t, err)
	return tok
}

func TestAuthRejectsMissingAndBadTokens(t *testing.T) {
	r := newRouter(setupDB(t), settings.NewStatic(false, true))

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, token(t, "not-a-uuid")).Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "40102")
}

func TestAuthCreatesProfileWhenRegistrationOpen(t *testing.T) {
	db := setupDB(t)
	r := newRouter(db, settings.NewStatic(false, true))
	id := uuid.NewString()

	w := do(r, token(t, id))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var u models.User
	require.NoError(t, db.First(&u, "id = ?", id).Error)
	assert.Equal(t, "ana", u.Username)
	assert.Equal(t, models.RoleStudent, u.Role)
	assert.Zero(t, u.Points)

	// second request reuses the profile
	require.Equal(t, http.StatusOK, do(r, token(t, id)).Code)
	var n int64
	db.Model(&models.User{}).Count(&n)
	assert.EqualValues(t, 1, n)
}

func TestAuthRefusesNewProfileWhenRegistrationClosed(t *testing.T) {
	db := setupDB(t)
	reg := settings.NewStatic(false, false)
	r := newRouter(db, reg)

	w := do(r, token(t, uuid.NewString()))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "40301")

	existing := uuid.NewString()
	require.NoError(t, db.Create(&models.User{ID: existing, Username: "old"}).Error)
	assert.Equal(t, http.StatusOK, do(r, token(t, existing)).Code, "existing profiles still sign in")
}

func TestRequireRole(t *testing.T) {
	db := setupDB(t)
	r := newRouter(db, settings.NewStatic(false, true), RequireRole(models.RoleAdmin, models.RoleTeacher))

	student := uuid.NewString()
	require.NoError(t, db.Create(&models.User{ID: student, Username: "s", Role: models.RoleStudent}).Error)
	teacher := uuid.NewString()
	require.NoError(t, db.Create(&models.User{ID: teacher, Username: "t", Role: models.RoleTeacher}).Error)

	assert.Equal(t, http.StatusForbidden, do(r, token(t, student)).Code)
	assert.Equal(t, http.StatusOK, do(r, token(t, teacher)).Code)

	// role changes apply on the next request
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", student).Update("role", models.RoleAdmin).Error)
	assert.Equal(t, http.StatusOK, do(r, token(t, student)).Code)
}

func TestUserRateLimit(t *testing.T) {
	db := setupDB(t)
	r := newRouter(db, settings.NewStatic(false, true), UserRateLimit(2))
	tok := token(t, uuid.NewString())

	assert.Equal(t, http.StatusOK, do(r, tok).Code)
	w := do(r, tok)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "42902")

	assert.Equal(t, http.StatusOK, do(r, token(t, uuid.NewString())).Code, "buckets are per user")
}
