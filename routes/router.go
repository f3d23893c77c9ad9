package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/eduxp/config"
	"github.com/cppla/eduxp/controllers"
	"github.com/cppla/eduxp/gamification"
	"github.com/cppla/eduxp/metrics"
	"github.com/cppla/eduxp/middleware"
	"github.com/cppla/eduxp/models"
	"github.com/cppla/eduxp/quiz"
	"github.com/cppla/eduxp/realtime"
	"github.com/cppla/eduxp/settings"
	"github.com/cppla/eduxp/utils"
)

// Deps are the long-lived services the handlers share.
type Deps struct {
	DB        *gorm.DB
	Settings  *settings.Store
	Ledger    *gamification.Ledger
	Catalog   *quiz.Catalog
	Quizzes   *quiz.Manager
	Publisher realtime.Publisher
	Hub       *realtime.Hub
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(d Deps) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// request log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err != nil {
		gl = utils.Logger
	}
	r.Use(utils.Ginzap(gl, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(gl, false))
	r.Use(metrics.Middleware())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	var wsOrigins []string
	if !corsCfg.AllowAllOrigins {
		wsOrigins = cfg.AllowedOrigins
	}

	attendance := controllers.NewAttendanceController(d.Ledger)
	progress := controllers.NewProgressController(d.Ledger)
	materials := controllers.NewMaterialController(d.DB, d.Ledger)
	quizzes := controllers.NewQuizController(d.Catalog, d.Quizzes)
	quizAdmin := controllers.NewQuizAdminController(d.Catalog)
	discussions := controllers.NewDiscussionController(d.DB, d.Publisher, realtime.NewStream(d.Hub, wsOrigins))
	settingsCtl := controllers.NewSettingsController(d.Settings)
	users := controllers.NewAdminUserController(d.DB, d.Ledger)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute * 5))
	api.Use(middleware.AuthRequired(d.DB, d.Settings))
	writes := middleware.UserRateLimit(cfg.RateLimitPerMinute)

	api.GET("/me/progress", progress.Progress)
	api.GET("/me/points", progress.Points)
	api.GET("/leaderboard", progress.Leaderboard)

	api.GET("/attendance", attendance.History)
	api.POST("/attendance/check-in", writes, attendance.CheckIn)

	api.GET("/classes/:id/materials", materials.ListByClass)
	api.POST("/classes/:id/join", writes, materials.JoinClass)
	api.POST("/materials/:id/complete", writes, materials.Complete)

	api.GET("/classes/:id/quizzes", quizzes.ListByClass)
	api.GET("/quizzes/:id/session", quizzes.Session)
	api.POST("/quizzes/:id/start", quizzes.Start)
	api.PUT("/quizzes/:id/answers", quizzes.Answer)
	api.POST("/quizzes/:id/navigate", quizzes.Navigate)
	api.POST("/quizzes/:id/submit", writes, quizzes.Submit)
	api.DELETE("/quizzes/:id/session", quizzes.Abandon)

	api.GET("/classes/:id/discussions", discussions.List)
	api.POST("/classes/:id/discussions", writes, discussions.Create)
	api.GET("/classes/:id/discussions/ws", discussions.Stream)
	api.POST("/discussions/:id/replies", writes, discussions.Reply)
	api.PUT("/discussions/:id", writes, discussions.Update)
	api.DELETE("/discussions/:id", discussions.Delete)
	api.DELETE("/replies/:id", discussions.DeleteReply)

	staff := api.Group("/admin")
	staff.Use(middleware.RequireRole(models.RoleAdmin, models.RoleTeacher))
	staff.GET("/settings", settingsCtl.Get)
	staff.PATCH("/settings", settingsCtl.Update)
	staff.POST("/classes/:id/quizzes", quizAdmin.CreateQuiz)
	staff.GET("/quizzes/:id/questions", quizAdmin.ListQuestions)
	staff.POST("/quizzes/:id/questions", quizAdmin.AddQuestion)
	staff.DELETE("/questions/:id", quizAdmin.DeleteQuestion)

	admin := staff.Group("/users")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.GET("", users.ListUsers)
	admin.PATCH("/:id/role", users.UpdateRole)
	admin.POST("/:id/points", users.AdjustPoints)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
