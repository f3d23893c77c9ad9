package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/eduxp/models"
	"github.com/cppla/eduxp/settings"
	"github.com/cppla/eduxp/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUserKey stores the loaded *models.User.
	ContextUserKey = "user"
)

// AuthRequired ensures the request carries a valid JWT and loads the caller's
// profile, creating it on first sight while registration is open.
// WebSocket upgrades may pass the token as the access_token query parameter.
func AuthRequired(db *gorm.DB, reg settings.Provider) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString, ok := bearerToken(ctx)
		if !ok {
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
			ctx.Abort()
			return
		}
		uid, err := uuid.Parse(claims.Subject)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid token subject")
			ctx.Abort()
			return
		}

		user, err := loadProfile(ctx, db, reg, uid.String(), claims)
		switch {
		case errors.Is(err, errRegistrationClosed):
			utils.Error(ctx, http.StatusForbidden, 40301, "registration is closed")
			ctx.Abort()
			return
		case err != nil:
			utils.Sugar.Errorw("load profile", "user_id", uid.String(), "err", err)
			utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to load profile")
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserIDKey, user.ID)
		ctx.Set(ContextUserKey, user)
		ctx.Next()
	}
}

func bearerToken(ctx *gin.Context) (string, bool) {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		if websocket.IsWebSocketUpgrade(ctx.Request) {
			if t := strings.TrimSpace(ctx.Query("access_token")); t != "" {
				return t, true
			}
		}
		utils.Error(ctx, http.StatusUnauthorized, 40101, "authorization header missing")
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		utils.Error(ctx, http.StatusUnauthorized, 40102, "invalid authorization header format")
		return "", false
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40103, "empty bearer token")
		return "", false
	}
	return tokenString, true
}

var errRegistrationClosed = errors.New("registration closed")

func loadProfile(ctx *gin.Context, db *gorm.DB, reg settings.Provider, id string, claims *utils.Claims) (*models.User, error) {
	var user models.User
	err := db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	open, err := reg.IsRegistrationOpen(ctx)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, errRegistrationClosed
	}
	username := claims.Username
	if username == "" {
		username = "user_" + id[:8]
	}
	user = models.User{ID: id, Username: username, FullName: claims.Name, Role: models.RoleStudent}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error; err != nil {
		return nil, err
	}
	// a concurrent first request may have won the insert
	if err := db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	utils.Sugar.Infow("profile created", "user_id", user.ID, "username", user.Username)
	return &user, nil
}

// RequireRole allows the request only when the caller's stored role is one of roles.
// It must run after AuthRequired.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user := CurrentUser(ctx)
		if user == nil {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "unauthenticated")
			ctx.Abort()
			return
		}
		for _, r := range roles {
			if user.Role == r {
				ctx.Next()
				return
			}
		}
		utils.Error(ctx, http.StatusForbidden, 40302, "insufficient role")
		ctx.Abort()
	}
}

// CurrentUserID returns the authenticated user id, or "" outside AuthRequired.
func CurrentUserID(ctx *gin.Context) string {
	return ctx.GetString(ContextUserIDKey)
}

// CurrentUser returns the profile loaded by AuthRequired.
func CurrentUser(ctx *gin.Context) *models.User {
	v, ok := ctx.Get(ContextUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}
