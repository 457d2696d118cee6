package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Juls95/Trinit-AI/internal/config"
	"github.com/Juls95/Trinit-AI/internal/logger"
	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/store"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CurrentUserKey 是 gin context 中当前用户的键
const CurrentUserKey = "currentUser"

// TokenCookie 是会话 token 的 cookie 名
const TokenCookie = "trinit_session"

// UserResolver 把身份提供方的用户映射为本地用户
type UserResolver interface {
	ResolveUser(ctx context.Context, id store.Identity) (*models.User, error)
}

// AuthMiddleware 校验身份提供方签发的 JWT，并在 context 里放入当前用户。
// 首次出现的用户会按 email 关联或新建本地账户。
func AuthMiddleware(auth config.AuthConfig, users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := tokenFromRequest(c)
		if tokenStr == "" {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
			c.Abort()
			return
		}

		claims, err := util.ParseToken(auth.Secret, auth.Issuer, tokenStr)
		if err != nil {
			logger.FromGin(c).Debug("token rejected", zap.Error(err))
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
			c.Abort()
			return
		}

		user, err := users.ResolveUser(c.Request.Context(), store.Identity{
			ExternalID: claims.Subject,
			Email:      claims.Email,
			Name:       claims.Name,
			AvatarURL:  claims.Picture,
		})
		if err != nil {
			logger.FromGin(c).Error("resolve user failed", zap.String("external_id", claims.Subject), zap.Error(err))
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Internal server error")
			c.Abort()
			return
		}

		c.Set(CurrentUserKey, user)
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) string {
	// 1) Header: Authorization: Bearer xxx
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// 2) URL 查询参数 ?token=xxx（用于导出下载等无法自定义 Header 的场景）
	if t := c.Query("token"); t != "" {
		return t
	}

	// 3) Cookie
	if cookie, err := c.Cookie(TokenCookie); err == nil {
		return cookie
	}
	return ""
}

// CurrentUser 取出 AuthMiddleware 放入的用户
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(CurrentUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}
