package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/sanitize"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func meResponse(user *models.User) util.Response {
	return util.Response{
		"user": gin.H{
			"id":        user.ID,
			"email":     user.Email,
			"name":      user.DisplayName(),
			"avatarUrl": user.AvatarURL,
			"isPaid":    user.IsPaid,
			"plan":      user.Plan,
			"createdAt": user.CreatedAt.Format(time.RFC3339),
		},
	}
}

// GetMe 返回当前登录用户信息（需要经过 AuthMiddleware）
func GetMe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	util.Success(c, meResponse(user))
}

// NameUpdater 修改用户显示名
type NameUpdater interface {
	UpdateName(ctx context.Context, userID, name string) error
}

// UpdateMeReq 更新基本资料请求
type UpdateMeReq struct {
	Name string `json:"name" binding:"required,max=128"`
}

// UpdateMe 更新当前用户的显示名
func UpdateMe(users NameUpdater) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}

		var req UpdateMeReq
		if !bindJSON(c, &req) {
			return
		}

		name := strings.TrimSpace(sanitize.Input(req.Name))
		if name == "" {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "name: is required")
			return
		}

		if err := users.UpdateName(c.Request.Context(), user.ID, name); err != nil {
			serverError(c, "update name failed", err, zap.String("user_id", user.ID))
			return
		}
		user.Name = name

		util.Success(c, meResponse(user))
	}
}
