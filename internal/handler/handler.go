// Package handler holds the gin handlers of the /api surface.
package handler

import (
	"net/http"
	"time"

	"github.com/Juls95/Trinit-AI/internal/logger"
	"github.com/Juls95/Trinit-AI/internal/middleware"
	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// currentUser 取出当前用户，缺失时直接写 401
func currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Unauthorized")
		return nil, false
	}
	return user, true
}

// bindJSON 绑定并校验请求体，失败时写 400
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, util.ValidationMessage(err))
		return false
	}
	return true
}

// serverError 记录错误并返回 500，不把内部错误暴露给客户端
func serverError(c *gin.Context, msg string, err error, fields ...zap.Field) {
	logger.FromGin(c).Error(msg, append(fields, zap.Error(err))...)
	util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Internal server error")
}

// timeLayout 是响应里时间字段的格式
const timeLayout = time.RFC3339

// Clock 供测试替换当前时间
type Clock func() time.Time

func (f Clock) now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}
