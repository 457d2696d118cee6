package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/Juls95/Trinit-AI/internal/logger"
	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 请求体超过该长度时不写入审计动作
const maxAuditBody = 2000

// AuditMiddleware 记录登录用户的写操作，路径和动作只存加密后的值
func AuditMiddleware(db *gorm.DB, encryptKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 只读请求不记录
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		// 读取请求体
		var bodyBytes []byte
		if c.Request.Body != nil {
			bodyBytes, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		// 执行请求
		c.Next()

		user, ok := CurrentUser(c)
		if !ok {
			return
		}

		// 构造 action
		path := c.Request.URL.Path
		action := c.Request.Method + " " + path
		// DELETE 等接口用查询参数传 id；token 不落库
		if q := c.Request.URL.Query(); len(q) > 0 {
			q.Del("token")
			if enc := q.Encode(); enc != "" {
				action += "?" + enc
			}
		}
		if len(bodyBytes) > 0 && len(bodyBytes) < maxAuditBody {
			action += " " + string(bodyBytes)
		}

		// 加密 path 和 action
		encPath, err := util.EncryptField(encryptKey, path)
		if err != nil {
			logger.FromGin(c).Warn("audit encrypt failed", zap.Error(err))
			return
		}
		encAction, err := util.EncryptField(encryptKey, action)
		if err != nil {
			logger.FromGin(c).Warn("audit encrypt failed", zap.Error(err))
			return
		}

		entry := models.AuditLog{
			UserID:    user.ID,
			PathEnc:   encPath,
			Method:    c.Request.Method,
			ActionEnc: encAction,
			Status:    c.Writer.Status(),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if err := db.WithContext(c.Request.Context()).Create(&entry).Error; err != nil {
			logger.FromGin(c).Warn("write audit log failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
}
