package util

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 通用返回结构里的 data 使用 map
type Response map[string]interface{}

// 业务错误码
const (
	CodeOK           = 0
	CodeInvalidParam = 40001
	CodeAuth         = 40101
	CodeForbidden    = 40301
	CodeNotFound     = 40401
	CodeConflict     = 40901
	CodeRateLimited  = 42901
	CodeServerErr    = 50001
)

// Success 统一成功返回
func Success(c *gin.Context, data Response) {
	SuccessStatus(c, http.StatusOK, data)
}

// SuccessStatus 用于 201 等非 200 的成功返回
func SuccessStatus(c *gin.Context, httpStatus int, data Response) {
	c.JSON(httpStatus, gin.H{
		"code": CodeOK,
		"data": data,
	})
}

// Error 统一错误返回
func Error(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
	})
}

// ErrorWithReason 在 message 之外附带机器可读的 error 字段（如 FREE_LIMIT）
func ErrorWithReason(c *gin.Context, httpStatus int, code int, reason, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"error":   reason,
		"message": msg,
	})
}
