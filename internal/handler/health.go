package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/Juls95/Trinit-AI/internal/config"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
)

// UserCounter 用于健康检查时探测数据库
type UserCounter interface {
	CountUsers(ctx context.Context) (int64, error)
}

// HealthHandler 报告配置是否齐全以及数据库是否可用，不泄露密钥本身
type HealthHandler struct {
	Cfg   *config.Config
	Users UserCounter
	Now   Clock
}

func NewHealthHandler(cfg *config.Config, users UserCounter) *HealthHandler {
	return &HealthHandler{Cfg: cfg, Users: users}
}

// mask 只保留前 n 个字符
func mask(secret string, n int) string {
	if secret == "" {
		return "NOT SET"
	}
	if len(secret) <= n {
		return "set"
	}
	return "set (" + secret[:n] + "...)"
}

func isSet(v string) string {
	if v == "" {
		return "NOT SET"
	}
	return "set"
}

// Health GET /api/health
func (h *HealthHandler) Health(c *gin.Context) {
	cfg := h.Cfg
	checks := map[string]string{
		"database_driver":         cfg.Database.Driver,
		"auth_secret":             isSet(cfg.Auth.Secret),
		"stripe_secret_key":       mask(cfg.Stripe.SecretKey, 8),
		"stripe_webhook_secret":   isSet(cfg.Stripe.WebhookSecret),
		"identity_webhook_secret": isSet(cfg.Identity.WebhookSecret),
		"assistant_api_key":       isSet(cfg.Assistant.APIKey),
		"resend_api_key":          isSet(cfg.Mail.ResendAPIKey),
		"redis":                   fmt.Sprintf("enabled=%t", cfg.Redis.Enabled),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if n, err := h.Users.CountUsers(ctx); err != nil {
		checks["database"] = "FAILED: " + err.Error()
	} else {
		checks["database"] = fmt.Sprintf("connected (%d users)", n)
	}

	util.Success(c, util.Response{
		"status":    "ok",
		"checks":    checks,
		"timestamp": h.Now.now().Format(time.RFC3339),
	})
}
