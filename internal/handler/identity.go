package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Juls95/Trinit-AI/internal/logger"
	"github.com/Juls95/Trinit-AI/internal/store"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"
)

// 身份服务推送的事件类型
const (
	identityUserCreated = "user.created"
	identityUserUpdated = "user.updated"
	identityUserDeleted = "user.deleted"
)

// IdentityHandler 接收身份服务（svix 签名）的用户同步事件
type IdentityHandler struct {
	Store  *store.Store
	Secret string
}

func NewIdentityHandler(st *store.Store, secret string) *IdentityHandler {
	return &IdentityHandler{Store: st, Secret: secret}
}

type identityEmail struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

type identityUser struct {
	ID                    string          `json:"id"`
	FirstName             string          `json:"first_name"`
	LastName              string          `json:"last_name"`
	ImageURL              string          `json:"image_url"`
	PrimaryEmailAddressID string          `json:"primary_email_address_id"`
	EmailAddresses        []identityEmail `json:"email_addresses"`
}

type identityEvent struct {
	Type string       `json:"type"`
	Data identityUser `json:"data"`
}

// primaryEmail 优先取主邮箱，否则取第一个
func (u identityUser) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID != "" && e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

func (u identityUser) identity() store.Identity {
	return store.Identity{
		ExternalID: u.ID,
		Email:      strings.ToLower(strings.TrimSpace(u.primaryEmail())),
		Name:       strings.TrimSpace(u.FirstName + " " + u.LastName),
		AvatarURL:  u.ImageURL,
	}
}

// Webhook POST /api/identity/webhook
func (h *IdentityHandler) Webhook(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Secret == "" {
		log.Error("identity webhook secret is not set")
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Server misconfigured")
		return
	}
	if c.GetHeader("svix-id") == "" || c.GetHeader("svix-timestamp") == "" || c.GetHeader("svix-signature") == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Missing webhook headers")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Unreadable body")
		return
	}

	wh, err := svix.NewWebhook(h.Secret)
	if err != nil {
		log.Error("identity webhook secret is malformed", zap.Error(err))
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Server misconfigured")
		return
	}
	if err := wh.Verify(payload, c.Request.Header); err != nil {
		log.Warn("identity webhook rejected", zap.Error(err))
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Invalid signature")
		return
	}

	var ev identityEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Invalid payload")
		return
	}
	log = log.With(zap.String("event_type", ev.Type), zap.String("external_id", ev.Data.ID))
	ctx := c.Request.Context()

	switch ev.Type {
	case identityUserCreated, identityUserUpdated:
		id := ev.Data.identity()
		if id.Email == "" {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "No email")
			return
		}
		if _, err := h.Store.SyncUser(ctx, id); err != nil {
			serverError(c, "sync identity user failed", err, zap.String("external_id", id.ExternalID))
			return
		}
		log.Info("identity user synced")
		util.Success(c, util.Response{"success": true})

	case identityUserDeleted:
		// 删除失败只记录日志，避免身份服务无限重试
		if err := h.Store.DeleteUserByExternalID(ctx, ev.Data.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Error("delete identity user failed", zap.Error(err))
		}
		util.Success(c, util.Response{"success": true})

	default:
		util.Success(c, util.Response{"received": true})
	}
}
