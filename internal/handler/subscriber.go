package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Juls95/Trinit-AI/internal/sanitize"
	"github.com/Juls95/Trinit-AI/internal/store"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SubscriberHandler 负责公开的订阅/退订接口
type SubscriberHandler struct {
	Store *store.Store
}

func NewSubscriberHandler(st *store.Store) *SubscriberHandler {
	return &SubscriberHandler{Store: st}
}

type subscribeReq struct {
	Email string `json:"email" binding:"required"`
}

// Subscribe POST /api/subscribers
func (h *SubscriberHandler) Subscribe(c *gin.Context) {
	var req subscribeReq
	if !bindJSON(c, &req) {
		return
	}
	email, err := sanitize.Email(req.Email)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Invalid email format")
		return
	}

	res, err := h.Store.Subscribe(c.Request.Context(), email)
	if err != nil {
		serverError(c, "subscribe failed", err)
		return
	}

	switch res {
	case store.Resubscribed:
		util.Success(c, util.Response{"message": "Re-subscribed successfully"})
	case store.AlreadySubscribed:
		util.Success(c, util.Response{"message": "Already subscribed"})
	default:
		util.SuccessStatus(c, http.StatusCreated, util.Response{"message": "Subscribed successfully"})
	}
}

// Unsubscribe DELETE /api/subscribers?token=
func (h *SubscriberHandler) Unsubscribe(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Token required")
		return
	}

	err := h.Store.Unsubscribe(c.Request.Context(), token)
	if errors.Is(err, store.ErrNotFound) {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "Invalid unsubscribe link")
		return
	}
	if err != nil {
		serverError(c, "unsubscribe failed", err, zap.Bool("has_token", true))
		return
	}

	util.Success(c, util.Response{"message": "Unsubscribed successfully"})
}
