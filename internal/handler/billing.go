package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Juls95/Trinit-AI/internal/billing"
	"github.com/Juls95/Trinit-AI/internal/idempotency"
	"github.com/Juls95/Trinit-AI/internal/logger"
	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/store"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// Stripe 推荐的 webhook 请求体上限
	maxWebhookBody = 65536
	// 同一事件 ID 在该时间内只处理一次
	webhookDedupTTL = 24 * time.Hour
)

// BillingService 是 billing.Service 对外提供的操作
type BillingService interface {
	Checkout(ctx context.Context, u *models.User, plan billing.Plan) (string, error)
	Verify(ctx context.Context, u *models.User, sessionID string) (store.Billing, error)
	Cancel(ctx context.Context, u *models.User) error
	HandleEvent(ctx context.Context, ev *billing.Event) error
}

// BillingHandler 负责订阅与支付。Service 为 nil 表示未配置 Stripe。
type BillingHandler struct {
	Service       BillingService
	WebhookSecret string
	Events        idempotency.Store
}

func NewBillingHandler(svc BillingService, webhookSecret string, events idempotency.Store) *BillingHandler {
	return &BillingHandler{Service: svc, WebhookSecret: webhookSecret, Events: events}
}

type checkoutReq struct {
	Plan string `json:"plan"`
}

type verifyReq struct {
	SessionID string `json:"sessionId" binding:"required"`
}

type cancelReq struct {
	Action string `json:"action"`
}

func (h *BillingHandler) configured(c *gin.Context) bool {
	if h.Service == nil {
		util.Error(c, http.StatusServiceUnavailable, util.CodeServerErr, "Billing is not configured")
		return false
	}
	return true
}

// GetBilling GET /api/billing
func (h *BillingHandler) GetBilling(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var plan, priceAmount, periodEnd interface{}
	if user.Plan != "" {
		plan = user.Plan
	}
	if user.PriceAmount > 0 {
		priceAmount = user.PriceAmount
	}
	if user.BillingPeriodEnd != nil {
		periodEnd = user.BillingPeriodEnd.UTC().Format(timeLayout)
	}

	util.Success(c, util.Response{
		"isPaid":           user.IsPaid,
		"plan":             plan,
		"priceAmount":      priceAmount,
		"billingPeriodEnd": periodEnd,
		"hasSubscription":  user.StripeSubscriptionID != "",
		"email":            user.Email,
	})
}

// CancelSubscription DELETE /api/billing  {"action":"cancel"}
func (h *BillingHandler) CancelSubscription(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req cancelReq
	if !bindJSON(c, &req) {
		return
	}
	if req.Action != "cancel" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Unsupported action")
		return
	}
	if !h.configured(c) {
		return
	}

	err := h.Service.Cancel(c.Request.Context(), user)
	if errors.Is(err, billing.ErrNoSubscription) {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "No active subscription to cancel")
		return
	}
	if err != nil {
		serverError(c, "cancel subscription failed", err, zap.String("user_id", user.ID))
		return
	}

	util.Success(c, util.Response{"message": "Subscription will cancel at end of billing period"})
}

// Checkout POST /api/billing/checkout
func (h *BillingHandler) Checkout(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req checkoutReq
	if !bindJSON(c, &req) {
		return
	}
	plan, err := billing.ParsePlan(req.Plan)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "plan: must be monthly, annual or lifetime")
		return
	}
	if !h.configured(c) {
		return
	}

	url, err := h.Service.Checkout(c.Request.Context(), user, plan)
	if errors.Is(err, billing.ErrInvalidPlan) {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Plan is not available")
		return
	}
	if err != nil {
		serverError(c, "create checkout failed", err, zap.String("user_id", user.ID), zap.String("plan", string(plan)))
		return
	}

	util.Success(c, util.Response{"url": url})
}

// Verify POST /api/billing/verify
// 支付跳转回来后立即确认，不必等待 webhook
func (h *BillingHandler) Verify(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req verifyReq
	if !bindJSON(c, &req) {
		return
	}
	if !h.configured(c) {
		return
	}

	b, err := h.Service.Verify(c.Request.Context(), user, req.SessionID)
	switch {
	case errors.Is(err, billing.ErrPaymentIncomplete):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Payment not completed")
		return
	case errors.Is(err, billing.ErrSessionMismatch):
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "Session does not match user")
		return
	case err != nil:
		serverError(c, "verify checkout failed", err, zap.String("user_id", user.ID))
		return
	}

	util.Success(c, util.Response{
		"message": "Payment verified",
		"plan":    b.Plan,
		"isPaid":  b.IsPaid,
	})
}

// Webhook POST /api/stripe/webhook
// 验签后按事件 ID 去重；处理失败时释放去重标记，让 Stripe 重试
func (h *BillingHandler) Webhook(c *gin.Context) {
	log := logger.FromGin(c)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Unreadable body")
		return
	}

	ev, err := billing.ParseEvent(payload, c.GetHeader("Stripe-Signature"), h.WebhookSecret)
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		log.Error("stripe webhook secret is not set")
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Server misconfigured")
		return
	case err != nil:
		log.Warn("stripe webhook rejected", zap.Error(err))
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Invalid signature")
		return
	}
	if h.Service == nil {
		util.Error(c, http.StatusServiceUnavailable, util.CodeServerErr, "Billing is not configured")
		return
	}

	ctx := c.Request.Context()
	log = log.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	if h.Events != nil && ev.ID != "" {
		first, err := h.Events.MarkProcessed(ctx, ev.ID, webhookDedupTTL)
		if err != nil {
			// 去重存储不可用时照常处理，业务本身是幂等覆盖写
			log.Warn("webhook dedup store unavailable", zap.Error(err))
			first = true
		}
		if !first {
			log.Info("duplicate stripe event skipped")
			util.Success(c, util.Response{"received": true, "duplicate": true})
			return
		}
	}

	if err := h.Service.HandleEvent(ctx, ev); err != nil {
		if h.Events != nil && ev.ID != "" {
			if ferr := h.Events.Forget(ctx, ev.ID); ferr != nil {
				log.Warn("release webhook dedup key failed", zap.Error(ferr))
			}
		}
		log.Error("handle stripe event failed", zap.Error(err))
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Webhook handler failed")
		return
	}

	util.Success(c, util.Response{"received": true})
}
