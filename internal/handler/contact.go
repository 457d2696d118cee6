package handler

import (
	"errors"
	"net/http"

	"github.com/Juls95/Trinit-AI/internal/logger"
	"github.com/Juls95/Trinit-AI/internal/mail"
	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/sanitize"
	"github.com/Juls95/Trinit-AI/internal/store"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ContactHandler 负责联系人与邀请
type ContactHandler struct {
	Store  *store.Store
	Mailer mail.Sender
}

func NewContactHandler(st *store.Store, mailer mail.Sender) *ContactHandler {
	return &ContactHandler{Store: st, Mailer: mailer}
}

type inviteReq struct {
	Email string `json:"email" binding:"required"`
}

type acceptReq struct {
	InvitationID string `json:"invitationId"`
	Token        string `json:"token"`
}

// ListContacts GET /api/contacts
func (h *ContactHandler) ListContacts(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var (
		contacts []models.Contact
		sent     []models.Invitation
		received []models.Invitation
	)
	g, gctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() (err error) {
		contacts, err = h.Store.Contacts(gctx, user.ID)
		return err
	})
	g.Go(func() (err error) {
		sent, err = h.Store.PendingSent(gctx, user.ID)
		return err
	})
	g.Go(func() (err error) {
		received, err = h.Store.PendingReceived(gctx, user.Email)
		return err
	})
	if err := g.Wait(); err != nil {
		serverError(c, "list contacts failed", err, zap.String("user_id", user.ID))
		return
	}

	contactViews := make([]gin.H, 0, len(contacts))
	for _, ct := range contacts {
		contactViews = append(contactViews, gin.H{
			"id":       ct.ID,
			"nickname": ct.Nickname,
			"user":     toUserView(ct.Contact),
		})
	}
	sentViews := make([]gin.H, 0, len(sent))
	for _, inv := range sent {
		sentViews = append(sentViews, gin.H{
			"id":        inv.ID,
			"email":     inv.Email,
			"status":    inv.Status,
			"createdAt": inv.CreatedAt.UTC().Format(timeLayout),
		})
	}
	receivedViews := make([]gin.H, 0, len(received))
	for _, inv := range received {
		receivedViews = append(receivedViews, gin.H{
			"id":        inv.ID,
			"token":     inv.Token,
			"sender":    toUserView(inv.Sender),
			"createdAt": inv.CreatedAt.UTC().Format(timeLayout),
		})
	}

	util.Success(c, util.Response{
		"contacts":            contactViews,
		"pendingInvitations":  sentViews,
		"receivedInvitations": receivedViews,
	})
}

// Invite POST /api/contacts
// 对方已注册则直接互加联系人，否则发送邀请邮件。邮件失败不影响结果。
func (h *ContactHandler) Invite(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var req inviteReq
	if !bindJSON(c, &req) {
		return
	}
	email, err := sanitize.Email(req.Email)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Invalid email format")
		return
	}
	if email == user.Email {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "You cannot invite yourself")
		return
	}

	exists, err := h.Store.HasContactWithEmail(ctx, user.ID, email)
	if err != nil {
		serverError(c, "check contact failed", err, zap.String("user_id", user.ID))
		return
	}
	if exists {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Already in your contacts")
		return
	}

	inv, err := h.Store.InvitationBySenderEmail(ctx, user.ID, email)
	switch {
	case err == nil && inv.Status == models.InvitationPending:
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Invitation already sent")
		return
	case err != nil && !errors.Is(err, store.ErrNotFound):
		serverError(c, "find invitation failed", err, zap.String("user_id", user.ID))
		return
	}

	target, err := h.Store.UserByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		serverError(c, "find user failed", err, zap.String("user_id", user.ID))
		return
	}

	// 已注册用户：直接互加
	if target != nil {
		if err := h.Store.LinkContacts(ctx, user.ID, target.ID); err != nil {
			serverError(c, "link contacts failed", err, zap.String("user_id", user.ID))
			return
		}
		if _, err := h.Store.UpsertInvitation(ctx, user.ID, email, models.InvitationAccepted); err != nil {
			serverError(c, "record invitation failed", err, zap.String("user_id", user.ID))
			return
		}
		util.SuccessStatus(c, http.StatusCreated, util.Response{
			"message":      "Contact added",
			"contact":      toUserView(*target),
			"autoAccepted": true,
		})
		return
	}

	inv, err = h.Store.UpsertInvitation(ctx, user.ID, email, models.InvitationPending)
	if err != nil {
		serverError(c, "create invitation failed", err, zap.String("user_id", user.ID))
		return
	}

	if err := h.Mailer.SendInvitation(ctx, mail.Invitation{
		To:         email,
		SenderName: user.DisplayName(),
		Token:      inv.Token,
	}); err != nil {
		logger.FromGin(c).Warn("send invitation email failed",
			zap.String("user_id", user.ID),
			zap.String("invitation_id", inv.ID),
			zap.Error(err))
	}

	util.SuccessStatus(c, http.StatusCreated, util.Response{
		"message": "Invitation sent! An email has been sent to " + email,
		"invitation": gin.H{
			"id":     inv.ID,
			"email":  inv.Email,
			"status": inv.Status,
		},
	})
}

// Accept POST /api/contacts/accept
func (h *ContactHandler) Accept(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var req acceptReq
	if !bindJSON(c, &req) {
		return
	}
	if req.InvitationID == "" && req.Token == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Invitation ID or token required")
		return
	}

	var (
		inv *models.Invitation
		err error
	)
	if req.Token != "" {
		inv, err = h.Store.InvitationByToken(ctx, req.Token)
	} else {
		inv, err = h.Store.InvitationByID(ctx, req.InvitationID)
	}
	if errors.Is(err, store.ErrNotFound) {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "Invitation not found")
		return
	}
	if err != nil {
		serverError(c, "find invitation failed", err, zap.String("user_id", user.ID))
		return
	}

	if inv.Email != user.Email {
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "This invitation is not for you")
		return
	}
	if inv.Status != models.InvitationPending {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Invitation already processed")
		return
	}

	err = h.Store.AcceptInvitation(ctx, inv, user.ID)
	if errors.Is(err, store.ErrConflict) {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Invitation already processed")
		return
	}
	if err != nil {
		serverError(c, "accept invitation failed", err, zap.String("invitation_id", inv.ID))
		return
	}

	util.Success(c, util.Response{
		"message": "Invitation accepted",
		"contact": toUserView(inv.Sender),
	})
}
