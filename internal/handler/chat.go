package handler

import (
	"net/http"
	"unicode/utf8"

	"github.com/Juls95/Trinit-AI/internal/assistant"
	"github.com/Juls95/Trinit-AI/internal/ledger"
	"github.com/Juls95/Trinit-AI/internal/logger"
	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/sanitize"
	"github.com/Juls95/Trinit-AI/internal/store"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// ReasonPaidOnly 是免费用户调用 AI 对话时的机器可读错误
	ReasonPaidOnly  = "PAID_ONLY"
	paidOnlyMessage = "Trinit AI Chat is available for paid members. Upgrade to unlock AI-powered financial insights."

	chatHistorySize   = 10
	defaultCategory   = "Other"
	maxDescriptionLen = 255
)

// ChatHandler 负责 AI 记账对话
type ChatHandler struct {
	Store     *store.Store
	Assistant assistant.Classifier
	Now       Clock
}

func NewChatHandler(st *store.Store, a assistant.Classifier) *ChatHandler {
	return &ChatHandler{Store: st, Assistant: a}
}

type chatReq struct {
	Message string `json:"message" binding:"required"`
}

// Chat POST /api/chat
// 收入/支出分类会同时生成一笔交易；周期与预算分类只留记录
func (h *ChatHandler) Chat(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if !user.IsPaid {
		util.ErrorWithReason(c, http.StatusForbidden, util.CodeForbidden, ReasonPaidOnly, paidOnlyMessage)
		return
	}

	var req chatReq
	if !bindJSON(c, &req) {
		return
	}
	message := sanitize.Input(req.Message)
	if message == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Message is required")
		return
	}
	if h.Assistant == nil {
		util.Error(c, http.StatusServiceUnavailable, util.CodeServerErr, "Assistant is not configured")
		return
	}

	// 历史在写入新消息之前读取，按时间正序
	recent, err := h.Store.RecentChats(ctx, user.ID, chatHistorySize)
	if err != nil {
		serverError(c, "load chat history failed", err, zap.String("user_id", user.ID))
		return
	}
	history := make([]assistant.Turn, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		history = append(history, assistant.Turn{
			FromUser: recent[i].Sender == models.SenderUser,
			Text:     recent[i].Message,
		})
	}

	userChat := &models.Chat{UserID: user.ID, Sender: models.SenderUser, Message: message}
	if err := h.Store.CreateChat(ctx, userChat); err != nil {
		serverError(c, "store chat failed", err, zap.String("user_id", user.ID))
		return
	}

	resp, err := h.Assistant.Reply(ctx, message, history)
	if err != nil {
		serverError(c, "assistant reply failed", err, zap.String("user_id", user.ID))
		return
	}

	aiChat := &models.Chat{UserID: user.ID, Sender: models.SenderAI, Message: resp.Reply}
	if err := h.Store.CreateChat(ctx, aiChat); err != nil {
		serverError(c, "store reply failed", err, zap.String("user_id", user.ID))
		return
	}

	out := util.Response{
		"reply":          resp.Reply,
		"classification": nil,
		"chatId":         aiChat.ID,
	}

	cls, err := checkClassification(resp.Classification)
	if err != nil {
		// 模型给出的分类不合法时只返回回复
		logger.FromGin(c).Warn("drop invalid classification",
			zap.String("user_id", user.ID), zap.Error(err))
	}
	if cls != nil {
		out["classification"] = classificationView(cls)
	}
	if !cls.Recordable() {
		util.Success(c, out)
		return
	}

	record := &models.Record{
		UserID:         user.ID,
		ChatID:         userChat.ID,
		Classification: cls.Type,
		Amount:         cls.Amount.Round(2),
		Category:       cls.Category,
	}
	var tx *models.Transaction
	if cls.Type == assistant.KindIncome || cls.Type == assistant.KindExpense {
		tx = &models.Transaction{
			UserID:      user.ID,
			Description: truncate(message, maxDescriptionLen),
			Amount:      cls.Amount.Round(2),
			Type:        cls.Type,
			Category:    cls.Category,
			Date:        h.Now.now(),
		}
	}
	if err := h.Store.CreateClassified(ctx, tx, record); err != nil {
		serverError(c, "store classification failed", err, zap.String("user_id", user.ID))
		return
	}
	if tx != nil {
		out["transactionId"] = tx.ID
	}

	util.Success(c, out)
}

// checkClassification applies the same cleaning and limits as manual entry
// to the model's classification. It returns nil with an error when a
// recordable classification cannot be stored.
func checkClassification(cls *assistant.Classification) (*assistant.Classification, error) {
	if cls == nil {
		return nil, nil
	}
	out := *cls
	out.Category = sanitize.Input(cls.Category)
	if !out.Recordable() {
		return &out, nil
	}
	if out.Category == "" {
		out.Category = defaultCategory
	}
	if err := util.ValidateCategory(out.Category); err != nil {
		return nil, err
	}
	if err := util.ValidateAmount(cls.Amount.Round(2)); err != nil {
		return nil, err
	}
	return &out, nil
}

func classificationView(cls *assistant.Classification) gin.H {
	v := gin.H{
		"type":     cls.Type,
		"amount":   nil,
		"category": cls.Category,
	}
	if cls.Amount != nil {
		v["amount"] = ledger.ToFloat(*cls.Amount)
	}
	return v
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
