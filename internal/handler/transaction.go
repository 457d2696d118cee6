package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/Juls95/Trinit-AI/internal/ledger"
	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/quota"
	"github.com/Juls95/Trinit-AI/internal/sanitize"
	"github.com/Juls95/Trinit-AI/internal/store"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 列表最多返回的条数；汇总仍覆盖整个筛选范围
const transactionListLimit = 100

// ReasonFreeLimit 是免费用户超出每日额度时的机器可读错误
const ReasonFreeLimit = "FREE_LIMIT"

// TransactionHandler 负责交易相关接口
type TransactionHandler struct {
	Store *store.Store
	Quota *quota.Checker
	Now   Clock
}

func NewTransactionHandler(st *store.Store, q *quota.Checker) *TransactionHandler {
	return &TransactionHandler{Store: st, Quota: q}
}

// ---------- 请求结构 ----------

type createTransactionReq struct {
	Description   string           `json:"description" binding:"required,max=255"`
	Amount        *decimal.Decimal `json:"amount" binding:"required"`
	Type          string           `json:"type" binding:"required,txtype"`
	Category      string           `json:"category" binding:"required"`
	Date          string           `json:"date"`
	SharedWithIDs []string         `json:"sharedWithIds"`
}

type updateSharesReq struct {
	ID            string   `json:"id" binding:"required"`
	SharedWithIDs []string `json:"sharedWithIds"`
}

// parseRange 解析 from / to 查询参数；纯日期的 to 包含当天
func parseRange(c *gin.Context) (store.Filter, bool) {
	var f store.Filter
	if s := c.Query("from"); s != "" {
		from, err := util.ParseDate(s)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "from: "+err.Error())
			return f, false
		}
		f.From = &from
	}
	if s := c.Query("to"); s != "" {
		to, err := util.ParseDate(s)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "to: "+err.Error())
			return f, false
		}
		if len(s) == len("2006-01-02") {
			to = to.Add(24 * time.Hour)
		}
		f.To = &to
	}
	if s := c.Query("type"); s != "" {
		t := ledger.Type(s)
		if !t.Valid() {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "type: must be INCOME, EXPENSE or TRANSFER")
			return f, false
		}
		f.Type = t
	}
	return f, true
}

// checkShareTargets 分享对象必须是联系人，且不能包含自己
func (h *TransactionHandler) checkShareTargets(c *gin.Context, user *models.User, ids []string) bool {
	for _, id := range ids {
		if id == user.ID {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "You cannot share a transaction with yourself")
			return false
		}
	}
	ok, err := h.Store.AreContacts(c.Request.Context(), user.ID, ids)
	if err != nil {
		serverError(c, "check contacts failed", err, zap.String("user_id", user.ID))
		return false
	}
	if !ok {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Transactions can only be shared with your contacts")
		return false
	}
	return true
}

func (h *TransactionHandler) render(c *gin.Context, tx models.Transaction) (transactionView, bool) {
	users, err := h.Store.UsersByIDs(c.Request.Context(), userIDs([]models.Transaction{tx}))
	if err != nil {
		serverError(c, "load users failed", err, zap.String("transaction_id", tx.ID))
		return transactionView{}, false
	}
	return toTransactionView(tx, users, false), true
}

// ListTransactions GET /api/transactions?from=&to=&type=
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	f, ok := parseRange(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var owned, shared []models.Transaction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		owned, err = h.Store.OwnedTransactions(gctx, user.ID, f)
		return err
	})
	g.Go(func() (err error) {
		shared, err = h.Store.SharedInTransactions(gctx, user.ID, f)
		return err
	})
	if err := g.Wait(); err != nil {
		serverError(c, "list transactions failed", err, zap.String("user_id", user.ID))
		return
	}

	// 汇总基于完整范围，列表只截取最近的部分
	summary := toTotalsView(ledger.ComputeTotals(store.ToEntries(owned), store.ToEntries(shared)))
	if len(owned) > transactionListLimit {
		owned = owned[:transactionListLimit]
	}
	if len(shared) > transactionListLimit {
		shared = shared[:transactionListLimit]
	}

	users, err := h.Store.UsersByIDs(ctx, userIDs(owned, shared))
	if err != nil {
		serverError(c, "load users failed", err, zap.String("user_id", user.ID))
		return
	}

	util.Success(c, util.Response{
		"transactions": toTransactionViews(owned, users, false),
		"shared":       toTransactionViews(shared, users, true),
		"summary":      summary,
	})
}

// CreateTransaction POST /api/transactions
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req createTransactionReq
	if !bindJSON(c, &req) {
		return
	}

	description := sanitize.Input(req.Description)
	category := sanitize.Input(req.Category)
	if description == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "description: is required")
		return
	}
	if err := util.ValidateCategory(category); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	if err := util.ValidateAmount(*req.Amount); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}

	date := h.Now.now()
	if req.Date != "" {
		d, err := util.ParseDate(req.Date)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "date: "+err.Error())
			return
		}
		date = d
	}

	// 免费用户每日额度，写入时在事务内再核对一次
	allowed, err := h.Quota.Allow(c.Request.Context(), user)
	if err != nil {
		serverError(c, "check quota failed", err, zap.String("user_id", user.ID))
		return
	}
	if !allowed {
		util.ErrorWithReason(c, http.StatusForbidden, util.CodeForbidden, ReasonFreeLimit, h.Quota.Message())
		return
	}

	if !h.checkShareTargets(c, user, req.SharedWithIDs) {
		return
	}

	tx := &models.Transaction{
		UserID:      user.ID,
		Description: description,
		Amount:      req.Amount.Round(2),
		Type:        req.Type,
		Category:    category,
		Date:        date,
	}
	if user.IsPaid {
		err = h.Store.CreateTransaction(c.Request.Context(), tx, req.SharedWithIDs)
	} else {
		err = h.Store.CreateLimitedTransaction(c.Request.Context(), tx, req.SharedWithIDs,
			h.Quota.DayStart(), h.Quota.Limit())
	}
	if errors.Is(err, store.ErrQuotaExceeded) {
		util.ErrorWithReason(c, http.StatusForbidden, util.CodeForbidden, ReasonFreeLimit, h.Quota.Message())
		return
	}
	if err != nil {
		serverError(c, "create transaction failed", err, zap.String("user_id", user.ID))
		return
	}

	view, ok := h.render(c, *tx)
	if !ok {
		return
	}
	util.SuccessStatus(c, http.StatusCreated, util.Response{"transaction": view})
}

// UpdateShares PATCH /api/transactions
// 只有所有者可以修改分享对象
func (h *TransactionHandler) UpdateShares(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req updateSharesReq
	if !bindJSON(c, &req) {
		return
	}
	if !h.checkShareTargets(c, user, req.SharedWithIDs) {
		return
	}

	tx, err := h.Store.ReplaceShares(c.Request.Context(), user.ID, req.ID, req.SharedWithIDs)
	if errors.Is(err, store.ErrNotFound) {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "Transaction not found")
		return
	}
	if err != nil {
		serverError(c, "update shares failed", err, zap.String("transaction_id", req.ID))
		return
	}

	view, ok := h.render(c, *tx)
	if !ok {
		return
	}
	util.Success(c, util.Response{"transaction": view})
}

// DeleteTransaction DELETE /api/transactions?id=
// 被分享者看到的是 404
func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	id := c.Query("id")
	if id == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Transaction ID required")
		return
	}

	err := h.Store.DeleteTransaction(c.Request.Context(), user.ID, id)
	if errors.Is(err, store.ErrNotFound) {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "Transaction not found")
		return
	}
	if err != nil {
		serverError(c, "delete transaction failed", err, zap.String("transaction_id", id))
		return
	}

	util.Success(c, util.Response{"message": "Deleted"})
}
