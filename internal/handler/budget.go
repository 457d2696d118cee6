package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Juls95/Trinit-AI/internal/ledger"
	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/sanitize"
	"github.com/Juls95/Trinit-AI/internal/store"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BudgetHandler 负责预算相关接口
type BudgetHandler struct {
	Store *store.Store
	Now   Clock
}

func NewBudgetHandler(st *store.Store) *BudgetHandler {
	return &BudgetHandler{Store: st}
}

type createBudgetReq struct {
	Name     string           `json:"name" binding:"required,max=64"`
	Icon     string           `json:"icon" binding:"max=16"`
	Color    string           `json:"color" binding:"max=32"`
	Budgeted *decimal.Decimal `json:"budgeted" binding:"required"`
	Month    string           `json:"month" binding:"required,month"`
}

type updateBudgetReq struct {
	ID       string           `json:"id" binding:"required"`
	Name     *string          `json:"name" binding:"omitempty,max=64"`
	Icon     *string          `json:"icon" binding:"omitempty,max=16"`
	Color    *string          `json:"color" binding:"omitempty,max=32"`
	Budgeted *decimal.Decimal `json:"budgeted"`
}

// monthSpend 计算某月各分类的支出（自己的 + 别人分享给我的）
func monthSpend(ctx context.Context, st *store.Store, userID, month string) (ledger.CategorySpend, error) {
	start, end, err := ledger.MonthBounds(month, nil)
	if err != nil {
		return nil, err
	}
	f := store.Filter{From: &start, To: &end, Type: ledger.Expense}

	var owned, shared []models.Transaction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		owned, err = st.OwnedTransactions(gctx, userID, f)
		return err
	})
	g.Go(func() (err error) {
		shared, err = st.SharedInTransactions(gctx, userID, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ledger.ComputeCategorySpend(store.ToEntries(owned), store.ToEntries(shared)), nil
}

// ListBudgets GET /api/budgets?month=YYYY-MM
// 当月没有预算时自动创建默认分类
func (h *BudgetHandler) ListBudgets(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	month := c.DefaultQuery("month", ledger.MonthKey(h.Now.now()))
	if err := util.ValidateMonth(month); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "month: must be YYYY-MM")
		return
	}

	budgets, err := h.Store.BudgetsForMonth(ctx, user.ID, month)
	if err != nil {
		serverError(c, "list budgets failed", err, zap.String("user_id", user.ID))
		return
	}
	if len(budgets) == 0 {
		if err := h.Store.SeedDefaultBudgets(ctx, user.ID, month); err != nil {
			serverError(c, "seed budgets failed", err, zap.String("user_id", user.ID))
			return
		}
		if budgets, err = h.Store.BudgetsForMonth(ctx, user.ID, month); err != nil {
			serverError(c, "list budgets failed", err, zap.String("user_id", user.ID))
			return
		}
	}

	spend, err := monthSpend(ctx, h.Store, user.ID, month)
	if err != nil {
		serverError(c, "compute spend failed", err, zap.String("user_id", user.ID))
		return
	}

	withSpent := ledger.AttachSpent(store.ToLedgerBudgets(budgets), spend)
	budgeted, spent, percent := ledger.Usage(withSpent)

	util.Success(c, util.Response{
		"budgets": toBudgetViews(withSpent),
		"month":   month,
		"usage": gin.H{
			"budgeted": ledger.ToFloat(budgeted),
			"spent":    ledger.ToFloat(spent),
			"percent":  percent,
		},
	})
}

// UpsertBudget POST /api/budgets
// 同名同月的预算会被更新
func (h *BudgetHandler) UpsertBudget(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req createBudgetReq
	if !bindJSON(c, &req) {
		return
	}
	name := sanitize.Input(req.Name)
	if err := util.ValidateCategory(name); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	if err := util.ValidateBudgeted(*req.Budgeted); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}

	b := &models.Budget{
		UserID:   user.ID,
		Name:     name,
		Month:    req.Month,
		Icon:     req.Icon,
		Color:    req.Color,
		Budgeted: req.Budgeted.Round(2),
	}
	if err := h.Store.UpsertBudget(c.Request.Context(), b); err != nil {
		serverError(c, "upsert budget failed", err, zap.String("user_id", user.ID))
		return
	}

	util.SuccessStatus(c, http.StatusCreated, util.Response{"budget": toBudgetView(*b)})
}

// UpdateBudget PATCH /api/budgets
func (h *BudgetHandler) UpdateBudget(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req updateBudgetReq
	if !bindJSON(c, &req) {
		return
	}

	patch := store.BudgetPatch{Icon: req.Icon, Color: req.Color}
	if req.Name != nil {
		name := sanitize.Input(*req.Name)
		if err := util.ValidateCategory(name); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
			return
		}
		patch.Name = &name
	}
	if req.Budgeted != nil {
		if err := util.ValidateBudgeted(*req.Budgeted); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
			return
		}
		amount := req.Budgeted.Round(2)
		patch.Budgeted = &amount
	}

	b, err := h.Store.UpdateBudget(c.Request.Context(), user.ID, req.ID, patch)
	switch {
	case errors.Is(err, store.ErrNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "Budget not found")
		return
	case errors.Is(err, store.ErrConflict):
		util.Error(c, http.StatusConflict, util.CodeConflict, "A budget with this name already exists for the month")
		return
	case err != nil:
		serverError(c, "update budget failed", err, zap.String("budget_id", req.ID))
		return
	}

	util.Success(c, util.Response{"budget": toBudgetView(*b)})
}

// DeleteBudget DELETE /api/budgets?id=
func (h *BudgetHandler) DeleteBudget(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	id := c.Query("id")
	if id == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Missing budget id")
		return
	}

	err := h.Store.DeleteBudget(c.Request.Context(), user.ID, id)
	if errors.Is(err, store.ErrNotFound) {
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "Budget not found")
		return
	}
	if err != nil {
		serverError(c, "delete budget failed", err, zap.String("budget_id", id))
		return
	}

	util.Success(c, util.Response{"success": true})
}
