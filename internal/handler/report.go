package handler

import (
	"github.com/Juls95/Trinit-AI/internal/ledger"
	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/store"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 报表趋势图保留的月数
const reportMonths = 6

// ReportHandler 负责报表统计
type ReportHandler struct {
	Store *store.Store
	Now   Clock
}

func NewReportHandler(st *store.Store) *ReportHandler {
	return &ReportHandler{Store: st}
}

// Report GET /api/reports
func (h *ReportHandler) Report(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	month := ledger.MonthKey(h.Now.now())

	var (
		owned, shared []models.Transaction
		budgets       []models.Budget
		spend         ledger.CategorySpend
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		owned, err = h.Store.OwnedTransactions(gctx, user.ID, store.Filter{})
		return err
	})
	g.Go(func() (err error) {
		shared, err = h.Store.SharedInTransactions(gctx, user.ID, store.Filter{})
		return err
	})
	g.Go(func() (err error) {
		budgets, err = h.Store.BudgetsForMonth(gctx, user.ID, month)
		return err
	})
	g.Go(func() (err error) {
		spend, err = monthSpend(gctx, h.Store, user.ID, month)
		return err
	})
	if err := g.Wait(); err != nil {
		serverError(c, "load report failed", err, zap.String("user_id", user.ID))
		return
	}

	r := ledger.BuildReport(store.ToEntries(owned), store.ToEntries(shared), reportMonths)
	budgeted, spent, percent := ledger.Usage(ledger.AttachSpent(store.ToLedgerBudgets(budgets), spend))

	categories := make([]gin.H, 0, len(r.Categories))
	for _, cs := range r.Categories {
		categories = append(categories, gin.H{
			"name":    cs.Name,
			"amount":  ledger.ToFloat(ledger.Round2(cs.Amount)),
			"percent": cs.Percent,
		})
	}
	months := make([]gin.H, 0, len(r.Months))
	for _, m := range r.Months {
		months = append(months, gin.H{
			"month":    m.Month,
			"income":   ledger.ToFloat(ledger.Round2(m.Income)),
			"expenses": ledger.ToFloat(ledger.Round2(m.Expenses)),
		})
	}

	tv := toTotalsView(r.Totals)
	util.Success(c, util.Response{
		"totalIncome":   tv.TotalIncome,
		"totalExpenses": tv.TotalExpenses,
		"netWorth":      tv.NetWorth,
		"savingsRate":   r.SavingsRate,
		"categories":    categories,
		"monthly":       months,
		"budgets": gin.H{
			"month":    month,
			"budgeted": ledger.ToFloat(budgeted),
			"spent":    ledger.ToFloat(spent),
			"percent":  percent,
		},
	})
}
