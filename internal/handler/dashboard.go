package handler

import (
	"github.com/Juls95/Trinit-AI/internal/assistant"
	"github.com/Juls95/Trinit-AI/internal/ledger"
	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/store"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	dashboardRecords      = 20
	dashboardChats        = 10
	dashboardTransactions = 50
)

// DashboardHandler 汇总首页数据
type DashboardHandler struct {
	Store *store.Store
	Now   Clock
}

func NewDashboardHandler(st *store.Store) *DashboardHandler {
	return &DashboardHandler{Store: st}
}

type recordView struct {
	ID             string  `json:"id"`
	Classification string  `json:"classification"`
	Amount         float64 `json:"amount"`
	Category       string  `json:"category"`
	ChatID         string  `json:"chatId"`
	TransactionID  *string `json:"transactionId"`
	CreatedAt      string  `json:"createdAt"`
}

type chatView struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
}

// Dashboard GET /api/dashboard
// 总额统计覆盖全部历史交易；预算只看当月
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	now := h.Now.now()
	month := ledger.MonthKey(now)

	var (
		owned, shared []models.Transaction
		records       []models.Record
		chats         []models.Chat
		budgets       []models.Budget
		recurring     int64
	)

	// 并发查询，互不依赖
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
		recurring, err = h.Store.CountRecords(gctx, user.ID, assistant.KindRecurring)
		return err
	})
	g.Go(func() (err error) {
		records, err = h.Store.RecentRecords(gctx, user.ID, dashboardRecords)
		return err
	})
	g.Go(func() (err error) {
		chats, err = h.Store.RecentChats(gctx, user.ID, dashboardChats)
		return err
	})
	g.Go(func() (err error) {
		budgets, err = h.Store.BudgetsForMonth(gctx, user.ID, month)
		return err
	})
	if err := g.Wait(); err != nil {
		serverError(c, "load dashboard failed", err, zap.String("user_id", user.ID))
		return
	}

	ownedEntries := store.ToEntries(owned)
	sharedEntries := store.ToEntries(shared)
	totals := ledger.ComputeTotals(ownedEntries, sharedEntries)

	start, end, _ := ledger.MonthBounds(month, nil)
	spend := ledger.ComputeCategorySpend(
		ledger.Between(ownedEntries, start, end),
		ledger.Between(sharedEntries, start, end),
	)

	recent := owned
	if len(recent) > dashboardTransactions {
		recent = recent[:dashboardTransactions]
	}
	users, err := h.Store.UsersByIDs(ctx, userIDs(recent))
	if err != nil {
		serverError(c, "load users failed", err, zap.String("user_id", user.ID))
		return
	}

	recordViews := make([]recordView, 0, len(records))
	for _, r := range records {
		recordViews = append(recordViews, recordView{
			ID:             r.ID,
			Classification: r.Classification,
			Amount:         ledger.ToFloat(r.Amount),
			Category:       r.Category,
			ChatID:         r.ChatID,
			TransactionID:  r.TransactionID,
			CreatedAt:      r.CreatedAt.UTC().Format(timeLayout),
		})
	}
	chatViews := make([]chatView, 0, len(chats))
	for _, ch := range chats {
		chatViews = append(chatViews, chatView{
			ID:        ch.ID,
			Sender:    ch.Sender,
			Message:   ch.Message,
			CreatedAt: ch.CreatedAt.UTC().Format(timeLayout),
		})
	}

	tv := toTotalsView(totals)
	util.Success(c, util.Response{
		"totalIncome":    tv.TotalIncome,
		"totalExpenses":  tv.TotalExpenses,
		"netWorth":       tv.NetWorth,
		"recurringCount": recurring,
		"isPaid":         user.IsPaid,
		"records":        recordViews,
		"recentChats":    chatViews,
		"transactions":   toTransactionViews(recent, users, false),
		"budgets":        toBudgetViews(ledger.AttachSpent(store.ToLedgerBudgets(budgets), spend)),
		"month":          month,
	})
}
