package handler

import (
	"time"

	"github.com/Juls95/Trinit-AI/internal/ledger"
	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/store"
)

type userView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
}

func toUserView(u models.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email, AvatarURL: u.AvatarURL}
}

type transactionView struct {
	ID             string     `json:"id"`
	Description    string     `json:"description"`
	Amount         float64    `json:"amount"`
	Effective      float64    `json:"effectiveAmount"`
	Type           string     `json:"type"`
	Category       string     `json:"category"`
	Date           time.Time  `json:"date"`
	CreatedAt      time.Time  `json:"createdAt"`
	IsSharedWithMe bool       `json:"isSharedWithMe"`
	Owner          *userView  `json:"owner,omitempty"`
	SharedWith     []userView `json:"sharedWith"`
}

// userIDs 收集交易里出现的所有者与分享对象
func userIDs(txs ...[]models.Transaction) []string {
	var ids []string
	for _, list := range txs {
		for _, t := range list {
			ids = append(ids, t.UserID)
			for _, sh := range t.Shares {
				ids = append(ids, sh.UserID)
			}
		}
	}
	return ids
}

func toTransactionView(t models.Transaction, users map[string]models.User, sharedIn bool) transactionView {
	e := store.ToEntry(t)
	effective := ledger.Effective(e)
	if sharedIn {
		effective = ledger.SharedInEffective(e)
	}

	v := transactionView{
		ID:             t.ID,
		Description:    t.Description,
		Amount:         ledger.ToFloat(t.Amount),
		Effective:      ledger.ToFloat(effective),
		Type:           t.Type,
		Category:       t.Category,
		Date:           t.Date,
		CreatedAt:      t.CreatedAt,
		IsSharedWithMe: sharedIn,
		SharedWith:     make([]userView, 0, len(t.Shares)),
	}
	for _, sh := range t.Shares {
		if u, ok := users[sh.UserID]; ok {
			v.SharedWith = append(v.SharedWith, toUserView(u))
		}
	}
	if sharedIn {
		if u, ok := users[t.UserID]; ok {
			owner := toUserView(u)
			v.Owner = &owner
		}
	}
	return v
}

func toTransactionViews(txs []models.Transaction, users map[string]models.User, sharedIn bool) []transactionView {
	out := make([]transactionView, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionView(t, users, sharedIn))
	}
	return out
}

type totalsView struct {
	TotalIncome   float64 `json:"totalIncome"`
	TotalExpenses float64 `json:"totalExpenses"`
	NetWorth      float64 `json:"netWorth"`
}

func toTotalsView(t ledger.Totals) totalsView {
	t = t.Rounded()
	return totalsView{
		TotalIncome:   ledger.ToFloat(t.Income),
		TotalExpenses: ledger.ToFloat(t.Expenses),
		NetWorth:      ledger.ToFloat(t.NetWorth),
	}
}

type budgetView struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Icon      string  `json:"icon"`
	Color     string  `json:"color"`
	Month     string  `json:"month"`
	Budgeted  float64 `json:"budgeted"`
	Spent     float64 `json:"spent"`
	Remaining float64 `json:"remaining"`
}

func toBudgetViews(budgets []ledger.BudgetWithSpent) []budgetView {
	out := make([]budgetView, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, budgetView{
			ID:        b.ID,
			Name:      b.Name,
			Icon:      b.Icon,
			Color:     b.Color,
			Month:     b.Month,
			Budgeted:  ledger.ToFloat(b.Budgeted),
			Spent:     ledger.ToFloat(b.Spent),
			Remaining: ledger.ToFloat(b.Remaining()),
		})
	}
	return out
}

func toBudgetView(b models.Budget) budgetView {
	return budgetView{
		ID:        b.ID,
		Name:      b.Name,
		Icon:      b.Icon,
		Color:     b.Color,
		Month:     b.Month,
		Budgeted:  ledger.ToFloat(b.Budgeted),
		Remaining: ledger.ToFloat(b.Budgeted),
	}
}
