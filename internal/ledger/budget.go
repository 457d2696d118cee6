package ledger

import "github.com/shopspring/decimal"

// Budget is a monthly spending target for one category. Name is joined
// against Entry.Category by exact string equality.
type Budget struct {
	ID       string
	UserID   string
	Name     string
	Icon     string
	Color    string
	Month    string // YYYY-MM
	Budgeted decimal.Decimal
}

// BudgetWithSpent is a budget with its derived spend attached.
type BudgetWithSpent struct {
	Budget
	Spent decimal.Decimal
}

// Remaining is what is left of the budget; negative when over budget.
func (b BudgetWithSpent) Remaining() decimal.Decimal {
	return b.Budgeted.Sub(b.Spent)
}

// AttachSpent joins budgets with spend, rounding each spent value to cents.
// The input slice is left untouched.
func AttachSpent(budgets []Budget, spend CategorySpend) []BudgetWithSpent {
	out := make([]BudgetWithSpent, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, BudgetWithSpent{
			Budget: b,
			Spent:  Round2(spend.Get(b.Name)),
		})
	}
	return out
}

// Usage sums budgeted and spent across budgets and returns the spent share
// as a whole percentage (0 when nothing is budgeted).
func Usage(budgets []BudgetWithSpent) (budgeted, spent decimal.Decimal, percent int64) {
	budgeted = decimal.Zero
	spent = decimal.Zero
	for _, b := range budgets {
		budgeted = budgeted.Add(b.Budgeted)
		spent = spent.Add(b.Spent)
	}
	return budgeted, spent, percentOf(spent, budgeted)
}

var half = decimal.New(5, -1)

// percentOf returns part/whole as a whole percentage. Halves round up
// towards +inf, so -12.5 gives -12 and 12.5 gives 13.
func percentOf(part, whole decimal.Decimal) int64 {
	if whole.IsZero() {
		return 0
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Add(half).Floor().IntPart()
}
