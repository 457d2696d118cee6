// Package ledger computes a user's income, expense, net worth and budget
// spend figures from the transactions they own and the transactions other
// users have shared with them.
//
// Every figure goes through Effective, so a shared transaction is counted as
// half of its absolute amount for each party that can see it. All functions
// are pure: they never mutate their inputs and are safe to call concurrently.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type classifies a transaction.
type Type string

const (
	Income   Type = "INCOME"
	Expense  Type = "EXPENSE"
	Transfer Type = "TRANSFER"
)

// Valid reports whether t is one of the known transaction types.
func (t Type) Valid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

// Entry is the transaction shape consumed by the aggregator. Persistence
// layers convert their own records into entries before aggregating.
type Entry struct {
	ID          string
	OwnerID     string
	Description string
	Amount      decimal.Decimal
	Type        Type
	Category    string
	Date        time.Time
	CreatedAt   time.Time
	SharedWith  []string
}

// IsShared reports whether the entry has at least one recipient.
func (e Entry) IsShared() bool {
	return len(e.SharedWith) > 0
}

// splitFactor is the share attributed to each party of a shared transaction.
// It is flat: adding recipients does not reduce it.
var splitFactor = decimal.New(5, -1)

// Effective returns the part of e's absolute amount attributed to one party.
func Effective(e Entry) decimal.Decimal {
	amount := e.Amount.Abs()
	if e.IsShared() {
		return amount.Mul(splitFactor)
	}
	return amount
}

// SharedInEffective is Effective for an entry seen by a recipient. A shared-in
// entry is shared by definition even when its recipient list was not loaded.
func SharedInEffective(e Entry) decimal.Decimal {
	return e.Amount.Abs().Mul(splitFactor)
}

// Totals holds the income/expense summary of a set of entries.
type Totals struct {
	Income   decimal.Decimal
	Expenses decimal.Decimal
	NetWorth decimal.Decimal
}

// ComputeTotals sums the effective amounts of owned and shared-in entries.
// TRANSFER entries are ignored. The date range is the caller's concern.
func ComputeTotals(owned, sharedIn []Entry) Totals {
	income := decimal.Zero
	expenses := decimal.Zero

	add := func(t Type, amount decimal.Decimal) {
		switch t {
		case Income:
			income = income.Add(amount)
		case Expense:
			expenses = expenses.Add(amount)
		}
	}

	for _, e := range owned {
		add(e.Type, Effective(e))
	}
	for _, e := range sharedIn {
		add(e.Type, SharedInEffective(e))
	}

	return Totals{
		Income:   income,
		Expenses: expenses,
		NetWorth: income.Sub(expenses),
	}
}

// Add combines two totals computed over disjoint entry sets.
func (t Totals) Add(o Totals) Totals {
	income := t.Income.Add(o.Income)
	expenses := t.Expenses.Add(o.Expenses)
	return Totals{Income: income, Expenses: expenses, NetWorth: income.Sub(expenses)}
}

// Rounded returns the totals rounded to cents for display. Net worth is
// derived from the rounded parts so the identity still holds exactly.
func (t Totals) Rounded() Totals {
	income := Round2(t.Income)
	expenses := Round2(t.Expenses)
	return Totals{Income: income, Expenses: expenses, NetWorth: income.Sub(expenses)}
}

// CategorySpend maps a category name to the effective expense amount.
// Categories without expenses are absent.
type CategorySpend map[string]decimal.Decimal

// Get returns the spend for category, zero when absent.
func (s CategorySpend) Get(category string) decimal.Decimal {
	if v, ok := s[category]; ok {
		return v
	}
	return decimal.Zero
}

// ComputeCategorySpend accumulates effective EXPENSE amounts per category.
// Callers restrict both slices to the target month by transaction date.
func ComputeCategorySpend(owned, sharedIn []Entry) CategorySpend {
	spend := make(CategorySpend)

	add := func(e Entry, amount decimal.Decimal) {
		if e.Type != Expense || amount.IsZero() {
			return
		}
		spend[e.Category] = spend.Get(e.Category).Add(amount)
	}

	for _, e := range owned {
		add(e, Effective(e))
	}
	for _, e := range sharedIn {
		add(e, SharedInEffective(e))
	}
	return spend
}

// Round2 rounds d to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ToFloat rounds d to cents and converts it for JSON output.
func ToFloat(d decimal.Decimal) float64 {
	return Round2(d).InexactFloat64()
}
