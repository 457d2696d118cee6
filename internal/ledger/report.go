package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryShare is one row of the expense breakdown.
type CategoryShare struct {
	Name    string
	Amount  decimal.Decimal
	Percent int64
}

// MonthFlow is the income and expense of one calendar month.
type MonthFlow struct {
	Month    string
	Income   decimal.Decimal
	Expenses decimal.Decimal
}

// Report is the reports-view aggregation.
type Report struct {
	Totals      Totals
	SavingsRate int64
	Categories  []CategoryShare
	Months      []MonthFlow
}

// BuildReport aggregates owned and shared-in entries with the same split rule
// as ComputeTotals. Months keeps at most the last maxMonths months that have
// activity; maxMonths <= 0 keeps all of them.
func BuildReport(owned, sharedIn []Entry, maxMonths int) Report {
	totals := ComputeTotals(owned, sharedIn)
	spend := ComputeCategorySpend(owned, sharedIn)

	categories := make([]CategoryShare, 0, len(spend))
	for name, amount := range spend {
		categories = append(categories, CategoryShare{
			Name:    name,
			Amount:  amount,
			Percent: percentOf(amount, totals.Expenses),
		})
	}
	sort.Slice(categories, func(i, j int) bool {
		if c := categories[i].Amount.Cmp(categories[j].Amount); c != 0 {
			return c > 0
		}
		return categories[i].Name < categories[j].Name
	})

	flows := make(map[string]*MonthFlow)
	track := func(e Entry, amount decimal.Decimal) {
		if e.Type != Income && e.Type != Expense {
			return
		}
		key := MonthKey(e.Date)
		f, ok := flows[key]
		if !ok {
			f = &MonthFlow{Month: key, Income: decimal.Zero, Expenses: decimal.Zero}
			flows[key] = f
		}
		if e.Type == Income {
			f.Income = f.Income.Add(amount)
		} else {
			f.Expenses = f.Expenses.Add(amount)
		}
	}
	for _, e := range owned {
		track(e, Effective(e))
	}
	for _, e := range sharedIn {
		track(e, SharedInEffective(e))
	}

	keys := make([]string, 0, len(flows))
	for k := range flows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if maxMonths > 0 && len(keys) > maxMonths {
		keys = keys[len(keys)-maxMonths:]
	}
	months := make([]MonthFlow, 0, len(keys))
	for _, k := range keys {
		months = append(months, *flows[k])
	}

	return Report{
		Totals:      totals,
		SavingsRate: percentOf(totals.NetWorth, totals.Income),
		Categories:  categories,
		Months:      months,
	}
}
