// Package report computes time-windowed aggregates over a transaction
// set that has already been fetched for a window. Everything here is a
// pure function: no storage access, no failure modes on well-formed
// input. Numeric coercion is the store adapter's job; by the time data
// reaches this layer amounts are signed cents.
package report

import (
	"sort"

	"bilancio/internal/core"
)

// Summary is the income/expense/net breakdown of a window.
// Expense stays negative; Net == Income + Expense always holds.
type Summary struct {
	Income  core.Money
	Expense core.Money
	Net     core.Money
}

// CategoryTotal is the absolute expense total of one category.
type CategoryTotal struct {
	Name  string
	Total core.Money
}

// DayTotal is the net amount of one calendar day.
type DayTotal struct {
	Date core.Date
	Net  core.Money
}

// Utilization is the spent-vs-limit state of one budgeted category.
// Ratio is clamped to [0, 1] even when spending exceeds the limit.
type Utilization struct {
	Category string
	Spent    core.Money
	Limit    core.Money
	Ratio    float64
}

// Totals sums the window: income over positive amounts, expense over
// negative ones (kept negative).
func Totals(txs []core.Transaction) Summary {
	var s Summary
	for _, t := range txs {
		if t.Amount.Cents > 0 {
			s.Income = s.Income.Add(t.Amount)
		} else {
			s.Expense = s.Expense.Add(t.Amount)
		}
	}
	s.Net = s.Income.Add(s.Expense)
	return s
}

// ByCategory totals absolute expense per category name, largest first
// with a name tiebreak. Income rows are excluded; rows without a
// category fall under core.Uncategorized.
func ByCategory(txs []core.Transaction) []CategoryTotal {
	sums := map[string]int64{}
	for _, t := range txs {
		if t.Amount.Cents >= 0 {
			continue
		}
		name := t.CategoryName
		if name == "" {
			name = core.Uncategorized
		}
		sums[name] += -t.Amount.Cents
	}

	out := make([]CategoryTotal, 0, len(sums))
	for name, cents := range sums {
		out = append(out, CategoryTotal{Name: name, Total: core.Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total.Cents != out[j].Total.Cents {
			return out[i].Total.Cents > out[j].Total.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ByDay nets amounts per distinct date present, ascending by date.
func ByDay(txs []core.Transaction) []DayTotal {
	sums := map[string]int64{}
	dates := map[string]core.Date{}
	for _, t := range txs {
		key := t.Date.String()
		sums[key] += t.Amount.Cents
		dates[key] = t.Date
	}

	out := make([]DayTotal, 0, len(sums))
	for key, cents := range sums {
		out = append(out, DayTotal{Date: dates[key], Net: core.Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}

// BudgetUtilization reports spent-vs-limit per budgeted category for
// the month the transactions were fetched for. Categories without a
// budget are absent from the result, not reported as zero. Budgets are
// matched by category id when the transaction carries one, falling
// back to the joined name.
func BudgetUtilization(monthTxs []core.Transaction, budgets []core.Budget) []Utilization {
	spentByCategory := map[string]int64{} // category id -> cents
	spentByName := map[string]int64{}
	for _, t := range monthTxs {
		if t.Amount.Cents >= 0 {
			continue
		}
		if t.CategoryID != "" {
			spentByCategory[t.CategoryID] += -t.Amount.Cents
		} else if t.CategoryName != "" {
			spentByName[t.CategoryName] += -t.Amount.Cents
		}
	}

	out := make([]Utilization, 0, len(budgets))
	for _, b := range budgets {
		spent := spentByCategory[b.CategoryID] + spentByName[b.CategoryName]
		ratio := 0.0
		if b.Limit.Cents > 0 {
			ratio = float64(spent) / float64(b.Limit.Cents)
			if ratio > 1.0 {
				ratio = 1.0
			}
		}
		out = append(out, Utilization{
			Category: b.CategoryName,
			Spent:    core.Money{Cents: spent},
			Limit:    b.Limit,
			Ratio:    ratio,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
