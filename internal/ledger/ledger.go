// Package ledger computes budget periods, spending progress and
// income/expense summaries from stored transactions.
package ledger

import (
	"strings"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Summary is the income and expense balance over a range.
type Summary struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
}

// Progress is a budget evaluated against the current period's spending.
type Progress struct {
	model.Budget
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Spent       decimal.Decimal `json:"spent"`
	Remaining   decimal.Decimal `json:"remaining"`
	Percent     decimal.Decimal `json:"percent"`
	Over        bool            `json:"over"`
}

// ParseWeekStart maps the first_day_of_week preference to a weekday.
// Anything other than "sunday" or "saturday" starts weeks on Monday.
func ParseWeekStart(s string) time.Weekday {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday":
		return time.Sunday
	case "saturday":
		return time.Saturday
	}
	return time.Monday
}

// PeriodBounds returns the [start, end) range of the period containing t,
// in t's location.
func PeriodBounds(p model.BudgetPeriod, t time.Time, weekStart time.Weekday) (time.Time, time.Time) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch p {
	case model.Weekly:
		back := (int(day.Weekday()) - int(weekStart) + 7) % 7
		start := day.AddDate(0, 0, -back)
		return start, start.AddDate(0, 0, 7)
	case model.Yearly:
		start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
		return start, start.AddDate(1, 0, 0)
	default:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		return start, start.AddDate(0, 1, 0)
	}
}

// Summarize totals income and expenses.
func Summarize(txs []model.Transaction) Summary {
	s := Summary{Income: decimal.Zero, Expense: decimal.Zero}
	for _, tx := range txs {
		switch tx.Type {
		case model.Income:
			s.Income = s.Income.Add(tx.Amount)
		case model.Expense:
			s.Expense = s.Expense.Add(tx.Amount)
		}
	}
	s.Balance = s.Income.Sub(s.Expense)
	return s
}

// Evaluate computes the progress of b at time now. Expenses count toward a
// budget when their category matches its category by name, ignoring case.
func Evaluate(b model.Budget, txs []model.Transaction, now time.Time, weekStart time.Weekday) Progress {
	start, end := PeriodBounds(b.Period, now, weekStart)
	spent := decimal.Zero
	for _, tx := range txs {
		if tx.Type != model.Expense || !strings.EqualFold(tx.Category, b.Category) {
			continue
		}
		at := tx.OccurredAt.In(now.Location())
		if at.Before(start) || !at.Before(end) {
			continue
		}
		spent = spent.Add(tx.Amount)
	}

	p := Progress{
		Budget:      b,
		PeriodStart: start,
		PeriodEnd:   end,
		Spent:       spent,
		Remaining:   b.Amount.Sub(spent),
		Percent:     decimal.Zero,
	}
	if b.Amount.IsPositive() {
		p.Percent = spent.Mul(hundred).Div(b.Amount).Round(1)
	}
	p.Over = spent.GreaterThan(b.Amount)
	return p
}

// EvaluateAll evaluates every budget against the same transactions.
func EvaluateAll(budgets []model.Budget, txs []model.Transaction, now time.Time, weekStart time.Weekday) []Progress {
	out := make([]Progress, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, Evaluate(b, txs, now, weekStart))
	}
	return out
}

// Window returns the widest range covering the current period of every
// budget, so a single query can feed EvaluateAll.
func Window(budgets []model.Budget, now time.Time, weekStart time.Weekday) (time.Time, time.Time) {
	var from, to time.Time
	for i, b := range budgets {
		s, e := PeriodBounds(b.Period, now, weekStart)
		if i == 0 || s.Before(from) {
			from = s
		}
		if i == 0 || e.After(to) {
			to = e
		}
	}
	return from, to
}
