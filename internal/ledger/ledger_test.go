package ledger

import (
	"testing"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPeriodBounds(t *testing.T) {
	// Thursday 2026-03-12 15:00.
	now := time.Date(2026, 3, 12, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		period    model.BudgetPeriod
		weekStart time.Weekday
		start     time.Time
		end       time.Time
	}{
		{model.Weekly, time.Monday, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)},
		{model.Weekly, time.Sunday, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
		{model.Weekly, time.Thursday, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 19, 0, 0, 0, 0, time.UTC)},
		{model.Monthly, time.Monday, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{model.Yearly, time.Monday, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		start, end := PeriodBounds(tt.period, now, tt.weekStart)
		assert.True(t, start.Equal(tt.start), "%s/%s start = %v, want %v", tt.period, tt.weekStart, start, tt.start)
		assert.True(t, end.Equal(tt.end), "%s/%s end = %v, want %v", tt.period, tt.weekStart, end, tt.end)
	}
}

func TestParseWeekStart(t *testing.T) {
	assert.Equal(t, time.Sunday, ParseWeekStart("Sunday"))
	assert.Equal(t, time.Saturday, ParseWeekStart("saturday"))
	assert.Equal(t, time.Monday, ParseWeekStart("monday"))
	assert.Equal(t, time.Monday, ParseWeekStart(""))
}

func TestSummarize(t *testing.T) {
	txs := []model.Transaction{
		{Type: model.Income, Amount: d("2500")},
		{Type: model.Expense, Amount: d("19.99")},
		{Type: model.Expense, Amount: d("0.01")},
	}
	s := Summarize(txs)
	assert.True(t, s.Income.Equal(d("2500")))
	assert.True(t, s.Expense.Equal(d("20")))
	assert.True(t, s.Balance.Equal(d("2480")))
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 12, 15, 0, 0, 0, time.UTC)
	b := model.Budget{Category: "Food", Amount: d("200"), Period: model.Monthly}

	txs := []model.Transaction{
		{Type: model.Expense, Category: "food", Amount: d("50"), OccurredAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{Type: model.Expense, Category: "Food", Amount: d("100"), OccurredAt: time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)},
		{Type: model.Expense, Category: "Food", Amount: d("999"), OccurredAt: time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC)},
		{Type: model.Expense, Category: "Transport", Amount: d("30"), OccurredAt: now},
		{Type: model.Income, Category: "Food", Amount: d("500"), OccurredAt: now},
	}

	p := Evaluate(b, txs, now, time.Monday)
	assert.True(t, p.Spent.Equal(d("150")), "spent = %s", p.Spent)
	assert.True(t, p.Remaining.Equal(d("50")), "remaining = %s", p.Remaining)
	assert.True(t, p.Percent.Equal(d("75")), "percent = %s", p.Percent)
	assert.False(t, p.Over)

	b.Amount = d("120")
	p = Evaluate(b, txs, now, time.Monday)
	assert.True(t, p.Over)
	assert.True(t, p.Remaining.IsNegative())
}

func TestWindow(t *testing.T) {
	now := time.Date(2026, 3, 12, 15, 0, 0, 0, time.UTC)
	budgets := []model.Budget{
		{Period: model.Weekly},
		{Period: model.Monthly},
	}
	from, to := Window(budgets, now, time.Monday)
	assert.True(t, from.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, to.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))

	progress := EvaluateAll(budgets, nil, now, time.Monday)
	assert.Len(t, progress, 2)
}
