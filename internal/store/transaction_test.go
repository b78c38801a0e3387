package store

import (
	"testing"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/shopspring/decimal"
)

func TestTransactionCRUD(t *testing.T) {
	ts := NewTransactionStore(setupTestDB(t))

	when := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	tx, err := ts.Create(model.TransactionInput{
		Type:       model.Expense,
		Amount:     decimal.RequireFromString("12.34"),
		Category:   " Food ",
		Note:       "lunch",
		OccurredAt: when,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("12.34")) {
		t.Errorf("amount = %s, want 12.34", tx.Amount)
	}
	if tx.Category != "Food" {
		t.Errorf("category = %q, want %q", tx.Category, "Food")
	}
	if !tx.OccurredAt.Equal(when) {
		t.Errorf("occurred_at = %v, want %v", tx.OccurredAt, when)
	}

	updated, err := ts.Update(tx.ID, model.TransactionInput{
		Type:       model.Expense,
		Amount:     decimal.RequireFromString("15"),
		Category:   "Food",
		OccurredAt: when,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Amount.Equal(decimal.NewFromInt(15)) {
		t.Errorf("amount = %s, want 15", updated.Amount)
	}

	if err := ts.Delete(tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := ts.GetByID(tx.ID); got != nil {
		t.Error("expected nil after delete")
	}
}

func TestTransactionValidation(t *testing.T) {
	ts := NewTransactionStore(setupTestDB(t))

	if _, err := ts.Create(model.TransactionInput{Type: "refund", Amount: decimal.NewFromInt(1)}); err == nil {
		t.Error("expected error for invalid type")
	}
	if _, err := ts.Create(model.TransactionInput{Type: model.Income, Amount: decimal.NewFromInt(-1)}); err == nil {
		t.Error("expected error for negative amount")
	}
}

func TestTransactionTotals(t *testing.T) {
	ts := NewTransactionStore(setupTestDB(t))

	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	add := func(typ model.TransactionType, amount, cat string, day int) {
		t.Helper()
		_, err := ts.Create(model.TransactionInput{
			Type: typ, Amount: decimal.RequireFromString(amount), Category: cat,
			OccurredAt: march.AddDate(0, 0, day),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	add(model.Expense, "0.10", "Food", 1)
	add(model.Expense, "0.20", "Food", 2)
	add(model.Expense, "40", "Transport", 3)
	add(model.Income, "1000", "Salary", 4)
	add(model.Expense, "99", "Food", 40)

	f := TransactionFilter{From: march, To: march.AddDate(0, 1, 0)}
	totals, err := ts.Totals(f)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if len(totals) != 3 {
		t.Fatalf("totals = %d groups, want 3", len(totals))
	}
	if totals[0].Category != "Transport" || totals[1].Category != "Food" {
		t.Errorf("order = %q, %q; want Transport, Food", totals[0].Category, totals[1].Category)
	}
	if !totals[1].Total.Equal(decimal.RequireFromString("0.3")) || totals[1].Count != 2 {
		t.Errorf("food = %s x%d, want 0.3 x2", totals[1].Total, totals[1].Count)
	}

	f.Type = model.Expense
	sum, err := ts.Sum(f)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if !sum.Equal(decimal.RequireFromString("40.3")) {
		t.Errorf("sum = %s, want 40.3", sum)
	}

	food, _ := ts.List(TransactionFilter{Category: "Food"})
	if len(food) != 3 {
		t.Errorf("food = %d, want 3", len(food))
	}
	if food[0].OccurredAt.Before(food[1].OccurredAt) {
		t.Error("expected newest first")
	}
}

func TestBudgetCRUD(t *testing.T) {
	bs := NewBudgetStore(setupTestDB(t))

	b, err := bs.Create("Food", decimal.NewFromInt(300), model.Monthly)
	if err != nil {
		t.Fatalf("create budget: %v", err)
	}
	if b.Period != model.Monthly || !b.Amount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("budget = %s %s", b.Period, b.Amount)
	}

	if _, err := bs.Create("Food", decimal.NewFromInt(10), "daily"); err == nil {
		t.Error("expected error for invalid period")
	}
	if _, err := bs.Create("Food", decimal.Zero, model.Weekly); err == nil {
		t.Error("expected error for zero amount")
	}

	updated, err := bs.Update(b.ID, "Groceries", decimal.NewFromInt(80), model.Weekly)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Category != "Groceries" || updated.Period != model.Weekly {
		t.Errorf("updated = %q %s", updated.Category, updated.Period)
	}

	list, _ := bs.List()
	if len(list) != 1 {
		t.Errorf("list = %d, want 1", len(list))
	}

	if err := bs.Delete(b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := bs.Count(); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}
