package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/shopspring/decimal"
)

type BudgetStore struct {
	db *sql.DB
}

func NewBudgetStore(db *sql.DB) *BudgetStore {
	return &BudgetStore{db: db}
}

const budgetCols = `id, category, amount, period, created_at, updated_at`

func scanBudget(s scanner) (*model.Budget, error) {
	var b model.Budget
	var amount string
	if err := s.Scan(&b.ID, &b.Category, &amount, &b.Period, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	b.Amount = d
	return &b, nil
}

func validateBudget(category string, amount decimal.Decimal, period model.BudgetPeriod) error {
	switch period {
	case model.Weekly, model.Monthly, model.Yearly:
	default:
		return invalidf("invalid budget period %q", period)
	}
	if strings.TrimSpace(category) == "" {
		return invalidf("category is required")
	}
	if !amount.IsPositive() {
		return invalidf("amount must be positive")
	}
	return nil
}

func (s *BudgetStore) Create(category string, amount decimal.Decimal, period model.BudgetPeriod) (*model.Budget, error) {
	if err := validateBudget(category, amount, period); err != nil {
		return nil, err
	}
	ts := now()

	result, err := s.db.Exec(
		`INSERT INTO budgets (category, amount, period, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(category), amount.String(), period, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert budget: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *BudgetStore) GetByID(id int64) (*model.Budget, error) {
	row := s.db.QueryRow(`SELECT `+budgetCols+` FROM budgets WHERE id = ?`, id)
	b, err := scanBudget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

func (s *BudgetStore) List() ([]model.Budget, error) {
	rows, err := s.db.Query(`SELECT ` + budgetCols + ` FROM budgets ORDER BY category COLLATE NOCASE ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []model.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *BudgetStore) Update(id int64, category string, amount decimal.Decimal, period model.BudgetPeriod) (*model.Budget, error) {
	if err := validateBudget(category, amount, period); err != nil {
		return nil, err
	}

	_, err := s.db.Exec(
		`UPDATE budgets SET category = ?, amount = ?, period = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(category), amount.String(), period, now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update budget: %w", err)
	}
	return s.GetByID(id)
}

func (s *BudgetStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	return nil
}

func (s *BudgetStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM budgets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count budgets: %w", err)
	}
	return n, nil
}
