package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/shopspring/decimal"
)

// TransactionFilter narrows a transaction listing. Zero fields match all.
type TransactionFilter struct {
	Type     model.TransactionType
	Category string
	From     time.Time // inclusive
	To       time.Time // exclusive
}

type TransactionStore struct {
	db *sql.DB
}

func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

const transactionCols = `id, type, amount, category, note, occurred_at, created_at, updated_at`

func scanTransaction(s scanner) (*model.Transaction, error) {
	var tx model.Transaction
	var amount string
	if err := s.Scan(&tx.ID, &tx.Type, &amount, &tx.Category, &tx.Note, &tx.OccurredAt, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	tx.Amount = d
	tx.OccurredAt = tx.OccurredAt.UTC()
	return &tx, nil
}

func validateTransaction(in model.TransactionInput) (model.TransactionInput, error) {
	if in.Type != model.Expense && in.Type != model.Income {
		return in, invalidf("invalid transaction type %q", in.Type)
	}
	if in.Amount.IsNegative() {
		return in, invalidf("amount must not be negative")
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now()
	}
	in.Category = strings.TrimSpace(in.Category)
	return in, nil
}

func (s *TransactionStore) Create(in model.TransactionInput) (*model.Transaction, error) {
	in, err := validateTransaction(in)
	if err != nil {
		return nil, err
	}
	ts := now()

	result, err := s.db.Exec(
		`INSERT INTO transactions (type, amount, category, note, occurred_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.Type, in.Amount.String(), in.Category, in.Note, dbTime(in.OccurredAt), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TransactionStore) GetByID(id int64) (*model.Transaction, error) {
	row := s.db.QueryRow(`SELECT `+transactionCols+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// List returns matching transactions, newest first.
func (s *TransactionStore) List(f TransactionFilter) ([]model.Transaction, error) {
	var where []string
	var args []any
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if !f.From.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, dbTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "occurred_at < ?")
		args = append(args, dbTime(f.To))
	}

	q := `SELECT ` + transactionCols + ` FROM transactions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY occurred_at DESC, id DESC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

func (s *TransactionStore) ListAll() ([]model.Transaction, error) {
	return s.List(TransactionFilter{})
}

// Totals groups matching transactions by type and category. Amounts are
// summed in Go so that decimal precision is kept.
func (s *TransactionStore) Totals(f TransactionFilter) ([]model.CategoryTotal, error) {
	txs, err := s.List(f)
	if err != nil {
		return nil, err
	}

	type key struct {
		typ model.TransactionType
		cat string
	}
	sums := make(map[key]*model.CategoryTotal)
	for _, tx := range txs {
		k := key{tx.Type, tx.Category}
		ct, ok := sums[k]
		if !ok {
			ct = &model.CategoryTotal{Type: tx.Type, Category: tx.Category, Total: decimal.Zero}
			sums[k] = ct
		}
		ct.Total = ct.Total.Add(tx.Amount)
		ct.Count++
	}

	out := make([]model.CategoryTotal, 0, len(sums))
	for _, ct := range sums {
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		if !out[i].Total.Equal(out[j].Total) {
			return out[i].Total.GreaterThan(out[j].Total)
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// Sum totals matching transactions.
func (s *TransactionStore) Sum(f TransactionFilter) (decimal.Decimal, error) {
	txs, err := s.List(f)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total, nil
}

func (s *TransactionStore) Update(id int64, in model.TransactionInput) (*model.Transaction, error) {
	in, err := validateTransaction(in)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(
		`UPDATE transactions SET type = ?, amount = ?, category = ?, note = ?, occurred_at = ?, updated_at = ?
		 WHERE id = ?`,
		in.Type, in.Amount.String(), in.Category, in.Note, dbTime(in.OccurredAt), now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	return s.GetByID(id)
}

func (s *TransactionStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

func (s *TransactionStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}
