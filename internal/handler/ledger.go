package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/daybook/internal/ledger"
	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/store"
	"github.com/shopspring/decimal"
)

// LedgerHandler serves transactions and budgets.
type LedgerHandler struct {
	base
	transactions *store.TransactionStore
	budgets      *store.BudgetStore
	prefs        *store.PreferenceStore
}

func NewLedgerHandler(ts *store.TransactionStore, bs *store.BudgetStore, ps *store.PreferenceStore, pub Publisher, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{base: newBase(pub, nil, logger), transactions: ts, budgets: bs, prefs: ps}
}

func (h *LedgerHandler) filter(q url.Values) (store.TransactionFilter, string) {
	f := store.TransactionFilter{
		Type:     model.TransactionType(q.Get("type")),
		Category: strings.TrimSpace(q.Get("category")),
	}
	if f.Type != "" && f.Type != model.Expense && f.Type != model.Income {
		return f, "type must be expense or income"
	}
	if v := q.Get("from"); v != "" {
		t, err := parseDate(v, h.loc)
		if err != nil {
			return f, "invalid from"
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseDate(v, h.loc)
		if err != nil {
			return f, "invalid to"
		}
		f.To = t
	}
	return f, ""
}

// CreateTransaction handles POST /api/transactions. A missing category is
// filled in from the note when a keyword matches.
func (h *LedgerHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in model.TransactionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Category) == "" {
		in.Category = ledger.SuggestCategory(in.Type, in.Note)
	}
	tx, err := h.transactions.Create(in)
	if err != nil {
		h.fail(w, "create transaction", err)
		return
	}
	h.broadcast("transaction", "created", strconv.FormatInt(tx.ID, 10))
	writeJSON(w, http.StatusCreated, tx)
}

// ListTransactions handles GET /api/transactions?type=&category=&from=&to=
func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	f, msg := h.filter(r.URL.Query())
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	txs, err := h.transactions.List(f)
	if err != nil {
		h.fail(w, "list transactions", err)
		return
	}
	writeList(w, txs)
}

func (h *LedgerHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	tx, err := h.transactions.GetByID(id)
	if err != nil {
		h.fail(w, "get transaction", err)
		return
	}
	if tx == nil {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *LedgerHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var in model.TransactionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	tx, err := h.transactions.Update(id, in)
	if err != nil {
		h.fail(w, "update transaction", err)
		return
	}
	if tx == nil {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	h.broadcast("transaction", "updated", strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusOK, tx)
}

func (h *LedgerHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.transactions.Delete(id); err != nil {
		h.fail(w, "delete transaction", err)
		return
	}
	h.broadcast("transaction", "deleted", strconv.FormatInt(id, 10))
	w.WriteHeader(http.StatusNoContent)
}

// Totals handles GET /api/transactions/totals, grouping by category.
func (h *LedgerHandler) Totals(w http.ResponseWriter, r *http.Request) {
	f, msg := h.filter(r.URL.Query())
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	totals, err := h.transactions.Totals(f)
	if err != nil {
		h.fail(w, "total transactions", err)
		return
	}
	writeList(w, totals)
}

// Summary handles GET /api/transactions/summary: income, expense and
// balance over the filtered range.
func (h *LedgerHandler) Summary(w http.ResponseWriter, r *http.Request) {
	f, msg := h.filter(r.URL.Query())
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	f.Type = ""
	txs, err := h.transactions.List(f)
	if err != nil {
		h.fail(w, "summarize transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, ledger.Summarize(txs))
}

type budgetRequest struct {
	Category string             `json:"category"`
	Amount   decimal.Decimal    `json:"amount"`
	Period   model.BudgetPeriod `json:"period"`
}

func (h *LedgerHandler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Period == "" {
		req.Period = model.Monthly
	}
	b, err := h.budgets.Create(strings.TrimSpace(req.Category), req.Amount, req.Period)
	if err != nil {
		h.fail(w, "create budget", err)
		return
	}
	h.broadcast("budget", "created", strconv.FormatInt(b.ID, 10))
	writeJSON(w, http.StatusCreated, b)
}

// ListBudgets handles GET /api/budgets, returning each budget with its
// spending in the current period.
func (h *LedgerHandler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := h.budgets.List()
	if err != nil {
		h.fail(w, "list budgets", err)
		return
	}
	if len(budgets) == 0 {
		writeJSON(w, http.StatusOK, []ledger.Progress{})
		return
	}

	weekStart := time.Monday
	if v, ok, err := h.prefs.Get("first_day_of_week"); err == nil && ok {
		weekStart = ledger.ParseWeekStart(v)
	}
	now := h.today()
	from, to := ledger.Window(budgets, now, weekStart)

	txs, err := h.transactions.List(store.TransactionFilter{Type: model.Expense, From: from, To: to})
	if err != nil {
		h.fail(w, "list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, ledger.EvaluateAll(budgets, txs, now, weekStart))
}

func (h *LedgerHandler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req budgetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.budgets.Update(id, strings.TrimSpace(req.Category), req.Amount, req.Period)
	if err != nil {
		h.fail(w, "update budget", err)
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "budget not found")
		return
	}
	h.broadcast("budget", "updated", strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusOK, b)
}

func (h *LedgerHandler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.budgets.Delete(id); err != nil {
		h.fail(w, "delete budget", err)
		return
	}
	h.broadcast("budget", "deleted", strconv.FormatInt(id, 10))
	w.WriteHeader(http.StatusNoContent)
}
