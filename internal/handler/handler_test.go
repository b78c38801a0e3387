package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/daybook/internal/database"
	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/notify"
	"github.com/dukerupert/daybook/internal/reminder"
	"github.com/dukerupert/daybook/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(entity, action, id string, _ map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, entity+"_"+action+":"+id)
}

func (p *recordingPublisher) has(event string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == event {
			return true
		}
	}
	return false
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.Alarm) error { return nil }

type env struct {
	pub          *recordingPublisher
	sched        *reminder.Scheduler
	notes        *store.NoteStore
	schedules    *store.ScheduleStore
	routines     *store.RoutineStore
	transactions *store.TransactionStore
	budgets      *store.BudgetStore
	labels       *store.LabelStore
	prefs        *store.PreferenceStore
	alarms       *store.AlarmStore
	push         *store.PushStore
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := &env{
		pub:          &recordingPublisher{},
		notes:        store.NewNoteStore(db),
		schedules:    store.NewScheduleStore(db),
		routines:     store.NewRoutineStore(db),
		transactions: store.NewTransactionStore(db),
		budgets:      store.NewBudgetStore(db),
		labels:       store.NewLabelStore(db),
		prefs:        store.NewPreferenceStore(db),
		alarms:       store.NewAlarmStore(db),
		push:         store.NewPushStore(db),
	}
	e.sched = reminder.NewScheduler(e.alarms, e.notes, e.schedules, e.routines, nopNotifier{}, reminder.Options{Location: time.UTC})
	return e
}

func do(h http.HandlerFunc, method, target string, body any, pathValues ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		data, _ := json.Marshal(body)
		req = httptest.NewRequest(method, target, bytes.NewReader(data))
	}
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNoteLifecycle(t *testing.T) {
	e := setupEnv(t)
	h := NewNoteHandler(e.notes, e.sched, e.pub, nil)

	at := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	rec := do(h.Create, "POST", "/api/notes", map[string]any{"title": "Groceries", "content": "milk", "reminder_at": at})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	n := decode[model.Note](t, rec)
	assert.Equal(t, "<p>milk</p>", n.HTMLContent)
	assert.True(t, e.pub.has("note_created:"+n.ID))

	pending, err := e.sched.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1, "creating a note with a reminder registers an alarm")

	rec = do(h.TogglePin, "POST", "/", nil, "id", n.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.Note](t, rec).Pinned)

	rec = do(h.Delete, "DELETE", "/api/notes/"+n.ID, nil, "id", n.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	trashed := decode[model.Note](t, rec)
	assert.True(t, trashed.Deleted)
	assert.False(t, trashed.Pinned)

	pending, _ = e.sched.Pending()
	assert.Empty(t, pending, "trashing a note cancels its reminder")

	rec = do(h.List, "GET", "/api/notes?view=trash", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Note](t, rec), 1)

	rec = do(h.Restore, "POST", "/", nil, "id", n.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	pending, _ = e.sched.Pending()
	assert.Len(t, pending, 1, "restoring a note re-registers its reminder")

	do(h.Delete, "DELETE", "/", nil, "id", n.ID)
	rec = do(h.EmptyTrash, "DELETE", "/api/notes/trash", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[map[string]int](t, rec)["deleted"])

	rec = do(h.Get, "GET", "/", nil, "id", n.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoteValidation(t *testing.T) {
	e := setupEnv(t)
	h := NewNoteHandler(e.notes, e.sched, e.pub, nil)

	rec := do(h.Create, "POST", "/api/notes", map[string]any{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest("POST", "/api/notes", bytes.NewReader([]byte("{")))
	rr := httptest.NewRecorder()
	h.Create(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rec = do(h.List, "GET", "/api/notes?view=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoteSearch(t *testing.T) {
	e := setupEnv(t)
	h := NewNoteHandler(e.notes, nil, nil, nil)

	do(h.Create, "POST", "/", map[string]any{"title": "Packing list", "content": "passport"})
	do(h.Create, "POST", "/", map[string]any{"title": "Recipes", "content": "bread"})

	rec := do(h.List, "GET", "/api/notes?q=passport", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]model.Note](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "Packing list", got[0].Title)
}

func TestScheduleHandlers(t *testing.T) {
	e := setupEnv(t)
	h := NewScheduleHandler(e.schedules, e.sched, e.pub, nil)

	rec := do(h.Create, "POST", "/", map[string]any{
		"title": "Standup", "start_time": time.Now().Add(time.Hour), "recurrence_rule": "FREQ=SOMETIMES",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h.Create, "POST", "/", map[string]any{"title": "Offsets", "start_time": time.Now(), "reminder_offsets": []int{-5}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	start := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	rec = do(h.Create, "POST", "/", map[string]any{
		"title": "Standup", "start_time": start, "end_time": start.Add(15 * time.Minute),
		"recurrence_rule": "FREQ=DAILY", "reminder_offsets": []int{10},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	s := decode[model.Schedule](t, rec)
	id := strconv.FormatInt(s.ID, 10)

	pending, _ := e.sched.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, reminder.Key(model.AlarmSchedule, s.ID, 10), pending[0].Key)

	from := start.Add(-time.Minute).Format(time.RFC3339)
	to := start.AddDate(0, 0, 3).Format(time.RFC3339)
	rec = do(h.Occurrences, "GET", "/api/occurrences?start="+from+"&end="+to, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Occurrence](t, rec), 3)

	rec = do(h.Occurrences, "GET", "/api/occurrences?start=2026-01-10&end=2026-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h.Complete, "PUT", "/", map[string]bool{"completed": true}, "id", id)
	require.Equal(t, http.StatusOK, rec.Code)
	pending, _ = e.sched.Pending()
	assert.Empty(t, pending, "completed schedules have no reminders")

	rec = do(h.Delete, "DELETE", "/", nil, "id", id)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, e.pub.has("schedule_deleted:"+id))

	rec = do(h.Get, "GET", "/", nil, "id", id)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(h.Get, "GET", "/", nil, "id", "abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDescribeRule(t *testing.T) {
	h := NewScheduleHandler(nil, nil, nil, nil)

	rec := do(h.DescribeRule, "GET", "/api/recurrence?rule=FREQ%3DWEEKLY%3BBYDAY%3DMO", nil)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, true, got["valid"])
	assert.NotEmpty(t, got["description"])

	rec = do(h.DescribeRule, "GET", "/api/recurrence?rule=nope", nil)
	assert.Equal(t, false, decode[map[string]any](t, rec)["valid"])
}

func TestRoutineProgress(t *testing.T) {
	e := setupEnv(t)
	h := NewRoutineHandler(e.routines, e.sched, e.pub, nil)

	rec := do(h.Create, "POST", "/", map[string]any{"name": "Water", "type": "counter", "target": 4})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rt := decode[model.Routine](t, rec)
	id := strconv.FormatInt(rt.ID, 10)

	rec = do(h.Progress, "PUT", "/", map[string]int{"delta": 3}, "id", id)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[model.RoutineLog](t, rec).Completed)

	rec = do(h.Progress, "PUT", "/", map[string]int{"delta": 1}, "id", id)
	require.Equal(t, http.StatusOK, rec.Code)
	log := decode[model.RoutineLog](t, rec)
	assert.Equal(t, 4, log.Value)
	assert.True(t, log.Completed)

	rec = do(h.List, "GET", "/api/routines", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]map[string]any](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "completed", list[0]["status"])
	assert.EqualValues(t, 100, list[0]["progress"])
	assert.EqualValues(t, 1, list[0]["current_streak"])

	rec = do(h.Progress, "PUT", "/", map[string]int{"delta": 1, "value": 2}, "id", id)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h.Progress, "PUT", "/", map[string]any{"day": "yesterday", "value": 1}, "id", id)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h.Progress, "PUT", "/", map[string]int{"value": 1}, "id", "999")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h.Logs, "GET", "/api/routines/"+id+"/logs", nil, "id", id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.RoutineLog](t, rec), 1)
}

func TestRoutineReminderFollowsArchive(t *testing.T) {
	e := setupEnv(t)
	h := NewRoutineHandler(e.routines, e.sched, e.pub, nil)

	rec := do(h.Create, "POST", "/", map[string]any{"name": "Stretch", "reminder_time": "07:00", "scheduled_days": 3})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := strconv.FormatInt(decode[model.Routine](t, rec).ID, 10)

	pending, _ := e.sched.Pending()
	assert.Len(t, pending, 2)

	rec = do(h.Archive, "POST", "/", nil, "id", id)
	require.Equal(t, http.StatusOK, rec.Code)
	pending, _ = e.sched.Pending()
	assert.Empty(t, pending)

	rec = do(h.Create, "POST", "/", map[string]any{"name": "Bad", "reminder_time": "25:00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransactionsAndBudgets(t *testing.T) {
	e := setupEnv(t)
	h := NewLedgerHandler(e.transactions, e.budgets, e.prefs, e.pub, nil)

	now := time.Now()
	for _, tx := range []map[string]any{
		{"type": "expense", "amount": "12.50", "category": "Food", "occurred_at": now},
		{"type": "expense", "amount": "7.25", "category": "food", "occurred_at": now},
		{"type": "income", "amount": "100", "category": "Salary", "occurred_at": now},
	} {
		rec := do(h.CreateTransaction, "POST", "/", tx)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := do(h.CreateTransaction, "POST", "/", map[string]any{"type": "refund", "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h.ListTransactions, "GET", "/api/transactions?type=expense", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Transaction](t, rec), 2)

	rec = do(h.Summary, "GET", "/api/transactions/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[map[string]string](t, rec)
	assert.Equal(t, "100", sum["income"])
	assert.Equal(t, "19.75", sum["expense"])
	assert.Equal(t, "80.25", sum["balance"])

	rec = do(h.Totals, "GET", "/api/transactions/totals?type=income", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.CategoryTotal](t, rec), 1)

	rec = do(h.CreateBudget, "POST", "/", map[string]any{"category": "Food", "amount": "10"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[model.Budget](t, rec)
	assert.Equal(t, model.Monthly, b.Period)

	rec = do(h.ListBudgets, "GET", "/api/budgets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decode[[]map[string]any](t, rec)
	require.Len(t, progress, 1)
	assert.Equal(t, "19.75", progress[0]["spent"])
	assert.Equal(t, true, progress[0]["over"])

	rec = do(h.CreateBudget, "POST", "/", map[string]any{"category": "Food", "amount": "0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h.CreateTransaction, "POST", "/", map[string]any{"type": "expense", "amount": "3", "note": "Coffee downtown", "occurred_at": now})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Food", decode[model.Transaction](t, rec).Category)

	rec = do(h.DeleteBudget, "DELETE", "/", nil, "id", strconv.FormatInt(b.ID, 10))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLabelErrors(t *testing.T) {
	e := setupEnv(t)
	h := NewLabelHandler(e.labels, e.pub, nil)

	rec := do(h.Create, "POST", "/", map[string]string{"name": "Trips", "type": "note"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(h.Create, "POST", "/", map[string]string{"name": "Trips", "type": "note"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(h.Create, "POST", "/", map[string]string{"name": "Trips", "type": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	presets, err := e.labels.List(model.LabelExpense)
	require.NoError(t, err)
	require.NotEmpty(t, presets)
	rec = do(h.Delete, "DELETE", "/", nil, "id", strconv.FormatInt(presets[0].ID, 10))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ids := []int64{presets[1].ID, presets[0].ID}
	rec = do(h.Reorder, "PUT", "/api/labels/order", map[string][]int64{"ids": ids})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	reordered, _ := e.labels.List(model.LabelExpense)
	assert.Equal(t, presets[1].ID, reordered[0].ID)
}

func TestPreferences(t *testing.T) {
	e := setupEnv(t)
	h := NewPreferenceHandler(e.prefs, e.pub, nil)

	rec := do(h.Update, "PUT", "/", map[string]string{"currency": "EUR", "backup_schedule_hour": "4"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "EUR", decode[map[string]string](t, rec)["currency"])
	assert.True(t, e.pub.has("preference_updated:"))

	rec = do(h.Update, "PUT", "/", map[string]string{"currency": "GBP", "backup_schedule_hour": "24"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	v, _, _ := e.prefs.Get("currency")
	assert.Equal(t, "EUR", v, "nothing is saved when any value is invalid")

	rec = do(h.Group, "GET", "/", nil, "group", "backup")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4", decode[map[string]string](t, rec)["backup_schedule_hour"])

	rec = do(h.Group, "GET", "/", nil, "group", "nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidatePreference(t *testing.T) {
	tests := []struct {
		key, value string
		ok         bool
	}{
		{"theme_mode", "dark", true},
		{"theme_mode", "neon", false},
		{"currency", "usd", false},
		{"first_day_of_week", "Sunday", true},
		{"first_day_of_week", "friday", false},
		{"default_reminder_offset", "15", true},
		{"default_reminder_offset", "-1", false},
		{"backup_enabled", "true", true},
		{"backup_enabled", "yes", false},
		{"backup_retention_days", "0", false},
		{"custom_flag", "anything", true},
		{"Bad Key", "x", false},
	}
	for _, tt := range tests {
		err := validatePreference(tt.key, tt.value)
		if tt.ok {
			assert.NoError(t, err, "%s=%s", tt.key, tt.value)
		} else {
			assert.Error(t, err, "%s=%s", tt.key, tt.value)
		}
	}
}

func TestReminderHandler(t *testing.T) {
	e := setupEnv(t)
	h := NewReminderHandler(e.sched, e.pub, nil)

	at := time.Now().Add(time.Hour)
	_, err := e.notes.Create(model.NoteInput{Title: "Later", ReminderAt: &at})
	require.NoError(t, err)

	rec := do(h.Reschedule, "POST", "/api/reminders/reschedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[map[string]int](t, rec)["registered"])

	rec = do(h.Pending, "GET", "/api/reminders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Alarm](t, rec), 1)
}

func TestPushHandlers(t *testing.T) {
	e := setupEnv(t)
	h := NewPushHandler(e.push, notify.NewWebPush(e.push, "", "", "", nil), nil)

	rec := do(h.Subscribe, "POST", "/api/push/subscribe", map[string]string{"endpoint": "https://push.example/1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sub := map[string]string{"endpoint": "https://push.example/1", "p256dh": "k1", "auth": "a1", "device_name": "laptop"}
	rec = do(h.Subscribe, "POST", "/api/push/subscribe", sub)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[model.PushSubscription](t, rec)

	sub["p256dh"] = "k2"
	rec = do(h.Subscribe, "POST", "/api/push/subscribe", sub)
	require.Equal(t, http.StatusCreated, rec.Code)
	again := decode[model.PushSubscription](t, rec)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "k2", again.P256dhKey)

	rec = do(h.ListSubscriptions, "GET", "/api/push/subscriptions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.PushSubscription](t, rec), 1)

	rec = do(h.TestNotification, "POST", "/api/push/test", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(h.GetVAPIDKey, "GET", "/api/push/vapid-key", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", decode[map[string]string](t, rec)["public_key"])

	rec = do(h.Unsubscribe, "DELETE", "/", nil, "id", strconv.FormatInt(first.ID, 10))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	subs, err := e.push.List()
	require.NoError(t, err)
	assert.Empty(t, subs)
}
