package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/daybook/internal/backup"
	"github.com/dukerupert/daybook/internal/handler"
	"github.com/dukerupert/daybook/internal/middleware"
	"github.com/dukerupert/daybook/internal/notify"
	"github.com/dukerupert/daybook/internal/reminder"
	"github.com/dukerupert/daybook/internal/store"
	ws "github.com/dukerupert/daybook/internal/websocket"
)

// Options configures the pieces the server wires together.
type Options struct {
	Backup    backup.Config
	Reminders reminder.Options
	WebPush   WebPushConfig
	// Notifiers receive fired reminders in addition to the log, the change
	// feed and web push.
	Notifiers      []notify.Notifier
	AllowedOrigins []string
}

type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	scheduler   *reminder.Scheduler
	backupSvc   *backup.Service
	backupMgr   *backup.Manager
	webpush     *notify.WebPush
	rateLimiter *middleware.RateLimiter
	origins     []string
	logger      *slog.Logger

	noteH       *handler.NoteHandler
	scheduleH   *handler.ScheduleHandler
	routineH    *handler.RoutineHandler
	ledgerH     *handler.LedgerHandler
	labelH      *handler.LabelHandler
	preferenceH *handler.PreferenceHandler
	reminderH   *handler.ReminderHandler
	backupH     *handler.BackupHandler
	pushH       *handler.PushHandler
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger)

	noteStore := store.NewNoteStore(db)
	scheduleStore := store.NewScheduleStore(db)
	routineStore := store.NewRoutineStore(db)
	transactionStore := store.NewTransactionStore(db)
	budgetStore := store.NewBudgetStore(db)
	labelStore := store.NewLabelStore(db)
	prefStore := store.NewPreferenceStore(db)
	alarmStore := store.NewAlarmStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	webpush := notify.NewWebPush(pushStore, opts.WebPush.PublicKey, opts.WebPush.PrivateKey, opts.WebPush.Subscriber, logger)

	// Web push is only a sink when keys are configured, so that a missing
	// key pair does not veto exact scheduling for the other sinks.
	sinks := notify.Multi{notify.NewLog(logger), notify.NewHub(hub)}
	if webpush.CheckPermission(context.Background()) == nil {
		sinks = append(sinks, webpush)
	}
	sinks = append(sinks, opts.Notifiers...)

	ropts := opts.Reminders
	ropts.Logger = logger
	scheduler := reminder.NewScheduler(alarmStore, noteStore, scheduleStore, routineStore, sinks, ropts)

	backupSvc := backup.NewService(backup.Stores{
		Notes:        noteStore,
		Schedules:    scheduleStore,
		Routines:     routineStore,
		Transactions: transactionStore,
		Budgets:      budgetStore,
		Labels:       labelStore,
		Preferences:  prefStore,
	}, scheduler, logger)
	backupMgr := backup.NewManager(opts.Backup, backupSvc, backupStore, prefStore, hub, logger)

	return &Server{
		db:          db,
		hub:         hub,
		scheduler:   scheduler,
		backupSvc:   backupSvc,
		backupMgr:   backupMgr,
		webpush:     webpush,
		rateLimiter: middleware.NewRateLimiter(),
		origins:     opts.AllowedOrigins,
		logger:      logger,

		noteH:       handler.NewNoteHandler(noteStore, scheduler, hub, logger.With("component", "note")),
		scheduleH:   handler.NewScheduleHandler(scheduleStore, scheduler, hub, logger.With("component", "schedule")),
		routineH:    handler.NewRoutineHandler(routineStore, scheduler, hub, logger.With("component", "routine")),
		ledgerH:     handler.NewLedgerHandler(transactionStore, budgetStore, prefStore, hub, logger.With("component", "ledger")),
		labelH:      handler.NewLabelHandler(labelStore, hub, logger.With("component", "label")),
		preferenceH: handler.NewPreferenceHandler(prefStore, hub, logger.With("component", "preference")),
		reminderH:   handler.NewReminderHandler(scheduler, hub, logger.With("component", "reminder_handler")),
		backupH:     handler.NewBackupHandler(backupMgr, logger.With("component", "backup_handler")),
		pushH:       handler.NewPushHandler(pushStore, webpush, logger.With("component", "push_handler")),
	}
}

// Hub returns the change feed hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Scheduler returns the reminder scheduler.
func (s *Server) Scheduler() *reminder.Scheduler {
	return s.scheduler
}

// BackupService returns the snapshot service.
func (s *Server) BackupService() *backup.Service {
	return s.backupSvc
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupMgr
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.origins))

	// Notes
	mux.HandleFunc("POST /api/notes", s.noteH.Create)
	mux.HandleFunc("GET /api/notes", s.noteH.List)
	mux.HandleFunc("DELETE /api/notes/trash", s.noteH.EmptyTrash)
	mux.HandleFunc("GET /api/notes/{id}", s.noteH.Get)
	mux.HandleFunc("PUT /api/notes/{id}", s.noteH.Update)
	mux.HandleFunc("DELETE /api/notes/{id}", s.noteH.Delete)
	mux.HandleFunc("POST /api/notes/{id}/pin", s.noteH.TogglePin)
	mux.HandleFunc("POST /api/notes/{id}/archive", s.noteH.Archive)
	mux.HandleFunc("POST /api/notes/{id}/unarchive", s.noteH.Unarchive)
	mux.HandleFunc("POST /api/notes/{id}/restore", s.noteH.Restore)

	// Schedules
	mux.HandleFunc("POST /api/schedules", s.scheduleH.Create)
	mux.HandleFunc("GET /api/schedules", s.scheduleH.List)
	mux.HandleFunc("GET /api/schedules/{id}", s.scheduleH.Get)
	mux.HandleFunc("PUT /api/schedules/{id}", s.scheduleH.Update)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.scheduleH.Delete)
	mux.HandleFunc("PUT /api/schedules/{id}/completed", s.scheduleH.Complete)
	mux.HandleFunc("GET /api/occurrences", s.scheduleH.Occurrences)
	mux.HandleFunc("GET /api/recurrence", s.scheduleH.DescribeRule)

	// Routines
	mux.HandleFunc("POST /api/routines", s.routineH.Create)
	mux.HandleFunc("GET /api/routines", s.routineH.List)
	mux.HandleFunc("GET /api/routines/{id}", s.routineH.Get)
	mux.HandleFunc("PUT /api/routines/{id}", s.routineH.Update)
	mux.HandleFunc("DELETE /api/routines/{id}", s.routineH.Delete)
	mux.HandleFunc("POST /api/routines/{id}/archive", s.routineH.Archive)
	mux.HandleFunc("POST /api/routines/{id}/unarchive", s.routineH.Unarchive)
	mux.HandleFunc("PUT /api/routines/{id}/progress", s.routineH.Progress)
	mux.HandleFunc("GET /api/routines/{id}/logs", s.routineH.Logs)

	// Transactions and budgets
	mux.HandleFunc("POST /api/transactions", s.ledgerH.CreateTransaction)
	mux.HandleFunc("GET /api/transactions", s.ledgerH.ListTransactions)
	mux.HandleFunc("GET /api/transactions/totals", s.ledgerH.Totals)
	mux.HandleFunc("GET /api/transactions/summary", s.ledgerH.Summary)
	mux.HandleFunc("GET /api/transactions/{id}", s.ledgerH.GetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.ledgerH.UpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.ledgerH.DeleteTransaction)
	mux.HandleFunc("POST /api/budgets", s.ledgerH.CreateBudget)
	mux.HandleFunc("GET /api/budgets", s.ledgerH.ListBudgets)
	mux.HandleFunc("PUT /api/budgets/{id}", s.ledgerH.UpdateBudget)
	mux.HandleFunc("DELETE /api/budgets/{id}", s.ledgerH.DeleteBudget)

	// Labels and preferences
	mux.HandleFunc("GET /api/labels", s.labelH.List)
	mux.HandleFunc("POST /api/labels", s.labelH.Create)
	mux.HandleFunc("PUT /api/labels/order", s.labelH.Reorder)
	mux.HandleFunc("PUT /api/labels/{id}", s.labelH.Update)
	mux.HandleFunc("DELETE /api/labels/{id}", s.labelH.Delete)
	mux.HandleFunc("GET /api/preferences", s.preferenceH.List)
	mux.HandleFunc("PUT /api/preferences", s.preferenceH.Update)
	mux.HandleFunc("GET /api/preferences/{group}", s.preferenceH.Group)

	// Reminders
	mux.HandleFunc("GET /api/reminders", s.reminderH.Pending)
	mux.HandleFunc("POST /api/reminders/reschedule", s.reminderH.Reschedule)

	// Backups
	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("GET /api/backups/status", s.backupH.Status)
	mux.HandleFunc("POST /api/backups/export", s.rateLimitedHandler("backup_export", s.backupH.Export))
	mux.HandleFunc("POST /api/backups/import", s.rateLimitedHandler("backup_import", s.backupH.Import))
	mux.HandleFunc("GET /api/backups/{id}/download", s.backupH.Download)

	// Web push
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("POST /api/push/test", s.rateLimitedHandler("push_test", s.pushH.TestNotification))

	logger := s.logger.With("component", "http")
	return middleware.RequestLogger(logger)(middleware.Recover(logger)(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"exact":  s.scheduler.Exact(),
		"feed":   s.hub.Stats(),
		"backup": s.backupMgr.Status().State,
	})
}

// rateLimitedHandler allows ten requests per minute per client on one route.
func (s *Server) rateLimitedHandler(scope string, h http.HandlerFunc) http.HandlerFunc {
	limited := middleware.RateLimit(s.rateLimiter, scope, middleware.RealIP, 10, time.Minute)(h)
	return limited.ServeHTTP
}
