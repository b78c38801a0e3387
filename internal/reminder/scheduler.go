package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/store"
)

// sentRetention is how long the delivery ledger remembers a reminder.
const sentRetention = 30 * 24 * time.Hour

// Notifier delivers a fired reminder.
type Notifier interface {
	Notify(ctx context.Context, a model.Alarm) error
}

// PermissionChecker is implemented by notifiers that can report up front
// whether they are able to deliver at the exact trigger time.
type PermissionChecker interface {
	CheckPermission(ctx context.Context) error
}

// Options configures a Scheduler. Zero values select a 60s interval,
// the local time zone and the default logger.
type Options struct {
	// Exact arms an in-process timer per alarm in addition to the ticker.
	Exact    bool
	Interval time.Duration
	Location *time.Location
	Logger   *slog.Logger
}

// Scheduler keeps the persisted alarm registry in sync with entities and
// fires due alarms.
type Scheduler struct {
	alarms    *store.AlarmStore
	notes     *store.NoteStore
	schedules *store.ScheduleStore
	routines  *store.RoutineStore
	notifier  Notifier
	logger    *slog.Logger
	loc       *time.Location
	interval  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	exact   bool
	running bool
	timers  map[int32]*time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	fireMu sync.Mutex
}

func NewScheduler(alarms *store.AlarmStore, notes *store.NoteStore, schedules *store.ScheduleStore, routines *store.RoutineStore, notifier Notifier, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		alarms:    alarms,
		notes:     notes,
		schedules: schedules,
		routines:  routines,
		notifier:  notifier,
		logger:    opts.Logger.With("component", "reminder"),
		loc:       opts.Location,
		interval:  opts.Interval,
		now:       time.Now,
		exact:     opts.Exact,
		timers:    make(map[int32]*time.Timer),
	}
}

// Exact reports whether per-alarm timers are in use.
func (s *Scheduler) Exact() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exact
}

// Start begins the ticker loop and, in exact mode, arms a timer for every
// registered alarm. If the notifier cannot deliver exactly, the scheduler
// falls back to the ticker alone.
func (s *Scheduler) Start(ctx context.Context) {
	exact := s.Exact()
	if pc, ok := s.notifier.(PermissionChecker); ok && exact {
		if err := pc.CheckPermission(ctx); err != nil {
			s.logger.Warn("exact reminders unavailable, using periodic checks", "error", err)
			exact = false
		}
	}

	s.mu.Lock()
	s.exact = exact
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true
	runCtx, done := s.ctx, s.done
	s.mu.Unlock()

	if exact {
		pending, err := s.alarms.ListAll()
		if err != nil {
			s.logger.Error("list alarms", "error", err)
		}
		for _, a := range pending {
			s.arm(a)
		}
	}

	s.logger.Info("reminder scheduler started", "exact", exact, "interval", s.interval)

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick(runCtx)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()
}

// Stop halts the ticker and disarms every timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.running = false
	for k, t := range s.timers {
		t.Stop()
		delete(s.timers, k)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Reschedule rebuilds the registry after a restart or restore: alarms whose
// time has passed are dropped and every upcoming entity is registered again.
// It returns the number of registered alarms.
func (s *Scheduler) Reschedule(ctx context.Context) (int, error) {
	now := s.now()

	purged, err := s.alarms.DeleteBefore(now)
	if err != nil {
		return 0, err
	}
	s.disarm(purged...)

	notes, err := s.notes.ListWithReminders(now)
	if err != nil {
		return 0, err
	}
	schedules, err := s.schedules.ListWithReminders(now)
	if err != nil {
		return 0, err
	}
	routines, err := s.routines.ListWithReminders()
	if err != nil {
		return 0, err
	}

	total := 0
	for _, n := range notes {
		c, err := s.ScheduleNote(n)
		if err != nil {
			return total, err
		}
		total += c
	}
	for _, sc := range schedules {
		c, err := s.ScheduleSchedule(sc)
		if err != nil {
			return total, err
		}
		total += c
	}
	for _, r := range routines {
		c, err := s.ScheduleRoutine(r)
		if err != nil {
			return total, err
		}
		total += c
	}

	s.logger.Info("reminders rescheduled", "purged", len(purged), "registered", total)
	return total, nil
}

// ScheduleNote replaces the alarms of a note.
func (s *Scheduler) ScheduleNote(n model.Note) (int, error) {
	return s.replace(model.AlarmNote, n.ID, NoteAlarms(n, s.now()))
}

// ScheduleSchedule replaces the alarms of a schedule.
func (s *Scheduler) ScheduleSchedule(sc model.Schedule) (int, error) {
	return s.replace(model.AlarmSchedule, strconv.FormatInt(sc.ID, 10), ScheduleAlarms(sc, s.now(), s.loc))
}

// ScheduleRoutine replaces the alarms of a routine.
func (s *Scheduler) ScheduleRoutine(r model.Routine) (int, error) {
	return s.replace(model.AlarmRoutine, strconv.FormatInt(r.ID, 10), RoutineAlarms(r, s.now(), s.loc))
}

// Cancel removes every alarm of an entity.
func (s *Scheduler) Cancel(kind model.AlarmKind, entityID string) error {
	keys, err := s.alarms.DeleteByEntity(kind, entityID)
	if err != nil {
		return err
	}
	s.disarm(keys...)
	return nil
}

// Pending lists registered alarms, earliest first.
func (s *Scheduler) Pending() ([]model.Alarm, error) {
	return s.alarms.ListAll()
}

func (s *Scheduler) replace(kind model.AlarmKind, entityID string, alarms []model.Alarm) (int, error) {
	if err := s.Cancel(kind, entityID); err != nil {
		return 0, err
	}
	if kind != model.AlarmNote && len(alarms) > 0 && EntityKey(kind, entityID) > MaxEntityID {
		s.logger.Warn("entity id beyond unique key range", "kind", kind, "entity_id", entityID, "max", MaxEntityID)
	}
	for _, a := range alarms {
		if err := s.alarms.Upsert(a); err != nil {
			return 0, err
		}
		s.arm(a)
	}
	return len(alarms), nil
}

// arm replaces the timer for a's key when running in exact mode.
func (s *Scheduler) arm(a model.Alarm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || !s.exact {
		return
	}

	if t, ok := s.timers[a.Key]; ok {
		t.Stop()
	}
	ctx, key := s.ctx, a.Key
	s.timers[key] = time.AfterFunc(time.Until(a.TriggerAt), func() {
		s.fire(ctx, key)
	})
}

func (s *Scheduler) disarm(keys ...int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if t, ok := s.timers[k]; ok {
			t.Stop()
			delete(s.timers, k)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.alarms.ListDue(s.now())
	if err != nil {
		s.logger.Error("list due alarms", "error", err)
		return
	}
	for _, a := range due {
		if ctx.Err() != nil {
			return
		}
		s.fire(ctx, a.Key)
	}

	if n, err := s.alarms.CleanupSent(s.now().Add(-sentRetention)); err != nil {
		s.logger.Error("cleanup sent reminders", "error", err)
	} else if n > 0 {
		s.logger.Debug("cleaned up sent reminders", "count", n)
	}
}

// fire delivers the alarm registered under key if it is due and has not
// been delivered for this trigger time, then re-arms recurring entities.
func (s *Scheduler) fire(ctx context.Context, key int32) {
	s.fireMu.Lock()
	defer s.fireMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	a, err := s.alarms.Get(key)
	if err != nil {
		s.logger.Error("get alarm", "key", key, "error", err)
		return
	}
	if a == nil {
		return
	}
	if a.TriggerAt.After(s.now()) {
		// Moved later after this timer was armed.
		s.arm(*a)
		return
	}

	sent, err := s.alarms.WasSent(a.Key, a.TriggerAt)
	if err != nil {
		s.logger.Error("check sent reminder", "key", key, "error", err)
		return
	}
	if !sent {
		if err := s.notifier.Notify(ctx, *a); err != nil {
			s.logger.Warn("deliver reminder", "key", key, "kind", a.Kind, "entity_id", a.EntityID, "error", err)
		} else {
			s.logger.Info("reminder delivered", "key", key, "kind", a.Kind, "entity_id", a.EntityID)
		}
		if err := s.alarms.RecordSent(a.Key, a.TriggerAt); err != nil {
			s.logger.Error("record sent reminder", "key", key, "error", err)
		}
	}

	if err := s.alarms.Delete(a.Key); err != nil {
		s.logger.Error("delete fired alarm", "key", key, "error", err)
	}
	s.disarm(a.Key)

	if err := s.rearm(*a); err != nil {
		s.logger.Error("re-arm reminder", "kind", a.Kind, "entity_id", a.EntityID, "error", err)
	}
}

// rearm registers the next trigger for the fired key of a recurring
// entity. Sibling keys of the same entity are left alone so that alarms
// due in the same tick still fire.
func (s *Scheduler) rearm(a model.Alarm) error {
	var next []model.Alarm
	switch a.Kind {
	case model.AlarmSchedule:
		id, err := strconv.ParseInt(a.EntityID, 10, 64)
		if err != nil {
			return fmt.Errorf("parse schedule id %q: %w", a.EntityID, err)
		}
		sc, err := s.schedules.GetByID(id)
		if err != nil || sc == nil || sc.RecurrenceRule == "" {
			return err
		}
		next = ScheduleAlarms(*sc, s.now(), s.loc)
	case model.AlarmRoutine:
		id, err := strconv.ParseInt(a.EntityID, 10, 64)
		if err != nil {
			return fmt.Errorf("parse routine id %q: %w", a.EntityID, err)
		}
		r, err := s.routines.GetByID(id)
		if err != nil || r == nil {
			return err
		}
		next = RoutineAlarms(*r, s.now(), s.loc)
	}

	for _, n := range next {
		if n.Key != a.Key {
			continue
		}
		if err := s.alarms.Upsert(n); err != nil {
			return err
		}
		s.arm(n)
	}
	return nil
}
