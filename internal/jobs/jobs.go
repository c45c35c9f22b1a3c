package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"smart_agenda/internal/models"
)

// ReminderWindow is how long after the reminder moment a reminder still fires.
const ReminderWindow = 2 * time.Minute

const jobTimeout = 30 * time.Second

// EventSource is the part of the scheduler the jobs need.
type EventSource interface {
	Events() []models.Event
	PurgeExpired(ctx context.Context) (int, error)
	ExtendSeries(ctx context.Context) (int, error)
}

type AgendaSender interface {
	SendAgenda(ctx context.Context, events []models.Event) error
}

type ReminderSender interface {
	SendReminder(ctx context.Context, e models.Event) error
}

type Config struct {
	AgendaSpec   string
	ReminderSpec string
	PurgeSpec    string
	ExtendSpec   string
	Location     *time.Location
}

type Deps struct {
	Events    EventSource
	Agenda    AgendaSender
	Reminders ReminderSender
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Runner owns the periodic jobs of the app.
type Runner struct {
	cron      *cron.Cron
	events    EventSource
	agenda    AgendaSender
	reminders ReminderSender
	logger    *zap.Logger
	clock     func() time.Time

	mu       sync.Mutex
	notified map[string]time.Time // reminder key -> event start
}

func NewRunner(cfg Config, deps Deps) (*Runner, error) {
	r := &Runner{
		events:    deps.Events,
		agenda:    deps.Agenda,
		reminders: deps.Reminders,
		logger:    deps.Logger,
		clock:     deps.Clock,
		notified:  make(map[string]time.Time),
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	cl := cronLogger{r.logger.Sugar()}
	r.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"agenda", cfg.AgendaSpec, r.runAgenda},
		{"reminders", cfg.ReminderSpec, func(ctx context.Context) { r.CheckReminders(ctx) }},
		{"purge", cfg.PurgeSpec, r.runPurge},
		{"extend", cfg.ExtendSpec, r.runExtend},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		run := job.run
		name := job.name
		if _, err := r.cron.AddFunc(job.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			run(ctx)
		}); err != nil {
			return nil, fmt.Errorf("jobs: schedule %s %q: %w", name, job.spec, err)
		}
		r.logger.Info("job scheduled", zap.String("job", name), zap.String("spec", job.spec))
	}

	return r, nil
}

func (r *Runner) Start() {
	r.cron.Start()
}

// Stop stops the scheduler and waits for running jobs or ctx.
func (r *Runner) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (r *Runner) runAgenda(ctx context.Context) {
	if r.agenda == nil {
		return
	}
	if err := r.agenda.SendAgenda(ctx, r.events.Events()); err != nil {
		r.logger.Warn("agenda push failed", zap.Error(err))
	}
}

func (r *Runner) runPurge(ctx context.Context) {
	n, err := r.events.PurgeExpired(ctx)
	if err != nil {
		r.logger.Error("trash purge failed", zap.Int("purged", n), zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("trash purged", zap.Int("purged", n))
	}
}

// runExtend keeps recurring series materialized while the process outlives
// the horizon computed at startup.
func (r *Runner) runExtend(ctx context.Context) {
	n, err := r.events.ExtendSeries(ctx)
	if err != nil {
		r.logger.Error("series extension failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("series extended", zap.Int("instances", n))
	}
}

// CheckReminders sends every reminder that is due and not yet sent.
// It returns how many were sent.
func (r *Runner) CheckReminders(ctx context.Context) int {
	if r.reminders == nil {
		return 0
	}
	now := r.clock()

	r.mu.Lock()
	due := DueReminders(r.events.Events(), now, r.notified)
	for _, e := range due {
		r.notified[ReminderKey(e)] = e.StartTime
	}
	r.prune(now)
	r.mu.Unlock()

	sent := 0
	for _, e := range due {
		if err := r.reminders.SendReminder(ctx, e); err != nil {
			r.logger.Warn("reminder failed", zap.Int64("id", e.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// prune forgets reminders of events that started more than a day ago.
func (r *Runner) prune(now time.Time) {
	for key, start := range r.notified {
		if now.Sub(start) > 24*time.Hour {
			delete(r.notified, key)
		}
	}
}

// ReminderKey identifies one reminder; changing the lead time re-arms it.
func ReminderKey(e models.Event) string {
	minutes := 0
	if e.ReminderMinutes != nil {
		minutes = *e.ReminderMinutes
	}
	return fmt.Sprintf("%d-%d", e.ID, minutes)
}

// DueReminders picks timed, open events whose reminder moment lies in
// [now-ReminderWindow, now] and whose key is not in sent.
func DueReminders(events []models.Event, now time.Time, sent map[string]time.Time) []models.Event {
	var due []models.Event
	for _, e := range events {
		if e.ReminderMinutes == nil || *e.ReminderMinutes <= 0 {
			continue
		}
		if e.Completed || e.IsAllDay || e.IsDeleted() {
			continue
		}

		remindAt := e.StartTime.Add(-time.Duration(*e.ReminderMinutes) * time.Minute)
		diff := now.Sub(remindAt)
		if diff < 0 || diff >= ReminderWindow {
			continue
		}
		if _, ok := sent[ReminderKey(e)]; ok {
			continue
		}
		due = append(due, e)
	}
	return due
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
