package usecases

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"smart_agenda/internal/models"
	"smart_agenda/internal/recurrence"
)

// EventStore is the persistence gateway for event instances.
// AddMany must return the stored events in input order.
type EventStore interface {
	GetAll(ctx context.Context) ([]models.Event, error)
	AddMany(ctx context.Context, defs []models.EventDefinition) ([]models.Event, error)
	Update(ctx context.Context, id int64, patch models.EventPatch) error
	Delete(ctx context.Context, id int64) error
}

type SchedulerDeps struct {
	Store     EventStore
	Generator *recurrence.Generator
	Extender  *recurrence.Extender
	Notifier  Notifier
	Logger    *zap.Logger
	Clock     func() time.Time
	// Location is the wall clock every recurrence step is computed in.
	Location *time.Location
}

// Scheduler owns the in-memory event collection of one session.
//
// Every mutation goes to the store first; the collection changes only after
// the store call succeeded, so it never shows uncommitted events.
// Mutations hold writeMu from the first read to the merge, so two of them
// never work on the same stale copy.
type Scheduler struct {
	store     EventStore
	generator *recurrence.Generator
	extender  *recurrence.Extender
	notifier  Notifier
	logger    *zap.Logger
	clock     func() time.Time
	loc       *time.Location

	writeMu  sync.Mutex
	extended atomic.Bool

	mu     sync.RWMutex
	events []models.Event // sorted by start, includes trash
}

// AddResult is what one created definition turned into.
type AddResult struct {
	Events []models.Event `json:"events"`
	// Conflict is an existing event overlapping the first new instance, if any.
	Conflict *models.Event `json:"conflict,omitempty"`
}

func NewScheduler(deps SchedulerDeps) *Scheduler {
	s := &Scheduler{
		store:     deps.Store,
		generator: deps.Generator,
		extender:  deps.Extender,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
		clock:     deps.Clock,
		loc:       deps.Location,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.generator == nil {
		s.generator = recurrence.NewGenerator(recurrence.UUIDAllocator{})
	}
	if s.extender == nil {
		s.extender = recurrence.NewExtender(s.generator, s.clock)
	}
	return s
}

// Load reads every stored event. The first successful Load of a session also
// extends recurring series up to the horizon and persists the new instances.
func (s *Scheduler) Load(ctx context.Context) error {
	op := "usecases.Scheduler.Load"

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	all, err := s.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("%s: get all: %w", op, err)
	}
	for i := range all {
		all[i].EventDefinition = s.localize(all[i].EventDefinition)
	}

	if s.extended.CompareAndSwap(false, true) {
		saved, err := s.persistExtensions(ctx, op, all)
		if err != nil {
			s.extended.Store(false)
			return fmt.Errorf("%s: add extensions: %w", op, err)
		}
		all = append(all, saved...)
	}

	models.SortByStart(all)

	s.mu.Lock()
	s.events = all
	s.mu.Unlock()

	return nil
}

// ExtendSeries tops every recurring series up to the horizon again. Load does
// this once; a long-running process calls it periodically as time passes.
// It returns how many instances were added.
func (s *Scheduler) ExtendSeries(ctx context.Context) (int, error) {
	op := "usecases.Scheduler.ExtendSeries"

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	current := make([]models.Event, len(s.events))
	copy(current, s.events)
	s.mu.RUnlock()

	saved, err := s.persistExtensions(ctx, op, current)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.merge(saved)
	return len(saved), nil
}

// persistExtensions stores what the extender proposes for events.
// The caller holds writeMu.
func (s *Scheduler) persistExtensions(ctx context.Context, op string, events []models.Event) ([]models.Event, error) {
	extensions := s.extender.Extend(events)
	if len(extensions) == 0 {
		return nil, nil
	}

	saved, err := s.store.AddMany(ctx, extensions)
	if err != nil {
		return nil, err
	}
	s.logger.Info("recurring series extended",
		zap.String("op", op),
		zap.Int("instances", len(saved)),
		zap.Time("horizon", s.extender.Horizon()),
	)
	return saved, nil
}

// Events returns the active events sorted by start.
func (s *Scheduler) Events() []models.Event {
	return s.filter(func(e models.Event) bool { return !e.IsDeleted() })
}

// Trash returns the soft-deleted events.
func (s *Scheduler) Trash() []models.Event {
	return s.filter(func(e models.Event) bool { return e.IsDeleted() })
}

// EventsOn returns the active events starting on the calendar day of day,
// in day's location.
func (s *Scheduler) EventsOn(day time.Time) []models.Event {
	y, m, d := day.Date()
	loc := day.Location()
	return s.filter(func(e models.Event) bool {
		ey, em, ed := e.StartTime.In(loc).Date()
		return !e.IsDeleted() && ey == y && em == m && ed == d
	})
}

// Event looks up one event, trash included.
func (s *Scheduler) Event(id int64) (models.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.events {
		if e.ID == id {
			return e, true
		}
	}
	return models.Event{}, false
}

func (s *Scheduler) filter(keep func(models.Event) bool) []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Event, 0, len(s.events))
	for _, e := range s.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// FindConflict returns the first active, non-completed, timed event whose
// [start, end) overlaps def. All-day definitions never conflict.
func (s *Scheduler) FindConflict(def models.EventDefinition) *models.Event {
	if def.IsAllDay {
		return nil
	}
	start, end := def.StartTime, def.EffectiveEnd()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.events {
		if e.Completed || e.IsAllDay || e.IsDeleted() {
			continue
		}
		if e.Overlaps(start, end) {
			conflict := e
			return &conflict
		}
	}
	return nil
}

// AddEvent expands def into count instances (the recurrence heuristic when
// count <= 0), stores them and merges them into the collection.
func (s *Scheduler) AddEvent(ctx context.Context, def models.EventDefinition, count int) (AddResult, error) {
	s.writeMu.Lock()
	res, err := s.add(ctx, def, count)
	s.writeMu.Unlock()
	if err != nil {
		return AddResult{}, err
	}

	if len(res.Events) > 0 {
		s.notify(ctx, Change{Kind: ChangeCreated, Events: res.Events[:1]})
	}
	return res, nil
}

// AddBatch adds every definition independently, each with its heuristic
// instance count. Definitions added before a failure stay added.
func (s *Scheduler) AddBatch(ctx context.Context, defs []models.EventDefinition) ([]AddResult, error) {
	results := make([]AddResult, 0, len(defs))
	var (
		created []models.Event
		err     error
	)

	s.writeMu.Lock()
	for _, def := range defs {
		var res AddResult
		if res, err = s.add(ctx, def, 0); err != nil {
			break
		}
		results = append(results, res)
		created = append(created, res.Events...)
	}
	s.writeMu.Unlock()

	if len(created) > 0 {
		s.notify(ctx, Change{Kind: ChangeBatchCreated, Events: created})
	}
	return results, err
}

// add runs with writeMu held.
func (s *Scheduler) add(ctx context.Context, def models.EventDefinition, count int) (AddResult, error) {
	op := "usecases.Scheduler.AddEvent"

	def = s.localize(normalizeDefinition(def))
	if err := validateDefinition(def); err != nil {
		return AddResult{}, err
	}
	if count <= 0 {
		count = recurrence.InstanceCount(def.Recurrence)
	}

	instances := s.generator.Generate(def, recurrence.Options{Count: count})
	if len(instances) == 0 {
		return AddResult{}, nil
	}

	conflict := s.FindConflict(instances[0])

	saved, err := s.store.AddMany(ctx, instances)
	if err != nil {
		s.logger.Error("failed to store instances", zap.String("op", op), zap.Error(err))
		return AddResult{}, fmt.Errorf("%s: %w", op, err)
	}
	s.merge(saved)

	return AddResult{Events: saved, Conflict: conflict}, nil
}

// UpdateEvent edits a single active instance. Siblings in the same series are
// never touched.
func (s *Scheduler) UpdateEvent(ctx context.Context, id int64, patch models.EventPatch) (models.Event, error) {
	op := "usecases.Scheduler.UpdateEvent"

	patch.Lifecycle = nil
	patch = s.localizePatch(patch)
	if patch.Subtasks != nil {
		subtasks := normalizeSubtasks(*patch.Subtasks)
		patch.Subtasks = &subtasks
	}

	updated, changed, err := s.mutate(ctx, op, id, false, func(current models.Event) (*models.EventPatch, error) {
		if patch.IsEmpty() {
			return nil, nil
		}
		next := current
		patch.Apply(&next)
		if err := validateDefinition(next.EventDefinition); err != nil {
			return nil, err
		}
		return &patch, nil
	})
	if err != nil {
		return models.Event{}, err
	}

	if changed {
		s.notify(ctx, Change{Kind: ChangeUpdated, Events: []models.Event{updated}})
	}
	return updated, nil
}

// ToggleComplete sets the completion flag of one instance.
func (s *Scheduler) ToggleComplete(ctx context.Context, id int64, completed bool) (models.Event, error) {
	op := "usecases.Scheduler.ToggleComplete"

	updated, _, err := s.mutate(ctx, op, id, false, func(models.Event) (*models.EventPatch, error) {
		return &models.EventPatch{Completed: &completed}, nil
	})
	if err != nil {
		return models.Event{}, err
	}

	if completed {
		s.notify(ctx, Change{Kind: ChangeCompleted, Events: []models.Event{updated}})
	}
	return updated, nil
}

// DeleteEvent moves an instance to the trash.
func (s *Scheduler) DeleteEvent(ctx context.Context, id int64) (models.Event, error) {
	op := "usecases.Scheduler.DeleteEvent"

	deleted, _, err := s.mutate(ctx, op, id, false, func(models.Event) (*models.EventPatch, error) {
		lifecycle := models.Deleted(s.clock())
		return &models.EventPatch{Lifecycle: &lifecycle}, nil
	})
	if err != nil {
		return models.Event{}, err
	}

	s.notify(ctx, Change{Kind: ChangeDeleted, Events: []models.Event{deleted}})
	return deleted, nil
}

// RestoreEvent brings an instance back from the trash.
func (s *Scheduler) RestoreEvent(ctx context.Context, id int64) (models.Event, error) {
	op := "usecases.Scheduler.RestoreEvent"

	restored, _, err := s.mutate(ctx, op, id, true, func(models.Event) (*models.EventPatch, error) {
		active := models.Active()
		return &models.EventPatch{Lifecycle: &active}, nil
	})
	return restored, err
}

// mutate stores one patch for instance id and applies it to the current
// in-memory copy, all under writeMu. build sees the current state; a nil
// patch leaves everything as is. inTrash selects which side id must be on.
func (s *Scheduler) mutate(ctx context.Context, op string, id int64, inTrash bool,
	build func(current models.Event) (*models.EventPatch, error)) (models.Event, bool, error) {

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, ok := s.Event(id)
	if !ok || current.IsDeleted() != inTrash {
		return models.Event{}, false, fmt.Errorf("%s: id %d: %w", op, id, ErrEventNotFound)
	}

	patch, err := build(current)
	if err != nil {
		return models.Event{}, false, err
	}
	if patch == nil {
		return current, false, nil
	}

	if err := s.store.Update(ctx, id, *patch); err != nil {
		return models.Event{}, false, fmt.Errorf("%s: %w", op, err)
	}

	updated := current
	patch.Apply(&updated)
	s.replace(updated)
	return updated, true, nil
}

// PurgeEvent removes an instance from the store for good.
func (s *Scheduler) PurgeEvent(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.purge(ctx, id)
}

// EmptyTrash purges every soft-deleted instance.
func (s *Scheduler) EmptyTrash(ctx context.Context) (int, error) {
	return s.purgeWhere(ctx, func(models.Event) bool { return true })
}

// PurgeExpired purges trash older than the retention window.
func (s *Scheduler) PurgeExpired(ctx context.Context) (int, error) {
	now := s.clock()
	return s.purgeWhere(ctx, func(e models.Event) bool { return e.Lifecycle.Expired(now) })
}

func (s *Scheduler) purgeWhere(ctx context.Context, match func(models.Event) bool) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	purged := 0
	for _, e := range s.Trash() {
		if !match(e) {
			continue
		}
		if err := s.purge(ctx, e.ID); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

// purge runs with writeMu held.
func (s *Scheduler) purge(ctx context.Context, id int64) error {
	op := "usecases.Scheduler.PurgeEvent"

	if _, ok := s.Event(id); !ok {
		return fmt.Errorf("%s: id %d: %w", op, id, ErrEventNotFound)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.remove(id)
	return nil
}

// localize moves the instants of def onto the scheduler's wall clock so
// that day and month steps keep the local time across DST changes.
func (s *Scheduler) localize(def models.EventDefinition) models.EventDefinition {
	def.StartTime = def.StartTime.In(s.loc)
	if def.EndTime != nil {
		end := def.EndTime.In(s.loc)
		def.EndTime = &end
	}
	return def
}

func (s *Scheduler) localizePatch(patch models.EventPatch) models.EventPatch {
	if patch.StartTime != nil {
		start := patch.StartTime.In(s.loc)
		patch.StartTime = &start
	}
	if patch.EndTime != nil {
		end := patch.EndTime.In(s.loc)
		patch.EndTime = &end
	}
	return patch
}

func (s *Scheduler) merge(saved []models.Event) {
	if len(saved) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, saved...)
	models.SortByStart(s.events)
}

func (s *Scheduler) replace(updated models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID == updated.ID {
			s.events[i] = updated
			break
		}
	}
	models.SortByStart(s.events)
}

func (s *Scheduler) remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) notify(ctx context.Context, change Change) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, change); err != nil {
		s.logger.Warn("notification failed",
			zap.String("kind", string(change.Kind)),
			zap.Error(err),
		)
	}
}
