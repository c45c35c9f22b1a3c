package recurrence

import (
	"sort"
	"time"

	"smart_agenda/internal/models"
)

// HorizonDays is how far ahead every series is kept materialized.
const HorizonDays = 90

// Extender proposes new instances for series that run out before the horizon.
// It never persists anything.
type Extender struct {
	generator *Generator
	clock     func() time.Time
}

func NewExtender(generator *Generator, clock func() time.Time) *Extender {
	if clock == nil {
		clock = time.Now
	}
	return &Extender{generator: generator, clock: clock}
}

// Horizon is now + HorizonDays.
func (x *Extender) Horizon() time.Time {
	return x.clock().AddDate(0, 0, HorizonDays)
}

// Extend returns the instances needed to fill every series up to the horizon.
//
// Soft-deleted instances still count when looking for the last occurrence,
// so a deleted occurrence is never recreated. A series with nothing but
// deleted instances is left alone.
func (x *Extender) Extend(events []models.Event) []models.EventDefinition {
	groups := make(map[string][]models.Event)
	for _, e := range events {
		if e.SeriesID == "" || !e.Recurrence.IsRecurring() {
			continue
		}
		groups[e.SeriesID] = append(groups[e.SeriesID], e)
	}

	seriesIDs := make([]string, 0, len(groups))
	for id := range groups {
		seriesIDs = append(seriesIDs, id)
	}
	sort.Strings(seriesIDs)

	horizon := x.Horizon()
	var out []models.EventDefinition

	for _, id := range seriesIDs {
		group := groups[id]
		if allDeleted(group) {
			continue
		}

		last := lastOccurrence(group)
		if !last.StartTime.Before(horizon) {
			continue
		}

		out = append(out, x.generator.Generate(nextOccurrence(last), Options{Until: &horizon})...)
	}

	return out
}

func lastOccurrence(group []models.Event) models.Event {
	last := group[0]
	for _, e := range group[1:] {
		if e.StartTime.After(last.StartTime) {
			last = e
		}
	}
	return last
}

func allDeleted(group []models.Event) bool {
	for _, e := range group {
		if !e.IsDeleted() {
			return false
		}
	}
	return true
}

// nextOccurrence is the definition one recurrence step after last, keeping
// last's own duration.
func nextOccurrence(last models.Event) models.EventDefinition {
	duration := models.DefaultEventDuration
	if last.EndTime != nil {
		if d := last.EndTime.Sub(last.StartTime); d > 0 {
			duration = d
		}
	}

	next := last.EventDefinition
	next.RecurrenceInterval = NormalizeInterval(last.RecurrenceInterval)
	next.StartTime = Advance(last.StartTime, last.Recurrence, next.RecurrenceInterval)
	end := next.StartTime.Add(duration)
	next.EndTime = &end
	if last.ReminderMinutes != nil {
		minutes := *last.ReminderMinutes
		next.ReminderMinutes = &minutes
	}
	// new occurrences start with an unchecked list
	next.Subtasks = models.CloneSubtasks(last.Subtasks)
	for i := range next.Subtasks {
		next.Subtasks[i].Completed = false
	}
	return next
}
